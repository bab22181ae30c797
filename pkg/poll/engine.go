// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package poll samples S4 memory locations and notifies subscribers when the
// decoded value changes.
//
// The Engine keeps one polling slot per distinct memory address. Slots are
// chosen by smooth weighted round robin, so a HIGH slot is polled more often
// than a NORMAL one without starving LOW slots. Replies are routed back by
// location to every subscription whose width matches the number of bytes
// received.
package poll

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/s4link/s4link/pkg/s4"
)

// DefaultInterval is the default time between two read requests.
const DefaultInterval = 200 * time.Millisecond

// ErrInvalidWeights is returned by NewEngine for weights that are not
// positive or not ordered HIGH >= NORMAL >= LOW.
var ErrInvalidWeights = errors.New("invalid priority weights")

// Sender transmits a read request. It is called from the scheduler goroutine
// and must not call Engine.Deactivate.
type Sender func(s4.ReadMemory) error

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Interval time.Duration
	Weights  Weights

	// ResetCachesOnActivate clears every subscription's value cache when
	// polling is activated, so the first reading after a reconnect is always
	// delivered. Off by default: a reconnect does not repeat a notification
	// for a value that has not changed.
	ResetCachesOnActivate bool

	Logger log.FieldLogger
}

// Reading is a read-only view of one subscription.
type Reading struct {
	ID       string
	Name     string
	Address  s4.MemoryAddress
	Priority Priority
	Value    uint32
	Valid    bool
	Updated  time.Time
}

type slot struct {
	address s4.MemoryAddress
	subs    []*Subscription
	weight  int
	current int
}

func (s *slot) recomputeWeight(w Weights) {
	s.weight = 0
	for _, sub := range s.subs {
		if wt := w.Of(sub.priority); wt > s.weight {
			s.weight = wt
		}
	}
}

// Engine owns the subscription registry and the poll scheduler.
type Engine struct {
	interval        time.Duration
	weights         Weights
	resetOnActivate bool
	log             log.FieldLogger

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	order  []*Subscription // registration order, for Snapshot
	slots  []*slot
	byAddr map[s4.MemoryAddress]*slot
	byLoc  map[uint16][]*Subscription
	active bool
	stop   chan struct{}
	done   chan struct{}
}

// NewEngine creates an inactive engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}
	if !opts.Weights.Valid() {
		return nil, ErrInvalidWeights
	}
	if opts.Logger == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	return &Engine{
		interval:        opts.Interval,
		weights:         opts.Weights,
		resetOnActivate: opts.ResetCachesOnActivate,
		log:             opts.Logger,
		subs:            make(map[*Subscription]struct{}),
		byAddr:          make(map[s4.MemoryAddress]*slot),
		byLoc:           make(map[uint16][]*Subscription),
	}, nil
}

// Subscribe registers s. Registering the same subscription twice is a no-op.
// Subscriptions sharing an address share one polling slot.
//
// An address that s4.NewMemoryAddress would reject, such as the zero value
// with no width, is refused with its *s4.ValidationError: it could never be
// encoded as a read request.
func (e *Engine) Subscribe(s *Subscription) error {
	if s == nil {
		return nil
	}
	if _, err := s4.NewMemoryAddress(int(s.address.Location), s.address.Width); err != nil {
		return fmt.Errorf("subscribe %q: %w", s.name, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subs[s]; ok {
		return nil
	}
	e.subs[s] = struct{}{}
	e.order = append(e.order, s)
	e.byLoc[s.address.Location] = append(e.byLoc[s.address.Location], s)

	sl, ok := e.byAddr[s.address]
	if !ok {
		sl = &slot{address: s.address}
		e.byAddr[s.address] = sl
		e.slots = append(e.slots, sl)
	}
	sl.subs = append(sl.subs, s)
	sl.recomputeWeight(e.weights)

	e.log.WithFields(log.Fields{
		"subscription": s.name,
		"address":      s.address.String(),
		"priority":     s.priority.String(),
	}).Debug("subscribed")
	return nil
}

// Unsubscribe removes s. Unknown subscriptions are ignored.
func (e *Engine) Unsubscribe(s *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subs[s]; !ok {
		return
	}
	delete(e.subs, s)
	e.order = removeSub(e.order, s)

	loc := s.address.Location
	if rest := removeSub(e.byLoc[loc], s); len(rest) > 0 {
		e.byLoc[loc] = rest
	} else {
		delete(e.byLoc, loc)
	}

	sl := e.byAddr[s.address]
	sl.subs = removeSub(sl.subs, s)
	if len(sl.subs) > 0 {
		sl.recomputeWeight(e.weights)
	} else {
		delete(e.byAddr, s.address)
		for i, other := range e.slots {
			if other == sl {
				e.slots = append(e.slots[:i], e.slots[i+1:]...)
				break
			}
		}
	}
}

func removeSub(list []*Subscription, s *Subscription) []*Subscription {
	for i, other := range list {
		if other == s {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Len returns the number of registered subscriptions.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Poll selects the next address to read and returns the request for it.
// It returns false when the engine is inactive or has nothing to poll.
func (e *Engine) Poll() (s4.ReadMemory, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active || len(e.slots) == 0 {
		return s4.ReadMemory{}, false
	}
	return s4.ReadMemory{Address: e.next().address}, true
}

// next implements smooth weighted round robin. Caller holds e.mu.
func (e *Engine) next() *slot {
	var (
		best  *slot
		total int
	)
	for _, sl := range e.slots {
		sl.current += sl.weight
		total += sl.weight
		if best == nil || sl.current > best.current {
			best = sl
		}
	}
	best.current -= total
	return best
}

// Handle routes a memory reply to the subscriptions registered for its
// location whose width matches the number of values. Handlers run on the
// calling goroutine, after the engine lock is released, in registration order.
func (e *Engine) Handle(d s4.DataMemory) {
	now := time.Now()

	e.mu.Lock()
	var changes []Change
	matched := false
	for _, s := range e.byLoc[d.Location] {
		if int(s.address.Width) != len(d.Values) {
			continue
		}
		matched = true
		change, notify, err := s.update(d.Values, now)
		if err != nil {
			e.log.WithError(err).WithField("subscription", s.name).Debug("dropping reply")
			continue
		}
		if notify && s.handler != nil {
			changes = append(changes, change)
		}
	}
	e.mu.Unlock()

	if !matched {
		e.log.WithFields(log.Fields{
			"location": d.Location,
			"bytes":    len(d.Values),
		}).Debug("no subscription for reply")
		return
	}
	for _, c := range changes {
		c.Subscription.handler(c)
	}
}

// ResetCaches forgets every recorded value, so the next reading of each
// subscription is delivered as a first reading.
func (e *Engine) ResetCaches() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for s := range e.subs {
		s.reset()
	}
}

// Snapshot returns the current value of every subscription in registration order.
func (e *Engine) Snapshot() []Reading {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Reading, 0, len(e.order))
	for _, s := range e.order {
		out = append(out, Reading{
			ID:       s.id.String(),
			Name:     s.name,
			Address:  s.address,
			Priority: s.priority,
			Value:    s.last,
			Valid:    s.hasLast,
			Updated:  s.updated,
		})
	}
	return out
}

// Active reports whether the scheduler is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Activate starts the scheduler, which sends one read request through send
// every interval. Activating an active engine is a no-op.
func (e *Engine) Activate(send Sender) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return
	}
	if e.resetOnActivate {
		for s := range e.subs {
			s.reset()
		}
	}
	e.active = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(send, e.stop, e.done)

	e.log.WithField("interval", e.interval).Debug("polling activated")
}

// Deactivate stops the scheduler and waits for it to exit. Subscriptions and
// their cached values are kept for the next activation.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	close(e.stop)
	done := e.done
	e.mu.Unlock()

	<-done
	e.log.Debug("polling deactivated")
}

func (e *Engine) run(send Sender, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			req, ok := e.Poll()
			if !ok {
				continue
			}
			if err := send(req); err != nil {
				e.log.WithError(err).WithField("address", req.Address.String()).Warn("read request failed")
			}
		}
	}
}

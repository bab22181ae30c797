// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"errors"
	"sync"
	"time"
)

// Watchdog constants.
const (
	// DefaultWatchdogTimeout is how long the monitor may stay silent. An idle
	// S4 sends PING about once a second, and polling adds a reply per request.
	DefaultWatchdogTimeout = 5 * time.Second

	// DefaultWatchdogCheckInterval is how often the deadline is checked.
	DefaultWatchdogCheckInterval = 250 * time.Millisecond
)

// ErrInvalidWatchdogConfig is returned for a non-positive timeout or a check
// interval longer than the timeout.
var ErrInvalidWatchdogConfig = errors.New("invalid watchdog configuration")

// WatchdogConfig holds watchdog timing.
type WatchdogConfig struct {
	Timeout       time.Duration
	CheckInterval time.Duration
}

// DefaultWatchdogConfig returns the default watchdog timing.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Timeout:       DefaultWatchdogTimeout,
		CheckInterval: DefaultWatchdogCheckInterval,
	}
}

// Validate checks the configuration.
func (c WatchdogConfig) Validate() error {
	if c.Timeout <= 0 || c.CheckInterval <= 0 || c.CheckInterval > c.Timeout {
		return ErrInvalidWatchdogConfig
	}
	return nil
}

// Watchdog detects a silent device. The deadline is pushed out by Reset on
// every inbound message; a background ticker calls the expiry callback once
// when the deadline passes, then disarms until the next Start.
type Watchdog struct {
	cfg      WatchdogConfig
	onExpire func()
	now      func() time.Time

	mu       sync.Mutex
	deadline time.Time
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

// NewWatchdog creates a stopped watchdog.
func NewWatchdog(cfg WatchdogConfig, onExpire func()) (*Watchdog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Watchdog{
		cfg:      cfg,
		onExpire: onExpire,
		now:      time.Now,
	}, nil
}

// Config returns the watchdog timing.
func (w *Watchdog) Config() WatchdogConfig {
	return w.cfg
}

// Reset moves the deadline to now + timeout.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deadline = w.now().Add(w.cfg.Timeout)
}

// Deadline returns the current deadline. It is zero when the watchdog has
// never been reset.
func (w *Watchdog) Deadline() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deadline
}

// Expired reports whether the deadline lies before now.
func (w *Watchdog) Expired(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.deadline.IsZero() && now.After(w.deadline)
}

// Running reports whether the background check is active.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Kick moves the deadline to now + timeout unless the watchdog is stopped.
// Unlike Reset it never arms a stopped watchdog, so it is safe to call for
// traffic that races with Stop.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deadline.IsZero() {
		return
	}
	w.deadline = w.now().Add(w.cfg.Timeout)
}

// Start resets the deadline and starts the background check if it is not
// already running.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.deadline = w.now().Add(w.cfg.Timeout)
	w.startLocked()
}

// Resume restarts the background check after an expiry report without
// touching the deadline. It does nothing when the watchdog is stopped.
func (w *Watchdog) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.deadline.IsZero() {
		return
	}
	w.startLocked()
}

func (w *Watchdog) startLocked() {
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(w.stop, w.done)
}

// Stop halts the background check, waits for it to exit and clears the
// deadline. Stop may be called from the expiry callback.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	w.deadline = time.Time{}
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	<-done
}

func (w *Watchdog) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if !w.Expired(now) {
				continue
			}

			w.mu.Lock()
			select {
			case <-stop:
				// Stopped while we checked
				w.mu.Unlock()
				return
			default:
			}
			w.running = false
			w.mu.Unlock()

			// onExpire may call Stop or Start
			if w.onExpire != nil {
				go w.onExpire()
			}
			return
		}
	}
}

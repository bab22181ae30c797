// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poll

import (
	"time"

	"github.com/google/uuid"

	"github.com/s4link/s4link/pkg/s4"
)

// Change is delivered to a subscription handler when the composed value at
// its address differs from the last one seen.
type Change struct {
	Subscription *Subscription
	Address      s4.MemoryAddress
	Value        uint32
	Previous     uint32 // zero when First is set
	First        bool   // no value had been recorded before
	Time         time.Time
}

// Handler receives change notifications.
type Handler func(Change)

// SubscriptionOption configures a Subscription.
type SubscriptionOption func(*Subscription)

// WithName sets a display name used by logs, the dashboard and publishers.
func WithName(name string) SubscriptionOption {
	return func(s *Subscription) {
		s.name = name
	}
}

// Subscription is a standing request to be notified when the value at one
// memory address changes.
//
// The value cache belongs to the Engine and is only touched under its lock.
type Subscription struct {
	id       uuid.UUID
	name     string
	priority Priority
	address  s4.MemoryAddress
	handler  Handler

	last    uint32
	hasLast bool
	updated time.Time
}

// NewSubscription creates a subscription. A nil handler is allowed; the
// subscription is then only visible through Engine.Snapshot.
func NewSubscription(priority Priority, address s4.MemoryAddress, handler Handler, opts ...SubscriptionOption) *Subscription {
	s := &Subscription{
		id:       uuid.New(),
		priority: priority,
		address:  address,
		handler:  handler,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = address.String()
	}
	return s
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Name returns the display name.
func (s *Subscription) Name() string { return s.name }

// Priority returns the polling priority.
func (s *Subscription) Priority() Priority { return s.priority }

// Address returns the subscribed memory address.
func (s *Subscription) Address() s4.MemoryAddress { return s.address }

// update composes values and records them. It returns the change to deliver
// and whether the handler should be notified.
func (s *Subscription) update(values []byte, now time.Time) (Change, bool, error) {
	v, err := s.address.Width.Compose(values)
	if err != nil {
		return Change{}, false, err
	}

	change := Change{
		Subscription: s,
		Address:      s.address,
		Value:        v,
		Previous:     s.last,
		First:        !s.hasLast,
		Time:         now,
	}
	notify := !s.hasLast || s.last != v

	s.last = v
	s.hasLast = true
	s.updated = now
	return change, notify, nil
}

func (s *Subscription) reset() {
	s.last = 0
	s.hasLast = false
	s.updated = time.Time{}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import "sync"

// EntryFunc runs once on every entry into a state.
type EntryFunc func(from, to State, trigger Trigger)

// FaultFunc receives transition faults.
type FaultFunc func(error)

// event is a queued trigger or a queued function run in machine context.
type event struct {
	trigger Trigger
	fn      func(State)
}

// Machine holds the current state and applies transitions run-to-completion.
//
// Only one goroutine drives the machine at a time. A trigger fired while a
// transition is in progress, from an entry action or from another goroutine,
// is queued and applied after the running transition finishes, so entry
// actions never interleave.
type Machine struct {
	onEnter EntryFunc
	onFault FaultFunc

	mu      sync.Mutex
	state   State
	running bool
	queue   []event
}

// NewMachine creates a machine in NotConnected. Either callback may be nil.
func NewMachine(onEnter EntryFunc, onFault FaultFunc) *Machine {
	return &Machine{
		state:   NotConnected,
		onEnter: onEnter,
		onFault: onFault,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies trigger.
//
// When the machine is idle the transition and every transition it queues run
// on the calling goroutine, and an invalid trigger is returned as a
// *TransitionError. When the machine is busy the trigger is queued and Fire
// returns nil. Every fault is also passed to the fault callback.
func (m *Machine) Fire(trigger Trigger) error {
	return m.dispatch(event{trigger: trigger})
}

// Do runs fn with the current state in machine context: no transition runs
// concurrently with fn, and triggers fired by fn are applied after it
// returns, in order. If the machine is busy fn is queued behind pending
// triggers.
func (m *Machine) Do(fn func(State)) {
	_ = m.dispatch(event{fn: fn})
}

func (m *Machine) dispatch(ev event) error {
	m.mu.Lock()
	if m.running {
		m.queue = append(m.queue, ev)
		m.mu.Unlock()
		return nil
	}
	m.running = true

	err := m.process(ev)
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		_ = m.process(next)
	}
	m.queue = nil
	m.running = false
	m.mu.Unlock()
	return err
}

// process handles one event. Called with m.mu held; the lock is released
// while callbacks run.
func (m *Machine) process(ev event) error {
	from := m.state

	if ev.fn != nil {
		m.mu.Unlock()
		ev.fn(from)
		m.mu.Lock()
		return nil
	}

	to, err := Next(from, ev.trigger)
	if err != nil {
		if m.onFault != nil {
			m.mu.Unlock()
			m.onFault(err)
			m.mu.Lock()
		}
		return err
	}

	m.state = to
	if m.onEnter != nil {
		m.mu.Unlock()
		m.onEnter(from, to, ev.trigger)
		m.mu.Lock()
	}
	return nil
}

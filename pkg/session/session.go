// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session drives the S4 connection lifecycle.
//
// A Session sits between a Transport and a poll.Engine. It sequences the
// handshake (USB, _WR_, IV?, IV), validates the firmware, supervises the
// link with a watchdog and activates polling once the monitor is confirmed.
// All state changes go through a Machine over the transition table in
// state.go.
package session

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/s4link/s4link/pkg/poll"
	"github.com/s4link/s4link/pkg/s4"
)

// ErrNotReady is returned by Send outside ConnectedSupportedWaterRower.
var ErrNotReady = errors.New("session not ready")

// Listener receives transport notifications. *Session implements it.
type Listener interface {
	OnConnected()
	OnDisconnected()
	OnError(err error)
	OnData(chunk []byte)
}

// Transport moves bytes to and from the monitor.
//
// Open and Close may deliver OnConnected and OnDisconnected synchronously.
// Close must deliver OnDisconnected at most once per successful Open and must
// not wait for a pending OnData call to return. Send must be safe for
// concurrent use.
type Transport interface {
	SetListener(l Listener)
	Open() error
	Close() error
	Send(frame []byte) error
}

// Hooks are optional observers. They run in machine context and must not block.
type Hooks struct {
	OnStateChange         func(from, to State)
	OnFault               func(err error)
	OnMessage             func(m s4.Message)
	OnUnsupportedFirmware func(mi s4.ModelInformation)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l log.FieldLogger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithCodec replaces the default codec.
func WithCodec(c *s4.Codec) Option {
	return func(s *Session) {
		s.codec = c
	}
}

// WithFirmwarePolicy replaces DefaultFirmwarePolicy.
func WithFirmwarePolicy(p FirmwarePolicy) Option {
	return func(s *Session) {
		s.policy = p
	}
}

// WithWatchdog replaces DefaultWatchdogConfig.
func WithWatchdog(cfg WatchdogConfig) Option {
	return func(s *Session) {
		s.watchdogCfg = cfg
	}
}

// WithHooks installs observers.
func WithHooks(h Hooks) Option {
	return func(s *Session) {
		s.hooks = h
	}
}

// Session is the caller-facing connection API.
type Session struct {
	transport   Transport
	engine      *poll.Engine
	codec       *s4.Codec
	policy      FirmwarePolicy
	watchdogCfg WatchdogConfig
	hooks       Hooks
	log         log.FieldLogger

	machine  *Machine
	watchdog *Watchdog

	decMu   sync.Mutex
	decoder *s4.Decoder

	sendMu sync.Mutex

	mu          sync.Mutex
	identity    s4.ModelInformation
	hasIdentity bool
}

// New creates a session in NotConnected and registers it as the transport's
// listener. A nil engine gets a default one.
func New(transport Transport, engine *poll.Engine, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, errors.New("session: nil transport")
	}

	s := &Session{
		transport:   transport,
		engine:      engine,
		codec:       s4.DefaultCodec(),
		policy:      DefaultFirmwarePolicy(),
		watchdogCfg: DefaultWatchdogConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	if s.engine == nil {
		e, err := poll.NewEngine(poll.Options{Logger: s.log})
		if err != nil {
			return nil, err
		}
		s.engine = e
	}

	wd, err := NewWatchdog(s.watchdogCfg, s.expired)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.watchdog = wd
	s.decoder = s4.NewDecoder(s.codec)
	s.machine = NewMachine(s.enter, s.fault)

	transport.SetListener(s)
	return s, nil
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.machine.State()
}

// Engine returns the polling engine.
func (s *Session) Engine() *poll.Engine {
	return s.engine
}

// Identity returns the model information reported during the handshake.
func (s *Session) Identity() (s4.ModelInformation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.hasIdentity
}

// Connect starts a session. It fails with a *TransitionError unless the
// session is NotConnected.
func (s *Session) Connect() error {
	return s.machine.Fire(DoConnect)
}

// Disconnect ends the session. It is safe in every state and a no-op in
// NotConnected and Disconnecting.
//
// Before the monitor is confirmed there is no DoDisconnect transition; the
// watchdog and polling are stopped, EXIT is sent best effort and the
// transport is closed, and the transport's disconnect event completes the
// transition.
func (s *Session) Disconnect() {
	s.machine.Do(func(state State) {
		switch state {
		case NotConnected, Disconnecting:
			return
		case ConnectedSupportedWaterRower:
			_ = s.machine.Fire(DoDisconnect)
		default:
			s.watchdog.Stop()
			s.engine.Deactivate()
			if err := s.write(s4.ExitCommunication{}); err != nil {
				s.log.WithError(err).Debug("exit communication not sent")
			}
			if err := s.transport.Close(); err != nil {
				s.log.WithError(err).Warn("close transport")
			}
		}
	})
}

// Subscribe registers a subscription with the polling engine.
func (s *Session) Subscribe(sub *poll.Subscription) error {
	return s.engine.Subscribe(sub)
}

// Unsubscribe removes a subscription from the polling engine.
func (s *Session) Unsubscribe(sub *poll.Subscription) {
	s.engine.Unsubscribe(sub)
}

// Send transmits an ad-hoc command such as a workout. It is only allowed once
// the monitor is confirmed.
//
// The state check and the write hold sendMu, which the Disconnecting entry
// action also takes before sending EXIT, so a command is either written
// before EXIT or rejected.
func (s *Session) Send(m s4.Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if state := s.State(); state != ConnectedSupportedWaterRower {
		return fmt.Errorf("send %s in state %s: %w", m.Identifier(), state, ErrNotReady)
	}
	return s.write(m)
}

// ============================================================
// Listener
// ============================================================

// OnConnected implements Listener.
func (s *Session) OnConnected() {
	_ = s.machine.Fire(OnConnected)
}

// OnDisconnected implements Listener.
func (s *Session) OnDisconnected() {
	_ = s.machine.Fire(OnDisconnected)
}

// OnError implements Listener.
func (s *Session) OnError(err error) {
	s.log.WithError(err).Error("transport error")
	_ = s.machine.Fire(OnError)
}

// OnData implements Listener. Decoded messages are handled in arrival order.
func (s *Session) OnData(chunk []byte) {
	s.decMu.Lock()
	msgs, errs := s.decoder.Feed(chunk)
	s.decMu.Unlock()

	for _, err := range errs {
		s.log.WithError(err).Debug("dropping frame")
	}
	// The deadline moves on arrival, not when the message is dequeued: the
	// machine may be busy with a slow subscriber while the monitor keeps talking.
	if len(msgs) > 0 {
		s.watchdog.Kick()
	}
	for _, m := range msgs {
		s.machine.Do(func(state State) {
			s.handle(state, m)
		})
	}
}

// ============================================================
// Internals
// ============================================================

// handle processes one inbound message in machine context.
func (s *Session) handle(state State, m s4.Message) {
	if s.hooks.OnMessage != nil {
		s.hooks.OnMessage(m)
	}

	switch v := m.(type) {
	case s4.HardwareType:
		if state != ConnectedUnknownDevice {
			return
		}
		_ = s.machine.Fire(DeviceConfirmed)
		if err := s.write(s4.RequestModelInformation{}); err != nil {
			s.log.WithError(err).Error("request model information")
		}

	case s4.ModelInformation:
		if state != ConnectedWaterRower {
			return
		}
		s.confirmFirmware(v)

	case s4.DataMemory:
		if state == ConnectedSupportedWaterRower {
			s.engine.Handle(v)
		}

	case s4.ErrorReply:
		s.log.WithField("state", state).Debug("monitor replied ERROR")
	}
}

func (s *Session) confirmFirmware(mi s4.ModelInformation) {
	s.mu.Lock()
	s.identity = mi
	s.hasIdentity = true
	s.mu.Unlock()

	entry := s.log.WithFields(log.Fields{
		"model":    mi.Model,
		"firmware": mi.Firmware.String(),
	})
	if s.policy.Supports(mi) {
		entry.Info("monitor confirmed")
		_ = s.machine.Fire(FirmwareConfirmed)
		return
	}

	entry.Warn("unsupported monitor firmware")
	if s.hooks.OnUnsupportedFirmware != nil {
		s.hooks.OnUnsupportedFirmware(mi)
	}
	if s.policy.DisconnectUnsupported {
		_ = s.machine.Fire(OnError)
	}
}

// enter runs the entry action for to.
func (s *Session) enter(from, to State, trigger Trigger) {
	s.log.WithFields(log.Fields{
		"from":    from.String(),
		"to":      to.String(),
		"trigger": trigger.String(),
	}).Info("state changed")

	switch to {
	case NotConnected:
		s.watchdog.Stop()
		s.engine.Deactivate()
		s.mu.Lock()
		s.identity = s4.ModelInformation{}
		s.hasIdentity = false
		s.mu.Unlock()
		s.decMu.Lock()
		s.decoder.Reset()
		s.decMu.Unlock()

	case Connecting:
		if err := s.transport.Open(); err != nil {
			s.log.WithError(err).Error("open transport")
			_ = s.machine.Fire(OnError)
			break
		}
		if err := s.write(s4.StartCommunication{}); err != nil {
			s.log.WithError(err).Error("start communication")
		}

	case ConnectedUnknownDevice:
		// Awaiting _WR_; a silent device is caught by the watchdog
		s.watchdog.Start()

	case ConnectedWaterRower:
		// Awaiting IV

	case ConnectedSupportedWaterRower:
		s.watchdog.Start()
		s.engine.Activate(s.sendRead)

	case Disconnecting:
		s.watchdog.Stop()
		s.engine.Deactivate()
		s.sendMu.Lock()
		err := s.write(s4.ExitCommunication{})
		s.sendMu.Unlock()
		if err != nil {
			s.log.WithError(err).Debug("exit communication not sent")
		}
		if err := s.transport.Close(); err != nil {
			s.log.WithError(err).Warn("close transport")
		}
	}

	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(from, to)
	}
}

func (s *Session) fault(err error) {
	s.log.WithError(err).Error("protocol fault")
	if s.hooks.OnFault != nil {
		s.hooks.OnFault(err)
	}
}

// expired is the watchdog callback.
func (s *Session) expired() {
	s.machine.Do(func(state State) {
		if !state.Connected() {
			return
		}
		// Traffic queued behind a busy machine may have moved the deadline
		// since the check fired, or a new session may have rearmed it.
		if !s.watchdog.Expired(time.Now()) {
			s.watchdog.Resume()
			return
		}
		s.log.WithFields(log.Fields{
			"state":   state.String(),
			"timeout": s.watchdogCfg.Timeout,
		}).Warn("watchdog expired")
		_ = s.machine.Fire(OnWatchdog)
	})
}

func (s *Session) sendRead(r s4.ReadMemory) error {
	return s.write(r)
}

func (s *Session) write(m s4.Message) error {
	frame, err := s.codec.Encode(m)
	if err != nil {
		return err
	}
	if err := s.transport.Send(frame); err != nil {
		return fmt.Errorf("send %s: %w", m.Identifier(), err)
	}
	s.log.WithField("frame", s4.FormatMessageType(m.Identifier())).Trace("sent")
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	log "github.com/sirupsen/logrus"

	"github.com/s4link/s4link/pkg/s4"
	"github.com/s4link/s4link/pkg/session"
)

// Recorder receives a copy of the traffic passing through a Tap.
// *capture.Recorder implements it.
type Recorder interface {
	Record(dir s4.Direction, data []byte) error
}

// Tap wraps a transport and records every sent frame and every received
// chunk. Record failures are logged and never interrupt the session.
type Tap struct {
	inner    session.Transport
	recorder Recorder
	log      log.FieldLogger
}

// NewTap wraps inner. A nil logger uses the standard logrus logger.
func NewTap(inner session.Transport, rec Recorder, logger log.FieldLogger) *Tap {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Tap{inner: inner, recorder: rec, log: logger}
}

// SetListener implements session.Transport.
func (t *Tap) SetListener(l session.Listener) {
	t.inner.SetListener(&tapListener{tap: t, next: l})
}

// Open implements session.Transport.
func (t *Tap) Open() error {
	return t.inner.Open()
}

// Close implements session.Transport.
func (t *Tap) Close() error {
	return t.inner.Close()
}

// Send implements session.Transport. Only frames the transport accepted are
// recorded.
func (t *Tap) Send(frame []byte) error {
	if err := t.inner.Send(frame); err != nil {
		return err
	}
	t.record(s4.Outbound, frame)
	return nil
}

func (t *Tap) record(dir s4.Direction, data []byte) {
	if err := t.recorder.Record(dir, data); err != nil {
		t.log.WithError(err).WithField("direction", dir).Warn("Failed to record traffic")
	}
}

type tapListener struct {
	tap  *Tap
	next session.Listener
}

func (l *tapListener) OnConnected() {
	if l.next != nil {
		l.next.OnConnected()
	}
}

func (l *tapListener) OnDisconnected() {
	if l.next != nil {
		l.next.OnDisconnected()
	}
}

func (l *tapListener) OnError(err error) {
	if l.next != nil {
		l.next.OnError(err)
	}
}

func (l *tapListener) OnData(chunk []byte) {
	l.tap.record(s4.Inbound, chunk)
	if l.next != nil {
		l.next.OnData(chunk)
	}
}

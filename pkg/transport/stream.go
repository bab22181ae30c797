// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport connects a session to an S4 monitor over a serial port or
// a WebSocket serial bridge.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/s4link/s4link/pkg/session"
)

// Transport errors
var (
	ErrAlreadyOpen = errors.New("transport already open")
	ErrNotOpen     = errors.New("transport not open")
)

// DialFunc opens the underlying byte stream.
type DialFunc func() (io.ReadWriteCloser, error)

// Stream implements session.Transport over any io.ReadWriteCloser.
//
// Open dials, reports OnConnected and starts a reader goroutine that delivers
// every chunk through OnData. A read failure is reported through OnError.
// Close closes the stream without waiting for the reader and reports
// OnDisconnected once per successful Open.
type Stream struct {
	name string
	dial DialFunc

	mu       sync.Mutex
	listener session.Listener
	conn     io.ReadWriteCloser

	wmu sync.Mutex
}

// NewStream creates a stream transport. name is used in errors and logs.
func NewStream(name string, dial DialFunc) *Stream {
	return &Stream{name: name, dial: dial}
}

// Name returns the human-readable connection description.
func (s *Stream) Name() string {
	return s.name
}

// SetListener implements session.Transport.
func (s *Stream) SetListener(l session.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// Open implements session.Transport.
func (s *Stream) Open() error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return fmt.Errorf("open %s: %w", s.name, ErrAlreadyOpen)
	}
	s.mu.Unlock()

	conn, err := s.dial()
	if err != nil {
		return fmt.Errorf("open %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.conn = conn
	l := s.listener
	s.mu.Unlock()

	// Connected is reported before any data can be delivered
	if l != nil {
		l.OnConnected()
	}
	go s.read(conn, l)
	return nil
}

// Close implements session.Transport. Closing a closed stream is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	l := s.listener
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	if l != nil {
		l.OnDisconnected()
	}
	if err != nil {
		return fmt.Errorf("close %s: %w", s.name, err)
	}
	return nil
}

// Send implements session.Transport.
func (s *Stream) Send(frame []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", s.name, err)
	}
	return nil
}

// current reports whether conn is still the open connection.
func (s *Stream) current(conn io.ReadWriteCloser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == conn
}

func (s *Stream) read(conn io.ReadWriteCloser, l session.Listener) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 && l != nil && s.current(conn) {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			l.OnData(chunk)
		}
		if err != nil {
			// Errors after Close are expected and not reported
			if l != nil && s.current(conn) {
				l.OnError(fmt.Errorf("read %s: %w", s.name, err))
			}
			return
		}
	}
}

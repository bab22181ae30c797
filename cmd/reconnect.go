// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/s4link/s4link/pkg/session"
)

// connector is the part of *session.Session the reconnector drives.
type connector interface {
	Connect() error
}

// reconnector restarts a dropped session with exponential backoff.
type reconnector struct {
	conn       connector
	log        log.FieldLogger
	minBackoff time.Duration
	maxBackoff time.Duration

	trigger chan struct{}
	done    chan struct{}
	stop    sync.Once

	mu      sync.Mutex
	backoff time.Duration
}

func newReconnector(c connector, logger log.FieldLogger) *reconnector {
	return &reconnector{
		conn:       c,
		log:        logger,
		minBackoff: 1 * time.Second,
		maxBackoff: 30 * time.Second,
		backoff:    1 * time.Second,
		trigger:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// OnStateChange is installed as a session state hook.
func (r *reconnector) OnStateChange(from, to session.State) {
	switch {
	case to == session.ConnectedSupportedWaterRower:
		r.mu.Lock()
		r.backoff = r.minBackoff
		r.mu.Unlock()
	case to == session.NotConnected && from != session.NotConnected:
		select {
		case r.trigger <- struct{}{}:
		default:
		}
	}
}

// Run reconnects until Stop is called.
func (r *reconnector) Run() {
	for {
		select {
		case <-r.done:
			return
		case <-r.trigger:
		}

		r.mu.Lock()
		backoff := r.backoff
		r.backoff *= 2
		if r.backoff > r.maxBackoff {
			r.backoff = r.maxBackoff
		}
		r.mu.Unlock()

		r.log.WithField("backoff", backoff).Info("Connection lost, reconnecting")
		select {
		case <-r.done:
			return
		case <-time.After(backoff):
		}

		// A failed open drops back to NOT_CONNECTED and triggers the next attempt
		if err := r.conn.Connect(); err != nil {
			r.log.WithError(err).Warn("Reconnect failed")
		}
	}
}

// Stop ends Run. It must be called before the session is disconnected on
// shutdown, or the disconnect itself triggers a reconnect.
func (r *reconnector) Stop() {
	r.stop.Do(func() { close(r.done) })
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/s4link/s4link/pkg/poll"
	"github.com/s4link/s4link/pkg/session"
	"github.com/s4link/s4link/pkg/transport"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("S4LINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenTransport builds a serial or WebSocket transport from the configuration.
// The transport is not opened; the session does that on Connect.
func OpenTransport() (*transport.Stream, string, error) {
	if ws := cfg.WebSocket; ws.URL != "" {
		password := ws.Password
		if ws.Username != "" && password == "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		t, err := transport.NewWebSocket(transport.WebSocketConfig{
			URL:           ws.URL,
			Username:      ws.Username,
			Password:      password,
			SkipSSLVerify: ws.NoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return t, t.Name(), nil
	}

	if cfg.Serial.Port != "" {
		t := transport.NewSerial(transport.SerialConfig{
			Port:     cfg.Serial.Port,
			BaudRate: cfg.Serial.BaudRate,
		})
		return t, t.Name(), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// newSession creates a session and its poll engine from the configuration.
func newSession(t session.Transport, hooks session.Hooks) (*session.Session, error) {
	engine, err := poll.NewEngine(cfg.PollOptions(logger.WithField("component", "poll")))
	if err != nil {
		return nil, err
	}
	policy, err := cfg.FirmwarePolicy()
	if err != nil {
		return nil, err
	}

	return session.New(t, engine,
		session.WithLogger(logger.WithField("component", "session")),
		session.WithFirmwarePolicy(policy),
		session.WithWatchdog(cfg.WatchdogConfig()),
		session.WithHooks(hooks),
	)
}

// subscribeConfigured registers every configured subscription with handler.
func subscribeConfigured(s *session.Session, handler poll.Handler) ([]*poll.Subscription, error) {
	subs := make([]*poll.Subscription, 0, len(cfg.Subscriptions))
	for _, sc := range cfg.Subscriptions {
		sub, err := sc.Build(handler)
		if err != nil {
			return nil, fmt.Errorf("subscription %q: %w", sc.Name, err)
		}
		if err := s.Subscribe(sub); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// stateWaiter returns a state hook and a channel that receives every new
// state. Sends never block the session; a slow reader may miss states.
func stateWaiter() (func(from, to session.State), <-chan session.State) {
	ch := make(chan session.State, 16)
	return func(from, to session.State) {
		select {
		case ch <- to:
		default:
		}
	}, ch
}

// chainStateHooks calls each non-nil hook in order.
func chainStateHooks(hooks ...func(from, to session.State)) func(from, to session.State) {
	return func(from, to session.State) {
		for _, h := range hooks {
			if h != nil {
				h(from, to)
			}
		}
	}
}

// chainHandlers calls each non-nil handler in order.
func chainHandlers(handlers ...poll.Handler) poll.Handler {
	return func(c poll.Change) {
		for _, h := range handlers {
			if h != nil {
				h(c)
			}
		}
	}
}

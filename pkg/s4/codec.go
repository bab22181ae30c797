// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Interpreter holds the encode and decode logic for one message variant.
// Decode receives the frame with the identifier and terminator stripped.
// Encode returns the payload only; the Codec adds identifier and terminator.
type Interpreter struct {
	Identifier string
	Direction  Direction
	Decode     func(payload string) (Message, error)
	Encode     func(m Message) (string, error)
}

// Codec maps identifiers to interpreters and performs framing.
//
// Register is not safe for concurrent use with Encode and Decode; register
// everything at startup and share the Codec read-only afterwards.
type Codec struct {
	byDirection map[Direction]map[string]Interpreter
	ordered     []Interpreter // longest identifier first, inbound before outbound on ties
}

// NewCodec creates a codec with the given interpreters.
// A duplicate identifier within one direction is reported as an error.
func NewCodec(interpreters ...Interpreter) (*Codec, error) {
	c := &Codec{
		byDirection: map[Direction]map[string]Interpreter{
			Inbound:  {},
			Outbound: {},
		},
	}
	for _, in := range interpreters {
		if err := c.Register(in); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register associates an identifier with an interpreter.
func (c *Codec) Register(in Interpreter) error {
	if in.Identifier == "" {
		return fmt.Errorf("register interpreter: empty identifier")
	}
	if in.Decode == nil || in.Encode == nil {
		return fmt.Errorf("register interpreter %q: missing encode or decode function", in.Identifier)
	}
	table, ok := c.byDirection[in.Direction]
	if !ok {
		return fmt.Errorf("register interpreter %q: invalid direction %d", in.Identifier, in.Direction)
	}
	if _, exists := table[in.Identifier]; exists {
		return fmt.Errorf("register %s interpreter %q: %w", in.Direction, in.Identifier, ErrDuplicateIdentifier)
	}
	table[in.Identifier] = in

	c.ordered = append(c.ordered, in)
	sort.SliceStable(c.ordered, func(i, j int) bool {
		a, b := c.ordered[i], c.ordered[j]
		if len(a.Identifier) != len(b.Identifier) {
			return len(a.Identifier) > len(b.Identifier)
		}
		return a.Direction == Inbound && b.Direction == Outbound
	})
	return nil
}

// Identifiers returns the registered identifiers for one direction, sorted.
func (c *Codec) Identifiers(d Direction) []string {
	ids := make([]string, 0, len(c.byDirection[d]))
	for id := range c.byDirection[d] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Encode frames m as identifier + payload + CR LF.
func (c *Codec) Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	in, ok := c.byDirection[m.Direction()][m.Identifier()]
	if !ok {
		return nil, fmt.Errorf("encode %T (%s): %w", m, m.Identifier(), ErrNoInterpreter)
	}
	payload, err := in.Encode(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", in.Identifier, err)
	}

	frame := make([]byte, 0, len(in.Identifier)+len(payload)+len(Terminator))
	frame = append(frame, in.Identifier...)
	frame = append(frame, payload...)
	frame = append(frame, Terminator...)
	return frame, nil
}

// Decode interprets one frame. A trailing CR LF is optional.
//
// An unknown identifier is expected noise and yields (nil, nil).
// A known identifier with a malformed payload yields (nil, *DecodeError);
// callers should log it at low severity and carry on.
func (c *Codec) Decode(frame []byte) (Message, error) {
	line := string(bytes.TrimRight(frame, "\r\n"))
	if line == "" {
		return nil, nil
	}

	for _, in := range c.ordered {
		if !strings.HasPrefix(line, in.Identifier) {
			continue
		}
		m, err := in.Decode(line[len(in.Identifier):])
		if err != nil {
			return nil, &DecodeError{Identifier: in.Identifier, Frame: line, Err: err}
		}
		return m, nil
	}
	return nil, nil
}

var (
	defaultCodec     *Codec
	defaultCodecOnce sync.Once
)

// DefaultCodec returns the codec with every S4 message variant registered.
// It panics if the built-in table contains a duplicate, which is a programming
// error caught by the package tests.
func DefaultCodec() *Codec {
	defaultCodecOnce.Do(func() {
		c, err := NewCodec(Interpreters()...)
		if err != nil {
			panic(fmt.Sprintf("s4: %v", err))
		}
		defaultCodec = c
	})
	return defaultCodec
}

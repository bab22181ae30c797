// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import "fmt"

// Decoder splits an inbound byte stream into frames and decodes them.
// It is not safe for concurrent use; feed it from a single reader goroutine.
type Decoder struct {
	codec    *Codec
	buffer   []byte
	overflow bool
}

// NewDecoder creates a frame decoder backed by codec.
// A nil codec selects DefaultCodec.
func NewDecoder(codec *Codec) *Decoder {
	if codec == nil {
		codec = DefaultCodec()
	}
	return &Decoder{
		codec:  codec,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset discards any partially received frame.
func (d *Decoder) Reset() {
	d.buffer = d.buffer[:0]
	d.overflow = false
}

// Pending returns the bytes of the frame received so far.
func (d *Decoder) Pending() []byte {
	return d.buffer
}

// DecodeByte processes a single byte.
// Returns a message once a complete, known frame has been received, nil while
// the frame is incomplete or unknown, and an error for malformed or oversized frames.
func (d *Decoder) DecodeByte(b byte) (Message, error) {
	switch b {
	case LF:
		if d.overflow {
			d.Reset()
			return nil, fmt.Errorf("frame exceeded %d bytes", MaxFrameSize)
		}
		m, err := d.codec.Decode(d.buffer)
		d.Reset()
		return m, err

	case CR:
		// Terminator is CR LF; the CR carries no information.
		return nil, nil
	}

	if d.overflow {
		return nil, nil
	}
	if len(d.buffer) >= MaxFrameSize {
		// Drop everything up to the next LF.
		d.overflow = true
		return nil, nil
	}
	d.buffer = append(d.buffer, b)
	return nil, nil
}

// Feed decodes a chunk of bytes, returning every message completed by it and
// every decode error encountered, in arrival order.
func (d *Decoder) Feed(chunk []byte) ([]Message, []error) {
	var (
		messages []Message
		errs     []error
	)
	for _, b := range chunk {
		m, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if m != nil {
			messages = append(messages, m)
		}
	}
	return messages, errs
}

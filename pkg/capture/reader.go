// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/s4link/s4link/pkg/s4"
)

// Reader iterates over the records of a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{decoder: newDecoder(r)}
}

// Open opens a capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next returns the next record, or io.EOF at the end of the capture.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.decoder.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	return rec, nil
}

// Close closes the file opened by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Event is a decoded message, or a decode error, from a replayed capture.
type Event struct {
	Time      time.Time
	Direction s4.Direction
	Message   s4.Message
	Err       error
}

// Replay decodes every record and calls fn for each message and each decode
// error, in capture order. Each direction has its own frame decoder, so an
// inbound frame split across reads is reassembled. A nil codec selects
// s4.DefaultCodec.
func Replay(r *Reader, codec *s4.Codec, fn func(Event)) error {
	decoders := map[s4.Direction]*s4.Decoder{
		s4.Inbound:  s4.NewDecoder(codec),
		s4.Outbound: s4.NewDecoder(codec),
	}

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		d, ok := decoders[rec.Direction]
		if !ok {
			continue
		}
		msgs, errs := d.Feed(rec.Data)
		for _, e := range errs {
			fn(Event{Time: rec.Time, Direction: rec.Direction, Err: e})
		}
		for _, m := range msgs {
			fn(Event{Time: rec.Time, Direction: rec.Direction, Message: m})
		}
	}
}

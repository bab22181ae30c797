// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/s4link/s4link/pkg/s4"
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("recorder closed")

// Recorder appends records to a CBOR sequence.
// It is safe for concurrent use from multiple goroutines.
type Recorder struct {
	mu      sync.Mutex
	closer  io.Closer
	encoder *cbor.Encoder
	closed  bool
	now     func() time.Time
}

// NewRecorder creates a recorder writing to w. Close does not close w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		encoder: newEncoder(w),
		now:     time.Now,
	}
}

// Create opens path for appending, creating it with permissions 0644 if it
// doesn't exist.
func Create(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	r := NewRecorder(f)
	r.closer = f
	return r, nil
}

// Record appends one chunk. data is copied.
func (r *Recorder) Record(dir s4.Direction, data []byte) error {
	rec := Record{
		Direction: dir,
		Data:      append([]byte(nil), data...),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	rec.Time = r.now()
	return r.encoder.Encode(rec)
}

// Close stops recording and closes the file opened by Create.
// It is safe to call Close multiple times.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrOutOfRange is matched by every *ValidationError via errors.Is.
	ErrOutOfRange = errors.New("value out of range")

	// ErrMalformedFrame is matched by every *DecodeError via errors.Is.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrNoInterpreter is returned when encoding a message whose identifier
	// has no registered interpreter. It indicates a wiring fault.
	ErrNoInterpreter = errors.New("no interpreter registered")

	// ErrDuplicateIdentifier is returned when two interpreters claim the same
	// identifier in the same direction.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
)

// ValidationError reports a message field outside its legal range.
// It is returned at construction time, before anything is encoded.
type ValidationError struct {
	Field string
	Value int
	Min   int
	Max   int
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return fmt.Sprintf("%s=%d out of range [0x%X, 0x%X]", v.Field, v.Value, v.Min, v.Max)
}

// Is makes errors.Is(err, ErrOutOfRange) true.
func (v *ValidationError) Is(target error) bool {
	return target == ErrOutOfRange
}

// checkRange returns a *ValidationError when value is outside [min, max].
func checkRange(field string, value, min, max int) error {
	if value < min || value > max {
		return &ValidationError{Field: field, Value: value, Min: min, Max: max}
	}
	return nil
}

// DecodeError reports a frame whose identifier is known but whose payload
// could not be interpreted.
type DecodeError struct {
	Identifier string
	Frame      string
	Err        error
}

// Error implements the error interface
func (d *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame %q: %v", d.Identifier, d.Frame, d.Err)
}

// Unwrap returns the underlying cause.
func (d *DecodeError) Unwrap() error {
	return d.Err
}

// Is makes errors.Is(err, ErrMalformedFrame) true.
func (d *DecodeError) Is(target error) bool {
	return target == ErrMalformedFrame
}

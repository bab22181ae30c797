// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import "time"

// Command builder functions validate their arguments and return messages
// ready for encoding. An invalid argument yields a *ValidationError and no
// message, so out-of-range values never reach the wire.

// NewReadMemory creates a read request for location sized to width.
// Single uses IRS, Double IRD and Triple IRT.
func NewReadMemory(location int, width Width) (ReadMemory, error) {
	addr, err := NewMemoryAddress(location, width)
	if err != nil {
		return ReadMemory{}, err
	}
	return ReadMemory{Address: addr}, nil
}

// NewDistanceWorkout creates a WSI single distance workout.
// Meters, miles and kilometers accept 0x0001-0xFA00, strokes 0x0001-0x1388.
func NewDistanceWorkout(unit DistanceUnit, distance int) (DistanceWorkout, error) {
	max := MaxWorkoutDistance
	switch unit {
	case UnitMeters, UnitMiles, UnitKilometers:
	case UnitStrokes:
		max = MaxWorkoutStrokes
	default:
		return DistanceWorkout{}, &ValidationError{
			Field: "unit",
			Value: int(unit),
			Min:   int(UnitMeters),
			Max:   int(UnitStrokes),
		}
	}
	if err := checkRange("distance", distance, MinWorkoutDistance, max); err != nil {
		return DistanceWorkout{}, err
	}
	return DistanceWorkout{Unit: unit, Distance: uint16(distance)}, nil
}

// NewDurationWorkout creates a WSU single duration workout.
// The duration is truncated to whole seconds and must be 1s to 5h.
func NewDurationWorkout(d time.Duration) (DurationWorkout, error) {
	secs := int(d / time.Second)
	if err := checkRange("duration", secs, MinWorkoutDuration, MaxWorkoutDuration); err != nil {
		return DurationWorkout{}, err
	}
	return DurationWorkout{Seconds: uint16(secs)}, nil
}

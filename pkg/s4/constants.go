// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package s4 provides a Go implementation of the WaterRower S4 monitor serial protocol.
//
// The S4 speaks a line-based ASCII protocol over USB serial. Every frame is an
// identifier tag, an optional fixed-width payload, and a CR LF terminator.
// Numeric payload fields are uppercase, zero-padded hexadecimal.
//
// This package provides the typed message model, the identifier registry used to
// encode and decode frames, a byte-wise frame decoder and human-readable formatting.
package s4

// Frame terminator
const (
	CR = 0x0D
	LF = 0x0A
)

// Terminator is appended to every encoded frame.
var Terminator = []byte{CR, LF}

// Frame size limits
const (
	MaxFrameSize = 64 // longest legal frame is "IDT" + 3 + 6 = 12 bytes, leave room for noise
)

// Outbound identifiers (PC → monitor)
const (
	TagStartCommunication      = "USB"
	TagExitCommunication       = "EXIT"
	TagRequestModelInformation = "IV?"
	TagReset                   = "RESET"
	TagReadMemorySingle        = "IRS"
	TagReadMemoryDouble        = "IRD"
	TagReadMemoryTriple        = "IRT"
	TagDistanceWorkout         = "WSI"
	TagDurationWorkout         = "WSU"
)

// Inbound identifiers (monitor → PC)
const (
	TagHardwareType     = "_WR_"
	TagModelInformation = "IV"
	TagPing             = "PING"
	TagDataMemorySingle = "IDS"
	TagDataMemoryDouble = "IDD"
	TagDataMemoryTriple = "IDT"
	TagAcknowledge      = "OK"
	TagError            = "ERROR"
	TagStrokeStart      = "SS"
	TagStrokeEnd        = "SE"
	TagPulseCount       = "P"
)

// Field widths in characters
const (
	locationDigits = 3
	distanceDigits = 4
	durationDigits = 4
	byteDigits     = 2
)

// Memory address space
const (
	MinLocation = 0x000
	MaxLocation = 0xFFF // 4095
)

// Workout bounds
const (
	MinWorkoutDistance = 0x0001
	MaxWorkoutDistance = 0xFA00 // meters, miles and kilometers
	MaxWorkoutStrokes  = 0x1388 // 5000 strokes
	MinWorkoutDuration = 0x0001
	MaxWorkoutDuration = 0x4650 // 5 hours in seconds
)

// Well-known S4 memory locations.
// Multi-byte values are addressed by their low byte; the monitor returns the
// adjacent bytes in the same reply.
const (
	LocationMiscFlags      = 0x03E
	LocationDistance       = 0x057 // Double, meters
	LocationTotalDistance  = 0x080 // Double
	LocationWatts          = 0x088 // Double
	LocationCalories       = 0x08A // Triple
	LocationHeartRate      = 0x1A0 // Single, bpm
	LocationStrokeCount    = 0x140 // Double
	LocationStrokeAverage  = 0x142 // Single
	LocationAverageSpeed   = 0x14A // Double, cm/s
	LocationStrokeRate     = 0x1A9 // Single, strokes per minute
	LocationDisplaySecDec  = 0x1E0 // Single
	LocationDisplaySeconds = 0x1E1 // Single
	LocationDisplayMinutes = 0x1E2 // Single
	LocationDisplayHours   = 0x1E3 // Single
	LocationTankVolume     = 0x0A9 // Single, liters * 10
)

// DistanceUnit selects how a distance workout is measured.
type DistanceUnit int

// Distance unit values as encoded in the WSI payload
const (
	UnitMeters     DistanceUnit = 1
	UnitMiles      DistanceUnit = 2
	UnitKilometers DistanceUnit = 3
	UnitStrokes    DistanceUnit = 4
)

// String returns the unit name.
func (u DistanceUnit) String() string {
	switch u {
	case UnitMeters:
		return "meters"
	case UnitMiles:
		return "miles"
	case UnitKilometers:
		return "kilometers"
	case UnitStrokes:
		return "strokes"
	default:
		return "unknown"
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction tells which side of the link produces a message.
type Direction int

// Direction values
const (
	Outbound Direction = iota // PC → monitor
	Inbound                   // monitor → PC
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Message is implemented by every S4 message variant.
// The set of variants is closed: the Codec holds one interpreter per identifier.
type Message interface {
	Identifier() string
	Direction() Direction
}

// ============================================================
// Outbound messages
// ============================================================

// StartCommunication asks the monitor to start talking to the PC ("USB").
type StartCommunication struct{}

func (StartCommunication) Identifier() string   { return TagStartCommunication }
func (StartCommunication) Direction() Direction { return Outbound }

// ExitCommunication ends the session ("EXIT").
type ExitCommunication struct{}

func (ExitCommunication) Identifier() string   { return TagExitCommunication }
func (ExitCommunication) Direction() Direction { return Outbound }

// RequestModelInformation asks for model and firmware ("IV?").
type RequestModelInformation struct{}

func (RequestModelInformation) Identifier() string   { return TagRequestModelInformation }
func (RequestModelInformation) Direction() Direction { return Outbound }

// Reset resets the monitor as if power cycled ("RESET").
type Reset struct{}

func (Reset) Identifier() string   { return TagReset }
func (Reset) Direction() Direction { return Outbound }

// ReadMemory requests the value at Address. The identifier depends on the width:
// IRS, IRD or IRT.
type ReadMemory struct {
	Address MemoryAddress
}

// Identifier returns IRS, IRD or IRT depending on the address width.
func (r ReadMemory) Identifier() string {
	switch r.Address.Width {
	case Double:
		return TagReadMemoryDouble
	case Triple:
		return TagReadMemoryTriple
	default:
		return TagReadMemorySingle
	}
}

func (ReadMemory) Direction() Direction { return Outbound }

// DistanceWorkout programs a single distance workout ("WSI").
type DistanceWorkout struct {
	Unit     DistanceUnit
	Distance uint16
}

func (DistanceWorkout) Identifier() string   { return TagDistanceWorkout }
func (DistanceWorkout) Direction() Direction { return Outbound }

// DurationWorkout programs a single duration workout ("WSU").
type DurationWorkout struct {
	Seconds uint16
}

func (DurationWorkout) Identifier() string   { return TagDurationWorkout }
func (DurationWorkout) Direction() Direction { return Outbound }

// ============================================================
// Inbound messages
// ============================================================

// HardwareType is the monitor's reply to StartCommunication ("_WR_").
type HardwareType struct{}

func (HardwareType) Identifier() string   { return TagHardwareType }
func (HardwareType) Direction() Direction { return Inbound }

// Version is a firmware version as reported in ModelInformation.
type Version struct {
	Major int
	Minor int
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major < o.Major:
		return -1
	case v.Major > o.Major:
		return 1
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	}
	return 0
}

// IsZero reports whether v is the zero version.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

// String formats the version as "02.10".
func (v Version) String() string {
	return fmt.Sprintf("%02d.%02d", v.Major, v.Minor)
}

// ParseVersion parses "MAJOR.MINOR", e.g. "02.10" or "2.10".
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	maj, err := strconv.Atoi(major)
	if err != nil || maj < 0 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	mnr, err := strconv.Atoi(minor)
	if err != nil || mnr < 0 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	return Version{Major: maj, Minor: mnr}, nil
}

// ModelInformation carries the monitor model and firmware version ("IV").
type ModelInformation struct {
	Model    int
	Firmware Version
}

func (ModelInformation) Identifier() string   { return TagModelInformation }
func (ModelInformation) Direction() Direction { return Inbound }

// Ping is sent by the monitor roughly once a second while idle ("PING").
type Ping struct{}

func (Ping) Identifier() string   { return TagPing }
func (Ping) Direction() Direction { return Inbound }

// DataMemory is the reply to ReadMemory. Values holds one to three raw bytes,
// most significant first. The reply does not carry the width the requester
// asked for; the subscriber composes Values using its own width.
type DataMemory struct {
	Location uint16
	Values   []byte
}

// Identifier returns IDS, IDD or IDT depending on the number of values.
func (d DataMemory) Identifier() string {
	switch len(d.Values) {
	case 2:
		return TagDataMemoryDouble
	case 3:
		return TagDataMemoryTriple
	default:
		return TagDataMemorySingle
	}
}

func (DataMemory) Direction() Direction { return Inbound }

// Acknowledge is a generic "OK" reply.
type Acknowledge struct{}

func (Acknowledge) Identifier() string   { return TagAcknowledge }
func (Acknowledge) Direction() Direction { return Inbound }

// ErrorReply is sent when the monitor rejects a command ("ERROR").
type ErrorReply struct{}

func (ErrorReply) Identifier() string   { return TagError }
func (ErrorReply) Direction() Direction { return Inbound }

// StrokeStart marks the start of the drive phase ("SS").
type StrokeStart struct{}

func (StrokeStart) Identifier() string   { return TagStrokeStart }
func (StrokeStart) Direction() Direction { return Inbound }

// StrokeEnd marks the end of the drive phase ("SE").
type StrokeEnd struct{}

func (StrokeEnd) Identifier() string   { return TagStrokeEnd }
func (StrokeEnd) Direction() Direction { return Inbound }

// PulseCount reports paddle pulses counted in the last 25ms window ("P").
type PulseCount struct {
	Count uint8
}

func (PulseCount) Identifier() string   { return TagPulseCount }
func (PulseCount) Direction() Direction { return Inbound }

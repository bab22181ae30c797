// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import (
	"fmt"
	"time"
)

// Interpreters returns the interpreters for every S4 message variant.
func Interpreters() []Interpreter {
	return []Interpreter{
		// Outbound
		empty(TagStartCommunication, Outbound, StartCommunication{}),
		empty(TagExitCommunication, Outbound, ExitCommunication{}),
		empty(TagRequestModelInformation, Outbound, RequestModelInformation{}),
		empty(TagReset, Outbound, Reset{}),
		readMemory(TagReadMemorySingle, Single),
		readMemory(TagReadMemoryDouble, Double),
		readMemory(TagReadMemoryTriple, Triple),
		{
			Identifier: TagDistanceWorkout,
			Direction:  Outbound,
			Decode:     decodeDistanceWorkout,
			Encode:     encodeDistanceWorkout,
		},
		{
			Identifier: TagDurationWorkout,
			Direction:  Outbound,
			Decode:     decodeDurationWorkout,
			Encode:     encodeDurationWorkout,
		},

		// Inbound
		empty(TagHardwareType, Inbound, HardwareType{}),
		{
			Identifier: TagModelInformation,
			Direction:  Inbound,
			Decode:     decodeModelInformation,
			Encode:     encodeModelInformation,
		},
		empty(TagPing, Inbound, Ping{}),
		dataMemory(TagDataMemorySingle, Single),
		dataMemory(TagDataMemoryDouble, Double),
		dataMemory(TagDataMemoryTriple, Triple),
		empty(TagAcknowledge, Inbound, Acknowledge{}),
		empty(TagError, Inbound, ErrorReply{}),
		empty(TagStrokeStart, Inbound, StrokeStart{}),
		empty(TagStrokeEnd, Inbound, StrokeEnd{}),
		{
			Identifier: TagPulseCount,
			Direction:  Inbound,
			Decode:     decodePulseCount,
			Encode:     encodePulseCount,
		},
	}
}

// empty builds an interpreter for a variant without payload.
func empty(id string, dir Direction, m Message) Interpreter {
	return Interpreter{
		Identifier: id,
		Direction:  dir,
		Decode: func(payload string) (Message, error) {
			if payload != "" {
				return nil, fmt.Errorf("unexpected payload %q", payload)
			}
			return m, nil
		},
		Encode: func(Message) (string, error) {
			return "", nil
		},
	}
}

func readMemory(id string, width Width) Interpreter {
	return Interpreter{
		Identifier: id,
		Direction:  Outbound,
		Decode: func(payload string) (Message, error) {
			loc, err := parseHex(payload, locationDigits)
			if err != nil {
				return nil, err
			}
			return NewReadMemory(loc, width)
		},
		Encode: func(m Message) (string, error) {
			r, ok := m.(ReadMemory)
			if !ok {
				return "", fmt.Errorf("unexpected message type %T", m)
			}
			if r.Address.Width != width {
				return "", fmt.Errorf("width %s does not match %s", r.Address.Width, id)
			}
			return formatHex(int(r.Address.Location), locationDigits), nil
		},
	}
}

func dataMemory(id string, width Width) Interpreter {
	return Interpreter{
		Identifier: id,
		Direction:  Inbound,
		Decode: func(payload string) (Message, error) {
			want := locationDigits + int(width)*byteDigits
			if len(payload) != want {
				return nil, fmt.Errorf("payload length %d, want %d", len(payload), want)
			}
			loc, err := parseHex(payload[:locationDigits], locationDigits)
			if err != nil {
				return nil, err
			}
			values := make([]byte, width)
			for i := range values {
				start := locationDigits + i*byteDigits
				v, err := parseHex(payload[start:start+byteDigits], byteDigits)
				if err != nil {
					return nil, err
				}
				values[i] = byte(v)
			}
			return DataMemory{Location: uint16(loc), Values: values}, nil
		},
		Encode: func(m Message) (string, error) {
			d, ok := m.(DataMemory)
			if !ok {
				return "", fmt.Errorf("unexpected message type %T", m)
			}
			if len(d.Values) != int(width) {
				return "", fmt.Errorf("%d values do not match %s", len(d.Values), id)
			}
			if err := checkRange("location", int(d.Location), MinLocation, MaxLocation); err != nil {
				return "", err
			}
			s := formatHex(int(d.Location), locationDigits)
			for _, v := range d.Values {
				s += formatHex(int(v), byteDigits)
			}
			return s, nil
		},
	}
}

func decodeDistanceWorkout(payload string) (Message, error) {
	if len(payload) != 1+distanceDigits {
		return nil, fmt.Errorf("payload length %d, want %d", len(payload), 1+distanceDigits)
	}
	unit, err := parseDecimal(payload[:1])
	if err != nil {
		return nil, err
	}
	distance, err := parseHex(payload[1:], distanceDigits)
	if err != nil {
		return nil, err
	}
	return NewDistanceWorkout(DistanceUnit(unit), distance)
}

func encodeDistanceWorkout(m Message) (string, error) {
	w, ok := m.(DistanceWorkout)
	if !ok {
		return "", fmt.Errorf("unexpected message type %T", m)
	}
	// Re-validate: a struct literal bypasses NewDistanceWorkout.
	if _, err := NewDistanceWorkout(w.Unit, int(w.Distance)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d%s", int(w.Unit), formatHex(int(w.Distance), distanceDigits)), nil
}

func decodeDurationWorkout(payload string) (Message, error) {
	secs, err := parseHex(payload, durationDigits)
	if err != nil {
		return nil, err
	}
	return NewDurationWorkout(time.Duration(secs) * time.Second)
}

func encodeDurationWorkout(m Message) (string, error) {
	w, ok := m.(DurationWorkout)
	if !ok {
		return "", fmt.Errorf("unexpected message type %T", m)
	}
	if err := checkRange("duration", int(w.Seconds), MinWorkoutDuration, MaxWorkoutDuration); err != nil {
		return "", err
	}
	return formatHex(int(w.Seconds), durationDigits), nil
}

// Model information payload: model digit, two digit major, two digit minor.
// "IV40210" is an S4 running firmware 02.10.
func decodeModelInformation(payload string) (Message, error) {
	if len(payload) != 5 {
		return nil, fmt.Errorf("payload length %d, want 5", len(payload))
	}
	model, err := parseDecimal(payload[:1])
	if err != nil {
		return nil, err
	}
	major, err := parseDecimal(payload[1:3])
	if err != nil {
		return nil, err
	}
	minor, err := parseDecimal(payload[3:5])
	if err != nil {
		return nil, err
	}
	return ModelInformation{Model: model, Firmware: Version{Major: major, Minor: minor}}, nil
}

func encodeModelInformation(m Message) (string, error) {
	mi, ok := m.(ModelInformation)
	if !ok {
		return "", fmt.Errorf("unexpected message type %T", m)
	}
	if err := checkRange("model", mi.Model, 0, 9); err != nil {
		return "", err
	}
	if err := checkRange("firmware major", mi.Firmware.Major, 0, 99); err != nil {
		return "", err
	}
	if err := checkRange("firmware minor", mi.Firmware.Minor, 0, 99); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d%02d%02d", mi.Model, mi.Firmware.Major, mi.Firmware.Minor), nil
}

func decodePulseCount(payload string) (Message, error) {
	n, err := parseHex(payload, byteDigits)
	if err != nil {
		return nil, err
	}
	return PulseCount{Count: uint8(n)}, nil
}

func encodePulseCount(m Message) (string, error) {
	p, ok := m.(PulseCount)
	if !ok {
		return "", fmt.Errorf("unexpected message type %T", m)
	}
	return formatHex(int(p.Count), byteDigits), nil
}

// ============================================================
// Field helpers
// ============================================================

// parseHex parses exactly digits uppercase hexadecimal characters.
func parseHex(s string, digits int) (int, error) {
	if len(s) != digits {
		return 0, fmt.Errorf("hex field %q has %d digits, want %d", s, len(s), digits)
	}
	v := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'A' && c <= 'F':
			d = int(c-'A') + 10
		default:
			return 0, fmt.Errorf("invalid hex character %q in %q", c, s)
		}
		v = v<<4 | d
	}
	return v, nil
}

// parseDecimal parses a non-empty run of decimal digits.
func parseDecimal(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty decimal field")
	}
	v := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid decimal character %q in %q", c, s)
		}
		v = v*10 + int(c-'0')
	}
	return v, nil
}

// formatHex formats v as uppercase hex, zero padded to digits.
func formatHex(v, digits int) string {
	return fmt.Sprintf("%0*X", digits, v)
}

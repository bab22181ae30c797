// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage formats a message into a human-readable line
func FormatMessage(m Message, ts time.Time) string {
	arrow := "<-"
	if m.Direction() == Outbound {
		arrow = "->"
	}
	result := fmt.Sprintf("[%s] %s %s (%s)", ts.Format("15:04:05.000"), arrow, FormatMessageType(m.Identifier()), m.Identifier())
	if details := formatPayload(m); details != "" {
		result += " " + details
	}
	return result + "\n"
}

// FormatMessageType returns the human-readable name for an identifier
func FormatMessageType(id string) string {
	switch id {
	// Outbound
	case TagStartCommunication:
		return "START_COMMUNICATION"
	case TagExitCommunication:
		return "EXIT_COMMUNICATION"
	case TagRequestModelInformation:
		return "REQUEST_MODEL_INFORMATION"
	case TagReset:
		return "RESET"
	case TagReadMemorySingle:
		return "READ_MEMORY_SINGLE"
	case TagReadMemoryDouble:
		return "READ_MEMORY_DOUBLE"
	case TagReadMemoryTriple:
		return "READ_MEMORY_TRIPLE"
	case TagDistanceWorkout:
		return "DISTANCE_WORKOUT"
	case TagDurationWorkout:
		return "DURATION_WORKOUT"

	// Inbound
	case TagHardwareType:
		return "HARDWARE_TYPE"
	case TagModelInformation:
		return "MODEL_INFORMATION"
	case TagPing:
		return "PING"
	case TagDataMemorySingle:
		return "DATA_MEMORY_SINGLE"
	case TagDataMemoryDouble:
		return "DATA_MEMORY_DOUBLE"
	case TagDataMemoryTriple:
		return "DATA_MEMORY_TRIPLE"
	case TagAcknowledge:
		return "OK"
	case TagError:
		return "ERROR"
	case TagStrokeStart:
		return "STROKE_START"
	case TagStrokeEnd:
		return "STROKE_END"
	case TagPulseCount:
		return "PULSE_COUNT"

	default:
		return "UNKNOWN"
	}
}

func formatPayload(m Message) string {
	switch v := m.(type) {
	case ReadMemory:
		return fmt.Sprintf("location=0x%03X", v.Address.Location)
	case DataMemory:
		hex := make([]string, len(v.Values))
		for i, b := range v.Values {
			hex[i] = fmt.Sprintf("%02X", b)
		}
		composed, err := Width(len(v.Values)).Compose(v.Values)
		if err != nil {
			return fmt.Sprintf("location=0x%03X values=[%s]", v.Location, strings.Join(hex, " "))
		}
		return fmt.Sprintf("location=0x%03X values=[%s] value=%d", v.Location, strings.Join(hex, " "), composed)
	case ModelInformation:
		return fmt.Sprintf("model=S%d firmware=%s", v.Model, v.Firmware)
	case DistanceWorkout:
		return fmt.Sprintf("distance=%d %s", v.Distance, v.Unit)
	case DurationWorkout:
		return fmt.Sprintf("duration=%s", time.Duration(v.Seconds)*time.Second)
	case PulseCount:
		return fmt.Sprintf("pulses=%d", v.Count)
	}
	return ""
}

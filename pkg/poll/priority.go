// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poll

import (
	"fmt"
	"strings"
)

// Priority controls how often a subscription is polled relative to others.
type Priority uint8

// Priority values
const (
	Low Priority = iota
	Normal
	High
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case Low:
		return "LOW"
	case Normal:
		return "NORMAL"
	case High:
		return "HIGH"
	default:
		return fmt.Sprintf("PRIORITY(%d)", uint8(p))
	}
}

// ParsePriority parses "high", "normal" or "low", case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High, nil
	case "normal", "":
		return Normal, nil
	case "low":
		return Low, nil
	}
	return Normal, fmt.Errorf("unknown priority %q", s)
}

// Weights is the relative polling frequency per priority.
type Weights struct {
	High   int
	Normal int
	Low    int
}

// DefaultWeights polls HIGH four times and NORMAL twice as often as LOW.
var DefaultWeights = Weights{High: 4, Normal: 2, Low: 1}

// Of returns the weight for p. Unknown priorities get the LOW weight.
func (w Weights) Of(p Priority) int {
	switch p {
	case High:
		return w.High
	case Normal:
		return w.Normal
	default:
		return w.Low
	}
}

// Valid reports whether every weight is positive and HIGH >= NORMAL >= LOW.
func (w Weights) Valid() bool {
	return w.Low > 0 && w.Normal >= w.Low && w.High >= w.Normal
}

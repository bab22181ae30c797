// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Statistics tracks frame counts and error rates on one direction of a link.
// It is not safe for concurrent use.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	MalformedFrames uint64
	OtherErrors     uint64
	ByIdentifier    map[string]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec

	now func() time.Time
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return newStatistics(time.Now)
}

func newStatistics(now func() time.Time) *Statistics {
	t := now()
	return &Statistics{
		StartTime:      t,
		LastUpdateTime: t,
		ByIdentifier:   make(map[string]uint64),
		now:            now,
	}
}

// Update records one decoded message or one decode error.
func (s *Statistics) Update(m Message, err error) {
	if m == nil && err == nil {
		return
	}
	s.TotalFrames++

	switch {
	case err == nil:
		s.ValidFrames++
		s.ByIdentifier[m.Identifier()]++
	case errors.Is(err, ErrMalformedFrame):
		s.MalformedFrames++
	default:
		s.OtherErrors++
	}

	s.LastUpdateTime = s.now()
}

// Errors returns the total error count.
func (s *Statistics) Errors() uint64 {
	return s.MalformedFrames + s.OtherErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := s.now().Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, malformedPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		malformedPercent = float64(s.MalformedFrames) * 100.0 / float64(s.TotalFrames)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", s.now().Sub(s.StartTime).Seconds())
	fmt.Fprintf(&b, "Total Frames:    %8d\n", s.TotalFrames)
	fmt.Fprintf(&b, "Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	if s.MalformedFrames > 0 {
		fmt.Fprintf(&b, "Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, malformedPercent)
	}
	if s.OtherErrors > 0 {
		fmt.Fprintf(&b, "Other Errors:    %8d\n", s.OtherErrors)
	}

	ids := make([]string, 0, len(s.ByIdentifier))
	for id := range s.ByIdentifier {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "  %-15s %6d\n", FormatMessageType(id)+":", s.ByIdentifier[id])
	}

	fmt.Fprintf(&b, "Frame Rate:      %8.1f frames/s\n", s.FrameRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f err/s\n", s.ErrorRate)
	return b.String()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStatistics_Update(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newStatistics(func() time.Time { return clock })

	s.Update(Ping{}, nil)
	s.Update(Ping{}, nil)
	s.Update(DataMemory{Location: 0x1A9, Values: []byte{1}}, nil)
	s.Update(nil, &DecodeError{Identifier: TagModelInformation, Frame: "IVX", Err: errors.New("bad")})
	s.Update(nil, errors.New("frame overflow"))
	s.Update(nil, nil) // unknown frame, ignored

	if s.TotalFrames != 5 {
		t.Errorf("TotalFrames = %d, want 5", s.TotalFrames)
	}
	if s.ValidFrames != 3 {
		t.Errorf("ValidFrames = %d, want 3", s.ValidFrames)
	}
	if s.MalformedFrames != 1 {
		t.Errorf("MalformedFrames = %d, want 1", s.MalformedFrames)
	}
	if s.OtherErrors != 1 {
		t.Errorf("OtherErrors = %d, want 1", s.OtherErrors)
	}
	if s.ByIdentifier[TagPing] != 2 || s.ByIdentifier[TagDataMemorySingle] != 1 {
		t.Errorf("ByIdentifier = %v", s.ByIdentifier)
	}
	if s.Errors() != 2 {
		t.Errorf("Errors() = %d, want 2", s.Errors())
	}
}

func TestStatistics_Rates(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	s := newStatistics(func() time.Time { return clock })

	for i := 0; i < 20; i++ {
		s.Update(Ping{}, nil)
	}
	s.Update(nil, errors.New("frame overflow"))
	s.Update(nil, errors.New("frame overflow"))

	clock = start.Add(2 * time.Second)
	s.CalculateRates()

	if s.FrameRate != 11 {
		t.Errorf("FrameRate = %v, want 11", s.FrameRate)
	}
	if s.ErrorRate != 1 {
		t.Errorf("ErrorRate = %v, want 1", s.ErrorRate)
	}
}

func TestStatistics_String(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newStatistics(func() time.Time { return clock })
	s.Update(Ping{}, nil)
	s.Update(nil, &DecodeError{Identifier: TagPing, Frame: "PINGX", Err: errors.New("bad")})

	out := s.String()
	for _, want := range []string{"Total Frames:", "Malformed:", "PING:", "Frame Rate:"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Other Errors:") {
		t.Errorf("summary should omit zero counters:\n%s", out)
	}
}

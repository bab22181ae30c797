// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/s4link/s4link/pkg/s4"
	"github.com/s4link/s4link/pkg/session"
)

func TestBuildWorkout(t *testing.T) {
	tests := []struct {
		name     string
		distance int
		unit     string
		duration time.Duration
		want     s4.Message
		wantErr  bool
	}{
		{"meters", 2000, "meters", 0, s4.DistanceWorkout{Unit: s4.UnitMeters, Distance: 2000}, false},
		{"km short", 5, "km", 0, s4.DistanceWorkout{Unit: s4.UnitKilometers, Distance: 5}, false},
		{"strokes", 500, "Strokes", 0, s4.DistanceWorkout{Unit: s4.UnitStrokes, Distance: 500}, false},
		{"duration", 0, "", 20 * time.Minute, s4.DurationWorkout{Seconds: 1200}, false},
		{"both", 100, "meters", time.Minute, nil, true},
		{"neither", 0, "meters", 0, nil, true},
		{"bad unit", 100, "furlongs", 0, nil, true},
		{"too many strokes", 6000, "strokes", 0, nil, true},
		{"too long", 0, "", 6 * time.Hour, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildWorkout(tt.distance, tt.unit, tt.duration)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBuildWorkout_RangeError(t *testing.T) {
	_, err := buildWorkout(0xFA01, "meters", 0)
	if !errors.Is(err, s4.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestWaitForState(t *testing.T) {
	states := make(chan session.State, 4)
	states <- session.Connecting
	states <- session.ConnectedUnknownDevice
	states <- session.ConnectedSupportedWaterRower
	if err := waitForState(states, session.ConnectedSupportedWaterRower, time.Second); err != nil {
		t.Errorf("waitForState: %v", err)
	}

	states <- session.NotConnected
	if err := waitForState(states, session.ConnectedSupportedWaterRower, time.Second); err == nil {
		t.Error("expected error on disconnect")
	}

	if err := waitForState(states, session.ConnectedSupportedWaterRower, 10*time.Millisecond); err == nil {
		t.Error("expected timeout")
	}
}

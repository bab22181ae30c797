// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import (
	"errors"
	"testing"
	"time"
)

func TestNewReadMemory_AllLocations(t *testing.T) {
	for _, width := range []Width{Single, Double, Triple} {
		for loc := MinLocation; loc <= MaxLocation; loc++ {
			r, err := NewReadMemory(loc, width)
			if err != nil {
				t.Fatalf("NewReadMemory(%d, %s) error = %v", loc, width, err)
			}
			if int(r.Address.Location) != loc || r.Address.Width != width {
				t.Fatalf("NewReadMemory(%d, %s) = %v", loc, width, r.Address)
			}
		}
	}
}

func TestNewReadMemory_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		location int
		width    Width
		field    string
	}{
		{"negative location", -1, Single, "location"},
		{"location past end", 4096, Double, "location"},
		{"far out of range", 0x10000, Triple, "location"},
		{"zero width", 0x100, 0, "width"},
		{"width four", 0x100, 4, "width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReadMemory(tt.location, tt.width)
			if !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("NewReadMemory() error = %v, want ErrOutOfRange", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatal("error is not *ValidationError")
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestReadMemory_Identifier(t *testing.T) {
	tests := []struct {
		width Width
		want  string
	}{
		{Single, TagReadMemorySingle},
		{Double, TagReadMemoryDouble},
		{Triple, TagReadMemoryTriple},
	}
	for _, tt := range tests {
		r, _ := NewReadMemory(0x055, tt.width)
		if got := r.Identifier(); got != tt.want {
			t.Errorf("Identifier() for %s = %q, want %q", tt.width, got, tt.want)
		}
	}
}

func TestNewDistanceWorkout(t *testing.T) {
	tests := []struct {
		name     string
		unit     DistanceUnit
		distance int
		wantErr  bool
	}{
		{"meters min", UnitMeters, 0x0001, false},
		{"meters max", UnitMeters, 0xFA00, false},
		{"meters zero", UnitMeters, 0, true},
		{"meters over", UnitMeters, 0xFA01, true},
		{"miles max", UnitMiles, 0xFA00, false},
		{"miles over", UnitMiles, 0xFA01, true},
		{"kilometers typical", UnitKilometers, 5, false},
		{"kilometers negative", UnitKilometers, -5, true},
		{"strokes min", UnitStrokes, 0x0001, false},
		{"strokes max", UnitStrokes, 0x1388, false},
		{"strokes over", UnitStrokes, 0x1389, true},
		{"strokes at meters max", UnitStrokes, 0xFA00, true},
		{"unknown unit zero", 0, 100, true},
		{"unknown unit five", 5, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewDistanceWorkout(tt.unit, tt.distance)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDistanceWorkout() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrOutOfRange) {
					t.Errorf("error = %v, want ErrOutOfRange", err)
				}
				if w != (DistanceWorkout{}) {
					t.Errorf("NewDistanceWorkout() = %#v on error, want zero value", w)
				}
				return
			}
			if w.Unit != tt.unit || int(w.Distance) != tt.distance {
				t.Errorf("NewDistanceWorkout() = %#v", w)
			}
		})
	}
}

func TestNewDurationWorkout(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     uint16
		wantErr  bool
	}{
		{"one second", time.Second, 1, false},
		{"ten minutes", 10 * time.Minute, 600, false},
		{"five hours", 5 * time.Hour, 0x4650, false},
		{"sub second truncates", 1500 * time.Millisecond, 1, false},
		{"zero", 0, 0, true},
		{"half second", 500 * time.Millisecond, 0, true},
		{"over five hours", 5*time.Hour + time.Second, 0, true},
		{"negative", -time.Minute, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewDurationWorkout(tt.duration)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDurationWorkout() error = %v, wantErr %v", err, tt.wantErr)
			}
			if w.Seconds != tt.want {
				t.Errorf("Seconds = %d, want %d", w.Seconds, tt.want)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	_, err := NewReadMemory(4096, Single)
	want := "location=4096 out of range [0x0, 0xFFF]"
	if err == nil || err.Error() != want {
		t.Errorf("Error() = %v, want %q", err, want)
	}
}

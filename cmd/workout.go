// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/s4link/s4link/pkg/s4"
	"github.com/s4link/s4link/pkg/session"
)

var (
	workoutDistance int
	workoutUnit     string
	workoutDuration time.Duration
)

var workoutCmd = &cobra.Command{
	Use:   "workout",
	Short: "Program a single distance or duration workout",
	Long: `Connect to the monitor, wait for the handshake to finish and program a
workout.

Examples:
  s4link workout -p /dev/ttyACM0 --distance 2000
  s4link workout -p /dev/ttyACM0 --distance 500 --unit strokes
  s4link workout -p /dev/ttyACM0 --duration 20m`,
	RunE: runWorkout,
}

func init() {
	rootCmd.AddCommand(workoutCmd)
	workoutCmd.Flags().IntVar(&workoutDistance, "distance", 0, "Workout distance")
	workoutCmd.Flags().StringVar(&workoutUnit, "unit", "meters", "Distance unit (meters, miles, kilometers, strokes)")
	workoutCmd.Flags().DurationVar(&workoutDuration, "duration", 0, "Workout duration (1s to 5h)")
}

// stateTimeout bounds how long the handshake may take.
const stateTimeout = 15 * time.Second

// ParseUnit parses a distance unit name.
func ParseUnit(s string) (s4.DistanceUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "meters", "metres", "m":
		return s4.UnitMeters, nil
	case "miles", "mi":
		return s4.UnitMiles, nil
	case "kilometers", "kilometres", "km":
		return s4.UnitKilometers, nil
	case "strokes":
		return s4.UnitStrokes, nil
	}
	return 0, fmt.Errorf("unknown unit %q", s)
}

// buildWorkout validates the flags and returns the workout message.
func buildWorkout(distance int, unit string, duration time.Duration) (s4.Message, error) {
	switch {
	case distance != 0 && duration != 0:
		return nil, errors.New("--distance and --duration are mutually exclusive")
	case distance != 0:
		u, err := ParseUnit(unit)
		if err != nil {
			return nil, err
		}
		return s4.NewDistanceWorkout(u, distance)
	case duration != 0:
		return s4.NewDurationWorkout(duration)
	}
	return nil, errors.New("one of --distance or --duration is required")
}

func runWorkout(cmd *cobra.Command, args []string) error {
	msg, err := buildWorkout(workoutDistance, workoutUnit, workoutDuration)
	if err != nil {
		return err
	}

	stream, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}

	onState, states := stateWaiter()
	s, err := newSession(stream, session.Hooks{OnStateChange: onState})
	if err != nil {
		return err
	}
	if err := s.Connect(); err != nil {
		return err
	}
	defer s.Disconnect()

	logger.WithField("connection", connInfo).Info("Waiting for monitor")
	if err := waitForState(states, session.ConnectedSupportedWaterRower, stateTimeout); err != nil {
		return err
	}

	if err := s.Send(msg); err != nil {
		return err
	}
	fmt.Print(s4.FormatMessage(msg, time.Now()))
	return nil
}

// waitForState blocks until want arrives on states, the link drops or the
// timeout expires.
func waitForState(states <-chan session.State, want session.State, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case st := <-states:
			switch st {
			case want:
				return nil
			case session.NotConnected:
				return errors.New("connection lost")
			}
		case <-deadline:
			return fmt.Errorf("timed out after %s waiting for %s", timeout, want)
		}
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/s4link/s4link/pkg/capture"
	"github.com/s4link/s4link/pkg/s4"
)

var (
	replayStats    bool
	replayInbound  bool
	replayOutbound bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode a recorded capture",
	Long: `Decode a capture written by 'monitor --record' and print every message with
its original timestamp and direction.

Both directions are printed unless --inbound or --outbound narrows it.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayStats, "stats", false, "Print statistics at the end")
	replayCmd.Flags().BoolVar(&replayInbound, "inbound", false, "Only show monitor to PC traffic")
	replayCmd.Flags().BoolVar(&replayOutbound, "outbound", false, "Only show PC to monitor traffic")
}

func runReplay(cmd *cobra.Command, args []string) error {
	r, err := capture.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	stats := s4.NewStatistics()
	err = replayTo(cmd.OutOrStdout(), r, stats)
	if err != nil {
		return err
	}

	if replayStats {
		stats.CalculateRates()
		fmt.Fprintln(cmd.OutOrStdout(), stats.String())
	}
	return nil
}

// replayTo prints every event in r to w and feeds stats.
func replayTo(w io.Writer, r *capture.Reader, stats *s4.Statistics) error {
	return capture.Replay(r, s4.DefaultCodec(), func(ev capture.Event) {
		if !replayShows(ev.Direction) {
			return
		}
		stats.Update(ev.Message, ev.Err)
		if ev.Err != nil {
			fmt.Fprintf(w, "[%s] [ERROR] %s %v\n", ev.Time.Format("15:04:05.000"), ev.Direction, ev.Err)
			return
		}
		fmt.Fprint(w, s4.FormatMessage(ev.Message, ev.Time))
	})
}

func replayShows(d s4.Direction) bool {
	if replayInbound == replayOutbound {
		return true
	}
	if replayInbound {
		return d == s4.Inbound
	}
	return d == s4.Outbound
}

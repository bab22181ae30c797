// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/s4link/s4link/pkg/s4"
)

var (
	rawLogStart         bool
	rawLogStatsInterval time.Duration
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw message log in human-readable format",
	Long: `Continuously decode and display S4 messages as they arrive.

No handshake or polling is performed. With --start (the default) a USB
start request is sent once so the monitor begins reporting, and EXIT is sent
on Ctrl+C.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogStart, "start", true, "Send USB on connect and EXIT on exit")
	rawLogCmd.Flags().DurationVar(&rawLogStatsInterval, "stats-interval", 0, "Print statistics at this interval (0 to disable)")
}

// rawLogger prints every decoded message. It is the stream listener.
type rawLogger struct {
	mu      sync.Mutex
	decoder *s4.Decoder
	stats   *s4.Statistics
	closed  chan struct{}
	once    sync.Once
}

func newRawLogger() *rawLogger {
	return &rawLogger{
		decoder: s4.NewDecoder(s4.DefaultCodec()),
		stats:   s4.NewStatistics(),
		closed:  make(chan struct{}),
	}
}

func (r *rawLogger) OnConnected() {}

func (r *rawLogger) OnDisconnected() {
	r.once.Do(func() { close(r.closed) })
}

func (r *rawLogger) OnError(err error) {
	logger.WithError(err).Warn("Transport error")
}

func (r *rawLogger) OnData(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	msgs, errs := r.decoder.Feed(chunk)
	for _, err := range errs {
		r.stats.Update(nil, err)
		fmt.Printf("[ERROR] %v\n", err)
	}
	for _, m := range msgs {
		r.stats.Update(m, nil)
		fmt.Print(s4.FormatMessage(m, now))
	}
}

func (r *rawLogger) printStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.CalculateRates()
	fmt.Println(r.stats.String())
}

func runRawLog(cmd *cobra.Command, args []string) error {
	stream, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}

	rl := newRawLogger()
	stream.SetListener(rl)
	if err := stream.Open(); err != nil {
		return err
	}
	defer stream.Close()

	fmt.Printf("s4link - Raw Message Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	codec := s4.DefaultCodec()
	if rawLogStart {
		frame, err := codec.Encode(s4.StartCommunication{})
		if err != nil {
			return err
		}
		if err := stream.Send(frame); err != nil {
			return fmt.Errorf("send start: %w", err)
		}
	}

	var ticker <-chan time.Time
	if rawLogStatsInterval > 0 {
		t := time.NewTicker(rawLogStatsInterval)
		defer t.Stop()
		ticker = t.C
	}

	sig := signalChannel()
	defer stopSignals(sig)

	for {
		select {
		case <-ticker:
			rl.printStats()
		case <-rl.closed:
			logger.Info("Connection closed")
			return nil
		case <-sig:
			fmt.Println()
			if rawLogStart {
				if frame, err := codec.Encode(s4.ExitCommunication{}); err == nil {
					if err := stream.Send(frame); err != nil {
						logger.WithError(err).Debug("Failed to send exit")
					}
				}
			}
			if rawLogStatsInterval > 0 {
				rl.printStats()
			}
			return nil
		}
	}
}

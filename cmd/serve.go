// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/s4link/s4link/pkg/poll"
	"github.com/s4link/s4link/pkg/session"
)

var (
	serveHost      string
	servePort      int
	serveReconnect bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor behind a JSON HTTP API",
	Long: `Connect to the monitor like 'monitor' does and serve the session over HTTP.

Endpoints:
  GET  /state           session state and monitor identity
  GET  /subscriptions   every subscription with its cached value
  GET  /readings/{id}   one subscription by ID or name
  POST /workout         {"distance":2000,"unit":"meters"} or {"duration":"20m"}

The --record, --mqtt and --reconnect flags of 'monitor' apply here too.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "http-port", 0, "Listen port (overrides config)")
	serveCmd.Flags().StringVar(&monitorRecord, "record", "", "Record traffic to a capture file")
	serveCmd.Flags().BoolVar(&monitorMQTT, "mqtt", false, "Publish to the configured MQTT broker")
	serveCmd.Flags().BoolVar(&serveReconnect, "reconnect", true, "Reconnect when the link drops")
}

func runServe(cmd *cobra.Command, args []string) error {
	host, port := cfg.HTTP.Host, cfg.HTTP.Port
	if cmd.Flags().Changed("host") {
		host = serveHost
	}
	if cmd.Flags().Changed("http-port") {
		port = servePort
	}
	monitorReconnect = serveReconnect

	onState := func(from, to session.State) {
		logger.WithFields(map[string]interface{}{"from": from, "to": to}).Info("State changed")
	}
	onChange := func(c poll.Change) {
		logger.WithFields(map[string]interface{}{
			"name":  c.Subscription.Name(),
			"value": c.Value,
		}).Debug("Value changed")
	}

	run, err := startMonitor(onState, onChange, nil)
	if err != nil {
		return err
	}
	defer run.close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           newRouter(run.session),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("s4link - HTTP API\n")
	fmt.Printf("Connection: %s\n", run.connInfo)
	fmt.Printf("Listening on http://%s\n", srv.Addr)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sig := signalChannel()
	defer stopSignals(sig)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-sig:
		fmt.Println()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

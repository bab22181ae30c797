// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/s4link/s4link/pkg/capture"
	"github.com/s4link/s4link/pkg/poll"
	"github.com/s4link/s4link/pkg/publish"
	"github.com/s4link/s4link/pkg/s4"
	"github.com/s4link/s4link/pkg/session"
	"github.com/s4link/s4link/pkg/transport"
)

var (
	monitorTUI       bool
	monitorRecord    string
	monitorMQTT      bool
	monitorReconnect bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Connect to the monitor and report value changes",
	Long: `Run the S4 handshake, poll the configured memory locations and print every
value change.

Subscriptions come from the configuration file, or a built-in set of common
readings (stroke rate, distance, speed, watts, heart rate) when none are
configured.

  --tui        live dashboard instead of line output
  --record     append all link traffic to a CBOR capture for later replay
  --mqtt       publish changes and session state to the configured broker
  --reconnect  reconnect with exponential backoff when the link drops`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Use terminal UI")
	monitorCmd.Flags().StringVar(&monitorRecord, "record", "", "Record traffic to a capture file")
	monitorCmd.Flags().BoolVar(&monitorMQTT, "mqtt", false, "Publish to the configured MQTT broker")
	monitorCmd.Flags().BoolVar(&monitorReconnect, "reconnect", false, "Reconnect when the link drops")
}

// monitorRun holds everything a running monitor owns. serve reuses it.
type monitorRun struct {
	session     *session.Session
	connInfo    string
	recorder    *capture.Recorder
	publisher   *publish.Publisher
	reconnector *reconnector
}

// startMonitor builds the transport chain and session and connects.
// onState and onChange receive every state change and value change.
func startMonitor(onState func(from, to session.State), onChange poll.Handler, onMessage func(s4.Message)) (*monitorRun, error) {
	stream, connInfo, err := OpenTransport()
	if err != nil {
		return nil, err
	}
	run := &monitorRun{connInfo: connInfo}

	var t session.Transport = stream
	if monitorRecord != "" {
		rec, err := capture.Create(monitorRecord)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		run.recorder = rec
		t = transport.NewTap(stream, rec, logger.WithField("component", "capture"))
	}

	var publishState func(from, to session.State)
	var publishChange poll.Handler
	if monitorMQTT || cfg.MQTT.Enabled {
		m := cfg.MQTT
		pub := publish.New(publish.Config{
			Broker:    m.Broker,
			Port:      m.Port,
			ClientID:  m.ClientID,
			RootTopic: m.RootTopic,
			Username:  m.Username,
			Password:  m.Password,
			UseTLS:    m.UseTLS,
		}, logger.WithField("component", "mqtt"))
		if err := pub.Start(); err != nil {
			run.close()
			return nil, err
		}
		run.publisher = pub
		publishState = pub.PublishState
		publishChange = pub.HandleChange
	}

	var reconnectState func(from, to session.State)
	hooks := session.Hooks{
		OnStateChange: func(from, to session.State) {
			chainStateHooks(onState, publishState, reconnectState)(from, to)
		},
		OnMessage: onMessage,
		OnFault: func(err error) {
			logger.WithError(err).Error("Session fault")
		},
		OnUnsupportedFirmware: func(mi s4.ModelInformation) {
			logger.WithFields(map[string]interface{}{
				"model":    mi.Model,
				"firmware": mi.Firmware.String(),
			}).Warn("Unsupported monitor firmware")
		},
	}

	s, err := newSession(t, hooks)
	if err != nil {
		run.close()
		return nil, err
	}
	run.session = s

	if monitorReconnect {
		run.reconnector = newReconnector(s, logger.WithField("component", "reconnect"))
		reconnectState = run.reconnector.OnStateChange
		go run.reconnector.Run()
	}

	if _, err := subscribeConfigured(s, chainHandlers(onChange, publishChange)); err != nil {
		run.close()
		return nil, err
	}

	if err := s.Connect(); err != nil {
		run.close()
		return nil, err
	}
	return run, nil
}

// close disconnects and releases everything in shutdown order.
func (r *monitorRun) close() {
	if r.reconnector != nil {
		r.reconnector.Stop()
	}
	if r.session != nil {
		r.session.Disconnect()
	}
	if r.publisher != nil {
		r.publisher.Stop()
	}
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close capture")
		}
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorTUI {
		return runMonitorTUI()
	}

	onState := func(from, to session.State) {
		logger.WithFields(map[string]interface{}{"from": from, "to": to}).Info("State changed")
	}
	onChange := func(c poll.Change) {
		prev := fmt.Sprintf("%d", c.Previous)
		if c.First {
			prev = "-"
		}
		fmt.Printf("[%s] %-14s %-14s %8d (was %s)\n",
			c.Time.Format("15:04:05.000"), c.Subscription.Name(), c.Address, c.Value, prev)
	}

	run, err := startMonitor(onState, onChange, nil)
	if err != nil {
		return err
	}
	defer run.close()

	fmt.Printf("s4link - Monitor\n")
	fmt.Printf("Connection: %s\n", run.connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	waitForSignal()
	return nil
}

func runMonitorTUI() error {
	fwd := newEventForwarder()
	defer fwd.close()

	// Session logs would corrupt the alt screen
	logger.SetOutput(io.Discard)

	onState := func(from, to session.State) {
		fwd.push(stateMsg{from: from, to: to})
	}
	onChange := func(c poll.Change) {
		fwd.push(changeMsg{change: c})
	}
	onMessage := func(m s4.Message) {
		fwd.push(messageMsg{message: m})
	}

	run, err := startMonitor(onState, onChange, onMessage)
	if err != nil {
		return err
	}
	defer run.close()

	m := initialModel(run.connInfo, run.session.Engine().Snapshot)
	m.state = run.session.State()
	p := tea.NewProgram(m, tea.WithAltScreen())
	go fwd.run(p)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// msgSender is the part of tea.Program the forwarder drives.
type msgSender interface {
	Send(msg tea.Msg)
}

// eventForwarder hands session events to the dashboard in arrival order.
// push never blocks, so hooks running on the session machine are never
// held up by a slow or not yet started program.
type eventForwarder struct {
	mu      sync.Mutex
	pending []tea.Msg
	notify  chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func newEventForwarder() *eventForwarder {
	return &eventForwarder{
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

func (f *eventForwarder) push(msg tea.Msg) {
	f.mu.Lock()
	f.pending = append(f.pending, msg)
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// run delivers queued events to to until close is called.
func (f *eventForwarder) run(to msgSender) {
	for {
		select {
		case <-f.stop:
			return
		case <-f.notify:
		}

		f.mu.Lock()
		batch := f.pending
		f.pending = nil
		f.mu.Unlock()

		for _, msg := range batch {
			to.Send(msg)
		}
	}
}

func (f *eventForwarder) close() {
	f.once.Do(func() { close(f.stop) })
}

func signalChannel() chan os.Signal {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	return sig
}

func stopSignals(sig chan os.Signal) {
	signal.Stop(sig)
}

func waitForSignal() {
	sig := signalChannel()
	defer stopSignals(sig)
	<-sig
	fmt.Println()
}

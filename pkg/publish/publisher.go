// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish forwards subscription changes and session state to an MQTT
// broker.
//
// Readings are published to <root>/readings/<name> and the session state,
// retained, to <root>/state.
package publish

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/s4link/s4link/pkg/poll"
	"github.com/s4link/s4link/pkg/session"
)

// DefaultPort is the plain MQTT port.
const DefaultPort = 1883

// Config selects a broker.
type Config struct {
	Broker    string
	Port      int
	ClientID  string
	RootTopic string
	Username  string
	Password  string
	UseTLS    bool
	QoS       byte
}

// sink is the part of pahomqtt.Client the publisher uses.
type sink interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Publisher holds one broker connection.
type Publisher struct {
	config Config
	log    log.FieldLogger

	mu      sync.RWMutex
	client  pahomqtt.Client
	sink    sink
	running bool
}

// ReadingMessage is the JSON payload of a reading.
type ReadingMessage struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Location  uint16 `json:"location"`
	Width     int    `json:"width"`
	Value     uint32 `json:"value"`
	Previous  uint32 `json:"previous"`
	First     bool   `json:"first"`
	Timestamp string `json:"timestamp"`
}

// StateMessage is the JSON payload of a state change.
type StateMessage struct {
	State     string `json:"state"`
	Previous  string `json:"previous"`
	Connected bool   `json:"connected"`
	Timestamp string `json:"timestamp"`
}

// New creates a publisher. A nil logger uses the standard logrus logger.
func New(cfg Config, logger log.FieldLogger) *Publisher {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.RootTopic == "" {
		cfg.RootTopic = "s4link"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "s4link"
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Publisher{config: cfg, log: logger}
}

// Address returns the broker URL.
func (p *Publisher) Address() string {
	scheme := "tcp"
	if p.config.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.config.Broker, p.config.Port)
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Start connects to the broker.
func (p *Publisher) Start() error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.Address())
	if p.config.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetClientID(p.config.ClientID)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	client := pahomqtt.NewClient(opts)
	p.log.WithField("broker", p.Address()).Info("Connecting to MQTT broker")

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connect %s: timeout", p.Address())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", p.Address(), err)
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		client.Disconnect(100)
		return nil
	}
	p.client = client
	p.sink = client
	p.running = true
	p.mu.Unlock()

	p.log.WithField("broker", p.Address()).Info("Connected to MQTT broker")
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	client := p.client
	p.client = nil
	p.sink = nil
	p.running = false
	p.mu.Unlock()

	if client != nil {
		client.Disconnect(500)
	}
}

// ReadingTopic returns the topic for a subscription name.
func (p *Publisher) ReadingTopic(name string) string {
	return fmt.Sprintf("%s/readings/%s", p.config.RootTopic, topicSegment(name))
}

// StateTopic returns the session state topic.
func (p *Publisher) StateTopic() string {
	return p.config.RootTopic + "/state"
}

// HandleChange publishes a change. It has the signature of poll.Handler.
func (p *Publisher) HandleChange(c poll.Change) {
	name := c.Address.String()
	if c.Subscription != nil {
		name = c.Subscription.Name()
	}
	msg := ReadingMessage{
		Name:      name,
		Address:   c.Address.String(),
		Location:  c.Address.Location,
		Width:     int(c.Address.Width),
		Value:     c.Value,
		Previous:  c.Previous,
		First:     c.First,
		Timestamp: c.Time.UTC().Format(time.RFC3339Nano),
	}
	p.publish(p.ReadingTopic(name), false, msg)
}

// PublishState publishes a retained state message. It has the signature of
// session.Hooks.OnStateChange.
func (p *Publisher) PublishState(from, to session.State) {
	msg := StateMessage{
		State:     to.String(),
		Previous:  from.String(),
		Connected: to.Connected(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	p.publish(p.StateTopic(), true, msg)
}

func (p *Publisher) publish(topic string, retained bool, msg interface{}) {
	p.mu.RLock()
	running := p.running
	s := p.sink
	p.mu.RUnlock()

	if !running || s == nil {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.log.WithError(err).WithField("topic", topic).Error("Failed to encode MQTT payload")
		return
	}

	// The token completes asynchronously and is not awaited
	s.Publish(topic, p.config.QoS, retained, payload)
	p.log.WithField("topic", topic).Debug("Published")
}

// topicSegment makes name safe for use as a single MQTT topic level.
func topicSegment(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', ' ':
			return '_'
		}
		return r
	}, name)
}

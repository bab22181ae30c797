// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config handles configuration persistence for s4link.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/s4link/s4link/pkg/poll"
	"github.com/s4link/s4link/pkg/s4"
	"github.com/s4link/s4link/pkg/session"
)

// Config holds the complete application configuration.
type Config struct {
	Serial        SerialConfig         `yaml:"serial"`
	WebSocket     WebSocketConfig      `yaml:"websocket"`
	Session       SessionConfig        `yaml:"session"`
	Poll          PollConfig           `yaml:"poll"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	MQTT          MQTTConfig           `yaml:"mqtt"`
	HTTP          HTTPConfig           `yaml:"http"`
	Log           LogConfig            `yaml:"log"`
}

// SerialConfig selects the local serial port.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// WebSocketConfig selects a remote serial bridge. It takes precedence over
// Serial when URL is set.
type WebSocketConfig struct {
	URL         string `yaml:"url,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	NoSSLVerify bool   `yaml:"no_ssl_verify,omitempty"`
}

// SessionConfig holds watchdog timing and the firmware policy.
type SessionConfig struct {
	WatchdogTimeout       time.Duration `yaml:"watchdog_timeout"`
	WatchdogCheckInterval time.Duration `yaml:"watchdog_check_interval"`

	Models                []int  `yaml:"models,omitempty"`
	MinFirmware           string `yaml:"min_firmware,omitempty"` // "02.10"
	MaxFirmware           string `yaml:"max_firmware,omitempty"`
	DisconnectUnsupported bool   `yaml:"disconnect_unsupported"`
}

// PollConfig tunes the polling scheduler.
type PollConfig struct {
	Interval               time.Duration `yaml:"interval"`
	Weights                WeightsConfig `yaml:"weights"`
	ResetCachesOnReconnect bool          `yaml:"reset_caches_on_reconnect"`
}

// WeightsConfig is the relative polling frequency per priority.
type WeightsConfig struct {
	High   int `yaml:"high"`
	Normal int `yaml:"normal"`
	Low    int `yaml:"low"`
}

// SubscriptionConfig describes one memory location to watch.
type SubscriptionConfig struct {
	Name     string `yaml:"name"`
	Location int    `yaml:"location"` // 0x000 - 0xFFF
	Width    string `yaml:"width"`    // single, double or triple
	Priority string `yaml:"priority,omitempty"`
}

// MQTTConfig holds MQTT broker configuration.
type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"`
	Port      int    `yaml:"port"`
	ClientID  string `yaml:"client_id"`
	RootTopic string `yaml:"root_topic"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	UseTLS    bool   `yaml:"use_tls,omitempty"`
}

// HTTPConfig holds the status API listen address.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultSubscriptions are the readings watched when the configuration
// lists none.
func DefaultSubscriptions() []SubscriptionConfig {
	return []SubscriptionConfig{
		{Name: "stroke_rate", Location: s4.LocationStrokeRate, Width: "single", Priority: "high"},
		{Name: "distance", Location: s4.LocationDistance, Width: "double", Priority: "high"},
		{Name: "speed", Location: s4.LocationAverageSpeed, Width: "double", Priority: "normal"},
		{Name: "watts", Location: s4.LocationWatts, Width: "double", Priority: "normal"},
		{Name: "strokes", Location: s4.LocationStrokeCount, Width: "double", Priority: "normal"},
		{Name: "heart_rate", Location: s4.LocationHeartRate, Width: "single", Priority: "low"},
		{Name: "calories", Location: s4.LocationCalories, Width: "triple", Priority: "low"},
		{Name: "seconds", Location: s4.LocationDisplaySeconds, Width: "single", Priority: "normal"},
		{Name: "minutes", Location: s4.LocationDisplayMinutes, Width: "single", Priority: "low"},
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 19200,
		},
		Session: SessionConfig{
			WatchdogTimeout:       session.DefaultWatchdogTimeout,
			WatchdogCheckInterval: session.DefaultWatchdogCheckInterval,
			Models:                []int{4},
			MinFirmware:           "02.10",
		},
		Poll: PollConfig{
			Interval: poll.DefaultInterval,
			Weights: WeightsConfig{
				High:   poll.DefaultWeights.High,
				Normal: poll.DefaultWeights.Normal,
				Low:    poll.DefaultWeights.Low,
			},
		},
		Subscriptions: DefaultSubscriptions(),
		MQTT: MQTTConfig{
			Port:      1883,
			ClientID:  "s4link",
			RootTopic: "s4link",
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default configuration file path (~/.s4link/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".s4link", "config.yaml")
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Sections absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	// A subscriptions list in the file replaces the defaults
	cfg.Subscriptions = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Subscriptions == nil {
		cfg.Subscriptions = DefaultSubscriptions()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration, creating the directory if needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every section that the session and engine depend on.
func (c *Config) Validate() error {
	if err := c.WatchdogConfig().Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if _, err := c.FirmwarePolicy(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll: interval must be positive")
	}
	if !c.Weights().Valid() {
		return fmt.Errorf("poll: %w", poll.ErrInvalidWeights)
	}
	seen := make(map[string]bool, len(c.Subscriptions))
	for i, sc := range c.Subscriptions {
		if _, _, err := sc.Parse(); err != nil {
			return fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
		if sc.Name != "" {
			if seen[sc.Name] {
				return fmt.Errorf("subscriptions[%d]: duplicate name %q", i, sc.Name)
			}
			seen[sc.Name] = true
		}
	}
	return nil
}

// FindSubscription returns a pointer to the subscription with the given name.
func (c *Config) FindSubscription(name string) *SubscriptionConfig {
	for i := range c.Subscriptions {
		if c.Subscriptions[i].Name == name {
			return &c.Subscriptions[i]
		}
	}
	return nil
}

// WatchdogConfig returns the session watchdog timing.
func (c *Config) WatchdogConfig() session.WatchdogConfig {
	return session.WatchdogConfig{
		Timeout:       c.Session.WatchdogTimeout,
		CheckInterval: c.Session.WatchdogCheckInterval,
	}
}

// FirmwarePolicy builds the session firmware policy.
func (c *Config) FirmwarePolicy() (session.FirmwarePolicy, error) {
	p := session.FirmwarePolicy{
		Models:                c.Session.Models,
		DisconnectUnsupported: c.Session.DisconnectUnsupported,
	}
	var err error
	if c.Session.MinFirmware != "" {
		if p.Min, err = s4.ParseVersion(c.Session.MinFirmware); err != nil {
			return session.FirmwarePolicy{}, fmt.Errorf("min_firmware: %w", err)
		}
	}
	if c.Session.MaxFirmware != "" {
		if p.Max, err = s4.ParseVersion(c.Session.MaxFirmware); err != nil {
			return session.FirmwarePolicy{}, fmt.Errorf("max_firmware: %w", err)
		}
	}
	return p, nil
}

// Weights returns the poll priority weights.
func (c *Config) Weights() poll.Weights {
	return poll.Weights{
		High:   c.Poll.Weights.High,
		Normal: c.Poll.Weights.Normal,
		Low:    c.Poll.Weights.Low,
	}
}

// PollOptions builds engine options. logger may be nil.
func (c *Config) PollOptions(logger log.FieldLogger) poll.Options {
	return poll.Options{
		Interval:              c.Poll.Interval,
		Weights:               c.Weights(),
		ResetCachesOnActivate: c.Poll.ResetCachesOnReconnect,
		Logger:                logger,
	}
}

// ParseWidth parses "single", "double" or "triple", or the digits 1 to 3.
func ParseWidth(s string) (s4.Width, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "s", "1":
		return s4.Single, nil
	case "double", "d", "2":
		return s4.Double, nil
	case "triple", "t", "3":
		return s4.Triple, nil
	}
	return 0, fmt.Errorf("unknown width %q", s)
}

// Parse validates the entry and returns its address and priority.
func (sc SubscriptionConfig) Parse() (s4.MemoryAddress, poll.Priority, error) {
	width, err := ParseWidth(sc.Width)
	if err != nil {
		return s4.MemoryAddress{}, 0, err
	}
	addr, err := s4.NewMemoryAddress(sc.Location, width)
	if err != nil {
		return s4.MemoryAddress{}, 0, err
	}
	prio, err := poll.ParsePriority(sc.Priority)
	if err != nil {
		return s4.MemoryAddress{}, 0, err
	}
	return addr, prio, nil
}

// Build creates a poll subscription for the entry.
func (sc SubscriptionConfig) Build(handler poll.Handler) (*poll.Subscription, error) {
	addr, prio, err := sc.Parse()
	if err != nil {
		return nil, err
	}
	var opts []poll.SubscriptionOption
	if sc.Name != "" {
		opts = append(opts, poll.WithName(sc.Name))
	}
	return poll.NewSubscription(prio, addr, handler, opts...), nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate is the S4 USB serial rate.
const DefaultBaudRate = 19200

// SerialConfig selects a serial port.
type SerialConfig struct {
	Port     string
	BaudRate int
}

// NewSerial creates a transport for a serial port, 8N1.
func NewSerial(cfg SerialConfig) *Stream {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	name := fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.BaudRate)
	return NewStream(name, func() (io.ReadWriteCloser, error) {
		mode := &serial.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}

		port, err := serial.Open(cfg.Port, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
		}
		return port, nil
	})
}

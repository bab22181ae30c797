// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"errors"
	"fmt"
)

// State is a connection lifecycle state.
type State uint8

// Connection states
const (
	NotConnected State = iota
	Connecting
	ConnectedUnknownDevice
	ConnectedWaterRower
	ConnectedSupportedWaterRower
	Disconnecting
)

// States lists every state in declaration order.
var States = []State{
	NotConnected,
	Connecting,
	ConnectedUnknownDevice,
	ConnectedWaterRower,
	ConnectedSupportedWaterRower,
	Disconnecting,
}

// String returns the state name.
func (s State) String() string {
	switch s {
	case NotConnected:
		return "NOT_CONNECTED"
	case Connecting:
		return "CONNECTING"
	case ConnectedUnknownDevice:
		return "CONNECTED_UNKNOWN_DEVICE"
	case ConnectedWaterRower:
		return "CONNECTED_WATER_ROWER"
	case ConnectedSupportedWaterRower:
		return "CONNECTED_SUPPORTED_WATER_ROWER"
	case Disconnecting:
		return "DISCONNECTING"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

// Connected reports whether s is one of the CONNECTED_* states.
func (s State) Connected() bool {
	return s == ConnectedUnknownDevice || s == ConnectedWaterRower || s == ConnectedSupportedWaterRower
}

// Trigger is an event that may cause a state transition.
type Trigger uint8

// Triggers
const (
	DoConnect Trigger = iota
	OnConnected
	DeviceConfirmed
	FirmwareConfirmed
	OnDisconnected
	DoDisconnect
	OnError
	OnWatchdog
)

// Triggers lists every trigger in declaration order.
var Triggers = []Trigger{
	DoConnect,
	OnConnected,
	DeviceConfirmed,
	FirmwareConfirmed,
	OnDisconnected,
	DoDisconnect,
	OnError,
	OnWatchdog,
}

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case DoConnect:
		return "DO_CONNECT"
	case OnConnected:
		return "ON_CONNECTED"
	case DeviceConfirmed:
		return "DEVICE_CONFIRMED"
	case FirmwareConfirmed:
		return "FIRMWARE_CONFIRMED"
	case OnDisconnected:
		return "ON_DISCONNECTED"
	case DoDisconnect:
		return "DO_DISCONNECT"
	case OnError:
		return "ON_ERROR"
	case OnWatchdog:
		return "ON_WATCHDOG"
	default:
		return fmt.Sprintf("TRIGGER(%d)", uint8(t))
	}
}

type transition struct {
	from    State
	trigger Trigger
}

// transitions is the complete lifecycle table. Any pair not listed is a
// protocol-desync fault.
var transitions = map[transition]State{
	{NotConnected, DoConnect}: Connecting,

	{Connecting, OnConnected}:    ConnectedUnknownDevice,
	{Connecting, OnDisconnected}: NotConnected,
	{Connecting, OnError}:        NotConnected,

	{ConnectedUnknownDevice, DeviceConfirmed}: ConnectedWaterRower,
	{ConnectedUnknownDevice, OnDisconnected}:  NotConnected,
	{ConnectedUnknownDevice, OnError}:         Disconnecting,
	{ConnectedUnknownDevice, OnWatchdog}:      Disconnecting,

	{ConnectedWaterRower, FirmwareConfirmed}: ConnectedSupportedWaterRower,
	{ConnectedWaterRower, OnDisconnected}:    NotConnected,
	{ConnectedWaterRower, OnError}:           Disconnecting,
	{ConnectedWaterRower, OnWatchdog}:        Disconnecting,

	{ConnectedSupportedWaterRower, DoDisconnect}:   Disconnecting,
	{ConnectedSupportedWaterRower, OnError}:        Disconnecting,
	{ConnectedSupportedWaterRower, OnWatchdog}:     Disconnecting,
	{ConnectedSupportedWaterRower, OnDisconnected}: NotConnected,

	{Disconnecting, OnDisconnected}: NotConnected,
	{Disconnecting, OnError}:        NotConnected,
}

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError reports a trigger that is not permitted in the current state.
// It means the device and the client disagree about the session state.
type TransitionError struct {
	State   State
	Trigger Trigger
}

// Error implements the error interface
func (e *TransitionError) Error() string {
	return fmt.Sprintf("trigger %s not permitted in state %s", e.Trigger, e.State)
}

// Is makes errors.Is(err, ErrInvalidTransition) true.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Next returns the state reached by firing trigger in state.
func Next(state State, trigger Trigger) (State, error) {
	next, ok := transitions[transition{state, trigger}]
	if !ok {
		return state, &TransitionError{State: state, Trigger: trigger}
	}
	return next, nil
}

// Permitted returns the triggers accepted in state, in declaration order.
func Permitted(state State) []Trigger {
	var out []Trigger
	for _, t := range Triggers {
		if _, ok := transitions[transition{state, t}]; ok {
			out = append(out, t)
		}
	}
	return out
}

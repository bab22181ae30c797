// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"slices"

	"github.com/s4link/s4link/pkg/s4"
)

// FirmwarePolicy decides which monitors the session accepts.
type FirmwarePolicy struct {
	// Models lists accepted model digits. Empty accepts any model.
	Models []int

	// Min and Max bound the firmware version, inclusive. A zero version
	// leaves that side open.
	Min s4.Version
	Max s4.Version

	// DisconnectUnsupported tears the session down when the firmware is
	// rejected. Otherwise the session stays in ConnectedWaterRower.
	DisconnectUnsupported bool
}

// DefaultFirmwarePolicy accepts an S4 (model 4) with firmware 02.10 or later.
func DefaultFirmwarePolicy() FirmwarePolicy {
	return FirmwarePolicy{
		Models: []int{4},
		Min:    s4.Version{Major: 2, Minor: 10},
	}
}

// Supports reports whether mi satisfies the policy.
func (p FirmwarePolicy) Supports(mi s4.ModelInformation) bool {
	if len(p.Models) > 0 && !slices.Contains(p.Models, mi.Model) {
		return false
	}
	if !p.Min.IsZero() && mi.Firmware.Compare(p.Min) < 0 {
		return false
	}
	if !p.Max.IsZero() && mi.Firmware.Compare(p.Max) > 0 {
		return false
	}
	return true
}

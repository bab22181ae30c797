// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// s4link - WaterRower S4 Monitor Link
//
// A CLI tool for talking to a WaterRower S4 performance monitor over USB
// serial or a WebSocket bridge.

package main

import (
	"os"

	"github.com/s4link/s4link/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

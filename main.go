// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Gecostat - Hewalex Geco Bus Analyzer and Bridge
//
// A CLI tool for reading, writing and eavesdropping on the registers of
// Hewalex heat pumps and solar sets, and for bridging them to MQTT, Redis
// and HTTP.

package main

import (
	"os"

	"github.com/Thermoquad/gecostat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Litronsim - Litron OPO emulator and LVREMOTE toolkit
//
// Serves an emulated Litron OPO over the LVREMOTE protocol, and provides
// client commands for driving and inspecting it.

package main

import (
	"os"

	"github.com/Thermoquad/litronsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

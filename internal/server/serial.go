// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"context"
	"fmt"

	"go.bug.st/serial"
)

// OpenSerial opens a serial port in 8N1 mode with a read timeout, so the
// read loop can notice shutdown.
func OpenSerial(portName string, baudRate int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial port %s: %w", portName, err)
	}
	return port, nil
}

// ServeSerial serves LVREMOTE on a serial port until ctx is done. A serial
// line has a single peer, so there is no accept loop.
func (h *Handler) ServeSerial(ctx context.Context, portName string, baudRate int) error {
	port, err := OpenSerial(portName, baudRate)
	if err != nil {
		return err
	}
	defer port.Close()

	h.log.WithField("baud", baudRate).Infof("LVREMOTE serving on %s", portName)
	return h.Serve(ctx, port, "serial", portName)
}

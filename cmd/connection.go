// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/litronsim/internal/server"
	"github.com/Thermoquad/litronsim/pkg/backdoor"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

// Connection provides a common interface for reading/writing bytes from serial or TCP
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := server.OpenSerial(portName, baudRate)
	if err != nil {
		return nil, err
	}
	return &SerialConnection{port: port}, nil
}

// OpenTCPConnection dials an emulator or bridge over TCP
func OpenTCPConnection(addr string) (Connection, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TCP connection to %s failed: %w", addr, err)
	}
	return conn, nil
}

// defaultTCPAddr turns the configured listen address into a dial address
func defaultTCPAddr() string {
	host, port, err := net.SplitHostPort(cfg.Server.Listen)
	if err != nil {
		return "localhost:9999"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// OpenConnection opens either a TCP or serial connection based on flags.
// With neither flag it dials the configured server address.
func OpenConnection() (Connection, string, error) {
	if portName != "" {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	addr := tcpAddr
	if addr == "" {
		addr = defaultTCPAddr()
	}
	conn, err := OpenTCPConnection(addr)
	if err != nil {
		return nil, "", err
	}
	return conn, fmt.Sprintf("TCP: %s", addr), nil
}

// clientPath returns --vi-path, or the configured front panel path
func clientPath() string {
	if viPath != "" {
		return viPath
	}
	return cfg.Device.VIPath
}

// newClient wraps conn in an LVREMOTE client using the path and timeout flags
func newClient(conn Connection) *lvremote.Client {
	return lvremote.NewClient(conn,
		lvremote.WithPath(clientPath()),
		lvremote.WithTimeout(time.Duration(timeout*float64(time.Second))),
	)
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("LITRONSIM_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// backdoorURL returns --url, or the configured backdoor listener
func backdoorURL() string {
	if wsURL != "" {
		return wsURL
	}
	host, port, err := net.SplitHostPort(cfg.Backdoor.Listen)
	if err != nil {
		return "ws://localhost:9998" + cfg.Backdoor.Path
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "ws://" + net.JoinHostPort(host, port) + cfg.Backdoor.Path
}

// backdoorPassword is asked for once and reused on reconnect
var backdoorPassword string

// OpenBackdoor connects to the emulator's introspection channel
func OpenBackdoor(ctx context.Context) (*backdoor.Client, string, error) {
	if wsUsername != "" && backdoorPassword == "" {
		var err error
		backdoorPassword, err = GetPassword()
		if err != nil {
			return nil, "", err
		}
	}

	url := backdoorURL()
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	c, err := backdoor.Dial(ctx, url, wsUsername, backdoorPassword, wsNoSSLVerify)
	if err != nil {
		return nil, "", err
	}
	return c, fmt.Sprintf("Backdoor: %s", url), nil
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/litronsim/internal/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	// LVREMOTE client connection flags
	tcpAddr  string
	portName string
	baudRate int
	viPath   string
	timeout  float64

	// Backdoor client flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "litronsim",
	Short: "Litron OPO laser emulator",
	Long: `Litronsim - emulates a Litron laser's OPO crystal positioner and wavelength
meter behind the LabVIEW LVREMOTE bridge.

The serve command runs the emulator. The other commands are clients: idn, get,
put, probe and shell talk LVREMOTE to an emulator (or a real bridge), backdoor
and monitor use the emulator's introspection channel, and decode lists the
calls in a captured buffer.

LVREMOTE connection modes:
  TCP:       --addr host:9999
  Serial:    --port /dev/ttyUSB0 [--baud 115200]

Backdoor connection:
  --url ws://host:9998/backdoor [--username user]

For backdoor authentication, the password is read from the LITRONSIM_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, found, err := config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		cfg = loaded
		logger = setupLogger(cfg.Log)
		if configPath != "" && !found {
			logger.Warnf("config file %s not found, using defaults", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	// LVREMOTE connection flags
	rootCmd.PersistentFlags().StringVarP(&tcpAddr, "addr", "a", "", "Emulator TCP address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&viPath, "vi-path", "", "Front panel VI path (default from config)")
	rootCmd.PersistentFlags().Float64Var(&timeout, "timeout", 2, "Seconds to wait for a reply")

	// Backdoor connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Backdoor WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

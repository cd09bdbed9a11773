// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/litronsim/pkg/litron"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

var (
	probeTimeout   int
	probeNoIDN     bool
	probeControl   string
	probeAttempts  int
	probeRetryWait float64
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test whether the instrument is answering",
	Long: `Send the handshake followed by a crystal position read and wait for the reply.

A connected instrument answers once it has seen the handshake. One whose link
is down stays silent, which is how a client notices stale readings.

Exit codes:
  0 - Reply received before timeout
  1 - Timeout reached without a reply (instrument silent)
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "wait", 5, "Seconds to wait for a reply")
	probeCmd.Flags().BoolVar(&probeNoIDN, "no-idn", false, "Skip the handshake")
	probeCmd.Flags().StringVar(&probeControl, "control", litron.NameCrystalPosition, "Control to read")
	probeCmd.Flags().IntVar(&probeAttempts, "attempts", 1, "Number of reads before giving up")
	probeCmd.Flags().Float64Var(&probeRetryWait, "retry-wait", 0.5, "Seconds between attempts")
}

func runProbe(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	control := resolveControl(probeControl)

	fmt.Printf("Litronsim - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Reading %q...\n\n", control)

	client := lvremote.NewClient(conn,
		lvremote.WithPath(clientPath()),
		lvremote.WithTimeout(time.Duration(probeTimeout)*time.Second),
	)

	if !probeNoIDN {
		if err := client.Handshake(); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		value, err := client.Get(control)
		if err == nil {
			fmt.Printf("SUCCESS: Instrument answered\n")
			fmt.Printf("  Control: %s\n", control)
			fmt.Printf("  Value: %s\n", lvremote.FormatReply(value))
			fmt.Printf("  Round trip: %s\n", time.Since(start).Round(time.Millisecond))
			os.Exit(0)
		}

		if !errors.Is(err, lvremote.ErrTimeout) {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}
		if attempt >= probeAttempts {
			break
		}
		time.Sleep(time.Duration(probeRetryWait * float64(time.Second)))
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: No reply within %d seconds (instrument silent)\n", probeTimeout)
	os.Exit(1)
	return nil
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/litronsim/pkg/litron"
)

var (
	watchInterval time.Duration
	watchCount    int
)

var backdoorCmd = &cobra.Command{
	Use:   "backdoor",
	Short: "Inspect and drive emulator state over the backdoor",
	Long: `Read and write the emulated instrument's fields over the backdoor
WebSocket, bypassing the LVREMOTE handshake gate.

The backdoor cannot arm the instrument: initialized can only be cleared.`,
}

var backdoorGetCmd = &cobra.Command{
	Use:   "get <field>",
	Short: "Read one field",
	Args:  cobra.ExactArgs(1),
	RunE: withBackdoor(func(ctx context.Context, c backdoorClient, args []string) error {
		v, err := c.Get(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s = %v\n", args[0], v)
		return nil
	}),
}

var backdoorSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Write one field",
	Args:  cobra.ExactArgs(2),
	RunE: withBackdoor(func(ctx context.Context, c backdoorClient, args []string) error {
		v, err := litron.ParseFieldValue(args[0], args[1])
		if err != nil {
			return err
		}
		if err := c.Set(ctx, args[0], v); err != nil {
			return err
		}
		fmt.Printf("%s <- %v\n", args[0], v)
		return nil
	}),
}

var backdoorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List field names",
	Args:  cobra.NoArgs,
	RunE: withBackdoor(func(ctx context.Context, c backdoorClient, args []string) error {
		fields, err := c.List(ctx)
		if err != nil {
			return err
		}
		for _, f := range fields {
			fmt.Println(f)
		}
		return nil
	}),
}

var backdoorSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print every field at once",
	Args:  cobra.NoArgs,
	RunE: withBackdoor(func(ctx context.Context, c backdoorClient, args []string) error {
		snap, err := c.Snapshot(ctx)
		if err != nil {
			return err
		}
		printSnapshot(os.Stdout, snap)
		return nil
	}),
}

var backdoorWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream snapshots until interrupted",
	Args:  cobra.NoArgs,
	RunE: withBackdoor(func(ctx context.Context, c backdoorClient, args []string) error {
		n := 0
		err := c.Watch(ctx, watchInterval, func(snap litron.Snapshot) error {
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), snapshotLine(snap))
			n++
			if watchCount > 0 && n >= watchCount {
				return errWatchDone
			}
			return nil
		})
		if errors.Is(err, errWatchDone) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}),
}

var errWatchDone = errors.New("watch done")

// backdoorClient is the part of the backdoor client the subcommands use
type backdoorClient interface {
	Get(ctx context.Context, name string) (interface{}, error)
	Set(ctx context.Context, name string, value interface{}) error
	List(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context) (litron.Snapshot, error)
	Watch(ctx context.Context, interval time.Duration, fn func(litron.Snapshot) error) error
}

func init() {
	rootCmd.AddCommand(backdoorCmd)
	backdoorCmd.AddCommand(backdoorGetCmd, backdoorSetCmd, backdoorListCmd, backdoorSnapshotCmd, backdoorWatchCmd)
	backdoorWatchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 500*time.Millisecond, "Snapshot interval")
	backdoorWatchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "Stop after n snapshots (0 = forever)")
}

// withBackdoor opens the backdoor, runs fn until it returns or the user
// interrupts, and closes the connection.
func withBackdoor(fn func(ctx context.Context, c backdoorClient, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, connInfo, err := OpenBackdoor(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		logger.WithField("backdoor", connInfo).Debug("connected")

		return fn(ctx, c, args)
	}
}

func printSnapshot(w io.Writer, s litron.Snapshot) {
	fmt.Fprintf(w, "%-20s %v\n", litron.FieldConnected, s.Connected)
	fmt.Fprintf(w, "%-20s %v\n", litron.FieldHardwareConnected, s.HardwareConnected)
	fmt.Fprintf(w, "%-20s %v\n", litron.FieldInitialized, s.Initialized)
	fmt.Fprintf(w, "%-20s %d\n", litron.FieldCrystalPos, s.CrystalPos)
	fmt.Fprintf(w, "%-20s %d\n", litron.FieldNudgeDist, s.NudgeDist)
	fmt.Fprintf(w, "%-20s %d\n", litron.FieldWavelength, s.Wavelength)
	fmt.Fprintf(w, "%-20s %.3f\n", litron.FieldWavelengthReading, s.WavelengthReading)
	fmt.Fprintf(w, "%-20s %s\n", "gate", gateState(s))
}

func snapshotLine(s litron.Snapshot) string {
	return fmt.Sprintf("%-6s pos=%d dist=%d wl=%d reading=%.3f link=%v hw=%v",
		gateState(s), s.CrystalPos, s.NudgeDist, s.Wavelength, s.WavelengthReading,
		s.Connected, s.HardwareConnected)
}

// gateState names whether the instrument would answer calls
func gateState(s litron.Snapshot) string {
	if s.Armed() {
		return "ARMED"
	}
	return "SILENT"
}

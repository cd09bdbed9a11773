// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/litronsim/pkg/backdoor"
	"github.com/Thermoquad/litronsim/pkg/litron"
)

const reconnectDelay = 2 * time.Second

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for watching and driving the emulator",
	Long: `Watch the emulated OPO through the backdoor in a terminal UI.

Features:
  - Live field values from the backdoor watch stream
  - Gate status (ARMED answers calls, SILENT drops them)
  - Event log of every field change
  - Editing any writable field
  - Automatic reconnection on connection loss

Arrow keys select a field, Enter edits it, Enter again sends the value.
Esc cancels an edit. c toggles the link, h toggles the hardware and
x clears initialized.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 250*time.Millisecond, "Snapshot interval")
}

// monitorSession owns the backdoor connection and reconnects it
type monitorSession struct {
	mu       sync.RWMutex
	client   *backdoor.Client
	connInfo string
	p        *tea.Program
}

func (s *monitorSession) getClient() *backdoor.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *monitorSession) setClient(c *backdoor.Client, connInfo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = c
	s.connInfo = connInfo
}

// Set writes a field on the current connection
func (s *monitorSession) Set(ctx context.Context, name string, value interface{}) error {
	c := s.getClient()
	if c == nil {
		return backdoor.ErrClientClosed
	}
	return c.Set(ctx, name, value)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	c, connInfo, err := OpenBackdoor(ctx)
	if err != nil {
		return err
	}

	s := &monitorSession{client: c, connInfo: connInfo}
	m := initialMonitorModel(s, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen())
	s.p = p

	go s.watchLoop(ctx)

	_, err = p.Run()
	cancel()
	if c := s.getClient(); c != nil {
		c.Close()
	}
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// watchLoop feeds snapshots to the TUI, reconnecting when the link drops
func (s *monitorSession) watchLoop(ctx context.Context) {
	for {
		c := s.getClient()
		err := c.Watch(ctx, monitorInterval, func(snap litron.Snapshot) error {
			s.p.Send(snapshotMsg(snap))
			return nil
		})
		if ctx.Err() != nil {
			return
		}
		logger.WithError(err).Debug("backdoor watch ended")
		s.p.Send(connectionLostMsg{err: err})
		c.Close()

		if !s.reconnect(ctx) {
			return
		}
	}
}

func (s *monitorSession) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(reconnectDelay):
		}

		c, connInfo, err := OpenBackdoor(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return false
			}
			continue
		}
		s.setClient(c, connInfo)
		s.p.Send(reconnectedMsg{connInfo: connInfo})
		return true
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

var shellHistory string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive LVREMOTE shell",
	Long: `Open an interactive shell on an LVREMOTE connection.

Commands:
  idn                        send the handshake
  get <control>              LVGET, prints the reply
  put <control> [value]      LVPUT a 4-byte value (default 1)
  raw <hex>                  send bytes as one buffer, print the replies
  controls                   list control aliases
  help, quit

Control names containing spaces must be quoted: get "OPO Crystal Position".`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	home, _ := os.UserHomeDir()
	shellCmd.Flags().StringVar(&shellHistory, "history", filepath.Join(home, ".litronsim_history"), "History file (empty disables)")
}

var shellCommands = []string{"idn", "get", "put", "raw", "controls", "help", "quit", "exit"}

// shell executes one command line at a time against an LVREMOTE client
type shell struct {
	client *lvremote.Client
	out    io.Writer
}

// exec runs line and reports whether the shell should exit
func (s *shell) exec(line string) bool {
	args, err := splitArgs(line)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return false
	}
	if len(args) == 0 {
		return false
	}

	switch strings.ToLower(args[0]) {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(s.out, "idn | get <control> | put <control> [value] | raw <hex> | controls | quit")
	case "controls":
		aliases := make([]string, 0, len(controlAliases))
		for alias := range controlAliases {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
		for _, alias := range aliases {
			fmt.Fprintf(s.out, "  %-10s %s\n", alias, controlAliases[alias])
		}
	default:
		if err := s.call(args); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return false
}

func (s *shell) call(args []string) error {
	switch strings.ToLower(args[0]) {
	case "idn":
		if len(args) != 1 {
			return errors.New("usage: idn")
		}
		if err := s.client.Handshake(); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "handshake sent")

	case "get":
		if len(args) != 2 {
			return errors.New("usage: get <control>")
		}
		control := resolveControl(args[1])
		value, err := s.client.Get(control)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s = %s\n", control, lvremote.FormatReply(value))

	case "put":
		if len(args) < 2 || len(args) > 3 {
			return errors.New("usage: put <control> [value]")
		}
		text := "1"
		if len(args) == 3 {
			text = args[2]
		}
		value, err := encodePutValue(text, 4)
		if err != nil {
			return err
		}
		control := resolveControl(args[1])
		if err := s.client.Put(control, value); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s <- %s\n", control, lvremote.FormatValue(value))

	case "raw":
		if len(args) < 2 {
			return errors.New("usage: raw <hex>")
		}
		buf, err := hex.DecodeString(strings.Join(args[1:], ""))
		if err != nil {
			return fmt.Errorf("bad hex: %w", err)
		}
		fmt.Fprint(s.out, lvremote.FormatBuffer(buf, s.client.Path()))
		values, err := s.client.Exchange(buf, lvremote.ExpectedReplies(buf, s.client.Path()))
		for i, v := range values {
			fmt.Fprintf(s.out, "  reply #%d: %s\n", i, lvremote.FormatReply(v))
		}
		return err

	default:
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}
	return nil
}

// splitArgs splits a line on whitespace, keeping double-quoted runs together
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case (r == ' ' || r == '\t') && !quoted:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}

func runShell(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	line := liner.NewLiner()
	defer func() {
		if err := closeAll(line, conn); err != nil {
			logger.WithError(err).Warn("shell cleanup failed")
		}
	}()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) (c []string) {
		for _, name := range shellCommands {
			if strings.HasPrefix(name, strings.ToLower(input)) {
				c = append(c, name)
			}
		}
		return
	})

	if shellHistory != "" {
		if f, err := os.Open(shellHistory); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	sh := &shell{client: newClient(conn), out: os.Stdout}
	fmt.Printf("Litronsim shell - %s\n", connInfo)
	fmt.Println("Type \"help\" for commands, Ctrl-D to quit.")

	for {
		input, err := line.Prompt("lvremote> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println()
			break
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if sh.exec(input) {
			break
		}
	}

	if shellHistory != "" {
		if f, err := os.Create(shellHistory); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}
	return nil
}

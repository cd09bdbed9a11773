// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

var (
	decodeBinary  bool
	decodeReplies bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a captured LVREMOTE buffer",
	Long: `Decode a captured LVREMOTE buffer in human-readable format.

The capture is read from file, or stdin when no file or "-" is given. It is
hex text by default (whitespace and 0x prefixes are ignored); pass --binary
for raw bytes. Request buffers are listed call by call against --vi-path;
pass --replies to decode a reply stream instead.

Examples:
  litronsim decode capture.hex
  echo 0000003b4c564745542043... | litronsim decode
  litronsim decode --binary --replies replies.bin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeBinary, "binary", false, "Input is raw bytes, not hex text")
	decodeCmd.Flags().BoolVar(&decodeReplies, "replies", false, "Input is a reply stream")
}

func runDecode(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read capture: %w", err)
	}
	buf := data
	if !decodeBinary {
		if buf, err = parseHexCapture(string(data)); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if decodeReplies {
		return printReplies(out, buf)
	}
	fmt.Fprintf(out, "%d bytes\n", len(buf))
	fmt.Fprint(out, lvremote.FormatBuffer(buf, clientPath()))
	return nil
}

// parseHexCapture decodes hex text, ignoring whitespace and 0x prefixes
func parseHexCapture(text string) ([]byte, error) {
	var sb strings.Builder
	for _, field := range strings.Fields(text) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		sb.WriteString(field)
	}
	buf, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("bad hex capture: %w", err)
	}
	return buf, nil
}

func printReplies(w io.Writer, buf []byte) error {
	values, err := lvremote.DecodeReplies(buf)
	for i, v := range values {
		fmt.Fprintf(w, "  reply #%d len=%d %s\n", i, len(v), lvremote.FormatReply(v))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d replies\n", len(values))
	return nil
}

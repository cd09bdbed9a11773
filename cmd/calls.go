// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/litronsim/pkg/litron"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

var (
	callHandshake bool
	putWidth      int
)

// controlAliases are short names accepted wherever a control is named
var controlAliases = map[string]string{
	"up":         litron.NameNudgeUp,
	"down":       litron.NameNudgeDown,
	"distance":   litron.NameDistance,
	"nudge-dist": litron.NameNudgeDistance,
	"crystal":    litron.NameCrystalPosition,
	"wavelength": litron.NameWavelength,
}

// resolveControl maps an alias to its front panel label. Anything else is
// passed through so unknown controls can be exercised too.
func resolveControl(name string) string {
	if label, ok := controlAliases[strings.ToLower(name)]; ok {
		return label
	}
	return name
}

// encodePutValue parses an unsigned integer into width big-endian bytes
func encodePutValue(text string, width int) ([]byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(text), 0, 64)
	if err != nil {
		return nil, fmt.Errorf("value %q: %w", text, err)
	}
	switch width {
	case 4:
		if v > 0xFFFFFFFF {
			return nil, fmt.Errorf("value %d does not fit in 4 bytes", v)
		}
		return lvremote.EncodeUint32(uint32(v)), nil
	case 8:
		return lvremote.EncodeUint64(v), nil
	default:
		return nil, fmt.Errorf("width must be 4 or 8, got %d", width)
	}
}

var idnCmd = &cobra.Command{
	Use:   "idn",
	Short: "Send the *IDN? handshake",
	Long: `Send the LVREMOTE identification handshake.

The handshake arms a connected instrument so it answers calls. It has no
reply; use probe to check that the instrument is answering.`,
	Args: cobra.NoArgs,
	RunE: runIdn,
}

var getCmd = &cobra.Command{
	Use:   "get <control>",
	Short: "Read a front panel control (LVGET)",
	Long: `Read a front panel control with LVGET.

Controls are named by their front panel label, quoted, or by alias:
  crystal     OPO Crystal Position
  nudge-dist  OPO Nudge Distance
  wavelength  Wavelength
  up, down    OPO Nudge Up / Down (read as 0)
  distance    Distance (reads as 0)

An instrument that has not seen a handshake stays silent; pass --handshake
to send one first.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var putCmd = &cobra.Command{
	Use:   "put <control> [value]",
	Short: "Write a front panel control (LVPUT)",
	Long: `Write a front panel control with LVPUT.

The value is an unsigned integer sent as --width big-endian bytes. Buttons
(up, down) ignore the value, which defaults to 1. Puts have no reply.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPut,
}

func init() {
	rootCmd.AddCommand(idnCmd, getCmd, putCmd)
	for _, c := range []*cobra.Command{getCmd, putCmd} {
		c.Flags().BoolVar(&callHandshake, "handshake", false, "Send the *IDN? handshake first")
	}
	putCmd.Flags().IntVar(&putWidth, "width", 4, "Value width in bytes (4 or 8)")
}

func runIdn(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := newClient(conn).Handshake(); err != nil {
		return err
	}
	fmt.Printf("Handshake sent (%s)\n", connInfo)
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	control := resolveControl(args[0])

	conn, _, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	client := newClient(conn)
	if callHandshake {
		if err := client.Handshake(); err != nil {
			return err
		}
	}

	value, err := client.Get(control)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", control, lvremote.FormatReply(value))
	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	control := resolveControl(args[0])
	text := "1"
	if len(args) > 1 {
		text = args[1]
	}
	value, err := encodePutValue(text, putWidth)
	if err != nil {
		return err
	}

	conn, _, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	client := newClient(conn)
	if callHandshake {
		if err := client.Handshake(); err != nil {
			return err
		}
	}

	if err := client.Put(control, value); err != nil {
		return err
	}
	fmt.Printf("%s <- %s\n", control, lvremote.FormatValue(value))
	return nil
}

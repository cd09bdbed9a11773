// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lvremote

import (
	"fmt"
	"strings"
)

// FormatCall formats a call into a single human-readable line
func FormatCall(c Call) string {
	switch c.Verb {
	case VerbPut:
		return fmt.Sprintf("%s %q = %s", c.Verb, c.Control, FormatValue(c.Value))
	default:
		return fmt.Sprintf("%s %q", c.Verb, c.Control)
	}
}

// FormatValue renders raw value bytes as hex, with the unsigned reading
// appended when the value is a plausible integer.
func FormatValue(v []byte) string {
	if len(v) == 0 {
		return "(empty)"
	}
	s := hexBytes(v)
	if n, err := DecodeUnsigned(v); err == nil {
		s += fmt.Sprintf(" (%d)", n)
	}
	return s
}

// FormatReply renders a reply value by its width: four bytes read as an
// unsigned integer, eight as a double.
func FormatReply(v []byte) string {
	switch len(v) {
	case Uint32Size:
		n, _ := ReplyUint32(v)
		return fmt.Sprintf("%d", n)
	case Float64Size:
		f, _ := ReplyFloat64(v)
		return fmt.Sprintf("%g", f)
	default:
		return hexBytes(v)
	}
}

// FormatBuffer decodes every frame in buf against path and renders one line
// per frame. Frames that fail to parse are shown as hex with their error;
// a malformed tail stops the listing.
func FormatBuffer(buf []byte, path string) string {
	if len(buf) == 0 {
		return "(empty buffer)\n"
	}
	if string(buf) == Handshake {
		return "HANDSHAKE\n"
	}

	var (
		sb strings.Builder
		r  = NewFrameReader(buf)
		i  = 0
	)
	for r.More() {
		off := r.Offset()
		payload, err := r.Next()
		if err != nil {
			fmt.Fprintf(&sb, "  @%04d ERROR %v\n", off, err)
			fmt.Fprintf(&sb, "        %s\n", hexBytes(r.Remaining()))
			break
		}
		c, err := ParseCall(payload, path)
		if err != nil {
			fmt.Fprintf(&sb, "  #%d @%04d len=%d ERROR %v\n", i, off, len(payload), err)
		} else {
			fmt.Fprintf(&sb, "  #%d @%04d len=%d %s\n", i, off, len(payload), FormatCall(c))
		}
		i++
	}
	return sb.String()
}

// hexBytes formats bytes as a space separated hex dump, wrapping every 16
func hexBytes(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			if i%16 == 0 {
				sb.WriteString("\n        ")
			} else {
				sb.WriteByte(' ')
			}
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

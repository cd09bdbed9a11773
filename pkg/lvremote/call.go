// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lvremote

import (
	"bytes"
	"fmt"
)

// Call is one decoded remote call. Value is only set for puts and aliases
// the frame it was parsed from.
type Call struct {
	Verb    Verb
	Path    string
	Control string
	Value   []byte
}

// ParseCall decodes a call payload addressed to the front panel at path.
//
// The path is matched as a whole string rather than split on separators,
// so it may itself contain commas. A get carries everything after the path
// as its control name. A put splits the control name at the next separator
// and keeps the remaining bytes, separators included, as the raw value.
func ParseCall(payload []byte, path string) (Call, error) {
	var (
		c    Call
		rest []byte
	)
	switch {
	case bytes.HasPrefix(payload, []byte(GetPrefix)):
		c.Verb = VerbGet
		rest = payload[len(GetPrefix):]
	case bytes.HasPrefix(payload, []byte(PutPrefix)):
		c.Verb = VerbPut
		rest = payload[len(PutPrefix):]
	default:
		return Call{}, fmt.Errorf("%w: %q", ErrUnrecognizedCall, truncate(payload))
	}

	head := append([]byte(path), Separator)
	if !bytes.HasPrefix(rest, head) {
		return Call{}, fmt.Errorf("%w: %s does not address front panel %q",
			ErrUnrecognizedCall, c.Verb, path)
	}
	c.Path = path
	rest = rest[len(head):]

	switch c.Verb {
	case VerbGet:
		c.Control = string(rest)
	case VerbPut:
		i := bytes.IndexByte(rest, Separator)
		if i < 0 {
			return Call{}, fmt.Errorf("%w: %s %q has no value", ErrUnrecognizedCall, c.Verb, string(rest))
		}
		c.Control = string(rest[:i])
		c.Value = rest[i+1:]
	}

	if c.Control == "" {
		return Call{}, fmt.Errorf("%w: %s with empty control name", ErrUnrecognizedCall, c.Verb)
	}

	return c, nil
}

// Encode returns the call payload (without length prefix)
func (c Call) Encode() []byte {
	var buf bytes.Buffer
	switch c.Verb {
	case VerbPut:
		buf.WriteString(PutPrefix)
	default:
		buf.WriteString(GetPrefix)
	}
	buf.WriteString(c.Path)
	buf.WriteByte(Separator)
	buf.WriteString(c.Control)
	if c.Verb == VerbPut {
		buf.WriteByte(Separator)
		buf.Write(c.Value)
	}
	return buf.Bytes()
}

// NewGetCall creates a get call payload for control on the panel at path
func NewGetCall(path, control string) []byte {
	return Call{Verb: VerbGet, Path: path, Control: control}.Encode()
}

// NewPutCall creates a put call payload writing value to control.
// Use EncodeUint32 or EncodeUint64 to build numeric values.
func NewPutCall(path, control string, value []byte) []byte {
	return Call{Verb: VerbPut, Path: path, Control: control, Value: value}.Encode()
}

// truncate limits how much of an unknown payload ends up in an error
func truncate(p []byte) []byte {
	const max = 32
	if len(p) > max {
		return p[:max]
	}
	return p
}

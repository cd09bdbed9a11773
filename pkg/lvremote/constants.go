// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lvremote implements the LVREMOTE wire protocol used to drive the
// front panel controls of a LabVIEW virtual instrument over a byte stream.
//
// A client announces itself with the handshake sentinel, then sends one or
// more length-prefixed calls per write. Each call is either a get
// ("LVGET <path>,<control>") or a put ("LVPUT <path>,<control>,<value>").
// Get calls are answered with a length-prefixed value; puts and the
// handshake produce no reply bytes. All integers are big-endian.
package lvremote

// Handshake is the sentinel a client sends, as a complete buffer, to arm
// the instrument before any call.
const Handshake = "*IDN? "

// Call prefixes
const (
	GetPrefix = "LVGET "
	PutPrefix = "LVPUT "
	Separator = ','
)

// Framing sizes
const (
	LengthSize   = 4 // big-endian uint32 length prefix
	Uint32Size   = 4
	Float64Size  = 8
	MaxValueSize = 8 // widest put value (LabVIEW flattened U64/DBL)
)

// DefaultVIPath is the front panel the laser bridge exposes.
const DefaultVIPath = `C:\instrument\dev\ibex_vis\HIFI Laser - FrontPanel.vi`

// Verb identifies the kind of call.
type Verb int

// Verb values
const (
	VerbUnknown Verb = iota
	VerbGet
	VerbPut
)

// String returns the wire keyword for the verb.
func (v Verb) String() string {
	switch v {
	case VerbGet:
		return "LVGET"
	case VerbPut:
		return "LVPUT"
	default:
		return "UNKNOWN"
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package litron

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Introspection field names
const (
	FieldConnected         = "connected"
	FieldHardwareConnected = "hardware_connected"
	FieldInitialized       = "initialized"
	FieldCrystalPos        = "crystal_pos"
	FieldNudgeDist         = "nudge_dist"
	FieldWavelength        = "wavelength"
	FieldWavelengthReading = "wavelength_reading"
)

// Introspection errors
var (
	ErrUnknownField  = errors.New("litron: unknown field")
	ErrReadOnlyField = errors.New("litron: read-only field")
	ErrFieldType     = errors.New("litron: wrong value type for field")

	// ErrHandshakeOnly is returned when something other than a handshake
	// tries to arm the device.
	ErrHandshakeOnly = errors.New("litron: initialized can only be set by a handshake")
)

// Backdoor is the narrow test and introspection channel into the
// instrument. It never arms the device: only a handshake can.
type Backdoor interface {
	Fields() []string
	Get(name string) (interface{}, error)
	Set(name string, value interface{}) error
	Snapshot() Snapshot
}

var _ Backdoor = (*Device)(nil)

// Snapshot is a consistent copy of every field
type Snapshot struct {
	Connected         bool    `cbor:"connected" json:"connected"`
	HardwareConnected bool    `cbor:"hardware_connected" json:"hardware_connected"`
	Initialized       bool    `cbor:"initialized" json:"initialized"`
	CrystalPos        int64   `cbor:"crystal_pos" json:"crystal_pos"`
	NudgeDist         int64   `cbor:"nudge_dist" json:"nudge_dist"`
	Wavelength        int64   `cbor:"wavelength" json:"wavelength"`
	WavelengthReading float64 `cbor:"wavelength_reading" json:"wavelength_reading"`
}

// Armed reports whether the device would answer calls
func (s Snapshot) Armed() bool {
	return s.Connected && s.Initialized
}

// Value returns the named field from the snapshot
func (s Snapshot) Value(name string) (interface{}, error) {
	switch name {
	case FieldConnected:
		return s.Connected, nil
	case FieldHardwareConnected:
		return s.HardwareConnected, nil
	case FieldInitialized:
		return s.Initialized, nil
	case FieldCrystalPos:
		return s.CrystalPos, nil
	case FieldNudgeDist:
		return s.NudgeDist, nil
	case FieldWavelength:
		return s.Wavelength, nil
	case FieldWavelengthReading:
		return s.WavelengthReading, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

// Fields lists every introspection field in display order
func (d *Device) Fields() []string {
	return FieldNames()
}

// FieldNames lists every introspection field in display order
func FieldNames() []string {
	return []string{
		FieldConnected,
		FieldHardwareConnected,
		FieldInitialized,
		FieldCrystalPos,
		FieldNudgeDist,
		FieldWavelength,
		FieldWavelengthReading,
	}
}

// Snapshot copies every field under one lock. The wavelength reading
// draws a fresh noise sample.
func (d *Device) Snapshot() (s Snapshot) {
	d.Transact(func(p *Panel) {
		s = Snapshot{
			Connected:         p.Connected(),
			HardwareConnected: p.HardwareConnected(),
			Initialized:       p.Initialized(),
			CrystalPos:        p.CrystalPos(),
			NudgeDist:         p.NudgeDist(),
			Wavelength:        p.Wavelength(),
			WavelengthReading: p.ReadWavelength(),
		}
	})
	return s
}

// Get returns the named field
func (d *Device) Get(name string) (interface{}, error) {
	if name == FieldWavelengthReading {
		return d.ReadWavelength(), nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch name {
	case FieldConnected:
		return d.connected, nil
	case FieldHardwareConnected:
		return d.hardwareConnected, nil
	case FieldInitialized:
		return d.initialized, nil
	case FieldCrystalPos:
		return d.crystalPos, nil
	case FieldNudgeDist:
		return d.nudgeDist, nil
	case FieldWavelength:
		return d.wavelength, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

// Set writes the named field. Dropping the link also drops the
// initialization, so the client must handshake again once it returns.
// Initialized may only be cleared.
func (d *Device) Set(name string, value interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch name {
	case FieldConnected, FieldHardwareConnected, FieldInitialized:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s wants a bool, got %T", ErrFieldType, name, value)
		}
		switch name {
		case FieldConnected:
			d.connected = v
			if !v {
				d.initialized = false
			}
		case FieldHardwareConnected:
			d.hardwareConnected = v
		case FieldInitialized:
			if v {
				return ErrHandshakeOnly
			}
			d.initialized = false
		}
		return nil

	case FieldCrystalPos, FieldNudgeDist, FieldWavelength:
		v, err := toInt64(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrFieldType, name, err)
		}
		switch name {
		case FieldCrystalPos:
			d.crystalPos = v
		case FieldNudgeDist:
			d.nudgeDist = v
		case FieldWavelength:
			d.wavelength = v
		}
		return nil

	case FieldWavelengthReading:
		return fmt.Errorf("%w: %q", ErrReadOnlyField, name)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

// ParseFieldValue converts text typed by a user into the value type the
// named field expects.
func ParseFieldValue(name, text string) (interface{}, error) {
	text = strings.TrimSpace(text)
	switch name {
	case FieldConnected, FieldHardwareConnected, FieldInitialized:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %s wants a bool: %v", ErrFieldType, name, err)
		}
		return v, nil
	case FieldCrystalPos, FieldNudgeDist, FieldWavelength:
		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s wants an integer: %v", ErrFieldType, name, err)
		}
		return v, nil
	case FieldWavelengthReading:
		return nil, fmt.Errorf("%w: %q", ErrReadOnlyField, name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

// toInt64 accepts the integer shapes a decoded CBOR or JSON value can take
func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("got %T", value)
	}
}

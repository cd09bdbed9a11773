// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package litron

// Front panel control names, as labelled on the bridge VI
const (
	NameNudgeUp         = "OPO Nudge Up"
	NameNudgeDown       = "OPO Nudge Down"
	NameDistance        = "Distance"
	NameNudgeDistance   = "OPO Nudge Distance"
	NameCrystalPosition = "OPO Crystal Position"
	NameWavelength      = "Wavelength"
)

// Control is the closed set of front panel controls the emulator routes.
type Control int

// Control values
const (
	ControlUnknown Control = iota
	ControlNudgeUp
	ControlNudgeDown
	ControlDistance
	ControlNudgeDistance
	ControlCrystalPosition
	ControlWavelength
)

// Controls lists every routed control
var Controls = []Control{
	ControlNudgeUp,
	ControlNudgeDown,
	ControlDistance,
	ControlNudgeDistance,
	ControlCrystalPosition,
	ControlWavelength,
}

// LookupControl maps a control name from the wire to its Control.
// Names are case sensitive, as LabVIEW labels are.
func LookupControl(name string) Control {
	switch name {
	case NameNudgeUp:
		return ControlNudgeUp
	case NameNudgeDown:
		return ControlNudgeDown
	case NameDistance:
		return ControlDistance
	case NameNudgeDistance:
		return ControlNudgeDistance
	case NameCrystalPosition:
		return ControlCrystalPosition
	case NameWavelength:
		return ControlWavelength
	default:
		return ControlUnknown
	}
}

// String returns the front panel label
func (c Control) String() string {
	switch c {
	case ControlNudgeUp:
		return NameNudgeUp
	case ControlNudgeDown:
		return NameNudgeDown
	case ControlDistance:
		return NameDistance
	case ControlNudgeDistance:
		return NameNudgeDistance
	case ControlCrystalPosition:
		return NameCrystalPosition
	case ControlWavelength:
		return NameWavelength
	default:
		return "UNKNOWN"
	}
}

// Readable reports whether a get on the control is routed
func (c Control) Readable() bool {
	return c != ControlUnknown
}

// Writable reports whether a put on the control is routed
func (c Control) Writable() bool {
	switch c {
	case ControlNudgeUp, ControlNudgeDown, ControlNudgeDistance:
		return true
	}
	return false
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package litron emulates a Litron laser's optical parametric oscillator
// crystal positioner and wavelength meter, as seen through its LabVIEW
// LVREMOTE bridge.
//
// The Device holds the instrument state; the Emulator frames and dispatches
// LVREMOTE buffers against it. State outside the call path (link loss,
// sensor coupling, direct position edits) is reached only through the
// Backdoor interface.
package litron

import (
	"math/rand"
	"sync"
	"time"
)

// Default instrument state at power-up
const (
	DefaultCrystalPos = 5000
	DefaultNudgeDist  = 0
	DefaultWavelength = 0
	DefaultJitter     = 0.05
)

// Device is the mutable instrument model. All methods are safe for
// concurrent use; Transact groups several operations under one lock.
type Device struct {
	mu sync.Mutex

	connected         bool
	hardwareConnected bool
	initialized       bool

	crystalPos int64
	nudgeDist  int64
	wavelength int64

	jitter float64
	rng    *rand.Rand
}

// Option configures a Device at construction
type Option func(*Device)

// WithRand sets the random source used for wavelength jitter
func WithRand(rng *rand.Rand) Option {
	return func(d *Device) { d.rng = rng }
}

// WithJitter sets the half-width of the uniform wavelength noise
func WithJitter(amplitude float64) Option {
	return func(d *Device) { d.jitter = amplitude }
}

// WithConnected sets the initial link state
func WithConnected(connected bool) Option {
	return func(d *Device) { d.connected = connected }
}

// WithHardwareConnected sets whether the wavelength sensor starts coupled
func WithHardwareConnected(hw bool) Option {
	return func(d *Device) { d.hardwareConnected = hw }
}

// WithCrystalPos sets the initial positioner reading
func WithCrystalPos(pos int64) Option {
	return func(d *Device) { d.crystalPos = pos }
}

// WithNudgeDist sets the initial nudge step
func WithNudgeDist(dist int64) Option {
	return func(d *Device) { d.nudgeDist = dist }
}

// WithWavelength sets the initial wavelength reading
func WithWavelength(wl int64) Option {
	return func(d *Device) { d.wavelength = wl }
}

// NewDevice creates a connected, not yet initialized instrument
func NewDevice(opts ...Option) *Device {
	d := &Device{
		connected:  true,
		crystalPos: DefaultCrystalPos,
		nudgeDist:  DefaultNudgeDist,
		wavelength: DefaultWavelength,
		jitter:     DefaultJitter,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return d
}

// Transact runs fn with exclusive access to the device. The Panel must not
// be retained after fn returns.
func (d *Device) Transact(fn func(p *Panel)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&Panel{d: d})
}

// NudgeUp moves the crystal up by the nudge distance
func (d *Device) NudgeUp() {
	d.Transact(func(p *Panel) { p.NudgeUp() })
}

// NudgeDown moves the crystal down by the nudge distance
func (d *Device) NudgeDown() {
	d.Transact(func(p *Panel) { p.NudgeDown() })
}

// ReadWavelength returns the wavelength as the sensor reports it
func (d *Device) ReadWavelength() (wl float64) {
	d.Transact(func(p *Panel) { wl = p.ReadWavelength() })
	return wl
}

// Connected reports whether the link is up
func (d *Device) Connected() (ok bool) {
	d.Transact(func(p *Panel) { ok = p.Connected() })
	return ok
}

// Initialized reports whether a handshake armed the device since the
// last link loss
func (d *Device) Initialized() (ok bool) {
	d.Transact(func(p *Panel) { ok = p.Initialized() })
	return ok
}

// CrystalPos returns the positioner reading
func (d *Device) CrystalPos() (pos int64) {
	d.Transact(func(p *Panel) { pos = p.CrystalPos() })
	return pos
}

// NudgeDist returns the nudge step
func (d *Device) NudgeDist() (dist int64) {
	d.Transact(func(p *Panel) { dist = p.NudgeDist() })
	return dist
}

// Wavelength returns the raw wavelength reading, without jitter
func (d *Device) Wavelength() (wl int64) {
	d.Transact(func(p *Panel) { wl = p.Wavelength() })
	return wl
}

// Panel is the unlocked view of a Device inside Transact.
type Panel struct {
	d *Device
}

func (p *Panel) Connected() bool         { return p.d.connected }
func (p *Panel) HardwareConnected() bool { return p.d.hardwareConnected }
func (p *Panel) Initialized() bool       { return p.d.initialized }
func (p *Panel) CrystalPos() int64       { return p.d.crystalPos }
func (p *Panel) NudgeDist() int64        { return p.d.nudgeDist }
func (p *Panel) Wavelength() int64       { return p.d.wavelength }

// Announce records a handshake. It arms the device only while the link is
// up and reports whether the device is armed afterwards.
func (p *Panel) Announce() bool {
	if p.d.connected {
		p.d.initialized = true
	}
	return p.d.initialized
}

// NudgeUp adds the nudge distance to the crystal position. There are no
// travel limits.
func (p *Panel) NudgeUp() {
	p.d.crystalPos += p.d.nudgeDist
}

// NudgeDown subtracts the nudge distance from the crystal position
func (p *Panel) NudgeDown() {
	p.d.crystalPos -= p.d.nudgeDist
}

// SetNudgeDist sets the nudge step
func (p *Panel) SetNudgeDist(dist int64) {
	p.d.nudgeDist = dist
}

// ReadWavelength returns the wavelength plus uniform noise in
// [-jitter, +jitter] while the sensor hardware is coupled, and the exact
// wavelength otherwise.
func (p *Panel) ReadWavelength() float64 {
	wl := float64(p.d.wavelength)
	if !p.d.hardwareConnected {
		return wl
	}
	return wl + (p.d.rng.Float64()*2-1)*p.d.jitter
}

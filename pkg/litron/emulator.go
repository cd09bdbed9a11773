// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package litron

import (
	"fmt"
	"time"

	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

// BufferKind classifies how a buffer was handled
type BufferKind int

// Buffer kinds
const (
	BufferEmpty BufferKind = iota
	BufferHandshake
	BufferGated
	BufferFramed
	BufferMalformed
)

// String returns a short label, used for metrics and logs
func (k BufferKind) String() string {
	switch k {
	case BufferEmpty:
		return "empty"
	case BufferHandshake:
		return "handshake"
	case BufferGated:
		return "gated"
	case BufferFramed:
		return "framed"
	case BufferMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ErrorSink receives every decode or dispatch failure, once per offending
// call or buffer. request holds the bytes the failure applies to.
type ErrorSink interface {
	ReportError(request []byte, err error)
}

// ErrorSinkFunc adapts a function to ErrorSink
type ErrorSinkFunc func(request []byte, err error)

// ReportError calls f(request, err)
func (f ErrorSinkFunc) ReportError(request []byte, err error) { f(request, err) }

// Observer is notified of every buffer and call the emulator handles
type Observer interface {
	BufferHandled(kind BufferKind, in, out int, elapsed time.Duration)
	CallHandled(verb lvremote.Verb, control string, err error)
}

// Emulator is the LVREMOTE protocol engine for one Device
type Emulator struct {
	dev       *Device
	path      string
	sink      ErrorSink
	observers []Observer
}

// EmulatorOption configures an Emulator
type EmulatorOption func(*Emulator)

// WithVIPath sets the front panel path calls must address
func WithVIPath(path string) EmulatorOption {
	return func(e *Emulator) { e.path = path }
}

// WithErrorSink sets where decode and dispatch failures are reported
func WithErrorSink(sink ErrorSink) EmulatorOption {
	return func(e *Emulator) { e.sink = sink }
}

// WithObserver adds an observer
func WithObserver(o Observer) EmulatorOption {
	return func(e *Emulator) { e.observers = append(e.observers, o) }
}

// NewEmulator creates a protocol engine driving dev
func NewEmulator(dev *Device, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		dev:  dev,
		path: lvremote.DefaultVIPath,
		sink: ErrorSinkFunc(func([]byte, error) {}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Device returns the instrument the emulator drives
func (e *Emulator) Device() *Device {
	return e.dev
}

// VIPath returns the front panel path calls must address
func (e *Emulator) VIPath() string {
	return e.path
}

// Process handles one buffer, everything received since the last flush,
// and returns the reply bytes in call order.
//
// An empty buffer and the handshake reply with nothing. Any other buffer is
// dropped whole and silently unless the device is both connected and
// initialized. Otherwise every length-prefixed call in the buffer is
// dispatched. Unknown calls and controls are reported to the error sink and
// contribute nothing, while later calls still run. A malformed frame stops
// processing: the error is reported and returned together with the replies
// of the calls before it.
func (e *Emulator) Process(buf []byte) ([]byte, error) {
	start := time.Now()

	if len(buf) == 0 {
		e.bufferHandled(BufferEmpty, 0, 0, start)
		return nil, nil
	}

	if string(buf) == lvremote.Handshake {
		e.dev.Transact(func(p *Panel) { p.Announce() })
		e.bufferHandled(BufferHandshake, len(buf), 0, start)
		return nil, nil
	}

	var (
		reply []byte
		err   error
		kind  = BufferFramed
	)
	e.dev.Transact(func(p *Panel) {
		if !p.Connected() || !p.Initialized() {
			kind = BufferGated
			return
		}
		reply, err = e.processFrames(p, buf)
	})
	if err != nil {
		kind = BufferMalformed
	}

	e.bufferHandled(kind, len(buf), len(reply), start)
	return reply, err
}

// processFrames walks the frames of buf with a cursor, so a buffer packed
// with many calls costs no stack.
func (e *Emulator) processFrames(p *Panel, buf []byte) ([]byte, error) {
	var (
		reply []byte
		r     = lvremote.NewFrameReader(buf)
	)
	for r.More() {
		rest := r.Remaining()
		payload, err := r.Next()
		if err != nil {
			e.sink.ReportError(rest, err)
			return reply, err
		}

		value, err := e.call(p, payload)
		if err != nil {
			e.sink.ReportError(payload, err)
			continue
		}
		if value != nil {
			reply = lvremote.AppendReply(reply, value)
		}
	}
	return reply, nil
}

// call decodes and dispatches a single call payload
func (e *Emulator) call(p *Panel, payload []byte) ([]byte, error) {
	c, err := lvremote.ParseCall(payload, e.path)
	if err != nil {
		e.callHandled(lvremote.VerbUnknown, "", err)
		return nil, err
	}

	ctl := LookupControl(c.Control)
	var value []byte
	switch c.Verb {
	case lvremote.VerbGet:
		value, err = get(p, ctl)
	case lvremote.VerbPut:
		err = put(p, ctl, c.Value)
	}
	if err != nil {
		err = fmt.Errorf("%s %q: %w", c.Verb, c.Control, err)
	}
	e.callHandled(c.Verb, c.Control, err)
	return value, err
}

// get encodes the reply value for a readable control. The nudge buttons
// and Distance are write-only on the real panel and always read as 0.0.
func get(p *Panel, ctl Control) ([]byte, error) {
	switch ctl {
	case ControlNudgeUp, ControlNudgeDown, ControlDistance:
		return lvremote.EncodeFloat64(0), nil
	case ControlNudgeDistance:
		return lvremote.EncodeUint32(uint32(p.NudgeDist())), nil
	case ControlCrystalPosition:
		return lvremote.EncodeUint32(uint32(p.CrystalPos())), nil
	case ControlWavelength:
		return lvremote.EncodeUint32(uint32(p.Wavelength())), nil
	default:
		return nil, lvremote.ErrUnrecognizedParameter
	}
}

// put applies a write to a writable control. Button presses ignore the
// value.
func put(p *Panel, ctl Control, value []byte) error {
	switch ctl {
	case ControlNudgeUp:
		p.NudgeUp()
	case ControlNudgeDown:
		p.NudgeDown()
	case ControlNudgeDistance:
		v, err := lvremote.DecodeUnsigned(value)
		if err != nil {
			return err
		}
		p.SetNudgeDist(int64(v))
	default:
		return lvremote.ErrUnrecognizedParameter
	}
	return nil
}

func (e *Emulator) bufferHandled(kind BufferKind, in, out int, start time.Time) {
	elapsed := time.Since(start)
	for _, o := range e.observers {
		o.BufferHandled(kind, in, out, elapsed)
	}
}

func (e *Emulator) callHandled(verb lvremote.Verb, control string, err error) {
	for _, o := range e.observers {
		o.CallHandled(verb, control, err)
	}
}

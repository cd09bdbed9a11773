// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Thermoquad/litronsim/pkg/litron"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultOK},
		{lvremote.ErrUnrecognizedCall, ResultUnknownCall},
		{fmt.Errorf("LVGET %q: %w", "x", lvremote.ErrUnrecognizedParameter), ResultUnknownControl},
		{lvremote.ErrInvalidValue, ResultInvalidValue},
		{io.EOF, ResultError},
	}
	for _, tt := range tests {
		if got := Result(tt.err); got != tt.want {
			t.Errorf("Result(%v)=%q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMetrics_ObservesEmulator(t *testing.T) {
	m := New()
	dev := litron.NewDevice()
	em := litron.NewEmulator(dev, litron.WithObserver(m))
	path := lvremote.DefaultVIPath

	em.Process(lvremote.EncodeFrame(lvremote.NewGetCall(path, litron.NameWavelength))) // gated
	em.Process([]byte(lvremote.Handshake))
	em.Process(lvremote.EncodeFrames(
		lvremote.NewGetCall(path, litron.NameCrystalPosition),
		lvremote.NewGetCall(path, "Pump Energy"),
		lvremote.NewPutCall(path, litron.NameNudgeUp, []byte{1}),
	))

	if got := testutil.ToFloat64(m.Buffers.WithLabelValues("gated")); got != 1 {
		t.Errorf("gated=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Buffers.WithLabelValues("handshake")); got != 1 {
		t.Errorf("handshake=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Calls.WithLabelValues("LVGET", litron.NameCrystalPosition, ResultOK)); got != 1 {
		t.Errorf("crystal position gets=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Calls.WithLabelValues("LVGET", "unknown", ResultUnknownControl)); got != 1 {
		t.Errorf("unknown control gets=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Calls.WithLabelValues("LVPUT", litron.NameNudgeUp, ResultOK)); got != 1 {
		t.Errorf("nudge puts=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BytesOut); got != 8 {
		t.Errorf("bytes out=%v, want 8", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.WatchDevice(litron.NewDevice(litron.WithCrystalPos(4321)))
	m.ConnectionOpened("tcp")
	m.ConnectionRejected()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"litronsim_device_crystal_position 4321",
		"litronsim_device_connected 1",
		`litronsim_active_connections{transport="tcp"} 1`,
		"litronsim_connections_rejected_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

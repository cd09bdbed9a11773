// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backdoor

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/litronsim/pkg/litron"
)

// ============================================================
// Test Helpers
// ============================================================

func newTestServer(t *testing.T, dev *litron.Device, opts ...Option) string {
	t.Helper()
	ts := httptest.NewServer(NewServer(dev, opts...))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialTest(t *testing.T, url, user, pass string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, user, pass, false)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================
// Message Tests
// ============================================================

func TestMessage_RoundTrip(t *testing.T) {
	data, err := EncodeMessage(OpGet, map[int]interface{}{KeyField: litron.FieldCrystalPos})
	if err != nil {
		t.Fatal(err)
	}
	op, payload, err := ParseMessage(data)
	if err != nil {
		t.Fatal(err)
	}
	if op != OpGet {
		t.Errorf("op=0x%02X, want 0x%02X", op, OpGet)
	}
	if name, _ := GetMapString(payload, KeyField); name != litron.FieldCrystalPos {
		t.Errorf("field=%q", name)
	}

	data, _ = EncodeMessage(OpList, nil)
	if op, payload, err := ParseMessage(data); err != nil || op != OpList || payload != nil {
		t.Errorf("empty payload: op=%d payload=%v err=%v", op, payload, err)
	}
}

func TestMessage_Malformed(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{0xFF},
		{0x81, 0x01},            // [1]
		{0x82, 0x61, 'a', 0xF6}, // ["a", null]
		{0x82, 0x01, 0x01},      // [1, 1]
	} {
		if _, _, err := ParseMessage(data); !errors.Is(err, ErrBadMessage) {
			t.Errorf("ParseMessage(% X): err=%v, want ErrBadMessage", data, err)
		}
	}
}

func TestOpName(t *testing.T) {
	if got := OpName(OpWatch | ReplyFlag); got != "WATCH_REPLY" {
		t.Errorf("got %q", got)
	}
	if got := OpName(0x33); got != "OP_0x33" {
		t.Errorf("got %q", got)
	}
}

// ============================================================
// Session Tests
// ============================================================

func TestClient_GetSet(t *testing.T) {
	dev := litron.NewDevice(litron.WithCrystalPos(1000))
	c := dialTest(t, newTestServer(t, dev), "", "")
	ctx := testContext(t)

	v, err := c.Get(ctx, litron.FieldCrystalPos)
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(1000) {
		t.Errorf("crystal_pos=%v (%T), want 1000", v, v)
	}

	tests := []struct {
		field string
		value interface{}
	}{
		{litron.FieldCrystalPos, int64(1234)},
		{litron.FieldCrystalPos, int64(-7)},
		{litron.FieldNudgeDist, int64(100)},
		{litron.FieldHardwareConnected, true},
	}
	for _, tt := range tests {
		if err := c.Set(ctx, tt.field, tt.value); err != nil {
			t.Fatalf("Set(%s): %v", tt.field, err)
		}
		got, err := c.Get(ctx, tt.field)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.value {
			t.Errorf("%s=%v, want %v", tt.field, got, tt.value)
		}
		if local, _ := dev.Get(tt.field); local != tt.value {
			t.Errorf("device %s=%v, want %v", tt.field, local, tt.value)
		}
	}
}

func TestClient_RemoteErrors(t *testing.T) {
	dev := litron.NewDevice()
	c := dialTest(t, newTestServer(t, dev), "", "")
	ctx := testContext(t)

	tests := []struct {
		name  string
		call  func() error
		field string
	}{
		{"arm", func() error { return c.Set(ctx, litron.FieldInitialized, true) }, litron.FieldInitialized},
		{"read-only", func() error { return c.Set(ctx, litron.FieldWavelengthReading, 1.5) }, litron.FieldWavelengthReading},
		{"unknown get", func() error { _, err := c.Get(ctx, "pump"); return err }, "pump"},
		{"wrong type", func() error { return c.Set(ctx, litron.FieldConnected, "yes") }, litron.FieldConnected},
	}
	for _, tt := range tests {
		err := tt.call()
		var remote *RemoteError
		if !errors.As(err, &remote) {
			t.Errorf("%s: got %v, want RemoteError", tt.name, err)
			continue
		}
		if remote.Field != tt.field {
			t.Errorf("%s: field=%q, want %q", tt.name, remote.Field, tt.field)
		}
	}
	if dev.Initialized() {
		t.Error("backdoor armed the device")
	}
}

func TestClient_ListAndSnapshot(t *testing.T) {
	dev := litron.NewDevice(litron.WithWavelength(532))
	c := dialTest(t, newTestServer(t, dev), "", "")
	ctx := testContext(t)

	fields, err := c.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(fields, ",") != strings.Join(dev.Fields(), ",") {
		t.Errorf("fields=%v, want %v", fields, dev.Fields())
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := dev.Snapshot(); snap != want {
		t.Errorf("snapshot=%+v, want %+v", snap, want)
	}
}

func TestClient_Watch(t *testing.T) {
	dev := litron.NewDevice(litron.WithCrystalPos(1), litron.WithNudgeDist(1))
	c := dialTest(t, newTestServer(t, dev), "", "")
	ctx := testContext(t)

	var seen []int64
	errDone := errors.New("done")
	err := c.Watch(ctx, MinWatchInterval, func(s litron.Snapshot) error {
		seen = append(seen, s.CrystalPos)
		if len(seen) == 3 {
			return errDone
		}
		dev.NudgeUp()
		return nil
	})
	if !errors.Is(err, errDone) {
		t.Fatalf("Watch: %v", err)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Errorf("snapshots went backwards: %v", seen)
		}
	}

	// requests still work while the stream runs
	if _, err := c.Get(ctx, litron.FieldCrystalPos); err != nil {
		t.Errorf("Get during watch: %v", err)
	}
}

func TestServer_BasicAuth(t *testing.T) {
	dev := litron.NewDevice()
	url := newTestServer(t, dev, WithBasicAuth("admin", "secret"))

	ctx := testContext(t)
	if _, err := Dial(ctx, url, "", "", false); err == nil {
		t.Error("dial without credentials succeeded")
	}
	if _, err := Dial(ctx, url, "admin", "wrong", false); err == nil {
		t.Error("dial with wrong password succeeded")
	}

	c := dialTest(t, url, "admin", "secret")
	if _, err := c.List(ctx); err != nil {
		t.Errorf("List: %v", err)
	}
}

func TestDial_BadScheme(t *testing.T) {
	if _, err := Dial(context.Background(), "http://localhost:1", "", "", false); err == nil {
		t.Error("http scheme accepted")
	}
}

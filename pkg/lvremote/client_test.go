// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lvremote_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Thermoquad/litronsim/pkg/litron"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

// serve answers every write on the pipe with the emulator's reply
func serve(t *testing.T, em *litron.Emulator) net.Conn {
	t.Helper()
	client, srv := net.Pipe()
	go func() {
		defer srv.Close()
		buf := make([]byte, 4096)
		for {
			n, err := srv.Read(buf)
			if err != nil {
				return
			}
			reply, _ := em.Process(buf[:n])
			if len(reply) > 0 {
				if _, err := srv.Write(reply); err != nil {
					return
				}
			}
		}
	}()
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_Session(t *testing.T) {
	dev := litron.NewDevice(litron.WithCrystalPos(1000))
	c := lvremote.NewClient(serve(t, litron.NewEmulator(dev)),
		lvremote.WithHandshakeSettle(0), lvremote.WithTimeout(time.Second))

	if err := c.Handshake(); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(litron.NameNudgeDistance, lvremote.EncodeUint32(100)); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(litron.NameNudgeUp, []byte{1}); err != nil {
		t.Fatal(err)
	}
	pos, err := c.GetUint32(litron.NameCrystalPosition)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 1100 {
		t.Errorf("crystal position=%d, want 1100", pos)
	}

	buf := lvremote.EncodeFrames(
		lvremote.NewGetCall(c.Path(), litron.NameNudgeDistance),
		lvremote.NewGetCall(c.Path(), litron.NameDistance),
	)
	values, err := c.Exchange(buf, lvremote.ExpectedReplies(buf, c.Path()))
	if err != nil || len(values) != 2 {
		t.Fatalf("got %d values, err=%v", len(values), err)
	}
	if v, _ := lvremote.ReplyUint32(values[0]); v != 100 {
		t.Errorf("nudge distance=%d, want 100", v)
	}
	if f, _ := lvremote.ReplyFloat64(values[1]); f != 0 {
		t.Errorf("distance=%v, want 0", f)
	}
}

func TestClient_SilentInstrumentTimesOut(t *testing.T) {
	dev := litron.NewDevice() // never handshaken
	c := lvremote.NewClient(serve(t, litron.NewEmulator(dev)),
		lvremote.WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Get(litron.NameWavelength)
	if !errors.Is(err, lvremote.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout took far too long")
	}
}

func TestExpectedReplies(t *testing.T) {
	path := lvremote.DefaultVIPath
	tests := []struct {
		name string
		buf  []byte
		want int
	}{
		{"handshake", []byte(lvremote.Handshake), 0},
		{"one get", lvremote.EncodeFrame(lvremote.NewGetCall(path, "Wavelength")), 1},
		{"get put get", lvremote.EncodeFrames(
			lvremote.NewGetCall(path, "a"),
			lvremote.NewPutCall(path, "b", []byte{1}),
			lvremote.NewGetCall(path, "c"),
		), 2},
		{"other panel", lvremote.EncodeFrame(lvremote.NewGetCall(`C:\x.vi`, "a")), 0},
		{"truncated", []byte{0, 0, 0, 9, 'L'}, 0},
	}
	for _, tt := range tests {
		if got := lvremote.ExpectedReplies(tt.buf, path); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

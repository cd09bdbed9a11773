// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/Thermoquad/litronsim/internal/metrics"
	"github.com/Thermoquad/litronsim/pkg/litron"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

// ============================================================
// Test Helpers
// ============================================================

func newTestHandler(t *testing.T, opts ...HandlerOption) (*Handler, *litron.Device, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	dev := litron.NewDevice(litron.WithCrystalPos(1000))
	em := litron.NewEmulator(dev, litron.WithErrorSink(NewLogSink(log)))
	opts = append([]HandlerOption{WithLogger(log)}, opts...)
	return NewHandler(em, opts...), dev, hook
}

func getFrame(control string) []byte {
	return lvremote.EncodeFrame(lvremote.NewGetCall(lvremote.DefaultVIPath, control))
}

// readReply reads one length-prefixed reply value
func readReply(t *testing.T, r io.Reader) []byte {
	t.Helper()
	if c, ok := r.(net.Conn); ok {
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
	}
	var head [lvremote.LengthSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		t.Fatalf("read reply length: %v", err)
	}
	value := make([]byte, binary.BigEndian.Uint32(head[:]))
	if _, err := io.ReadFull(r, value); err != nil {
		t.Fatalf("read reply value: %v", err)
	}
	return value
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ============================================================
// Handler Tests
// ============================================================

func TestHandler_Pipe(t *testing.T) {
	h, dev, _ := newTestHandler(t)
	client, srv := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- h.Serve(ctx, srv, "pipe", "test")
		srv.Close()
	}()

	// each Write on a pipe is consumed by one Read
	if _, err := client.Write([]byte(lvremote.Handshake)); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Write(getFrame(litron.NameCrystalPosition)); err != nil {
		t.Fatal(err)
	}
	v, err := lvremote.ReplyUint32(readReply(t, client))
	if err != nil || v != 1000 {
		t.Fatalf("crystal position=%d, %v; want 1000", v, err)
	}
	if !dev.Initialized() {
		t.Error("device not initialized")
	}

	client.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after hangup")
	}
}

func TestHandler_SilentWhenGated(t *testing.T) {
	h, _, hook := newTestHandler(t)
	client, srv := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		h.Serve(ctx, srv, "pipe", "test")
		srv.Close()
	}()

	// no handshake yet: the get is swallowed
	client.Write(getFrame(litron.NameCrystalPosition))
	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if n, err := client.Read(make([]byte, 16)); n != 0 || err == nil {
		t.Fatalf("gated device replied %d bytes (err=%v)", n, err)
	}
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			t.Errorf("gated buffer logged an error: %s", e.Message)
		}
	}
}

func TestHandler_ShutdownStopsServe(t *testing.T) {
	h, _, _ := newTestHandler(t)
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, srv, "pipe", "test") }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve ignored shutdown")
	}
}

func TestHandler_IdleTimeout(t *testing.T) {
	h, _, _ := newTestHandler(t, WithReadTimeout(time.Millisecond))
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	done := make(chan error, 1)
	go func() { done <- h.Serve(context.Background(), srv, "pipe", "test") }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("idle connection was not closed")
	}
}

// failingRW fails reads or writes on demand
type failingRW struct {
	r   io.Reader
	err error
}

func (f *failingRW) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, errors.New("line noise")
	}
	return n, err
}

func (f *failingRW) Write(p []byte) (int, error) {
	return 0, f.err
}

func TestHandler_IOErrors(t *testing.T) {
	h, dev, _ := newTestHandler(t)
	dev.Transact(func(p *litron.Panel) { p.Announce() })

	writeErr := errors.New("cable pulled")
	rw := &failingRW{r: bytes.NewReader(getFrame(litron.NameWavelength)), err: writeErr}
	if err := h.Serve(context.Background(), rw, "fake", "x"); !errors.Is(err, writeErr) {
		t.Errorf("got %v, want write error", err)
	}

	rw = &failingRW{r: bytes.NewReader(nil)}
	err := h.Serve(context.Background(), rw, "fake", "x")
	if err == nil || !strings.Contains(err.Error(), "line noise") {
		t.Errorf("got %v, want read error", err)
	}
}

func TestLogSink(t *testing.T) {
	h, _, hook := newTestHandler(t)
	em := h.Emulator()
	em.Device().Transact(func(p *litron.Panel) { p.Announce() })

	em.Process(getFrame("Pump Energy"))

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level != logrus.ErrorLevel {
			continue
		}
		found = true
		if !strings.Contains(e.Data["request"].(string), "Pump Energy") {
			t.Errorf("request field=%v", e.Data["request"])
		}
		if !strings.Contains(e.Data["error"].(string), "unrecognized parameter") {
			t.Errorf("error field=%v", e.Data["error"])
		}
	}
	if !found {
		t.Error("no error logged")
	}
}

// ============================================================
// TCP Tests
// ============================================================

func startTCP(t *testing.T, h *Handler, opts ...TCPOption) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	srv := NewTCPServer(h, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := srv.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(cancel)
	return ln.Addr().String(), cancel, done
}

func TestTCPServer_Session(t *testing.T) {
	m := metrics.New()
	h, dev, _ := newTestHandler(t, WithMetrics(m))
	addr, cancel, done := startTCP(t, h)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.Write([]byte(lvremote.Handshake))
	// stream sockets may merge writes, so the handshake must land alone
	waitFor(t, "handshake", dev.Initialized)

	conn.Write(lvremote.EncodeFrames(
		lvremote.NewGetCall(lvremote.DefaultVIPath, litron.NameCrystalPosition),
		lvremote.NewGetCall(lvremote.DefaultVIPath, litron.NameDistance),
	))
	if v, _ := lvremote.ReplyUint32(readReply(t, conn)); v != 1000 {
		t.Errorf("crystal position=%d, want 1000", v)
	}
	if f, _ := lvremote.ReplyFloat64(readReply(t, conn)); f != 0 {
		t.Errorf("distance=%v, want 0", f)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("connection still open after shutdown")
	}
}

func TestTCPServer_ConnectionLimit(t *testing.T) {
	m := metrics.New()
	h, dev, _ := newTestHandler(t, WithMetrics(m))
	addr, _, _ := startTCP(t, h, WithMaxConnections(1))

	first, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	first.Write([]byte(lvremote.Handshake))
	waitFor(t, "first connection", dev.Initialized)

	second, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := second.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("second connection: got %v, want EOF", err)
	}
}

func TestTCPServer_SharedDevice(t *testing.T) {
	h, dev, _ := newTestHandler(t)
	addr, _, _ := startTCP(t, h)
	dev.Transact(func(p *litron.Panel) {
		p.Announce()
		p.SetNudgeDist(1)
	})

	const clients, nudges = 4, 25
	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Error(err)
				return
			}
			defer conn.Close()
			frame := lvremote.EncodeFrame(lvremote.NewPutCall(lvremote.DefaultVIPath, litron.NameNudgeUp, []byte{1}))
			for i := 0; i < nudges; i++ {
				conn.Write(frame)
			}
		}()
	}
	wg.Wait()

	waitFor(t, "all nudges", func() bool { return dev.CrystalPos() == 1000+clients*nudges })
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package server exposes an Emulator on byte-stream transports.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/litronsim/internal/metrics"
	"github.com/Thermoquad/litronsim/pkg/litron"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

// Handler defaults
const (
	DefaultBufferSize   = 4096
	DefaultWriteTimeout = 10 * time.Second
	// idle reads wake up this often to notice shutdown
	pollInterval = 500 * time.Millisecond
)

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Handler runs the LVREMOTE read loop on one connection at a time. One
// Handler may serve any number of connections concurrently; they all
// drive the same emulator.
type Handler struct {
	em           *litron.Emulator
	log          logrus.FieldLogger
	metrics      *metrics.Metrics
	bufferSize   int
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the logger for connection events and traffic
func WithLogger(log logrus.FieldLogger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

// WithMetrics counts connections in m
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithBufferSize sets the read buffer size, which bounds one buffer
func WithBufferSize(n int) HandlerOption {
	return func(h *Handler) { h.bufferSize = n }
}

// WithReadTimeout closes connections idle for longer than d. Zero keeps
// idle connections open.
func WithReadTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.readTimeout = d }
}

// WithWriteTimeout bounds each reply write
func WithWriteTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.writeTimeout = d }
}

// NewHandler creates a connection handler for em
func NewHandler(em *litron.Emulator, opts ...HandlerOption) *Handler {
	h := &Handler{
		em:           em,
		log:          logrus.StandardLogger(),
		bufferSize:   DefaultBufferSize,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Emulator returns the emulator the handler drives
func (h *Handler) Emulator() *litron.Emulator {
	return h.em
}

// Serve runs the read loop on conn until the peer hangs up, an I/O error
// occurs, or ctx is done. Every successful Read is one buffer: the
// transport's flush boundary is the only message boundary LVREMOTE has.
// Serve does not close conn.
func (h *Handler) Serve(ctx context.Context, conn io.ReadWriter, transport, peer string) error {
	log := h.log.WithFields(logrus.Fields{"transport": transport, "peer": peer})
	log.Info("connection opened")
	if h.metrics != nil {
		h.metrics.ConnectionOpened(transport)
		defer h.metrics.ConnectionClosed(transport)
	}

	dl, hasDeadline := conn.(deadliner)
	buf := make([]byte, h.bufferSize)
	lastActive := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			log.Info("connection closed by shutdown")
			return nil
		}
		if hasDeadline {
			_ = dl.SetReadDeadline(time.Now().Add(pollInterval))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			lastActive = time.Now()
			if werr := h.handle(log, conn, buf[:n]); werr != nil {
				log.WithError(werr).Warn("reply write failed")
				return fmt.Errorf("%s %s: write: %w", transport, peer, werr)
			}
		}

		switch {
		case err == nil:
		case isTimeout(err):
			if h.readTimeout > 0 && time.Since(lastActive) > h.readTimeout {
				log.Info("connection idle, closing")
				return nil
			}
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			log.Info("connection closed")
			return nil
		default:
			log.WithError(err).Warn("connection read failed")
			return fmt.Errorf("%s %s: read: %w", transport, peer, err)
		}
	}
}

func (h *Handler) handle(log logrus.FieldLogger, w io.Writer, data []byte) error {
	reply, err := h.em.Process(data)

	if entry, ok := log.(*logrus.Entry); ok && entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		entry.WithField("bytes", len(data)).Debugf("request\n%s", lvremote.FormatBuffer(data, h.em.VIPath()))
		if len(reply) > 0 {
			entry.WithField("bytes", len(reply)).Debugf("reply % X", reply)
		}
	}
	if err != nil {
		log.WithError(err).Debug("buffer processing stopped")
	}

	if len(reply) == 0 {
		return nil
	}
	if dl, ok := w.(deadliner); ok && h.writeTimeout > 0 {
		_ = dl.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	}
	_, werr := w.Write(reply)
	return werr
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

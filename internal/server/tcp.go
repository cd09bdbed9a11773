// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// DefaultMaxConnections is the connection limit when none is set
const DefaultMaxConnections = 16

// TCPServer accepts LVREMOTE clients on a TCP listener
type TCPServer struct {
	handler   *Handler
	log       logrus.FieldLogger
	maxConns  int
	keepAlive time.Duration

	limiter chan struct{}
	wg      sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// TCPOption configures a TCPServer
type TCPOption func(*TCPServer)

// WithMaxConnections refuses connections beyond n open ones
func WithMaxConnections(n int) TCPOption {
	return func(s *TCPServer) { s.maxConns = n }
}

// WithKeepAlive sets the TCP keep-alive period
func WithKeepAlive(d time.Duration) TCPOption {
	return func(s *TCPServer) { s.keepAlive = d }
}

// NewTCPServer creates a TCP front end for h
func NewTCPServer(h *Handler, opts ...TCPOption) *TCPServer {
	s := &TCPServer{
		handler:  h,
		log:      h.log,
		maxConns: DefaultMaxConnections,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxConns < 1 {
		s.maxConns = 1
	}
	s.limiter = make(chan struct{}, s.maxConns)
	return s
}

// Listen binds addr
func (s *TCPServer) Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: s.keepAlive}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

// ListenAndServe binds addr and serves until ctx is done
func (s *TCPServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := s.Listen(ctx, addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes the
// listener and every open connection and waits for their handlers.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	s.log.WithFields(logrus.Fields{
		"addr":            ln.Addr().String(),
		"max_connections": s.maxConns,
	}).Info("LVREMOTE server listening")

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.log.WithError(err).Warn("accept failed, retrying")
				time.Sleep(50 * time.Millisecond)
				continue
			}
			acceptErr = fmt.Errorf("accept: %w", err)
			break
		}

		select {
		case s.limiter <- struct{}{}:
			s.track(conn, true)
			s.wg.Add(1)
			go s.serveConn(ctx, conn)
		default:
			s.log.WithField("peer", conn.RemoteAddr().String()).Warn("connection limit reached, refusing")
			if s.handler.metrics != nil {
				s.handler.metrics.ConnectionRejected()
			}
			conn.Close()
		}
	}
	close(stop)

	closeErr := s.closeAll()
	s.wg.Wait()
	s.log.Info("LVREMOTE server stopped")
	return multierr.Append(acceptErr, closeErr)
}

func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn) {
	defer func() {
		s.track(conn, false)
		conn.Close()
		<-s.limiter
		s.wg.Done()
	}()
	_ = s.handler.Serve(ctx, conn, "tcp", conn.RemoteAddr().String())
}

func (s *TCPServer) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *TCPServer) closeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for conn := range s.conns {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}

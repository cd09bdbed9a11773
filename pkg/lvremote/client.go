// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lvremote

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// Client defaults
const (
	DefaultTimeout         = 2 * time.Second
	DefaultHandshakeSettle = 50 * time.Millisecond
)

// Client issues calls over any byte stream. It is not safe for concurrent
// use.
type Client struct {
	rw      io.ReadWriter
	path    string
	timeout time.Duration
	settle  time.Duration
	pending []byte
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithPath sets the front panel path calls address
func WithPath(path string) ClientOption {
	return func(c *Client) { c.path = path }
}

// WithTimeout bounds how long a call waits for its replies
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithHandshakeSettle sets the pause after the handshake. The server only
// recognizes the handshake when it arrives as a buffer of its own, and
// stream transports merge writes sent back to back.
func WithHandshakeSettle(d time.Duration) ClientOption {
	return func(c *Client) { c.settle = d }
}

// NewClient creates a client over rw
func NewClient(rw io.ReadWriter, opts ...ClientOption) *Client {
	c := &Client{
		rw:      rw,
		path:    DefaultVIPath,
		timeout: DefaultTimeout,
		settle:  DefaultHandshakeSettle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the front panel path calls address
func (c *Client) Path() string {
	return c.path
}

// Handshake sends the identification sentinel. It has no reply.
func (c *Client) Handshake() error {
	if _, err := c.rw.Write([]byte(Handshake)); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if c.settle > 0 {
		time.Sleep(c.settle)
	}
	return nil
}

// Get reads one control and returns its raw reply value
func (c *Client) Get(control string) ([]byte, error) {
	values, err := c.Exchange(EncodeFrame(NewGetCall(c.path, control)), 1)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", control, err)
	}
	return values[0], nil
}

// GetUint32 reads an integer control
func (c *Client) GetUint32(control string) (uint32, error) {
	value, err := c.Get(control)
	if err != nil {
		return 0, err
	}
	return ReplyUint32(value)
}

// Put writes value to a control. Puts have no reply, so a put the
// instrument ignored is indistinguishable from one it applied.
func (c *Client) Put(control string, value []byte) error {
	if _, err := c.Exchange(EncodeFrame(NewPutCall(c.path, control, value)), 0); err != nil {
		return fmt.Errorf("put %q: %w", control, err)
	}
	return nil
}

// Exchange writes buf as one buffer and waits for n reply values. On
// timeout the values that did arrive are returned with ErrTimeout.
func (c *Client) Exchange(buf []byte, n int) ([][]byte, error) {
	if _, err := c.rw.Write(buf); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return c.readReplies(n)
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

func (c *Client) readReplies(n int) ([][]byte, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := c.rw.(readDeadliner); ok {
		_ = d.SetReadDeadline(deadline)
		defer d.SetReadDeadline(time.Time{})
	}

	var (
		values [][]byte
		tmp    = make([]byte, 512)
	)
	for {
		values = c.takeReplies(values, n)
		if len(values) == n {
			return values, nil
		}
		if time.Now().After(deadline) {
			return values, ErrTimeout
		}

		k, err := c.rw.Read(tmp)
		c.pending = append(c.pending, tmp[:k]...)
		if err != nil {
			if isTimeout(err) {
				return c.takeReplies(values, n), ErrTimeout
			}
			return values, err
		}
	}
}

// takeReplies moves complete reply values out of the pending bytes
func (c *Client) takeReplies(values [][]byte, n int) [][]byte {
	r := NewFrameReader(c.pending)
	for len(values) < n && r.More() {
		v, err := r.Next()
		if err != nil {
			break
		}
		values = append(values, append([]byte(nil), v...))
	}
	c.pending = append(c.pending[:0], r.Remaining()...)
	return values
}

// ExpectedReplies counts the gets in buf that address path, which is how
// many reply values an instrument that knows every control would send.
func ExpectedReplies(buf []byte, path string) int {
	if string(buf) == Handshake {
		return 0
	}
	var n int
	r := NewFrameReader(buf)
	for r.More() {
		payload, err := r.Next()
		if err != nil {
			break
		}
		if call, err := ParseCall(payload, path); err == nil && call.Verb == VerbGet {
			n++
		}
	}
	return n
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

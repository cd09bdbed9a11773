// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backdoor

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/litronsim/pkg/litron"
)

// ErrClientClosed is returned once the connection to the server is gone
var ErrClientClosed = errors.New("backdoor: connection closed")

// RemoteError is a failure the server reported for a request
type RemoteError struct {
	Op    uint8
	Field string
	Msg   string
}

func (e *RemoteError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("backdoor: %s %s: %s", OpName(e.Op), e.Field, e.Msg)
	}
	return fmt.Sprintf("backdoor: %s: %s", OpName(e.Op), e.Msg)
}

type message struct {
	op      uint8
	payload map[int]interface{}
}

// Client talks to a backdoor Server. Requests are serialized; a watch
// stream may run alongside them.
type Client struct {
	conn *websocket.Conn

	reqMu   sync.Mutex
	writeMu sync.Mutex

	replies   chan message
	snapshots chan litron.Snapshot
	done      chan struct{}
	readErr   error
}

// Dial connects to a backdoor server. username may be empty when the
// server does not require authentication.
func Dial(ctx context.Context, rawURL, username, password string, skipSSLVerify bool) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("backdoor connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("backdoor connection failed: %w", err)
	}

	c := &Client{
		conn:      conn,
		replies:   make(chan message, 1),
		snapshots: make(chan litron.Snapshot, 16),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		op, payload, err := ParseMessage(data)
		if err != nil {
			continue
		}

		if op == OpWatch|ReplyFlag {
			snap, ok := GetMapSnapshot(payload, KeySnapshot)
			if !ok {
				continue
			}
			select {
			case c.snapshots <- snap:
			default:
				// slow consumer, drop
			}
			continue
		}

		select {
		case c.replies <- message{op, payload}:
		default:
		}
	}
}

func (c *Client) send(op uint8, payload map[int]interface{}) error {
	data, err := EncodeMessage(op, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Client) roundTrip(ctx context.Context, op uint8, payload map[int]interface{}) (map[int]interface{}, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	// drop any reply left over from an abandoned request
	select {
	case <-c.replies:
	default:
	}

	if err := c.send(op, payload); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			if c.readErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrClientClosed, c.readErr)
			}
			return nil, ErrClientClosed
		case m := <-c.replies:
			if m.op != op|ReplyFlag {
				continue
			}
			if msg, ok := GetMapString(m.payload, KeyError); ok {
				field, _ := GetMapString(m.payload, KeyField)
				return nil, &RemoteError{Op: op, Field: field, Msg: msg}
			}
			return m.payload, nil
		}
	}
}

// Get reads one field
func (c *Client) Get(ctx context.Context, name string) (interface{}, error) {
	reply, err := c.roundTrip(ctx, OpGet, map[int]interface{}{KeyField: name})
	if err != nil {
		return nil, err
	}
	return normalizeValue(reply[KeyValue]), nil
}

// Set writes one field
func (c *Client) Set(ctx context.Context, name string, value interface{}) error {
	_, err := c.roundTrip(ctx, OpSet, map[int]interface{}{KeyField: name, KeyValue: value})
	return err
}

// List returns the field names the server exposes
func (c *Client) List(ctx context.Context) ([]string, error) {
	reply, err := c.roundTrip(ctx, OpList, nil)
	if err != nil {
		return nil, err
	}
	fields, ok := GetMapStrings(reply, KeyFields)
	if !ok {
		return nil, fmt.Errorf("%w: list reply without fields", ErrBadMessage)
	}
	return fields, nil
}

// Snapshot reads every field at once
func (c *Client) Snapshot(ctx context.Context) (litron.Snapshot, error) {
	reply, err := c.roundTrip(ctx, OpSnapshot, nil)
	if err != nil {
		return litron.Snapshot{}, err
	}
	snap, ok := GetMapSnapshot(reply, KeySnapshot)
	if !ok {
		return litron.Snapshot{}, fmt.Errorf("%w: snapshot reply without snapshot", ErrBadMessage)
	}
	return snap, nil
}

// StartWatch asks the server to stream snapshots every interval. They
// arrive on Snapshots.
func (c *Client) StartWatch(interval time.Duration) error {
	return c.send(OpWatch, map[int]interface{}{KeyInterval: uint64(interval / time.Millisecond)})
}

// Snapshots delivers watch snapshots. Snapshots are dropped while the
// channel is full.
func (c *Client) Snapshots() <-chan litron.Snapshot {
	return c.snapshots
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Watch streams snapshots to fn until ctx is done, fn returns an error, or
// the connection ends.
func (c *Client) Watch(ctx context.Context, interval time.Duration, fn func(litron.Snapshot) error) error {
	if err := c.StartWatch(interval); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClientClosed
		case snap := <-c.snapshots:
			if err := fn(snap); err != nil {
				return err
			}
		}
	}
}

// Close sends a close frame and shuts the connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

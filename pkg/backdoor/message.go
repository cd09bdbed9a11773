// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package backdoor carries the litron introspection channel over a
// WebSocket. Every message is one binary frame holding a CBOR array
// [op, payload_map], where payload_map uses small integer keys.
package backdoor

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/litronsim/pkg/litron"
)

// Request ops. A reply carries the request op with ReplyFlag set.
const (
	OpGet      uint8 = 0x01
	OpSet      uint8 = 0x02
	OpList     uint8 = 0x03
	OpWatch    uint8 = 0x04
	OpSnapshot uint8 = 0x05

	ReplyFlag uint8 = 0x80
)

// Payload map keys
const (
	KeyField    = 0
	KeyValue    = 1
	KeyError    = 2
	KeyInterval = 3 // watch interval, milliseconds
	KeySnapshot = 4
	KeyFields   = 5
)

var (
	// ErrBadMessage is returned for frames that are not [op, map] CBOR
	ErrBadMessage = errors.New("backdoor: malformed message")

	// ErrUnknownOp is returned for ops the server does not implement
	ErrUnknownOp = errors.New("backdoor: unknown op")
)

// OpName returns a display name for an op, reply flag included
func OpName(op uint8) string {
	var name string
	switch op &^ ReplyFlag {
	case OpGet:
		name = "GET"
	case OpSet:
		name = "SET"
	case OpList:
		name = "LIST"
	case OpWatch:
		name = "WATCH"
	case OpSnapshot:
		name = "SNAPSHOT"
	default:
		name = fmt.Sprintf("OP_0x%02X", op&^ReplyFlag)
	}
	if op&ReplyFlag != 0 {
		name += "_REPLY"
	}
	return name
}

// EncodeMessage builds a binary frame for op and payload. A nil or empty
// payload is encoded as CBOR null.
func EncodeMessage(op uint8, payload map[int]interface{}) ([]byte, error) {
	var msg interface{}
	if len(payload) == 0 {
		msg = []interface{}{uint64(op), nil}
	} else {
		msg = []interface{}{uint64(op), payload}
	}
	return cbor.Marshal(msg)
}

// ParseMessage decodes a frame into its op and payload map (nil for an
// empty payload).
func ParseMessage(data []byte) (op uint8, payload map[int]interface{}, err error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("%w: empty frame", ErrBadMessage)
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("%w: expected 2-element array, got %d elements", ErrBadMessage, len(msg))
	}

	v, ok := msg[0].(uint64)
	if !ok || v > 0xFF {
		return 0, nil, fmt.Errorf("%w: bad op %v", ErrBadMessage, msg[0])
	}
	op = uint8(v)

	if msg[1] == nil {
		return op, nil, nil
	}
	m, ok := msg[1].(map[interface{}]interface{})
	if !ok {
		return 0, nil, fmt.Errorf("%w: expected map or nil for payload, got %T", ErrBadMessage, msg[1])
	}
	payload = make(map[int]interface{}, len(m))
	for key, val := range m {
		switch k := key.(type) {
		case uint64:
			payload[int(k)] = val
		case int64:
			payload[int(k)] = val
		default:
			return 0, nil, fmt.Errorf("%w: expected integer map key, got %T", ErrBadMessage, key)
		}
	}
	return op, payload, nil
}

// GetMapString extracts a string from a payload map by key
func GetMapString(m map[int]interface{}, key int) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// GetMapUint extracts a non-negative integer from a payload map by key
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	switch v := m[key].(type) {
	case uint64:
		return v, true
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}

// GetMapStrings extracts a string list from a payload map by key
func GetMapStrings(m map[int]interface{}, key int) ([]string, bool) {
	list, ok := m[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// GetMapSnapshot extracts a device snapshot from a payload map by key
func GetMapSnapshot(m map[int]interface{}, key int) (litron.Snapshot, bool) {
	var s litron.Snapshot
	v, ok := m[key]
	if !ok || v == nil {
		return s, false
	}
	// the generic decode lost the struct shape; round-trip through CBOR to
	// get it back
	raw, err := cbor.Marshal(v)
	if err != nil {
		return s, false
	}
	if err := cbor.Unmarshal(raw, &s); err != nil {
		return s, false
	}
	return s, true
}

// normalizeValue maps CBOR integers to int64 so field values compare
// equal to what the device returns.
func normalizeValue(v interface{}) interface{} {
	switch n := v.(type) {
	case uint64:
		if n <= 1<<63-1 {
			return int64(n)
		}
	}
	return v
}

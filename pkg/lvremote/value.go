// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lvremote

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeUint32 returns v as a 4-byte big-endian value
func EncodeUint32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(make([]byte, 0, Uint32Size), v)
}

// EncodeUint64 returns v as an 8-byte big-endian value
func EncodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, MaxValueSize), v)
}

// EncodeFloat64 returns v as an 8-byte big-endian IEEE-754 double
func EncodeFloat64(v float64) []byte {
	return EncodeUint64(math.Float64bits(v))
}

// DecodeUnsigned reads a big-endian unsigned integer of 1 to 8 bytes.
func DecodeUnsigned(value []byte) (uint64, error) {
	if len(value) == 0 || len(value) > MaxValueSize {
		return 0, fmt.Errorf("%w: %d-byte integer (want 1-%d)", ErrInvalidValue, len(value), MaxValueSize)
	}
	var v uint64
	for _, b := range value {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// AppendReply appends one get reply, wrapped in its length envelope
func AppendReply(dst, value []byte) []byte {
	return AppendFrame(dst, value)
}

// DecodeReplies splits a reply stream into its values, in call order.
func DecodeReplies(buf []byte) ([][]byte, error) {
	var (
		r      = NewFrameReader(buf)
		values [][]byte
	)
	for r.More() {
		v, err := r.Next()
		if err != nil {
			return values, fmt.Errorf("could not decode reply %d: %w", len(values), err)
		}
		values = append(values, v)
	}
	return values, nil
}

// ReplyUint32 decodes a 4-byte integer reply value
func ReplyUint32(value []byte) (uint32, error) {
	if len(value) != Uint32Size {
		return 0, fmt.Errorf("%w: %d-byte integer reply (want %d)", ErrInvalidValue, len(value), Uint32Size)
	}
	return binary.BigEndian.Uint32(value), nil
}

// ReplyFloat64 decodes an 8-byte double reply value
func ReplyFloat64(value []byte) (float64, error) {
	if len(value) != Float64Size {
		return 0, fmt.Errorf("%w: %d-byte double reply (want %d)", ErrInvalidValue, len(value), Float64Size)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(value)), nil
}

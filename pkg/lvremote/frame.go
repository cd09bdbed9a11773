// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lvremote

import (
	"encoding/binary"
	"fmt"
)

// FrameReader walks the length-prefixed frames of a single buffer. It never
// copies: returned payloads alias the buffer.
type FrameReader struct {
	buf []byte
	off int
}

// NewFrameReader creates a reader positioned at the start of buf
func NewFrameReader(buf []byte) *FrameReader {
	return &FrameReader{buf: buf}
}

// More reports whether unread bytes remain
func (r *FrameReader) More() bool {
	return r.off < len(r.buf)
}

// Offset returns the position of the next unread byte
func (r *FrameReader) Offset() int {
	return r.off
}

// Remaining returns the unread bytes
func (r *FrameReader) Remaining() []byte {
	return r.buf[r.off:]
}

// Next returns the payload of the next frame and advances past it.
// A truncated prefix or an overlong declared length yields ErrMalformedFrame
// and leaves the reader where the bad frame starts.
func (r *FrameReader) Next() ([]byte, error) {
	rest := r.buf[r.off:]
	if len(rest) < LengthSize {
		return nil, fmt.Errorf("%w: %d byte(s) at offset %d, need a %d-byte length prefix",
			ErrMalformedFrame, len(rest), r.off, LengthSize)
	}

	n := binary.BigEndian.Uint32(rest[:LengthSize])
	if uint64(n) > uint64(len(rest)-LengthSize) {
		return nil, fmt.Errorf("%w: length %d at offset %d exceeds remaining %d byte(s)",
			ErrMalformedFrame, n, r.off, len(rest)-LengthSize)
	}

	end := LengthSize + int(n)
	payload := rest[LengthSize:end]
	r.off += end
	return payload, nil
}

// AppendFrame appends payload to dst behind its length prefix
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// EncodeFrame returns payload behind its length prefix
func EncodeFrame(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, LengthSize+len(payload)), payload)
}

// EncodeFrames concatenates the framed payloads into one buffer, the way a
// transport may coalesce several writes into a single delivery.
func EncodeFrames(payloads ...[]byte) []byte {
	size := 0
	for _, p := range payloads {
		size += LengthSize + len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range payloads {
		buf = AppendFrame(buf, p)
	}
	return buf
}

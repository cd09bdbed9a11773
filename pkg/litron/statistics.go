// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package litron

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

// Statistics tracks buffer and call counters and rates. It is an Observer
// and safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// Counters is a point-in-time copy of the statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Buffers
	Buffers       uint64
	EmptyBuffers  uint64
	Handshakes    uint64
	GatedBuffers  uint64
	FramedBuffers uint64
	Malformed     uint64

	// Calls
	Gets                   uint64
	Puts                   uint64
	UnrecognizedCalls      uint64
	UnrecognizedParameters uint64
	InvalidValues          uint64

	BytesIn  uint64
	BytesOut uint64

	// Rates (calculated)
	BufferRate float64 // buffers/sec
	ErrorRate  float64 // errors/sec
}

// Errors returns the number of failures reported to the error sink
func (c Counters) Errors() uint64 {
	return c.Malformed + c.UnrecognizedCalls + c.UnrecognizedParameters + c.InvalidValues
}

var _ Observer = (*Statistics)(nil)

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

// BufferHandled counts one processed buffer
func (s *Statistics) BufferHandled(kind BufferKind, in, out int, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Buffers++
	s.c.BytesIn += uint64(in)
	s.c.BytesOut += uint64(out)
	switch kind {
	case BufferEmpty:
		s.c.EmptyBuffers++
	case BufferHandshake:
		s.c.Handshakes++
	case BufferGated:
		s.c.GatedBuffers++
	case BufferFramed:
		s.c.FramedBuffers++
	case BufferMalformed:
		s.c.Malformed++
	}
	s.c.LastUpdateTime = time.Now()
}

// CallHandled counts one dispatched call
func (s *Statistics) CallHandled(verb lvremote.Verb, _ string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch verb {
	case lvremote.VerbGet:
		s.c.Gets++
	case lvremote.VerbPut:
		s.c.Puts++
	}

	switch {
	case err == nil:
	case errors.Is(err, lvremote.ErrUnrecognizedCall):
		s.c.UnrecognizedCalls++
	case errors.Is(err, lvremote.ErrUnrecognizedParameter):
		s.c.UnrecognizedParameters++
	case errors.Is(err, lvremote.ErrInvalidValue):
		s.c.InvalidValues++
	}
	s.c.LastUpdateTime = time.Now()
}

// Counters returns a copy of the counters with rates calculated
func (s *Statistics) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.BufferRate = float64(c.Buffers) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Counters()
	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Buffers:         %8d\n", c.Buffers)
	result += fmt.Sprintf("  Handshakes:       %5d\n", c.Handshakes)
	result += fmt.Sprintf("  Framed:           %5d\n", c.FramedBuffers)
	result += fmt.Sprintf("  Gated (silent):   %5d\n", c.GatedBuffers)
	if c.EmptyBuffers > 0 {
		result += fmt.Sprintf("  Empty:            %5d\n", c.EmptyBuffers)
	}
	result += fmt.Sprintf("Calls:           %8d (get %d, put %d)\n", c.Gets+c.Puts, c.Gets, c.Puts)

	if c.Errors() > 0 {
		result += fmt.Sprintf("Errors:          %8d\n", c.Errors())
		if c.Malformed > 0 {
			result += fmt.Sprintf("  Malformed:        %5d\n", c.Malformed)
		}
		if c.UnrecognizedCalls > 0 {
			result += fmt.Sprintf("  Unknown calls:    %5d\n", c.UnrecognizedCalls)
		}
		if c.UnrecognizedParameters > 0 {
			result += fmt.Sprintf("  Unknown controls: %5d\n", c.UnrecognizedParameters)
		}
		if c.InvalidValues > 0 {
			result += fmt.Sprintf("  Invalid values:   %5d\n", c.InvalidValues)
		}
	}

	result += fmt.Sprintf("Bytes in/out:    %8d / %d\n", c.BytesIn, c.BytesOut)
	result += fmt.Sprintf("Buffer Rate:     %8.1f bufs/sec\n", c.BufferRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
}

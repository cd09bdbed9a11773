// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lvremote

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random generator, seeded from FUZZ_SEED when set
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzz_FrameRoundTrip packs random payloads into one buffer and checks
// the reader hands them back unchanged and in order.
func TestFuzz_FrameRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)

	for round := 0; round < getFuzzRounds(); round++ {
		payloads := make([][]byte, rng.Intn(8))
		for i := range payloads {
			payloads[i] = make([]byte, rng.Intn(64))
			rng.Read(payloads[i])
		}

		r := NewFrameReader(EncodeFrames(payloads...))
		for i, want := range payloads {
			got, err := r.Next()
			if err != nil {
				t.Fatalf("round %d frame %d: %v", round, i, err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("round %d frame %d: got % X, want % X", round, i, got, want)
			}
		}
		if r.More() {
			t.Fatalf("round %d: %d trailing bytes", round, len(r.Remaining()))
		}
	}
}

// TestFuzz_RandomBytes feeds random garbage to the reader and parser; they
// must only ever fail with protocol errors, never panic.
func TestFuzz_RandomBytes(t *testing.T) {
	rng := newFuzzRng(t)

	for round := 0; round < getFuzzRounds(); round++ {
		buf := make([]byte, rng.Intn(48))
		rng.Read(buf)

		r := NewFrameReader(buf)
		for r.More() {
			payload, err := r.Next()
			if err != nil {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Fatalf("round %d: unexpected error type: %v", round, err)
				}
				break
			}
			if _, err := ParseCall(payload, testPath); err != nil && !errors.Is(err, ErrUnrecognizedCall) {
				t.Fatalf("round %d: unexpected parse error: %v", round, err)
			}
		}
	}
}

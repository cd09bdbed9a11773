// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package litron

import (
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 500
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 500
}

// getFuzzSeed returns FUZZ_SEED when set, the current time otherwise
func getFuzzSeed(t *testing.T) int64 {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return seed
}

// randomCall builds a frame that is valid, unknown, or garbage
func randomCall(rng *rand.Rand) []byte {
	names := []string{"Pump Energy", ""}
	for _, c := range Controls {
		names = append(names, c.String())
	}
	name := names[rng.Intn(len(names))]

	switch rng.Intn(4) {
	case 0:
		return lvremote.EncodeFrame(lvremote.NewGetCall(lvremote.DefaultVIPath, name))
	case 1:
		value := make([]byte, rng.Intn(10))
		rng.Read(value)
		return lvremote.EncodeFrame(lvremote.NewPutCall(lvremote.DefaultVIPath, name, value))
	case 2:
		junk := make([]byte, rng.Intn(32))
		rng.Read(junk)
		return lvremote.EncodeFrame(junk)
	default:
		junk := make([]byte, rng.Intn(8))
		rng.Read(junk)
		return junk
	}
}

// TestFuzz_Process drives random buffers at a device in random link
// states. A silent device must never change or reply, and an armed one
// must never panic or reply to a buffer that produced only errors.
func TestFuzz_Process(t *testing.T) {
	rng := rand.New(rand.NewSource(getFuzzSeed(t)))

	for round := 0; round < getFuzzRounds(); round++ {
		dev := NewDevice(
			WithConnected(rng.Intn(4) != 0),
			WithCrystalPos(rng.Int63n(10000)),
			WithNudgeDist(rng.Int63n(100)),
			WithRand(rand.New(rand.NewSource(rng.Int63()))),
		)
		var reports int
		em := NewEmulator(dev, WithErrorSink(ErrorSinkFunc(func([]byte, error) { reports++ })))
		if rng.Intn(3) != 0 {
			em.Process([]byte(lvremote.Handshake))
		}

		var buf []byte
		for i := rng.Intn(6); i > 0; i-- {
			buf = append(buf, randomCall(rng)...)
		}

		before := dev.Snapshot()
		reply, err := em.Process(buf)

		if !before.Armed() {
			if len(reply) != 0 || err != nil || reports != 0 {
				t.Fatalf("round %d: silent device replied % X, err=%v, reports=%d", round, reply, err, reports)
			}
			if after := dev.Snapshot(); after != before {
				t.Fatalf("round %d: silent device changed:\n got %+v\nwant %+v", round, after, before)
			}
			continue
		}

		if err != nil && !errors.Is(err, lvremote.ErrMalformedFrame) {
			t.Fatalf("round %d: unexpected error type %v", round, err)
		}
		if _, derr := lvremote.DecodeReplies(reply); derr != nil {
			t.Fatalf("round %d: reply does not decode: %v", round, derr)
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lvremote

import "errors"

// Protocol errors. Decoders wrap these with context, so match them with
// errors.Is.
var (
	// ErrMalformedFrame reports a buffer that ends mid length prefix or
	// declares more payload bytes than remain.
	ErrMalformedFrame = errors.New("lvremote: malformed frame")

	// ErrUnrecognizedCall reports a payload matching neither call form.
	ErrUnrecognizedCall = errors.New("lvremote: unrecognized call")

	// ErrUnrecognizedParameter reports a well-formed call naming a control
	// the instrument does not route.
	ErrUnrecognizedParameter = errors.New("lvremote: unrecognized parameter")

	// ErrInvalidValue reports a value whose size does not fit its type.
	ErrInvalidValue = errors.New("lvremote: invalid value")

	// ErrTimeout reports that an instrument sent fewer replies than asked
	// for before the client gave up. A silent instrument looks the same.
	ErrTimeout = errors.New("lvremote: timed out waiting for reply")
)

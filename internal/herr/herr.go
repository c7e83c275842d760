// Copyright © 2020 AMIS Technologies
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package herr defines the error taxonomy shared by the class-group,
// tensor, and prover layers. Public operations report failures as
// error values rather than panicking: these sentinels for the domain
// failures, and the underlying error as-is for I/O and decoding
// failures in persistence and transport framing.
package herr

import "errors"

var (
	// ErrProtocolError is returned for a bad version, bad timestamp, or
	// malformed/oversized wire request.
	ErrProtocolError = errors.New("protocol error")
	// ErrNonCoprimeForms is returned when class-group composition's
	// coprimality precondition is violated.
	ErrNonCoprimeForms = errors.New("non-coprime forms")
	// ErrStateBloat is returned when an affine tuple composition would
	// exceed the configured P bit cap.
	ErrStateBloat = errors.New("state bloat: P bit cap exceeded")
	// ErrPrimeSearchExhausted is returned when hash_to_prime exhausts its
	// nonce budget without finding a prime.
	ErrPrimeSearchExhausted = errors.New("prime search exhausted")
	// ErrSetupExhausted is returned when discriminant search exhausts its
	// attempt budget.
	ErrSetupExhausted = errors.New("setup exhausted")
	// ErrCapacityReached is returned when a tensor insert would exceed its
	// population cap.
	ErrCapacityReached = errors.New("capacity reached")
	// ErrIOError wraps a transport or persistence failure.
	ErrIOError = errors.New("io error")
	// ErrNotFound applies only where non-dummy responses are demanded.
	ErrNotFound = errors.New("not found")
	// ErrPositiveDiscriminant mirrors the teacher's own class-group guard:
	// a discriminant must be strictly negative.
	ErrPositiveDiscriminant = errors.New("not a negative discriminant")
	// ErrDifferentDiscriminant is returned when composing forms over
	// different discriminants.
	ErrDifferentDiscriminant = errors.New("different discriminant")
	// ErrInvalidDimensions is returned when a tensor's dimension count is
	// outside [1, 20].
	ErrInvalidDimensions = errors.New("dimensions out of range")
	// ErrSeedTooShort is returned when a node's seed is shorter than 32 bytes.
	ErrSeedTooShort = errors.New("seed too short")
)

// SanitizedMessage is the generic string surfaced to the wire for any
// internal error; the structured detail is logged locally only.
const SanitizedMessage = "An internal server error occurred while processing the request."

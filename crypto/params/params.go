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

// Package params derives the trustless system parameters of a Prover
// instance — the negative prime discriminant Δ and a non-identity
// generator over it — deterministically from a seed, so two parties
// given the same seed always agree on the same class group.
package params

import (
	"encoding/binary"
	"math/big"

	"github.com/getamis/htp/crypto/classgroup"
	"github.com/getamis/htp/internal/herr"
	"github.com/zeebo/blake3"
)

// MMax bounds the discriminant search in FromSeed.
const MMax = 10_000

// MillerRabinRounds is the number of Miller-Rabin rounds run against a
// discriminant candidate.
const MillerRabinRounds = 30

var big4 = big.NewInt(4)

// FromSeed deterministically derives a negative prime discriminant Δ
// with Δ ≡ 1 (mod 4) from seed. bitSize is the target bit length of
// |Δ|.
func FromSeed(seed []byte, bitSize int) (*big.Int, error) {
	byteLen := (bitSize + 7) / 8
	for attempt := uint64(0); attempt < MMax; attempt++ {
		digest := hashAttempt(seed, attempt, byteLen)
		m := new(big.Int).SetBytes(reverse(digest))
		if bitSize-1 >= 0 {
			m.SetBit(m, bitSize-1, 1)
		}

		mod4 := new(big.Int).Mod(m, big4)
		if mod4.Int64() != 3 {
			continue
		}
		if m.ProbablyPrime(MillerRabinRounds) {
			return new(big.Int).Neg(m), nil
		}
	}
	return nil, herr.ErrSetupExhausted
}

func hashAttempt(seed []byte, attempt uint64, outLen int) []byte {
	h := blake3.New()
	h.Write(seed)
	var attemptBytes [8]byte
	binary.LittleEndian.PutUint64(attemptBytes[:], attempt)
	h.Write(attemptBytes[:])

	out := make([]byte, outLen)
	d := h.Digest()
	_, _ = d.Read(out)
	return out
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// smallPrimes seeds the generator search: DeriveGenerator tries each a
// in turn, brute-forcing an odd b in [1, 2a) with b² ≡ Δ (mod 4a).
var smallPrimes = []int64{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67,
	71, 73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127, 131, 137, 139,
	149, 151, 157, 163, 167, 173, 179, 181, 191, 193, 197, 199,
}

// DeriveGenerator finds a deterministic non-identity reduced form over
// Δ by brute-force search: for each small prime a, it looks for an odd
// b in [1, 2a) solving b² ≡ Δ (mod 4a), which by construction
// satisfies b² − 4ac = Δ once c is computed. This is the "real search"
// resolution of the source's generator open question: the source's
// derivation did not demonstrably satisfy the discriminant equation,
// so here every candidate is constructed through classgroup.New, which
// itself derives c from (a, b, Δ) and cannot produce a form violating
// the invariant.
func DeriveGenerator(delta *big.Int) (*classgroup.Element, error) {
	id, err := classgroup.Identity(delta)
	if err != nil {
		return nil, err
	}
	for _, a := range smallPrimes {
		aBig := big.NewInt(a)
		fourA := new(big.Int).Lsh(aBig, 2)
		for b := int64(1); b < 2*a; b += 2 {
			bBig := big.NewInt(b)
			bSq := new(big.Int).Mul(bBig, bBig)
			num := new(big.Int).Sub(bSq, delta)
			if new(big.Int).Mod(num, fourA).Sign() != 0 {
				continue
			}
			form, err := classgroup.New(aBig, bBig, delta)
			if err != nil {
				continue
			}
			if !form.Equal(id) {
				return form, nil
			}
		}
	}
	return nil, herr.ErrSetupExhausted
}

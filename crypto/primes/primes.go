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

// Package primes derives deterministic primes from user identifiers,
// so two Prover instances (or a Prover and a Verifier) always agree on
// the prime assigned to a given identifier without exchanging it.
package primes

import (
	"encoding/binary"
	"math/big"

	"github.com/getamis/htp/internal/herr"
	"github.com/zeebo/blake3"
)

// NMax bounds the nonce search in HashToPrime.
const NMax = 500

// MillerRabinRounds is the number of Miller-Rabin rounds run against a
// hash_to_prime candidate.
const MillerRabinRounds = 25

const domainTag = "HTP_HashToPrime_v1"

var (
	big3 = big.NewInt(3)
	big5 = big.NewInt(5)
)

// HashToPrime deterministically derives a prime of bitSize bits from
// userID. The identifier is length-prefixed before hashing so that
// identifiers "ab"+"c" and "a"+"bc" never collide.
func HashToPrime(userID []byte, bitSize int) (*big.Int, error) {
	prefix := make([]byte, 8+len(userID))
	binary.LittleEndian.PutUint64(prefix, uint64(len(userID)))
	copy(prefix[8:], userID)

	byteLen := (bitSize + 7) / 8
	for nonce := uint64(0); nonce < NMax; nonce++ {
		digest := hashToLen(domainTag, prefix, nonce, byteLen)

		c := new(big.Int).SetBytes(reverse(digest))
		forceBit(c, bitSize-1)
		c.SetBit(c, 0, 1)

		if new(big.Int).Mod(c, big3).Sign() == 0 {
			continue
		}
		if new(big.Int).Mod(c, big5).Sign() == 0 {
			continue
		}
		if c.ProbablyPrime(MillerRabinRounds) {
			return c, nil
		}
	}
	return nil, herr.ErrPrimeSearchExhausted
}

// hashToLen computes H(tag || prefix || le64(nonce)) as an XOF output
// of outLen bytes.
func hashToLen(tag string, prefix []byte, nonce uint64, outLen int) []byte {
	h := blake3.New()
	h.Write([]byte(tag))
	h.Write(prefix)
	var nonceBytes [8]byte
	binary.LittleEndian.PutUint64(nonceBytes[:], nonce)
	h.Write(nonceBytes[:])

	out := make([]byte, outLen)
	d := h.Digest()
	_, _ = d.Read(out)
	return out
}

// reverse returns a little-endian interpretation of a big-endian byte
// slice read off the XOF (big.Int.SetBytes is big-endian).
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// forceBit sets bit index `bit` of c to 1, ensuring the candidate is at
// least bitSize bits wide.
func forceBit(c *big.Int, bit int) {
	if bit < 0 {
		return
	}
	c.SetBit(c, bit, 1)
}

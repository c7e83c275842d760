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

// Package affine implements the non-commutative affine tuple monoid
// (P, Q) used to accumulate user primes against class-group elements:
// compose((P1,Q1), (P2,Q2)) = (P1*P2, Q1^P2 ∘ Q2).
package affine

import (
	"math/big"
	"reflect"

	"github.com/getamis/htp/crypto/classgroup"
	"github.com/getamis/htp/internal/herr"
)

// DefaultPMaxBits is the spec floor for the P bit cap; implementations
// may raise it, never lower it.
const DefaultPMaxBits = 4096

// Tuple is an affine element (P, Q): P is a product of user primes, Q
// is a reduced class-group element.
type Tuple struct {
	P *big.Int
	Q *classgroup.Element
}

// Identity returns (1, identity_Δ).
func Identity(delta *big.Int) (*Tuple, error) {
	q, err := classgroup.Identity(delta)
	if err != nil {
		return nil, err
	}
	return &Tuple{P: big.NewInt(1), Q: q}, nil
}

// Equal reports whether t and other are the same tuple.
func (t *Tuple) Equal(other *Tuple) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.P.Cmp(other.P) == 0 && reflect.DeepEqual(t.Q, other.Q)
}

// Copy returns a deep copy of t.
func (t *Tuple) Copy() *Tuple {
	return &Tuple{P: new(big.Int).Set(t.P), Q: t.Q.Copy()}
}

// Compose implements (P1,Q1) ∘ (P2,Q2) = (P1·P2, Q1^P2 ∘ Q2). The
// order matters: composition is associative but not commutative.
// Guards against state bloat: if bit_length(P1)+bit_length(P2) would
// exceed pMaxBits, returns ErrStateBloat and leaves both inputs
// unmodified.
func (t *Tuple) Compose(other *Tuple, pMaxBits int) (*Tuple, error) {
	return t.compose(other, pMaxBits, nil)
}

// ComposeWithBaseCache behaves like Compose, but accelerates the Q1^P2
// step with a precomputed squaring ladder when Q1 is exactly the
// cache's fixed base - the case a merge hits every time it lands on a
// coordinate whose occupant is still the bare, never-yet-exponentiated
// generator a RegisterUser tuple started from. Falls back to the plain
// path when cache is nil or Q1 isn't the cached base.
func (t *Tuple) ComposeWithBaseCache(other *Tuple, pMaxBits int, cache *classgroup.CachedBase) (*Tuple, error) {
	return t.compose(other, pMaxBits, cache)
}

func (t *Tuple) compose(other *Tuple, pMaxBits int, cache *classgroup.CachedBase) (*Tuple, error) {
	if t.P.BitLen()+other.P.BitLen() > pMaxBits {
		return nil, herr.ErrStateBloat
	}
	pOut := new(big.Int).Mul(t.P, other.P)

	var qPowered *classgroup.Element
	var err error
	if cache != nil && t.Q.Equal(cache.Base()) {
		qPowered, err = cache.Pow(other.P)
	} else {
		qPowered, err = t.Q.Pow(other.P)
	}
	if err != nil {
		return nil, err
	}
	qOut, err := qPowered.Compose(other.Q)
	if err != nil {
		return nil, err
	}
	return &Tuple{P: pOut, Q: qOut}, nil
}

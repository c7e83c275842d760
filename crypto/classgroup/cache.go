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

package classgroup

import "math/big"

// CachedBase speeds up repeated exponentiation of the same base against
// many different exponents (the affine monoid's Q^P step reuses a
// handful of generators across many inserts) by keeping a table of
// successive squarings and composing only the ones the exponent's bits
// select. Still runs exactly bit_length(power) loop iterations for a
// given cache depth, preserving the Pow exponentiation contract.
type CachedBase struct {
	base  *Element
	cache []*Element
}

// NewCachedBase wraps base for repeated exponentiation.
func NewCachedBase(base *Element) *CachedBase {
	return &CachedBase{base: base}
}

// Base returns the fixed element this cache accelerates exponentiation
// against, so callers can tell whether a given Element is the one this
// cache applies to before reaching for it.
func (c *CachedBase) Base() *Element {
	return c.base
}

// Pow computes base^power using the squaring cache, extending it as
// needed.
func (c *CachedBase) Pow(power *big.Int) (*Element, error) {
	result, err := Identity(c.base.discriminant)
	if err != nil {
		return nil, err
	}
	if power.Sign() == 0 {
		return result, nil
	}
	if err := c.ensureDepth(power.BitLen()); err != nil {
		return nil, err
	}
	for i := 0; i < power.BitLen(); i++ {
		if power.Bit(i) != 0 {
			result, err = result.compose(c.cache[i])
			if err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func (c *CachedBase) ensureDepth(depth int) error {
	have := len(c.cache)
	if have >= depth {
		return nil
	}
	var current *Element
	if have == 0 {
		current = c.base.Copy()
		c.cache = append(c.cache, current)
		have++
	} else {
		current = c.cache[have-1]
	}
	var err error
	for i := have; i < depth; i++ {
		current, err = current.square()
		if err != nil {
			return err
		}
		c.cache = append(c.cache, current)
	}
	return nil
}

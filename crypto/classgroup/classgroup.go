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

// Package classgroup implements Gauss composition, reduction, and
// exponentiation of reduced positive definite binary quadratic forms
// over a negative discriminant Δ ≡ 1 (mod 4), i.e. the class group
// Cl(Δ) of an imaginary quadratic field.
//
// The composition algorithm is NUCOMP, adapted from "Solving the Pell
// Equation" by Michael J. Jacobson, Jr. and Hugh C. Williams, itself
// adapted from Maxwell Sayles' libqform (mpz_qform.c).
package classgroup

import (
	"math/big"
	"reflect"

	"github.com/getamis/htp/crypto/utils"
	"github.com/getamis/htp/internal/herr"
)

var (
	big0 = big.NewInt(0)
	big1 = big.NewInt(1)
	big2 = big.NewInt(2)

	gmbLimbBits = 64
)

// Element is a reduced binary quadratic form (a, b, c) of discriminant
// Δ = b² − 4ac < 0: ax² + bxy + cy².
type Element struct {
	a *big.Int
	b *big.Int
	c *big.Int

	shanksBound  *big.Int
	discriminant *big.Int
}

// Identity returns the canonical principal form (1, 1, (1-Δ)/4) for
// the given discriminant.
func Identity(delta *big.Int) (*Element, error) {
	if delta.Sign() > -1 {
		return nil, herr.ErrPositiveDiscriminant
	}
	return newElement(new(big.Int).Set(big1), new(big.Int).Set(big1), delta)
}

// New constructs a form from (a, b, Δ), computing c, and reduces it.
func New(a, b, delta *big.Int) (*Element, error) {
	if delta.Sign() > -1 {
		return nil, herr.ErrPositiveDiscriminant
	}
	return newElement(a, b, delta)
}

func newElement(a, b, discriminant *big.Int) (*Element, error) {
	shanksBound := computeroot4thOver4(discriminant)
	bSquare := new(big.Int).Mul(b, b)
	c := new(big.Int).Sub(bSquare, discriminant)
	c.Div(c, a)
	c.Rsh(c, 2)
	e := &Element{
		a:            new(big.Int).Set(a),
		b:            new(big.Int).Set(b),
		c:            c,
		shanksBound:  shanksBound,
		discriminant: new(big.Int).Set(discriminant),
	}
	e.reduce()
	return e, nil
}

// A returns the a coefficient.
func (e *Element) A() *big.Int { return new(big.Int).Set(e.a) }

// B returns the b coefficient.
func (e *Element) B() *big.Int { return new(big.Int).Set(e.b) }

// C returns the c coefficient.
func (e *Element) C() *big.Int { return new(big.Int).Set(e.c) }

// Discriminant returns Δ.
func (e *Element) Discriminant() *big.Int { return new(big.Int).Set(e.discriminant) }

// Equal reports whether e and other have identical (a, b, c, Δ).
func (e *Element) Equal(other *Element) bool {
	return reflect.DeepEqual(e, other)
}

// Copy returns a deep copy of e.
func (e *Element) Copy() *Element {
	return &Element{
		a:            new(big.Int).Set(e.a),
		b:            new(big.Int).Set(e.b),
		c:            new(big.Int).Set(e.c),
		shanksBound:  new(big.Int).Set(e.shanksBound),
		discriminant: new(big.Int).Set(e.discriminant),
	}
}

// IsReduced reports whether (a, b, c) satisfies |b| ≤ a ≤ c with the
// canonical sign tie-break: b ≥ 0 whenever a = |b| or a = c.
func (e *Element) IsReduced() bool {
	absB := new(big.Int).Abs(e.b)
	if e.a.Cmp(absB) > 0 && e.c.Cmp(e.a) > 0 {
		return true
	}
	if e.a.Cmp(absB) == 0 && e.b.Sign() > -1 && e.a.Cmp(e.c) <= 0 {
		return true
	}
	if e.a.Cmp(e.c) == 0 && e.b.Sign() > -1 && absB.Cmp(e.a) <= 0 {
		return true
	}
	return false
}

// Inverse returns [a, -b, c], the group inverse of e.
func (e *Element) Inverse() *Element {
	result := &Element{
		a:            new(big.Int).Set(e.a),
		b:            new(big.Int).Neg(e.b),
		c:            new(big.Int).Set(e.c),
		shanksBound:  new(big.Int).Set(e.shanksBound),
		discriminant: new(big.Int).Set(e.discriminant),
	}
	result.reduce()
	return result
}

// Compose performs Gauss composition of e and other followed by
// reduction. The spec's simplified composition requires the forms'
// first coefficients to be coprime; ErrNonCoprimeForms is returned
// otherwise rather than falling back to the general (non-coprime)
// NUCOMP path.
func (e *Element) Compose(other *Element) (*Element, error) {
	if e.discriminant.Cmp(other.discriminant) != 0 {
		return nil, herr.ErrDifferentDiscriminant
	}
	if !utils.IsRelativePrime(e.a, other.a) {
		return nil, herr.ErrNonCoprimeForms
	}
	return e.compose(other)
}

// Square returns e ∘ e through NUCOMP's dedicated squaring path. Unlike
// Compose, it applies no coprimality check (the two first coefficients
// are always equal).
func (e *Element) Square() (*Element, error) {
	return e.square()
}

// Pow computes e^power via left-to-right square-and-multiply on the
// binary expansion of power. The loop runs exactly bit_length(power)
// iterations regardless of power's value, per the exponentiation
// contract: iteration count must not depend on the exponent's value
// for a fixed bit length.
func (e *Element) Pow(power *big.Int) (*Element, error) {
	if power.Sign() == 0 {
		return Identity(e.discriminant)
	}
	bitLen := power.BitLen()
	result, err := Identity(e.discriminant)
	if err != nil {
		return nil, err
	}
	base := e.Copy()
	for i := bitLen - 1; i >= 0; i-- {
		r, err := result.square()
		if err != nil {
			return nil, err
		}
		result = r
		if power.Bit(i) == 1 {
			r, err := result.compose(base)
			if err != nil {
				return nil, err
			}
			result = r
		}
	}
	return result, nil
}

func (e *Element) compose(other *Element) (*Element, error) {
	a1 := new(big.Int).Set(e.a)
	b1 := new(big.Int).Set(e.b)
	a2 := new(big.Int).Set(other.a)
	b2 := new(big.Int).Set(other.b)
	c2 := new(big.Int).Set(other.c)

	if a1.Cmp(a2) < 0 {
		a1 = new(big.Int).Set(other.a)
		b1 = new(big.Int).Set(other.b)
		a2 = new(big.Int).Set(e.a)
		b2 = new(big.Int).Set(e.b)
		c2 = new(big.Int).Set(e.c)
	}

	ss := new(big.Int).Add(b1, b2)
	ss.Rsh(ss, 1)
	m := new(big.Int).Sub(b1, b2)
	m.Rsh(m, 1)
	v1, _, sp := exGCD(a2, a1)
	k := new(big.Int).Mul(m, v1)
	k.Mod(k, a1)
	var s *big.Int
	if sp.Cmp(big1) != 0 {
		var u2, v2 *big.Int
		u2, v2, s = exGCD(sp, ss)
		k.Mul(k, u2)
		tempValue := new(big.Int).Mul(v2, c2)
		k.Sub(k, tempValue)
		if s.Cmp(big1) != 0 {
			a1.Div(a1, s)
			a2.Div(a2, s)
			c2.Mul(c2, s)
		}
		k.Mod(k, a1)
	}

	if a1.Cmp(e.shanksBound) < 0 {
		t := new(big.Int).Mul(a2, k)
		a := new(big.Int).Mul(a2, a1)
		b := new(big.Int).Lsh(t, 1)
		b.Add(b, b2)
		c := new(big.Int).Add(b2, t)
		c.Mul(c, k)
		c.Add(c, c2)
		c.Div(c, a1)
		result := &Element{
			a:            a,
			b:            b,
			c:            c,
			shanksBound:  new(big.Int).Set(e.shanksBound),
			discriminant: new(big.Int).Set(e.discriminant),
		}
		result.reduce()
		return result, nil
	}

	r2 := new(big.Int).Set(a1)
	r1 := new(big.Int).Set(k)
	c2Partial := big.NewInt(0)
	c1Partial := big.NewInt(-1)
	_, r1, c2Partial, c1Partial = partialGCD(r2, r1, c2Partial, c1Partial, e.shanksBound)
	t := new(big.Int).Mul(a2, r1)
	m1 := new(big.Int).Mul(m, c1Partial)
	m1.Add(m1, t)
	m1.Div(m1, a1)
	m2 := new(big.Int).Mul(ss, r1)
	tempValue := new(big.Int).Mul(c2, c1Partial)
	m2.Sub(m2, tempValue)
	m2.Div(m2, a1)
	a := new(big.Int).Mul(r1, m1)
	tempValue = new(big.Int).Mul(c1Partial, m2)
	a.Sub(a, tempValue)
	if c1Partial.Sign() > 0 {
		a.Neg(a)
	}
	b := new(big.Int).Mul(a, c2Partial)
	b.Sub(t, b)
	b.Lsh(b, 1)
	b.Div(b, c1Partial)
	b.Sub(b, b2)
	b.Mod(b, new(big.Int).Lsh(a, 1))
	if a.Sign() < 0 {
		a.Neg(a)
	}
	return newElement(a, b, e.discriminant)
}

func (e *Element) square() (*Element, error) {
	var a, b *big.Int
	a1 := new(big.Int).Set(e.a)
	b1 := new(big.Int).Set(e.b)
	c1 := new(big.Int).Set(e.c)
	_, v, s := exGCD(a1, b1)
	u := new(big.Int).Mul(v, e.c)
	u.Neg(u)
	if s.Cmp(big1) != 0 {
		a1.Div(a1, s)
		c1.Mul(c1, s)
	}
	u.Mod(u, a1)
	if a1.Cmp(e.shanksBound) < 1 {
		t := new(big.Int).Mul(a1, u)
		a = new(big.Int).Mul(a1, a1)
		b := new(big.Int).Lsh(t, 1)
		b.Add(b1, b)
		c := new(big.Int).Add(b1, t)
		c.Mul(c, u)
		c.Add(c, c1)
		c.Div(c, a1)
		result := &Element{
			a:            a,
			b:            b,
			c:            c,
			shanksBound:  new(big.Int).Set(e.shanksBound),
			discriminant: new(big.Int).Set(e.discriminant),
		}
		result.reduce()
		return result, nil
	}
	r2 := new(big.Int).Set(a1)
	r1 := new(big.Int).Set(u)
	c2 := big.NewInt(0)
	c1 := big.NewInt(-1)
	_, r1, c2, c1 = partialGCD(r2, r1, c2, c1, e.shanksBound)
	m2 := new(big.Int).Mul(r1, b1)
	tempValue := new(big.Int).Mul(s, c1)
	tempValue.Mul(tempValue, e.c)
	m2.Sub(m2, tempValue)
	m2.Div(m2, a1)
	tempValue = new(big.Int).Mul(r1, r1)
	a = new(big.Int).Mul(c1, m2)
	a.Sub(tempValue, a)
	if c1.Sign() > 0 {
		a.Neg(a)
	}
	b = new(big.Int).Mul(c2, a)
	tempValue = new(big.Int).Mul(r1, a1)
	b.Sub(tempValue, b)
	b.Div(new(big.Int).Lsh(b, 1), c1)
	b.Sub(b, b1)
	b.Mod(b, new(big.Int).Lsh(a, 1))
	if a.Sign() < 0 {
		a.Neg(a)
	}
	return newElement(a, b, e.discriminant)
}

func (e *Element) reduce() {
	negA := new(big.Int).Neg(e.a)
	if e.b.Cmp(negA) == 1 && e.b.Cmp(e.a) <= 0 {
		e.reductionMainStep()
		return
	}
	e.euclideanStep()
	e.reductionMainStep()
}

func (e *Element) reductionMainStep() {
	for !e.IsReduced() {
		if e.a.Cmp(e.c) > 0 {
			e.b.Neg(e.b)
			e.a, e.c = e.c, e.a
		} else if e.a.Cmp(e.c) == 0 && e.b.Sign() < 0 {
			e.b.Neg(e.b)
		}
		e.euclideanStep()
	}
}

// euclideanStep implements the reduction step of Algorithm 5.4.2 in
// Cohen's "A Course in Computational Algebraic Number Theory".
func (e *Element) euclideanStep() {
	r := big.NewInt(0)
	twiceA := new(big.Int).Lsh(e.a, 1)
	q, r := new(big.Int).DivMod(e.b, twiceA, r)

	if r.Cmp(e.a) > 0 {
		r.Sub(r, twiceA)
		q.Add(q, big1)
	}

	bPlusRQ := new(big.Int).Add(e.b, r)
	bPlusRQ.Mul(bPlusRQ, q)
	halfBPlusRQ := new(big.Int).Rsh(bPlusRQ, 1)
	e.c.Sub(e.c, halfBPlusRQ)
	e.b = r
}

// exGCD extends Euclid's algorithm to permit negative x, y: finds a, b
// such that ax + by = gcd(|x|, |y|). If y = 0, returns a = sign(x),
// b = 0, gcd = |x|.
func exGCD(x, y *big.Int) (*big.Int, *big.Int, *big.Int) {
	absX := new(big.Int).Abs(x)
	absY := new(big.Int).Abs(y)
	if y.Sign() == 0 {
		return new(big.Int).SetInt64(int64(x.Sign())), big.NewInt(0), absX
	}
	a, b := big.NewInt(0), big.NewInt(0)
	divisor := new(big.Int).GCD(a, b, absX, absY)
	if x.Sign() == -1 {
		if y.Sign() == -1 {
			return a.Neg(a), b.Neg(b), divisor
		}
		return a.Neg(a), b, divisor
	}
	if y.Sign() == -1 {
		return a, b.Neg(b), divisor
	}
	return a, b, divisor
}

// partialGCD runs Sayles' Lehmer-style partial extended Euclidean
// reduction used by NUCOMP's composition and squaring paths: it works
// on the leading 64-bit limbs and stops once the remainder drops to
// `bound`. The inner single-precision loop exits early on comparisons
// of its intermediate values, so the iteration count depends on the
// inputs.
// Ref: Chapter 5, "Improved Arithmetic in the Ideal Class Group of
// Imaginary Quadratic Number Fields", Maxwell Sayles.
func partialGCD(r2, r1, c2, c1, bound *big.Int) (*big.Int, *big.Int, *big.Int, *big.Int) {
	var a2, a1, b2, b1, t, t1, rr2, rr1, qq, bb int64
	var q, r *big.Int

	for r1.Sign() != 0 && r1.Cmp(bound) > 0 {
		t = int64(r2.BitLen() - gmbLimbBits + 1)
		t1 = int64(r1.BitLen() - gmbLimbBits + 1)
		if t < t1 {
			t = t1
		}
		if t < 0 {
			t = 0
		}
		r = new(big.Int).Rsh(r2, uint(t))
		rr2 = r.Int64()
		r = new(big.Int).Rsh(r1, uint(t))
		rr1 = r.Int64()
		r = new(big.Int).Rsh(bound, uint(t))
		bb = r.Int64()

		a2 = 0
		a1 = 1
		b2 = 1
		b1 = 0
		i := 0
		for rr1 != 0 && rr1 > bb {
			qq = rr2 / rr1
			t = rr2 - qq*rr1
			rr2 = rr1
			rr1 = t
			t = a2 - qq*a1
			a2 = a1
			a1 = t
			t = b2 - qq*b1
			b2 = b1
			b1 = t
			if (i & 1) > 0 {
				if (rr1 < -b1) || (rr2-rr1 < a1-a2) {
					break
				}
			} else {
				if (rr1 < -a1) || (rr2-rr1 < b1-b2) {
					break
				}
			}
			i++
		}
		if i == 0 {
			q, r = new(big.Int).DivMod(r2, r1, r)
			r2 = new(big.Int).Set(r1)
			r1 = r
			tempValue := new(big.Int).Set(c1)
			r = new(big.Int).Mul(q, c1)
			c1.Sub(c2, r)
			c2 = tempValue
		} else {
			t1p := new(big.Int).Mul(r2, new(big.Int).SetInt64(b2))
			t2p := new(big.Int).Mul(r1, new(big.Int).SetInt64(a2))
			r.Add(t1p, t2p)
			t1p.Mul(r2, new(big.Int).SetInt64(b1))
			t2p.Mul(r1, new(big.Int).SetInt64(a1))
			r1.Add(t1p, t2p)
			r2 = new(big.Int).Set(r)
			t1p.Mul(c2, new(big.Int).SetInt64(b2))
			t2p.Mul(c1, new(big.Int).SetInt64(a2))
			r.Add(t1p, t2p)
			t1p.Mul(c2, new(big.Int).SetInt64(b1))
			t2p.Mul(c1, new(big.Int).SetInt64(a1))
			c1.Add(t1p, t2p)
			c2 = new(big.Int).Set(r)
			if r1.Sign() < 0 {
				r1.Neg(r1)
				c1.Neg(c1)
			}
			if r2.Sign() < 0 {
				r2.Neg(r2)
				c2.Neg(c2)
			}
		}
	}
	if r2.Sign() < 0 {
		r2.Neg(r2)
		c2.Neg(c2)
		c1.Neg(c1)
	}
	return r2, r1, c2, c1
}

// computeroot4thOver4 computes floor((|Δ|/4)^(1/4)), the Shanks bound
// used to select between NUCOMP's fast path and the partial-GCD path.
func computeroot4thOver4(value *big.Int) *big.Int {
	absValue := new(big.Int).Abs(value)
	pqOver4 := new(big.Int).Rsh(absValue, 2)
	pqOver4 = new(big.Int).Sqrt(pqOver4)
	return new(big.Int).Sqrt(pqOver4)
}

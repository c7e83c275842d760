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

package params

import (
	"math/big"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var testSeed = []byte("seed_len_at_least_32_bytes_padding")

var _ = Describe("params", func() {
	It("FromSeed() is deterministic", func() {
		d1, err := FromSeed(testSeed, 256)
		Expect(err).Should(BeNil())
		d2, err := FromSeed(testSeed, 256)
		Expect(err).Should(BeNil())
		Expect(d1).Should(Equal(d2))
	})

	It("FromSeed() returns Δ ≡ 1 (mod 4), negative, prime magnitude", func() {
		delta, err := FromSeed(testSeed, 256)
		Expect(err).Should(BeNil())
		Expect(delta.Sign()).Should(Equal(-1))

		mod4 := new(big.Int).Mod(delta, big.NewInt(4))
		Expect(mod4).Should(Equal(big.NewInt(1)))

		absDelta := new(big.Int).Abs(delta)
		Expect(absDelta.ProbablyPrime(MillerRabinRounds)).Should(BeTrue())
	})

	It("DeriveGenerator() returns a non-identity reduced form satisfying b² - 4ac = Δ", func() {
		delta, err := FromSeed(testSeed, 64)
		Expect(err).Should(BeNil())

		gen, err := DeriveGenerator(delta)
		Expect(err).Should(BeNil())
		Expect(gen.IsReduced()).Should(BeTrue())

		lhs := new(big.Int).Mul(gen.B(), gen.B())
		ac := new(big.Int).Mul(gen.A(), gen.C())
		lhs.Sub(lhs, ac.Lsh(ac, 2))
		Expect(lhs).Should(Equal(delta))

		Expect(gen.A().Cmp(big.NewInt(1)) == 0 && gen.B().Cmp(big.NewInt(1)) == 0).Should(BeFalse())
	})
})

func TestParams(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Params Test")
}

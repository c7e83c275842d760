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

import (
	"math/big"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("cache", func() {
	var base *Element
	var c *CachedBase

	BeforeEach(func() {
		var err error
		base, err = New(big.NewInt(2), big.NewInt(1), big.NewInt(-23))
		Expect(err).Should(BeNil())
		c = NewCachedBase(base)
	})

	It("Base() returns the wrapped element", func() {
		Expect(c.Base()).Should(Equal(base))
	})

	It("Pow(0) is identity without building any cache", func() {
		got, err := c.Pow(big0)
		Expect(err).Should(BeNil())
		id, err := Identity(base.discriminant)
		Expect(err).Should(BeNil())
		Expect(got).Should(Equal(id))
		Expect(c.cache).Should(BeEmpty())
	})

	It("Pow() matches plain exponentiation and extends the cache lazily", func() {
		power := big.NewInt(11)
		want, err := base.Pow(power)
		Expect(err).Should(BeNil())

		got, err := c.Pow(power)
		Expect(err).Should(BeNil())
		Expect(got).Should(Equal(want))
		Expect(c.cache).Should(HaveLen(power.BitLen()))
	})

	It("Pow() reuses a cache already deep enough for a smaller exponent", func() {
		_, err := c.Pow(big.NewInt(11))
		Expect(err).Should(BeNil())
		depth := len(c.cache)

		want, err := base.Pow(big.NewInt(3))
		Expect(err).Should(BeNil())
		got, err := c.Pow(big.NewInt(3))
		Expect(err).Should(BeNil())
		Expect(got).Should(Equal(want))
		Expect(c.cache).Should(HaveLen(depth))
	})
})

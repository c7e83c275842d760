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
package utils

import (
	"math/big"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestUtils(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Utils Suite")
}

var _ = Describe("Utils", func() {
	It("IsRelativePrime()", func() {
		num1 := big.NewInt(5)
		num2 := big.NewInt(8)
		Expect(IsRelativePrime(num1, num2)).Should(BeTrue())
	})

	It("Gcd()", func() {
		num1 := big.NewInt(5)
		num2 := big.NewInt(10)
		result := Gcd(num1, num2)
		Expect(result).Should(Equal(num1))

		num2 = big.NewInt(8)
		result = Gcd(num1, num2)
		Expect(result).Should(Equal(big1))
	})
})

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

package tensor

import (
	"math/big"
	"testing"

	"github.com/getamis/htp/crypto/affine"
	"github.com/getamis/htp/crypto/classgroup"
	"github.com/getamis/htp/internal/herr"
	"github.com/stretchr/testify/require"
)

var testDelta = big.NewInt(-23)

func newTestTensor(t *testing.T, d, l int) *Tensor {
	tt, err := New(d, l, testDelta, Options{})
	require.NoError(t, err)
	return tt
}

func TestNewRejectsOutOfRangeDimensions(t *testing.T) {
	_, err := New(0, 100, testDelta, Options{})
	require.ErrorIs(t, err, herr.ErrInvalidDimensions)

	_, err = New(21, 100, testDelta, Options{})
	require.ErrorIs(t, err, herr.ErrInvalidDimensions)
}

func TestEmptyTensorRootIsIdentity(t *testing.T) {
	tt := newTestTensor(t, 4, 100)
	root, err := tt.GlobalRoot()
	require.NoError(t, err)
	id, err := affine.Identity(testDelta)
	require.NoError(t, err)
	require.True(t, root.Equal(id))
}

func TestGetOnUnoccupiedCoordinateIsIdentity(t *testing.T) {
	tt := newTestTensor(t, 4, 100)
	coord := tt.MapIDToCoordinate("Eve_999")
	got, err := tt.Get(coord)
	require.NoError(t, err)
	id, err := affine.Identity(testDelta)
	require.NoError(t, err)
	require.True(t, got.Equal(id))
}

func TestInsertInvalidatesCache(t *testing.T) {
	tt := newTestTensor(t, 4, 100)
	_, err := tt.GlobalRoot()
	require.NoError(t, err)
	require.NotNil(t, tt.cachedRoot)

	tuple := &affine.Tuple{P: big.NewInt(7)}
	tuple.Q, err = identityQ(t)
	require.NoError(t, err)

	err = tt.Insert("Alice_001", tuple)
	require.NoError(t, err)
	require.Nil(t, tt.cachedRoot)
}

func TestInsertMergesOnCollidingCoordinate(t *testing.T) {
	tt := newTestTensor(t, 1, 1) // side length 1: every id maps to the same coordinate
	q, err := identityQ(t)
	require.NoError(t, err)

	err = tt.Insert("a", &affine.Tuple{P: big.NewInt(3), Q: q})
	require.NoError(t, err)
	err = tt.Insert("b", &affine.Tuple{P: big.NewInt(5), Q: q})
	require.NoError(t, err)

	require.Equal(t, 1, tt.Len())
	got, err := tt.Get(Coordinate{0})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(15), got.P)
}

func TestSingleInsertRootEqualsInsertedTuple(t *testing.T) {
	tt := newTestTensor(t, 4, 100)
	q, err := classgroup.New(big.NewInt(2), big.NewInt(1), testDelta)
	require.NoError(t, err)
	tuple := &affine.Tuple{P: big.NewInt(7), Q: q}

	err = tt.Insert("Alice_001", tuple)
	require.NoError(t, err)

	root, err := tt.GlobalRoot()
	require.NoError(t, err)
	require.True(t, root.Equal(tuple))
}

func TestInsertWithGeneratorCacheMatchesUncachedMerge(t *testing.T) {
	gen, err := classgroup.New(big.NewInt(2), big.NewInt(1), testDelta)
	require.NoError(t, err)

	plain, err := New(1, 1, testDelta, Options{})
	require.NoError(t, err)
	cached, err := New(1, 1, testDelta, Options{GeneratorCache: classgroup.NewCachedBase(gen)})
	require.NoError(t, err)

	for _, tt := range []*Tensor{plain, cached} {
		require.NoError(t, tt.Insert("a", &affine.Tuple{P: big.NewInt(3), Q: gen.Copy()}))
		require.NoError(t, tt.Insert("b", &affine.Tuple{P: big.NewInt(5), Q: gen.Copy()}))
	}

	plainTuple, err := plain.Get(Coordinate{0})
	require.NoError(t, err)
	cachedTuple, err := cached.Get(Coordinate{0})
	require.NoError(t, err)
	require.True(t, plainTuple.Equal(cachedTuple))
}

func TestCapacityGuard(t *testing.T) {
	tt := newTestTensor(t, 4, 100)
	tt.capacity = 0
	q, err := identityQ(t)
	require.NoError(t, err)
	err = tt.Insert("anyone", &affine.Tuple{P: big.NewInt(3), Q: q})
	require.ErrorIs(t, err, herr.ErrCapacityReached)
}

func TestMapIDToCoordinateIsDeterministicAndInRange(t *testing.T) {
	tt := newTestTensor(t, 5, 37)
	c1 := tt.MapIDToCoordinate("Alice_001")
	c2 := tt.MapIDToCoordinate("Alice_001")
	require.Equal(t, c1, c2)
	require.Len(t, c1, 5)
	for _, v := range c1 {
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 37)
	}
}

func identityQ(t *testing.T) (*classgroup.Element, error) {
	return classgroup.Identity(testDelta)
}

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

package wire

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/getamis/htp/crypto/affine"
)

var testDelta = big.NewInt(-23)

func TestBigIntRoundTripsPositiveNegativeAndZero(t *testing.T) {
	cases := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(-1),
		big.NewInt(255),
		big.NewInt(-255),
		big.NewInt(128),
		big.NewInt(-128),
		new(big.Int).Lsh(big.NewInt(1), 4096),
		new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 4096)),
	}
	for _, want := range cases {
		le := toTwosComplementLE(want)
		got := fromTwosComplementLE(le)
		require.Equal(t, 0, want.Cmp(got), "value %s round-tripped as %s", want, got)
	}
}

func TestBigIntCBORRoundTrip(t *testing.T) {
	want := NewBigInt(big.NewInt(-123456789))
	data, err := EncodeResponse(&Response{Kind: ResponseError, ErrorMessage: "noop"})
	require.NoError(t, err)
	_ = data

	encoded, err := want.MarshalCBOR()
	require.NoError(t, err)

	var got BigInt
	require.NoError(t, got.UnmarshalCBOR(encoded))
	require.Equal(t, 0, want.Int.Cmp(got.Int))
}

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{
		Kind:   RequestGetProof,
		Header: Header{Version: ProtocolVersion, Timestamp: 1700000000, RequestID: 42},
		UserID: "Alice_001",
	}
	data, err := EncodeRequest(req)
	require.NoError(t, err)

	got, err := DecodeRequest(data)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestResponseRoundTripWithTuples(t *testing.T) {
	id, err := affine.Identity(testDelta)
	require.NoError(t, err)

	resp := &Response{
		Kind:              ResponseProofBundle,
		RequestID:         7,
		PrimaryPath:       []Tuple{ToWire(id)},
		OrthogonalAnchors: []Tuple{ToWire(id), ToWire(id)},
		Epoch:             3,
	}
	data, err := EncodeResponse(resp)
	require.NoError(t, err)

	got, err := DecodeResponse(data)
	require.NoError(t, err)
	require.Equal(t, resp.Kind, got.Kind)
	require.Equal(t, resp.RequestID, got.RequestID)
	require.Len(t, got.PrimaryPath, 1)
	require.Len(t, got.OrthogonalAnchors, 2)

	tuple, err := FromWire(got.PrimaryPath[0], testDelta)
	require.NoError(t, err)
	require.True(t, tuple.Equal(id))
}

func TestDecodeRejectsOversizedInput(t *testing.T) {
	oversized := make([]byte, DecodeMaxBytes+1)
	_, err := DecodeRequest(oversized)
	require.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeRequest([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}

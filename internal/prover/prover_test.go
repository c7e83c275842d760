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

package prover

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/getamis/htp/crypto/params"
	"github.com/getamis/htp/crypto/primes"
	"github.com/getamis/htp/internal/tensor"
	"github.com/getamis/htp/wire"
)

const testSeed = "seed_len_at_least_32_bytes_padding!"

var bigOne = big.NewInt(1)

func newTestService(t *testing.T) *Service {
	t.Helper()
	delta, err := params.FromSeed([]byte(testSeed), 128)
	require.NoError(t, err)
	gen, err := params.DeriveGenerator(delta)
	require.NoError(t, err)
	tt, err := tensor.New(4, 100, delta, tensor.Options{})
	require.NoError(t, err)
	svc := NewService(tt, gen, Config{})
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return svc
}

func header(svc *Service, requestID uint64) wire.Header {
	return wire.Header{
		Version:   wire.ProtocolVersion,
		Timestamp: uint64(svc.now().Unix()),
		RequestID: requestID,
	}
}

func TestEmptyRootIsIdentity(t *testing.T) {
	svc := newTestService(t)
	resp := svc.HandleRequest(&wire.Request{
		Kind:   wire.RequestGetGlobalRoot,
		Header: header(svc, 1),
	})
	require.Equal(t, wire.ResponseGlobalRoot, resp.Kind)
	require.Equal(t, 0, resp.Root.P.Int.Cmp(bigOne))
}

func TestRegisterThenRootMatchesDerivedPrime(t *testing.T) {
	svc := newTestService(t)

	regResp := svc.HandleRequest(&wire.Request{
		Kind:   wire.RequestRegisterUser,
		Header: header(svc, 1),
		UserID: "Alice_001",
	})
	require.Equal(t, wire.ResponseRegisterSuccess, regResp.Kind)
	require.Equal(t, uint64(2), regResp.Epoch)

	rootResp := svc.HandleRequest(&wire.Request{
		Kind:   wire.RequestGetGlobalRoot,
		Header: header(svc, 2),
	})
	require.Equal(t, wire.ResponseGlobalRoot, rootResp.Kind)

	wantP, err := primes.HashToPrime([]byte("Alice_001"), RegisterPrimeBits)
	require.NoError(t, err)
	require.Equal(t, 0, rootResp.Root.P.Int.Cmp(wantP))
}

func TestMembershipProofForRegisteredUser(t *testing.T) {
	svc := newTestService(t)
	svc.HandleRequest(&wire.Request{
		Kind:   wire.RequestRegisterUser,
		Header: header(svc, 1),
		UserID: "Alice_001",
	})

	proofResp := svc.HandleRequest(&wire.Request{
		Kind:   wire.RequestGetProof,
		Header: header(svc, 2),
		UserID: "Alice_001",
	})
	require.Equal(t, wire.ResponseProofBundle, proofResp.Kind)
	require.Len(t, proofResp.PrimaryPath, 1)

	wantP, err := primes.HashToPrime([]byte("Alice_001"), RegisterPrimeBits)
	require.NoError(t, err)
	require.Equal(t, 0, proofResp.PrimaryPath[0].P.Int.Cmp(wantP))
}

func TestProofForUnregisteredUserIsDummy(t *testing.T) {
	svc := newTestService(t)
	proofResp := svc.HandleRequest(&wire.Request{
		Kind:   wire.RequestGetProof,
		Header: header(svc, 1),
		UserID: "Eve_999",
	})
	require.Equal(t, wire.ResponseProofBundle, proofResp.Kind)
	require.Len(t, proofResp.PrimaryPath, svc.tensor.Dimensions())
	require.Empty(t, proofResp.OrthogonalAnchors)
	for _, tup := range proofResp.PrimaryPath {
		require.Equal(t, 0, tup.P.Int.Cmp(bigOne))
	}
}

func TestChallengeAxisIsDeterministicAcrossInstances(t *testing.T) {
	svc1 := newTestService(t)
	svc2 := newTestService(t)

	for _, svc := range []*Service{svc1, svc2} {
		svc.HandleRequest(&wire.Request{
			Kind:   wire.RequestRegisterUser,
			Header: header(svc, 1),
			UserID: "Alice_001",
		})
	}

	root1, err := svc1.tensor.GlobalRoot()
	require.NoError(t, err)
	root2, err := svc2.tensor.GlobalRoot()
	require.NoError(t, err)

	a1, err := challengeAxis(root1.P, []byte("Alice_001"), svc1.tensor.Dimensions())
	require.NoError(t, err)
	a2, err := challengeAxis(root2.P, []byte("Alice_001"), svc2.tensor.Dimensions())
	require.NoError(t, err)
	require.Equal(t, a1, a2)
}

func TestBadVersionIsRejected(t *testing.T) {
	svc := newTestService(t)
	h := header(svc, 1)
	h.Version = 99
	resp := svc.HandleRequest(&wire.Request{Kind: wire.RequestGetGlobalRoot, Header: h})
	require.Equal(t, wire.ResponseError, resp.Kind)
}

func TestStaleTimestampIsRejected(t *testing.T) {
	svc := newTestService(t)
	h := header(svc, 1)
	h.Timestamp -= 3600
	resp := svc.HandleRequest(&wire.Request{Kind: wire.RequestGetGlobalRoot, Header: h})
	require.Equal(t, wire.ResponseError, resp.Kind)
}

func TestReRegisterMergesRatherThanErrors(t *testing.T) {
	svc := newTestService(t)
	for i := 0; i < 2; i++ {
		resp := svc.HandleRequest(&wire.Request{
			Kind:   wire.RequestRegisterUser,
			Header: header(svc, uint64(i)),
			UserID: "Alice_001",
		})
		require.Equal(t, wire.ResponseRegisterSuccess, resp.Kind)
	}
	require.Equal(t, 1, svc.tensor.Len())
}

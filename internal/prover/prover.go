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

// Package prover implements the Prover service: request validation,
// challenge-axis derivation, dummy-proof privacy, and the length-
// delimited TCP transport that stands in for the spec's out-of-scope
// QUIC/TLS collaborator (see SPEC_FULL.md §6).
package prover

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/getamis/htp/crypto/affine"
	"github.com/getamis/htp/crypto/classgroup"
	"github.com/getamis/htp/crypto/primes"
	"github.com/getamis/htp/internal/herr"
	"github.com/getamis/htp/internal/persist"
	"github.com/getamis/htp/internal/proof"
	"github.com/getamis/htp/internal/tensor"
	"github.com/getamis/htp/logger"
	"github.com/getamis/htp/wire"
	"github.com/zeebo/blake3"
)

// RequestMaxBytes bounds the number of bytes read off a single framed
// request (spec floor: 1 MiB), independent of wire.DecodeMaxBytes.
const RequestMaxBytes = 1 * 1024 * 1024

// MaxConnections is the spec floor on concurrent inbound connections.
const MaxConnections = 10_000

// ClockSkew bounds how far a request timestamp may drift from now.
const ClockSkew = 60 * time.Second

// RegisterPrimeBits is the bit size used for RegisterUser's derived
// prime (spec.md §4.8: hash_to_prime(user_id, 64)).
const RegisterPrimeBits = 64

// Config configures a Service beyond the tensor and generator it
// wraps.
type Config struct {
	RequestMaxBytes int
	MaxConnections  int64
	SnapshotPath    string
}

func (c Config) withDefaults() Config {
	if c.RequestMaxBytes <= 0 {
		c.RequestMaxBytes = RequestMaxBytes
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = MaxConnections
	}
	return c
}

// Service dispatches validated requests against a shared tensor. The
// tensor already owns its own reader/writer lock (§5); Service adds
// the connection-admission semaphore and the wire/transport glue.
type Service struct {
	tensor    *tensor.Tensor
	generator *classgroup.Element
	cfg       Config
	conns     *semaphore.Weighted

	now func() time.Time
}

// NewService wires a tensor and a non-identity generator into a
// Service. generator is used to form the affine tuple registered for
// each new user (P, generator_Δ).
func NewService(t *tensor.Tensor, generator *classgroup.Element, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		tensor:    t,
		generator: generator,
		cfg:       cfg,
		conns:     semaphore.NewWeighted(cfg.MaxConnections),
		now:       time.Now,
	}
}

// HandleRequest validates and dispatches a single decoded request,
// producing the response that would be written back to the wire.
// Internal errors never reach the caller as Go errors past this
// point; they are always collapsed into a wire.Response of kind
// ResponseError (§7 propagation policy).
func (s *Service) HandleRequest(req *wire.Request) *wire.Response {
	if err := s.validateHeader(req.Header); err != nil {
		return errorResponse(req.Header.RequestID, err)
	}

	switch req.Kind {
	case wire.RequestGetProof:
		return s.handleGetProof(req)
	case wire.RequestGetGlobalRoot:
		return s.handleGetGlobalRoot(req)
	case wire.RequestRegisterUser:
		return s.handleRegisterUser(req)
	default:
		return errorResponse(req.Header.RequestID, herr.ErrProtocolError)
	}
}

func (s *Service) validateHeader(h wire.Header) error {
	if h.Version != wire.ProtocolVersion {
		return herr.ErrProtocolError
	}
	now := s.now().Unix()
	ts := int64(h.Timestamp)
	drift := now - ts
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(ClockSkew.Seconds()) {
		return herr.ErrProtocolError
	}
	return nil
}

func (s *Service) handleGetGlobalRoot(req *wire.Request) *wire.Response {
	root, err := s.tensor.GlobalRoot()
	if err != nil {
		logger.Logger().Warn("failed to compute global root", "err", err)
		return errorResponse(req.Header.RequestID, err)
	}
	w := wire.ToWire(root)
	return &wire.Response{
		Kind:      wire.ResponseGlobalRoot,
		RequestID: req.Header.RequestID,
		Root:      &w,
	}
}

func (s *Service) handleGetProof(req *wire.Request) *wire.Response {
	coord := s.tensor.MapIDToCoordinate(req.UserID)

	root, err := s.tensor.GlobalRoot()
	if err != nil {
		logger.Logger().Warn("failed to compute global root", "user", strconv.Quote(req.UserID), "err", err)
		return errorResponse(req.Header.RequestID, err)
	}

	axis, err := challengeAxis(root.P, []byte(req.UserID), s.tensor.Dimensions())
	if err != nil {
		logger.Logger().Warn("failed to derive challenge axis", "err", err)
		return errorResponse(req.Header.RequestID, err)
	}

	bundle, err := proof.Extract(s.tensor, coord, axis)
	if err != nil {
		logger.Logger().Warn("failed to extract proof", "user", strconv.Quote(req.UserID), "err", err)
		return errorResponse(req.Header.RequestID, err)
	}

	primaryPath := make([]wire.Tuple, len(bundle.PrimaryPath))
	for i, tup := range bundle.PrimaryPath {
		primaryPath[i] = wire.ToWire(tup)
	}
	anchors := make([]wire.Tuple, len(bundle.OrthogonalAnchors))
	for i, tup := range bundle.OrthogonalAnchors {
		anchors[i] = wire.ToWire(tup)
	}

	return &wire.Response{
		Kind:              wire.ResponseProofBundle,
		RequestID:         req.Header.RequestID,
		PrimaryPath:       primaryPath,
		OrthogonalAnchors: anchors,
		Epoch:             s.tensor.Epoch(),
	}
}

func (s *Service) handleRegisterUser(req *wire.Request) *wire.Response {
	p, err := primes.HashToPrime([]byte(req.UserID), RegisterPrimeBits)
	if err != nil {
		logger.Logger().Warn("prime derivation failed", "user", strconv.Quote(req.UserID), "err", err)
		return errorResponse(req.Header.RequestID, err)
	}

	tuple := &affine.Tuple{P: p, Q: s.generator.Copy()}
	if err := s.tensor.Insert(req.UserID, tuple); err != nil {
		logger.Logger().Warn("insert failed", "user", strconv.Quote(req.UserID), "err", err)
		return errorResponse(req.Header.RequestID, err)
	}

	if s.cfg.SnapshotPath != "" {
		if err := persist.Save(s.tensor, s.cfg.SnapshotPath); err != nil {
			logger.Logger().Warn("snapshot save failed", "path", s.cfg.SnapshotPath, "err", err)
		}
	}

	epoch := s.tensor.BumpEpoch()
	logger.Logger().Info("registered user", "user", strconv.Quote(req.UserID), "epoch", epoch)

	return &wire.Response{
		Kind:      wire.ResponseRegisterSuccess,
		RequestID: req.Header.RequestID,
		Epoch:     epoch,
	}
}

func errorResponse(requestID uint64, err error) *wire.Response {
	msg := herr.SanitizedMessage
	if errors.Is(err, herr.ErrProtocolError) {
		msg = "protocol error: bad version or stale timestamp"
	}
	return &wire.Response{
		Kind:         wire.ResponseError,
		RequestID:    requestID,
		ErrorMessage: msg,
	}
}

// challengeAxis derives α ∈ [0, d) by Fiat-Shamir rejection sampling:
// seed = LE(rootP) || userID; for ctr = 0, 1, ... hash in le64(ctr),
// take the first 8 bytes as a big-endian u64 v, and accept α = v mod d
// once v falls below the largest multiple of d that fits in 64 bits
// (avoiding modulo bias).
func challengeAxis(rootP *big.Int, userID []byte, d int) (int, error) {
	if d <= 0 {
		return 0, herr.ErrProtocolError
	}
	be := rootP.Bytes()
	seed := make([]byte, len(be))
	for i, v := range be {
		seed[len(be)-1-i] = v
	}
	limit := new(big.Int).Quo(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(int64(d)))
	limit.Mul(limit, big.NewInt(int64(d)))

	for ctr := uint64(0); ctr < 1<<20; ctr++ {
		h := blake3.New()
		h.Write(seed)
		h.Write(userID)
		var ctrBytes [8]byte
		binary.LittleEndian.PutUint64(ctrBytes[:], ctr)
		h.Write(ctrBytes[:])

		out := make([]byte, 8)
		digest := h.Digest()
		_, _ = digest.Read(out)

		v := binary.BigEndian.Uint64(out)
		vBig := new(big.Int).SetUint64(v)
		if vBig.Cmp(limit) < 0 {
			return int(v % uint64(d)), nil
		}
	}
	return 0, herr.ErrProtocolError
}

// Serve accepts connections on ln until ctx is cancelled, admitting at
// most cfg.MaxConnections concurrently. Each connection carries a
// single 4-byte big-endian length-prefixed request, handled inline,
// then a single length-prefixed response before the connection is
// closed - the cryptographic work never suspends mid-lock (§5).
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if err := s.conns.Acquire(ctx, 1); err != nil {
			_ = conn.Close()
			continue
		}
		go func() {
			defer s.conns.Release(1)
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Service) handleConn(conn net.Conn) {
	raw, err := wire.ReadFramed(conn, s.cfg.RequestMaxBytes)
	if err != nil {
		logger.Logger().Warn("failed to read request", "err", err)
		return
	}

	req, err := wire.DecodeRequest(raw)
	if err != nil {
		resp := errorResponse(0, herr.ErrProtocolError)
		_ = writeResponse(conn, resp)
		return
	}

	resp := s.HandleRequest(req)
	if err := writeResponse(conn, resp); err != nil {
		logger.Logger().Warn("failed to write response", "err", err)
	}
}

func writeResponse(conn net.Conn, resp *wire.Response) error {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return wire.WriteFramed(conn, data)
}

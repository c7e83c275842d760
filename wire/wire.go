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

// Package wire implements the binary, length-limited (de)serialization
// of Prover requests, responses, and affine tuples. The codec is CBOR
// (github.com/fxamacker/cbor/v2), with BigInt fields carried as
// length-prefixed two's-complement little-endian byte strings, per
// spec.md §6.
package wire

import (
	"encoding/binary"
	"io"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/getamis/htp/crypto/affine"
	"github.com/getamis/htp/crypto/classgroup"
	"github.com/getamis/htp/internal/herr"
)

// ProtocolVersion is the only header version this codec accepts.
const ProtocolVersion uint16 = 1

// DecodeMaxBytes bounds the size of any single decoded message (spec
// floor: 5 MiB). Trailing bytes past a successfully decoded value are
// permitted and ignored by cbor's stream decoder.
const DecodeMaxBytes = 5 * 1024 * 1024

// maxNestedLevels and maxArrayElements guard against adversarially
// deep or wide CBOR structures within the byte budget above.
const (
	maxNestedLevels  = 32
	maxArrayElements = 1 << 20
	maxMapPairs      = 1 << 16
)

var decMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		MaxNestedLevels:  maxNestedLevels,
		MaxArrayElements: maxArrayElements,
		MaxMapPairs:      maxMapPairs,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// BigInt carries an arbitrary-precision integer on the wire as a
// length-prefixed two's-complement little-endian byte string (CBOR
// byte strings are already length-prefixed, which is what satisfies
// that requirement here).
type BigInt struct {
	*big.Int
}

// NewBigInt wraps x for wire transmission. A nil x encodes as zero.
func NewBigInt(x *big.Int) BigInt {
	if x == nil {
		return BigInt{big.NewInt(0)}
	}
	return BigInt{x}
}

// MarshalCBOR implements cbor.Marshaler.
func (b BigInt) MarshalCBOR() ([]byte, error) {
	x := b.Int
	if x == nil {
		x = big.NewInt(0)
	}
	return cbor.Marshal(toTwosComplementLE(x))
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (b *BigInt) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Int = fromTwosComplementLE(raw)
	return nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// toTwosComplementLE renders x as the little-endian, minimal-length
// two's-complement encoding of its value.
func toTwosComplementLE(x *big.Int) []byte {
	if x.Sign() == 0 {
		return []byte{0}
	}
	if x.Sign() > 0 {
		be := x.Bytes()
		if be[0]&0x80 != 0 {
			be = append([]byte{0}, be...)
		}
		return reverseBytes(be)
	}
	abs := new(big.Int).Abs(x)
	n := len(abs.Bytes())
	mod := new(big.Int).Lsh(big.NewInt(1), uint(n*8))
	twos := new(big.Int).Sub(mod, abs)
	be := twos.Bytes()
	if len(be) < n {
		padded := make([]byte, n)
		copy(padded[n-len(be):], be)
		be = padded
	}
	if be[0]&0x80 == 0 {
		be = append([]byte{0xff}, be...)
	}
	return reverseBytes(be)
}

// fromTwosComplementLE is the inverse of toTwosComplementLE.
func fromTwosComplementLE(le []byte) *big.Int {
	if len(le) == 0 {
		return big.NewInt(0)
	}
	be := reverseBytes(le)
	if be[0]&0x80 == 0 {
		return new(big.Int).SetBytes(be)
	}
	val := new(big.Int).SetBytes(be)
	mod := new(big.Int).Lsh(big.NewInt(1), uint(len(be)*8))
	return new(big.Int).Sub(val, mod)
}

// Header is the common prefix of every request.
type Header struct {
	Version   uint16 `cbor:"1,keyasint"`
	Timestamp uint64 `cbor:"2,keyasint"`
	RequestID uint64 `cbor:"3,keyasint"`
}

// RequestKind tags the union of request variants.
type RequestKind uint8

const (
	// RequestGetProof asks for a membership proof bundle for a user.
	RequestGetProof RequestKind = iota + 1
	// RequestGetGlobalRoot asks for the current global root tuple.
	RequestGetGlobalRoot
	// RequestRegisterUser enrolls (or re-enrolls) a user identifier.
	RequestRegisterUser
)

// Request is the tagged union of GetProof / GetGlobalRoot /
// RegisterUser. UserID is present for GetProof and RegisterUser only.
type Request struct {
	Kind   RequestKind `cbor:"1,keyasint"`
	Header Header      `cbor:"2,keyasint"`
	UserID string      `cbor:"3,keyasint,omitempty"`
}

// ResponseKind tags the union of response variants.
type ResponseKind uint8

const (
	// ResponseProofBundle carries a membership proof (or privacy dummy).
	ResponseProofBundle ResponseKind = iota + 1
	// ResponseGlobalRoot carries the current global root tuple.
	ResponseGlobalRoot
	// ResponseRegisterSuccess acknowledges a successful registration.
	ResponseRegisterSuccess
	// ResponseError carries a sanitized error message only.
	ResponseError
)

// Tuple is the wire form of an affine.Tuple: (P, (a, b, c)).
type Tuple struct {
	P BigInt `cbor:"1,keyasint"`
	A BigInt `cbor:"2,keyasint"`
	B BigInt `cbor:"3,keyasint"`
	C BigInt `cbor:"4,keyasint"`
}

// ToWire converts a core affine.Tuple into its wire representation.
func ToWire(t *affine.Tuple) Tuple {
	return Tuple{
		P: NewBigInt(t.P),
		A: NewBigInt(t.Q.A()),
		B: NewBigInt(t.Q.B()),
		C: NewBigInt(t.Q.C()),
	}
}

// FromWire reconstructs an affine.Tuple over delta from its wire form.
func FromWire(w Tuple, delta *big.Int) (*affine.Tuple, error) {
	q, err := classgroup.New(w.A.Int, w.B.Int, delta)
	if err != nil {
		return nil, err
	}
	return &affine.Tuple{P: new(big.Int).Set(w.P.Int), Q: q}, nil
}

// Response is the tagged union of ProofBundle / GlobalRoot /
// RegisterSuccess / Error. Fields not relevant to Kind are zero.
type Response struct {
	Kind              ResponseKind `cbor:"1,keyasint"`
	RequestID         uint64       `cbor:"2,keyasint"`
	PrimaryPath       []Tuple      `cbor:"3,keyasint,omitempty"`
	OrthogonalAnchors []Tuple      `cbor:"4,keyasint,omitempty"`
	Epoch             uint64       `cbor:"5,keyasint,omitempty"`
	Root              *Tuple       `cbor:"6,keyasint,omitempty"`
	ErrorMessage      string       `cbor:"7,keyasint,omitempty"`
}

// EncodeRequest serializes req.
func EncodeRequest(req *Request) ([]byte, error) {
	return cbor.Marshal(req)
}

// DecodeRequest deserializes buf into a Request, rejecting any input
// larger than DecodeMaxBytes.
func DecodeRequest(buf []byte) (*Request, error) {
	if len(buf) > DecodeMaxBytes {
		return nil, herr.ErrProtocolError
	}
	var req Request
	if err := decMode.Unmarshal(buf, &req); err != nil {
		return nil, herr.ErrProtocolError
	}
	return &req, nil
}

// EncodeResponse serializes resp.
func EncodeResponse(resp *Response) ([]byte, error) {
	return cbor.Marshal(resp)
}

// DecodeResponse deserializes buf into a Response, rejecting any input
// larger than DecodeMaxBytes.
func DecodeResponse(buf []byte) (*Response, error) {
	if len(buf) > DecodeMaxBytes {
		return nil, herr.ErrProtocolError
	}
	var resp Response
	if err := decMode.Unmarshal(buf, &resp); err != nil {
		return nil, herr.ErrProtocolError
	}
	return &resp, nil
}

// ReadFramed reads a 4-byte big-endian length prefix followed by that
// many bytes, rejecting anything beyond maxBytes (0 means unbounded).
// This is the transport-level envelope every request and response
// shares (spec.md §6: "Binary, length-delimited at the transport
// layer").
func ReadFramed(r io.Reader, maxBytes int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if maxBytes > 0 && int(n) > maxBytes {
		return nil, herr.ErrProtocolError
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFramed writes data behind its 4-byte big-endian length prefix.
func WriteFramed(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

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

// Package persist saves and reloads a single full HyperTensor
// snapshot: (d, L, Δ, data, epoch), per spec.md §6 "Persisted state".
// The authoritative body is the wire codec's binary encoding; a small
// YAML sidecar next to it carries the same (d, L, epoch) fields purely
// for human inspection, modeled on the teacher's example/config
// YAML read/write helpers. cached_root is never persisted.
package persist

import (
	"os"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v2"

	"github.com/getamis/htp/internal/tensor"
	"github.com/getamis/htp/wire"
)

// fileEntry is the CBOR-friendly mirror of tensor.SnapshotEntry.
type fileEntry struct {
	Coord []int     `cbor:"1,keyasint"`
	Tuple wire.Tuple `cbor:"2,keyasint"`
}

// fileSnapshot is the CBOR-friendly mirror of tensor.Snapshot.
type fileSnapshot struct {
	Dimensions int          `cbor:"1,keyasint"`
	SideLength int          `cbor:"2,keyasint"`
	Delta      wire.BigInt  `cbor:"3,keyasint"`
	Entries    []fileEntry  `cbor:"4,keyasint"`
	Epoch      uint64       `cbor:"5,keyasint"`
}

// Sidecar is the human-readable metadata written alongside the binary
// snapshot body. It is derived, not authoritative: reload always
// parses the binary body; the sidecar is never read back.
type Sidecar struct {
	Dimensions int    `yaml:"dimensions"`
	SideLength int    `yaml:"sideLength"`
	Epoch      uint64 `yaml:"epoch"`
}

// Save writes the tensor's snapshot to path (binary body) and
// path+".yaml" (sidecar metadata).
func Save(t *tensor.Tensor, path string) error {
	snap := t.Snapshot()

	fs := fileSnapshot{
		Dimensions: snap.Dimensions,
		SideLength: snap.SideLength,
		Delta:      wire.NewBigInt(snap.Delta),
		Epoch:      snap.Epoch,
	}
	for _, e := range snap.Entries {
		fs.Entries = append(fs.Entries, fileEntry{
			Coord: []int(e.Coord),
			Tuple: wire.ToWire(e.Tuple),
		})
	}

	body, err := cbor.Marshal(fs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return err
	}

	sidecar, err := yaml.Marshal(Sidecar{
		Dimensions: snap.Dimensions,
		SideLength: snap.SideLength,
		Epoch:      snap.Epoch,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path+".yaml", sidecar, 0o644)
}

// Load rebuilds a Tensor from the binary snapshot body at path.
func Load(path string, opts tensor.Options) (*tensor.Tensor, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fs fileSnapshot
	if err := cbor.Unmarshal(body, &fs); err != nil {
		return nil, err
	}

	snap := tensor.Snapshot{
		Dimensions: fs.Dimensions,
		SideLength: fs.SideLength,
		Delta:      fs.Delta.Int,
		Epoch:      fs.Epoch,
	}
	for _, e := range fs.Entries {
		tup, err := wire.FromWire(e.Tuple, fs.Delta.Int)
		if err != nil {
			return nil, err
		}
		snap.Entries = append(snap.Entries, tensor.SnapshotEntry{
			Coord: tensor.Coordinate(e.Coord),
			Tuple: tup,
		})
	}
	return tensor.FromSnapshot(snap, opts)
}

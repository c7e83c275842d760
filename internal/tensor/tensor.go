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

// Package tensor implements the sparse d-dimensional HyperTensor store
// and its folding engine: a map from coordinate to affine tuple, with
// collision-safe merge-insert and a cached, invalidated-on-write global
// root computed by a non-commutative, axis-ordered sparse fold.
//
// Concurrency follows the teacher corpus' reader/writer-lock manager
// pattern (cf. the alert-manager idiom of a mutex-guarded struct with
// map/slice state): reads take the read lock; inserts and cache fills
// take the write lock; the cache is filled via double-checked locking.
package tensor

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/getamis/htp/crypto/affine"
	"github.com/getamis/htp/crypto/classgroup"
	"github.com/getamis/htp/internal/herr"
	"github.com/zeebo/blake3"
)

// DefaultCapacity is the spec floor for the tensor's population cap.
const DefaultCapacity = 10_000_000

const coordDomainTag = ":htp:coord:v2"

// Coordinate is a vector of d indices, each in [0, L).
type Coordinate []int

func (c Coordinate) key() string {
	var sb strings.Builder
	for i, v := range c {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", v)
	}
	return sb.String()
}

type entry struct {
	coord Coordinate
	tuple *affine.Tuple
}

// Tensor is the HyperTensor state: (d, L, Δ, data, cached_root, epoch).
type Tensor struct {
	mu sync.RWMutex

	d              int
	sideLength     int
	delta          *big.Int
	pMaxBits       int
	capacity       int
	data           map[string]*entry
	cachedRoot     *affine.Tuple
	epoch          uint64
	generatorCache *classgroup.CachedBase
}

// Options configures a Tensor beyond its required (d, L, Δ).
type Options struct {
	PMaxBits int
	Capacity int
	// GeneratorCache, when set, accelerates the Q1^P2 step of a merge
	// landing on a coordinate whose occupant is still the bare
	// RegisterUser generator (see affine.Tuple.ComposeWithBaseCache).
	GeneratorCache *classgroup.CachedBase
}

// New constructs an empty HyperTensor with epoch 1. d must be in
// [1, 20].
func New(d, sideLength int, delta *big.Int, opts Options) (*Tensor, error) {
	if d < 1 || d > 20 {
		return nil, herr.ErrInvalidDimensions
	}
	if opts.PMaxBits <= 0 {
		opts.PMaxBits = affine.DefaultPMaxBits
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &Tensor{
		d:              d,
		sideLength:     sideLength,
		delta:          new(big.Int).Set(delta),
		pMaxBits:       opts.PMaxBits,
		capacity:       opts.Capacity,
		data:           make(map[string]*entry),
		epoch:          1,
		generatorCache: opts.GeneratorCache,
	}, nil
}

// Dimensions returns d.
func (t *Tensor) Dimensions() int { return t.d }

// SideLength returns L.
func (t *Tensor) SideLength() int { return t.sideLength }

// Discriminant returns Δ.
func (t *Tensor) Discriminant() *big.Int { return new(big.Int).Set(t.delta) }

// Epoch returns the current snapshot epoch label.
func (t *Tensor) Epoch() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.epoch
}

// Len returns the number of occupied coordinates.
func (t *Tensor) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// MapIDToCoordinate hashes a user identifier to a coordinate using
// ≥128 bits of digest entropy: digest = H(user_id || ":htp:coord:v2"),
// interpreted as a little-endian 128-bit value v, decomposed by
// successive mod-L, div-L per dimension.
func (t *Tensor) MapIDToCoordinate(userID string) Coordinate {
	h := blake3.New()
	h.Write([]byte(userID))
	h.Write([]byte(coordDomainTag))
	digest := make([]byte, 16)
	d := h.Digest()
	_, _ = d.Read(digest)

	v := new(big.Int).SetBytes(reverseBytes(digest))
	l := big.NewInt(int64(t.sideLength))
	coord := make(Coordinate, t.d)
	for i := 0; i < t.d; i++ {
		rem := new(big.Int)
		v.DivMod(v, l, rem)
		coord[i] = int(rem.Int64())
	}
	return coord
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// Insert places newTuple at the coordinate derived from userID, or
// composes it into the existing tuple there (merge semantics: tuples
// are never deleted or overwritten wholesale). Any successful insert
// invalidates the cached root. A composition failure leaves the
// tensor's data unchanged.
func (t *Tensor) Insert(userID string, newTuple *affine.Tuple) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.data) >= t.capacity {
		return herr.ErrCapacityReached
	}

	coord := t.MapIDToCoordinate(userID)
	key := coord.key()
	if existing, ok := t.data[key]; ok {
		merged, err := existing.tuple.ComposeWithBaseCache(newTuple, t.pMaxBits, t.generatorCache)
		if err != nil {
			return err
		}
		existing.tuple = merged
	} else {
		t.data[key] = &entry{coord: coord, tuple: newTuple}
	}
	t.cachedRoot = nil
	return nil
}

// Get returns the tuple at coord, or identity if coord is unoccupied -
// absence is semantically identity, which is what makes the sparse
// fold well-defined.
func (t *Tensor) Get(coord Coordinate) (*affine.Tuple, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.data[coord.key()]; ok {
		return e.tuple.Copy(), nil
	}
	return affine.Identity(t.delta)
}

// Contains reports whether coord is occupied, without allocating an
// identity tuple for the miss case.
func (t *Tensor) Contains(coord Coordinate) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.data[coord.key()]
	return ok
}

// GlobalRoot returns the cached root, computing and caching it first
// if stale. Implements the double-checked read-lock/write-lock-upgrade
// discipline: readers observe the cache under a read lock; on a miss,
// the write lock is acquired, the cache is rechecked (another writer
// may have filled it), and only then is fold_sparse run.
func (t *Tensor) GlobalRoot() (*affine.Tuple, error) {
	t.mu.RLock()
	if t.cachedRoot != nil {
		r := t.cachedRoot
		t.mu.RUnlock()
		return r, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cachedRoot == nil {
		entries := t.allEntries()
		root, err := t.foldAxes(allAxes(t.d), entries)
		if err != nil {
			return nil, err
		}
		t.cachedRoot = root
	}
	return t.cachedRoot, nil
}

func (t *Tensor) allEntries() []*entry {
	out := make([]*entry, 0, len(t.data))
	for _, e := range t.data {
		out = append(out, e)
	}
	return out
}

func allAxes(d int) []int {
	axes := make([]int, d)
	for i := range axes {
		axes[i] = i
	}
	return axes
}

// foldAxes recursively folds entries over the given ordered list of
// axes: fold_sparse(dim, entries) generalized to an arbitrary axis
// sequence so the same recursion serves both the whole-tensor root
// (axes = [0..d)) and an orthogonal anchor (axes = [0..d) minus the
// fixed one). Partitioning within each axis is by ascending key, since
// compose is non-commutative and every party must use the same order.
func (t *Tensor) foldAxes(axes []int, entries []*entry) (*affine.Tuple, error) {
	if len(entries) == 0 {
		return affine.Identity(t.delta)
	}
	if len(axes) == 0 {
		// Every axis is fixed: entries names exactly one coordinate's
		// occupant, the leaf tuple itself rather than identity.
		return entries[0].tuple.Copy(), nil
	}

	dim := axes[0]
	rest := axes[1:]

	groups := make(map[int][]*entry)
	for _, e := range entries {
		k := e.coord[dim]
		groups[k] = append(groups[k], e)
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	acc, err := affine.Identity(t.delta)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		sub, err := t.foldAxes(rest, groups[k])
		if err != nil {
			return nil, err
		}
		acc, err = acc.Compose(sub, t.pMaxBits)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// AxisRoot folds the sub-tensor of entries sharing coord's index along
// the given axis over every other axis (ascending order, axis
// excluded). This backs a proof bundle's orthogonal anchor for that
// axis: a real sub-tensor root rather than an identity placeholder.
func (t *Tensor) AxisRoot(coord Coordinate, axis int) (*affine.Tuple, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	fixedValue := coord[axis]
	var filtered []*entry
	for _, e := range t.data {
		if e.coord[axis] == fixedValue {
			filtered = append(filtered, e)
		}
	}

	rest := make([]int, 0, t.d-1)
	for i := 0; i < t.d; i++ {
		if i != axis {
			rest = append(rest, i)
		}
	}
	return t.foldAxes(rest, filtered)
}

// Snapshot returns the data needed to persist the tensor: every
// (user-coordinate, tuple) pair plus (d, L, Δ, epoch). cached_root is
// deliberately excluded, matching the persisted-state contract.
func (t *Tensor) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]SnapshotEntry, 0, len(t.data))
	for _, e := range t.data {
		entries = append(entries, SnapshotEntry{Coord: append(Coordinate(nil), e.coord...), Tuple: e.tuple})
	}
	return Snapshot{
		Dimensions: t.d,
		SideLength: t.sideLength,
		Delta:      new(big.Int).Set(t.delta),
		Entries:    entries,
		Epoch:      t.epoch,
	}
}

// SnapshotEntry is one persisted (coordinate, tuple) pair.
type SnapshotEntry struct {
	Coord Coordinate
	Tuple *affine.Tuple
}

// Snapshot is the single full-snapshot persisted representation of a
// Tensor: (d, L, Δ, data, epoch).
type Snapshot struct {
	Dimensions int
	SideLength int
	Delta      *big.Int
	Entries    []SnapshotEntry
	Epoch      uint64
}

// FromSnapshot rebuilds a Tensor from a persisted Snapshot. The first
// GlobalRoot() call after reload recomputes and caches.
func FromSnapshot(snap Snapshot, opts Options) (*Tensor, error) {
	t, err := New(snap.Dimensions, snap.SideLength, snap.Delta, opts)
	if err != nil {
		return nil, err
	}
	for _, e := range snap.Entries {
		t.data[e.Coord.key()] = &entry{coord: e.Coord, tuple: e.Tuple}
	}
	t.epoch = snap.Epoch
	return t, nil
}

// BumpEpoch increments and returns the epoch label; the Prover calls
// it after every successful registration, whether or not a snapshot
// was written.
func (t *Tensor) BumpEpoch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch++
	return t.epoch
}

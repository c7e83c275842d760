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

// Package proof extracts membership proof bundles from a tensor: a
// primary path along the challenged axis plus one orthogonal anchor
// per remaining axis, or an indistinguishable all-identity dummy
// bundle when the coordinate is unoccupied.
package proof

import (
	"github.com/getamis/htp/crypto/affine"
	"github.com/getamis/htp/internal/tensor"
)

// Bundle is a membership proof for some coordinate under a challenged
// axis. It deliberately omits the coordinate itself, to avoid leaking
// a user's bucket assignment.
type Bundle struct {
	PrimaryPath       []*affine.Tuple
	OrthogonalAnchors []*affine.Tuple
}

// Extract builds the bundle for coord under the challenged axis. The
// primary path is pinned to the spec minimum: a single leaf element
// (data.get(coord)); no segment-tree-style aggregation schedule is
// layered on top (see the design notes on this open question). Each
// orthogonal anchor is a real sub-tensor root - the fold of every
// entry sharing coord's index on that axis, over every other axis in
// ascending order - rather than an identity placeholder.
func Extract(t *tensor.Tensor, coord tensor.Coordinate, axis int) (*Bundle, error) {
	if !t.Contains(coord) {
		return dummy(t)
	}

	leaf, err := t.Get(coord)
	if err != nil {
		return nil, err
	}

	anchors := make([]*affine.Tuple, 0, t.Dimensions()-1)
	for a := 0; a < t.Dimensions(); a++ {
		if a == axis {
			continue
		}
		anchor, err := t.AxisRoot(coord, a)
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, anchor)
	}

	return &Bundle{
		PrimaryPath:       []*affine.Tuple{leaf},
		OrthogonalAnchors: anchors,
	}, nil
}

// dummy returns an all-identity bundle: d identity tuples in the
// primary path and no orthogonal anchors. Indistinguishable from a
// legitimately identity-valued bundle, which is the privacy property
// absent users rely on.
func dummy(t *tensor.Tensor) (*Bundle, error) {
	path := make([]*affine.Tuple, t.Dimensions())
	for i := range path {
		id, err := affine.Identity(t.Discriminant())
		if err != nil {
			return nil, err
		}
		path[i] = id
	}
	return &Bundle{PrimaryPath: path, OrthogonalAnchors: nil}, nil
}

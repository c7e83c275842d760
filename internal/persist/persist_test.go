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

package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/getamis/htp/crypto/affine"
	"github.com/getamis/htp/crypto/params"
	"github.com/getamis/htp/crypto/primes"
	"github.com/getamis/htp/internal/tensor"
)

const testSeed = "seed_len_at_least_32_bytes_padding!"

func TestSaveLoadRoundTripsDataAndEpoch(t *testing.T) {
	delta, err := params.FromSeed([]byte(testSeed), 128)
	require.NoError(t, err)
	gen, err := params.DeriveGenerator(delta)
	require.NoError(t, err)

	tt, err := tensor.New(3, 50, delta, tensor.Options{})
	require.NoError(t, err)

	for _, id := range []string{"Alice_001", "Bob_002", "Carol_003"} {
		p, err := primes.HashToPrime([]byte(id), 64)
		require.NoError(t, err)
		require.NoError(t, tt.Insert(id, &affine.Tuple{P: p, Q: gen.Copy()}))
	}
	wantRoot, err := tt.GlobalRoot()
	require.NoError(t, err)
	tt.BumpEpoch()

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.bin")
	require.NoError(t, Save(tt, path))

	reloaded, err := Load(path, tensor.Options{})
	require.NoError(t, err)

	require.Equal(t, tt.Dimensions(), reloaded.Dimensions())
	require.Equal(t, tt.SideLength(), reloaded.SideLength())
	require.Equal(t, 0, tt.Discriminant().Cmp(reloaded.Discriminant()))
	require.Equal(t, tt.Epoch(), reloaded.Epoch())
	require.Equal(t, tt.Len(), reloaded.Len())

	gotRoot, err := reloaded.GlobalRoot()
	require.NoError(t, err)
	require.True(t, wantRoot.Equal(gotRoot))

	sidecar, err := os.ReadFile(path + ".yaml")
	require.NoError(t, err)
	require.Contains(t, string(sidecar), "epoch:")
}

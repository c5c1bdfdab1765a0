// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hashtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashFn(t *testing.T) {
	seen := make(map[uint64]struct{})
	for i := uint64(0); i < 10000; i++ {
		h := wyhash64(i)
		require.Equal(t, h, wyhash64(i))
		seen[h] = struct{}{}
	}
	require.Equal(t, 10000, len(seen))
}

func TestReduce(t *testing.T) {
	const n = 37
	buckets := make([]int, n)
	for i := uint64(0); i < 37000; i++ {
		r := reduce(wyhash64(i), n)
		require.Less(t, r, uint64(n))
		buckets[r]++
	}
	for _, b := range buckets {
		require.Greater(t, b, 500)
	}
	require.Equal(t, uint64(0), reduce(0, n))
	require.Equal(t, uint64(n-1), reduce(^uint64(0), n))
}

func TestStep(t *testing.T) {
	const mask = 1023
	for i := uint64(0); i < 1000; i++ {
		s := step(wyhash64(i), mask)
		require.Equal(t, uint64(1), s&1)
		require.LessOrEqual(t, s, uint64(mask))
	}
}

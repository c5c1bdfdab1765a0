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

package testutil

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/relcore/pkg/common/malloc"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/device"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// NewProcess returns a process on a fresh device with the minimum block
// size, so small inputs already span several blocks. The cleanup checks
// that the call arena is empty and that every output buffer was freed.
func NewProcess(t testing.TB, workers int) *process.Process {
	dev, err := device.New(t.Name(), workers, device.MinBlockSize)
	require.NoError(t, err)
	allocator := malloc.NewLimitAllocator(malloc.NewGoAllocator(), 1<<30)
	proc, err := process.New(context.Background(), dev, allocator, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.Equal(t, int64(0), proc.Mp().CurrNB())
		require.Equal(t, uint64(0), allocator.InUse())
		proc.Free()
		require.NoError(t, dev.Close())
	})
	return proc
}

// NewVector wraps vs, marking the rows listed in nulls invalid.
func NewVector[T types.FixedSizeT](oid types.T, vs []T, nulls ...int) *vector.Vector {
	vec := vector.NewFixed(oid, vs)
	for _, i := range nulls {
		vec.SetNull(i)
	}
	return vec
}

func NewInt64Vector(n int, random bool, vs []int64) *vector.Vector {
	if vs != nil {
		return vector.NewFixed(types.T_int64, vs)
	}
	vals := make([]int64, n)
	for i := range vals {
		v := int64(i)
		if random {
			v = rand.Int63()
		}
		vals[i] = v
	}
	return vector.NewFixed(types.T_int64, vals)
}

func NewFloat64Vector(n int, random bool, vs []float64) *vector.Vector {
	if vs != nil {
		return vector.NewFixed(types.T_float64, vs)
	}
	vals := make([]float64, n)
	for i := range vals {
		v := float64(i)
		if random {
			v = rand.Float64()
		}
		vals[i] = v
	}
	return vector.NewFixed(types.T_float64, vals)
}

// KeyGen describes a synthetic join or group key column.
type KeyGen struct {
	Rows int
	// Dup is the mean number of rows per distinct key, at least 1.
	Dup int
	// NullRatio is the fraction of null rows.
	NullRatio float64
}

// GenKeys draws an int64 key column from r. Keys fall in
// [0, Rows/Dup) so two columns generated with the same Rows and Dup overlap.
func GenKeys(r *rand.Rand, g KeyGen) *vector.Vector {
	dup := g.Dup
	if dup < 1 {
		dup = 1
	}
	card := int64(g.Rows / dup)
	if card < 1 {
		card = 1
	}
	vals := make([]int64, g.Rows)
	vec := vector.NewFixed(types.T_int64, vals)
	for i := range vals {
		vals[i] = r.Int63n(card)
		if g.NullRatio > 0 && r.Float64() < g.NullRatio {
			vec.SetNull(i)
		}
	}
	return vec
}

// GenValues draws a float64 value column from r.
func GenValues(r *rand.Rand, n int) *vector.Vector {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = r.Float64() * 100
	}
	return vector.NewFixed(types.T_float64, vals)
}

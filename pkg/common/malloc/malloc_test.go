// Copyright 2024 Matrix Origin
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

package malloc

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

func testAllocator(t *testing.T, newAllocator func() Allocator) {
	t.Run("allocate", func(t *testing.T) {
		allocator := newAllocator()
		for _, size := range []uint64{1, 8, 4096, managedMinMapSize, 1 * MB} {
			slice, dec, err := allocator.Allocate(size, 0)
			require.NoError(t, err)
			require.Equal(t, int(size), len(slice))
			for _, b := range slice {
				require.Equal(t, byte(0), b)
			}
			slice[0] = 42
			slice[len(slice)-1] = 42
			dec.Deallocate(0)
		}
	})

	t.Run("zero size", func(t *testing.T) {
		allocator := newAllocator()
		slice, dec, err := allocator.Allocate(0, 0)
		require.NoError(t, err)
		require.Empty(t, slice)
		dec.Deallocate(0)
	})

	t.Run("parallel", func(t *testing.T) {
		allocator := newAllocator()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 64; j++ {
					slice, dec, err := allocator.Allocate(uint64(i*j+1), NoClear)
					require.NoError(t, err)
					slice[0] = byte(i)
					dec.Deallocate(NoClear)
				}
			}(i)
		}
		wg.Wait()
	})
}

func TestGoAllocator(t *testing.T) {
	testAllocator(t, func() Allocator {
		return NewGoAllocator()
	})
}

func TestManagedAllocator(t *testing.T) {
	testAllocator(t, func() Allocator {
		return NewManagedAllocator()
	})

	m := NewManagedAllocator()
	_, dec, err := m.Allocate(2*MB, 0)
	require.NoError(t, err)
	if mmapSupported {
		require.Equal(t, int64(2*MB), m.MappedBytes())
		require.Equal(t, int64(1), m.Regions())
	}
	dec.Deallocate(0)
	require.Equal(t, int64(0), m.MappedBytes())
	require.Equal(t, int64(0), m.Regions())
}

func TestLimitAllocator(t *testing.T) {
	testAllocator(t, func() Allocator {
		return NewLimitAllocator(NewGoAllocator(), 16*MB)
	})

	l := NewLimitAllocator(NewGoAllocator(), 1024)
	_, dec1, err := l.Allocate(1000, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), l.InUse())

	_, _, err = l.Allocate(25, 0)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	require.Equal(t, uint64(1000), l.InUse())

	_, dec2, err := l.Allocate(24, 0)
	require.NoError(t, err)
	require.Equal(t, l.Limit(), l.InUse())

	dec1.Deallocate(0)
	dec2.Deallocate(0)
	require.Equal(t, uint64(0), l.InUse())
}

func TestMetricsAllocator(t *testing.T) {
	testAllocator(t, func() Allocator {
		return NewMetricsAllocator(NewGoAllocator())
	})
}

func TestNewStrategyAllocator(t *testing.T) {
	ctx := context.Background()
	for _, s := range []string{"", StrategyGo, StrategyManaged} {
		a, err := NewStrategyAllocator(ctx, s, 0)
		require.NoError(t, err)
		require.NotNil(t, a)
	}

	a, err := NewStrategyAllocator(ctx, StrategyGo, 10)
	require.NoError(t, err)
	_, _, err = a.Allocate(11, 0)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))

	_, err = NewStrategyAllocator(ctx, "pooled", 0)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
}

func TestChainDeallocator(t *testing.T) {
	var order []int
	dec := ChainDeallocator(
		DeallocatorFunc(func(Hints) { order = append(order, 1) }),
		nil,
		ChainDeallocator(
			DeallocatorFunc(func(Hints) { order = append(order, 2) }),
			DeallocatorFunc(func(Hints) { order = append(order, 3) }),
		),
	)
	dec.Deallocate(0)
	require.Equal(t, []int{1, 2, 3}, order)
}

func BenchmarkManagedAllocFree(b *testing.B) {
	allocator := NewManagedAllocator()
	for i := 0; i < b.N; i++ {
		_, dec, err := allocator.Allocate(1*MB, 0)
		if err != nil {
			b.Fatal(err)
		}
		dec.Deallocate(0)
	}
}

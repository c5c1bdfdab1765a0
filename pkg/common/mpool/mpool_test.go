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

package mpool

import (
	"context"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/relcore/pkg/common/malloc"
	"github.com/matrixorigin/relcore/pkg/common/malloc/mock_malloc"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

func BenchmarkMP(b *testing.B) {
	pool, err := NewMPool("default", 0, nil)
	if err != nil {
		panic(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, err := pool.Alloc(8)
		if err != nil {
			panic(err)
		}
		pool.Free(buf)
	}
}

func TestMPool(t *testing.T) {
	m, err := NewMPool("test-mpool-small", 0, nil)
	require.True(t, err == nil, "new mpool failed %v", err)

	nb0 := m.CurrNB()
	hw0 := m.Stats().HighWaterMark.Load()
	nalloc0 := m.Stats().NumAlloc.Load()
	nfree0 := m.Stats().NumFree.Load()

	require.True(t, nalloc0 == 0, "bad nalloc")
	require.True(t, nfree0 == 0, "bad nfree")

	for i := 1; i <= 1000; i++ {
		a, err := m.Alloc(i * 10)
		require.True(t, err == nil, "alloc failure, %v", err)
		require.True(t, len(a) == i*10, "allocation i size error")
		a[0] = 0xF0
		require.True(t, a[1] == 0, "allocation result not zeroed.")
		a[i*10-1] = 0xBA
		a, err = m.Realloc(a, i*20)
		require.True(t, err == nil, "realloc failure %v", err)
		require.True(t, len(a) == i*20, "allocation i size error")
		require.True(t, a[0] == 0xF0, "reallocation not copied")
		require.True(t, a[i*10-1] == 0xBA, "reallocation not copied")
		require.True(t, a[i*10] == 0, "reallocation not zeroed")
		m.Free(a)
	}

	require.True(t, nb0 == m.CurrNB(), "leak")
	// realloc holds both the old and the new buffer at its peak
	require.True(t, hw0+1000*30 == m.Stats().HighWaterMark.Load(), "hw")
	require.True(t, nalloc0+1000*2 == m.Stats().NumAlloc.Load(), "alloc")
	require.True(t, m.Stats().NumAlloc.Load() == m.Stats().NumFree.Load(), "free")
}

func TestMP(t *testing.T) {
	pool, err := NewMPool("default", 0, nil)
	require.NoError(t, err)
	var wg sync.WaitGroup
	run := func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			buf, err := pool.Alloc(10)
			if err != nil {
				panic(err)
			}
			pool.Free(buf)
		}
	}
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go run()
	}
	wg.Wait()
	require.Equal(t, int64(0), pool.CurrNB())
}

func TestMPoolCap(t *testing.T) {
	m, err := NewMPool("capped", 100, nil)
	require.NoError(t, err)
	a, err := m.Alloc(60)
	require.NoError(t, err)
	_, err = m.Alloc(41)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	b, err := m.Alloc(40)
	require.NoError(t, err)
	m.Free(a)
	m.Free(b)
	require.Equal(t, int64(0), m.CurrNB())

	_, err = NewMPool("bad", -1, nil)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
	_, err = m.Alloc(-1)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
}

func TestMPoolCapConcurrent(t *testing.T) {
	const (
		workers = 16
		size    = 64
		limit   = 10 * size
	)
	m, err := NewMPool("capped", limit, nil)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		got  [][]byte
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 4; j++ {
				bs, err := m.Alloc(size)
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				} else {
					got = append(got, bs)
				}
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	// nothing is freed, so exactly limit/size allocations fit
	require.Equal(t, limit/size, len(got))
	require.Equal(t, workers*4-limit/size, len(errs))
	for _, err := range errs {
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	}
	require.LessOrEqual(t, m.Stats().HighWaterMark.Load(), int64(limit))
	require.Equal(t, int64(limit), m.CurrNB())
	for _, bs := range got {
		m.Free(bs)
	}
	require.Equal(t, int64(0), m.CurrNB())
}

func TestMPoolRelease(t *testing.T) {
	m := MustNewZero()
	for i := 1; i <= 10; i++ {
		_, err := m.Alloc(i)
		require.NoError(t, err)
	}
	xs, err := MakeSlice[int64](m, 100)
	require.NoError(t, err)
	require.Equal(t, 100, len(xs))
	require.Equal(t, int64(55+800), m.CurrNB())
	require.Equal(t, 11, m.Release())
	require.Equal(t, int64(0), m.CurrNB())
	require.Equal(t, 0, m.Release())
}

func TestMPoolFreeUnknown(t *testing.T) {
	m := MustNewZero()
	a, err := m.Alloc(16)
	require.NoError(t, err)
	m.Free(a)
	require.Panics(t, func() { m.Free(a) })
	require.NotPanics(t, func() { m.Free(nil) })
}

func TestTypedSlice(t *testing.T) {
	m := MustNewZero()
	fs, err := MakeSlice[float64](m, 7)
	require.NoError(t, err)
	for i := range fs {
		require.Equal(t, float64(0), fs[i])
		fs[i] = float64(i) * 1.5
	}
	require.Equal(t, int64(56), m.CurrNB())

	us, err := MakeSliceNoClear[uint32](m, 3)
	require.NoError(t, err)
	require.Equal(t, 3, len(us))

	empty, err := MakeSlice[int8](m, 0)
	require.NoError(t, err)
	require.Nil(t, empty)

	FreeSlice(m, fs)
	FreeSlice(m, us)
	FreeSlice(m, empty)
	require.Equal(t, int64(0), m.CurrNB())
}

func TestMPoolAllocatorFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	allocator := mock_malloc.NewMockAllocator(ctrl)
	allocator.EXPECT().Allocate(uint64(128), malloc.Hints(0)).
		Return(nil, nil, moerr.NewOOM(context.Background(), 128))

	m, err := NewMPool("mock", 0, allocator)
	require.NoError(t, err)
	_, err = m.Alloc(128)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	require.Equal(t, int64(0), m.CurrNB())
	require.Equal(t, int64(0), m.Stats().NumAlloc.Load())
}

func TestMPoolDeallocates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dec := mock_malloc.NewMockDeallocator(ctrl)
	dec.EXPECT().Deallocate(gomock.Any()).Times(1)
	allocator := mock_malloc.NewMockAllocator(ctrl)
	allocator.EXPECT().Allocate(uint64(32), gomock.Any()).
		Return(make([]byte, 32), dec, nil)

	m, err := NewMPool("mock", 0, allocator)
	require.NoError(t, err)
	_, err = m.Alloc(32)
	require.NoError(t, err)
	require.Equal(t, 1, m.Release())
}

func TestBuffer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dec := mock_malloc.NewMockDeallocator(ctrl)
	dec.EXPECT().Deallocate(gomock.Any()).Times(1)
	allocator := mock_malloc.NewMockAllocator(ctrl)
	allocator.EXPECT().Allocate(uint64(8), malloc.NoClear).
		Return(make([]byte, 8), dec, nil)

	buf, err := NewBuffer(allocator, 8, malloc.NoClear)
	require.NoError(t, err)
	require.Equal(t, 8, buf.Len())
	require.Equal(t, int32(1), buf.Refs())

	buf.IncRef()
	require.Equal(t, int32(2), buf.Refs())
	buf.Free()
	require.Equal(t, 8, len(buf.Bytes()))
	buf.Free()
	require.Nil(t, buf.Bytes())
	require.Panics(t, func() { buf.Free() })

	wrapped := WrapBuffer([]byte{1, 2, 3})
	require.Equal(t, 3, wrapped.Len())
	wrapped.Free()
}

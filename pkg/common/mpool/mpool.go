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

// Package mpool implements the per-call scratch arena. Every buffer an
// operator needs for the duration of one call is taken from an MPool and
// the whole pool is released when the call returns, on success or failure.
package mpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/matrixorigin/relcore/pkg/common/malloc"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

const (
	NoLimit = 0
)

type MPoolStats struct {
	NumAlloc      atomic.Int64
	NumFree       atomic.Int64
	NumCurrBytes  atomic.Int64
	HighWaterMark atomic.Int64
}

func (s *MPoolStats) String() string {
	return fmt.Sprintf("alloc %d, free %d, curr %d bytes, hwm %d bytes",
		s.NumAlloc.Load(), s.NumFree.Load(),
		s.NumCurrBytes.Load(), s.HighWaterMark.Load())
}

// reserve claims sz bytes against limit before the memory is allocated.
func (s *MPoolStats) reserve(sz, limit int64) (int64, bool) {
	if limit <= NoLimit {
		return s.NumCurrBytes.Add(sz), true
	}
	for {
		curr := s.NumCurrBytes.Load()
		if curr+sz > limit {
			return curr, false
		}
		if s.NumCurrBytes.CompareAndSwap(curr, curr+sz) {
			return curr + sz, true
		}
	}
}

func (s *MPoolStats) recordAlloc(curr int64) {
	s.NumAlloc.Add(1)
	for {
		hwm := s.HighWaterMark.Load()
		if curr <= hwm || s.HighWaterMark.CompareAndSwap(hwm, curr) {
			return
		}
	}
}

func (s *MPoolStats) recordFree(sz int64) {
	s.NumFree.Add(1)
	s.NumCurrBytes.Add(-sz)
}

type block struct {
	size int64
	dec  malloc.Deallocator
}

// MPool is a scratch arena. It is safe for concurrent use by the kernels
// of one call.
type MPool struct {
	name      string
	cap       int64
	allocator malloc.Allocator
	stats     MPoolStats

	mu     sync.Mutex
	blocks map[unsafe.Pointer]block
}

// NewMPool creates an arena drawing memory from allocator. cap bounds the
// bytes outstanding at once, NoLimit disables the bound.
func NewMPool(name string, cap int64, allocator malloc.Allocator) (*MPool, error) {
	if cap < 0 {
		return nil, moerr.NewInvalidInputNoCtx("mpool %s: negative capacity %d", name, cap)
	}
	if allocator == nil {
		allocator = malloc.NewGoAllocator()
	}
	return &MPool{
		name:      name,
		cap:       cap,
		allocator: allocator,
		blocks:    make(map[unsafe.Pointer]block),
	}, nil
}

// MustNewZero returns an unlimited arena over the Go heap, for tests.
func MustNewZero() *MPool {
	mp, err := NewMPool("zero", NoLimit, nil)
	if err != nil {
		panic(err)
	}
	return mp
}

func (mp *MPool) Name() string {
	return mp.name
}

func (mp *MPool) Cap() int64 {
	return mp.cap
}

// CurrNB returns the bytes currently held by the arena.
func (mp *MPool) CurrNB() int64 {
	return mp.stats.NumCurrBytes.Load()
}

func (mp *MPool) Stats() *MPoolStats {
	return &mp.stats
}

// Alloc returns sz zeroed bytes.
func (mp *MPool) Alloc(sz int) ([]byte, error) {
	return mp.alloc(sz, 0)
}

// AllocNoClear returns sz bytes whose content is unspecified.
func (mp *MPool) AllocNoClear(sz int) ([]byte, error) {
	return mp.alloc(sz, malloc.NoClear)
}

func (mp *MPool) alloc(sz int, hints malloc.Hints) ([]byte, error) {
	if sz < 0 {
		return nil, moerr.NewInvalidInputNoCtx("mpool %s: negative allocation size %d", mp.name, sz)
	}
	if sz == 0 {
		return nil, nil
	}
	curr, ok := mp.stats.reserve(int64(sz), mp.cap)
	if !ok {
		return nil, moerr.NewOOM(context.Background(), uint64(sz))
	}
	bs, dec, err := mp.allocator.Allocate(uint64(sz), hints)
	if err != nil {
		mp.stats.NumCurrBytes.Add(-int64(sz))
		return nil, err
	}
	mp.mu.Lock()
	mp.blocks[unsafe.Pointer(unsafe.SliceData(bs))] = block{size: int64(sz), dec: dec}
	mp.mu.Unlock()
	mp.stats.recordAlloc(curr)
	return bs, nil
}

// Free returns a buffer obtained from Alloc. bs must start at the first
// byte of the allocation.
func (mp *MPool) Free(bs []byte) {
	if cap(bs) == 0 {
		return
	}
	ptr := unsafe.Pointer(unsafe.SliceData(bs))
	mp.mu.Lock()
	b, ok := mp.blocks[ptr]
	if ok {
		delete(mp.blocks, ptr)
	}
	mp.mu.Unlock()
	if !ok {
		panic(moerr.NewInternalErrorNoCtx("mpool %s: free of unknown or already freed buffer", mp.name))
	}
	b.dec.Deallocate(0)
	mp.stats.recordFree(b.size)
}

// Realloc grows old to sz bytes, keeping its content. The new tail is
// zeroed.
func (mp *MPool) Realloc(old []byte, sz int) ([]byte, error) {
	if sz <= cap(old) {
		return old[:sz], nil
	}
	bs, err := mp.Alloc(sz)
	if err != nil {
		return nil, err
	}
	copy(bs, old)
	mp.Free(old)
	return bs, nil
}

// Release frees every buffer still held, returning how many were released.
func (mp *MPool) Release() int {
	mp.mu.Lock()
	blocks := mp.blocks
	mp.blocks = make(map[unsafe.Pointer]block)
	mp.mu.Unlock()
	for _, b := range blocks {
		b.dec.Deallocate(0)
		mp.stats.recordFree(b.size)
	}
	return len(blocks)
}

// Fixed is the set of element types a typed arena slice may hold.
type Fixed interface {
	constraints.Integer | constraints.Float | ~bool
}

// MakeSlice allocates a zeroed []T of length n from the arena.
func MakeSlice[T Fixed](mp *MPool, n int) ([]T, error) {
	if n == 0 {
		return nil, nil
	}
	var v T
	bs, err := mp.Alloc(n * int(unsafe.Sizeof(v)))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(bs))), n), nil
}

// MakeSliceNoClear is MakeSlice without zeroing, for buffers every element
// of which is written before being read.
func MakeSliceNoClear[T Fixed](mp *MPool, n int) ([]T, error) {
	if n == 0 {
		return nil, nil
	}
	var v T
	bs, err := mp.AllocNoClear(n * int(unsafe.Sizeof(v)))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(bs))), n), nil
}

// FreeSlice returns a slice obtained from MakeSlice.
func FreeSlice[T Fixed](mp *MPool, s []T) {
	if cap(s) == 0 {
		return
	}
	var v T
	mp.Free(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), cap(s)*int(unsafe.Sizeof(v))))
}

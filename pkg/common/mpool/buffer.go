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
	"sync/atomic"

	"github.com/matrixorigin/relcore/pkg/common/malloc"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

// Buffer is a reference counted output buffer. It outlives the call that
// produced it and is returned to its allocator when the last reference is
// dropped.
type Buffer struct {
	data []byte
	dec  malloc.Deallocator
	refs atomic.Int32
}

// NewBuffer allocates sz bytes from allocator with one reference held.
func NewBuffer(allocator malloc.Allocator, sz int, hints malloc.Hints) (*Buffer, error) {
	if sz < 0 {
		return nil, moerr.NewInvalidInputNoCtx("negative buffer size %d", sz)
	}
	data, dec, err := allocator.Allocate(uint64(sz), hints)
	if err != nil {
		return nil, err
	}
	buf := &Buffer{data: data, dec: dec}
	buf.refs.Store(1)
	return buf, nil
}

// WrapBuffer adopts caller memory. Free drops the reference and never
// releases data.
func WrapBuffer(data []byte) *Buffer {
	buf := &Buffer{data: data}
	buf.refs.Store(1)
	return buf
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) Refs() int32 {
	return b.refs.Load()
}

func (b *Buffer) IncRef() *Buffer {
	if b.refs.Add(1) <= 1 {
		panic(moerr.NewInvalidStateNoCtx("IncRef on a released buffer"))
	}
	return b
}

// Free drops one reference.
func (b *Buffer) Free() {
	n := b.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		panic(moerr.NewInvalidStateNoCtx("buffer freed more than once"))
	}
	if b.dec != nil {
		b.dec.Deallocate(0)
	}
	b.data = nil
	b.dec = nil
}

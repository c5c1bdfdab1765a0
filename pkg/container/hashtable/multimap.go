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

package hashtable

import (
	"context"
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
)

type ProbeScheme uint8

const (
	Linear ProbeScheme = iota
	DoubleHashing
)

func (s ProbeScheme) String() string {
	switch s {
	case Linear:
		return "linear"
	case DoubleHashing:
		return "double"
	}
	return "unknown"
}

// MaxRows bounds the rows a MultiMap indexes, a slot word keeps row+1 in
// its upper half.
const MaxRows = math.MaxUint32 - 1

// NoSlot is returned by Find when no slot holds the key.
const NoSlot = -1

type Options struct {
	Capacity      int
	MaxLoadFactor float64
	Scheme        ProbeScheme
}

// MultiMap is an open addressing table over row numbers with multiple
// values per key. The table never reads keys itself: callers pass the key
// hash and an equality callback over row numbers.
//
// A slot word is 0 when empty, otherwise (row+1)<<32 | uint32(hash) where
// row is the first row inserted with that key. Later rows with an equal key
// are pushed onto the slot's duplicate chain. Insert is safe for
// concurrent use, Find and ForEach must not overlap with Insert.
type MultiMap struct {
	mp       *mpool.MPool
	capacity uint64
	mask     uint64
	scheme   ProbeScheme
	maxKeys  int64

	slots []uint64
	// dups[slot] and next[row] hold row+1 of a chain, 0 ends it
	dups []int64
	next []int64

	keys atomic.Int64
}

// NewMultiMap allocates a table indexing rows [0, nrows) from mp.
func NewMultiMap(ctx context.Context, mp *mpool.MPool, nrows int, opts Options) (*MultiMap, error) {
	if opts.Capacity <= 0 {
		return nil, moerr.NewInvalidInput(ctx, "hash table capacity %d", opts.Capacity)
	}
	if opts.MaxLoadFactor <= 0 || opts.MaxLoadFactor > 1 {
		return nil, moerr.NewInvalidInput(ctx, "hash table load factor %v not in (0, 1]", opts.MaxLoadFactor)
	}
	if nrows < 0 || nrows > MaxRows {
		return nil, moerr.NewInvalidInput(ctx, "hash table over %d rows", nrows)
	}
	c := uint64(opts.Capacity)
	m := &MultiMap{
		mp:       mp,
		capacity: c,
		scheme:   opts.Scheme,
		maxKeys:  int64(math.Floor(float64(c) * opts.MaxLoadFactor)),
	}
	switch opts.Scheme {
	case Linear:
	case DoubleHashing:
		if bits.OnesCount64(c) != 1 {
			return nil, moerr.NewInvalidInput(ctx, "double hashing needs a power of two capacity, got %d", c)
		}
		m.mask = c - 1
	default:
		return nil, moerr.NewInvalidInput(ctx, "probe scheme %d", opts.Scheme)
	}
	var err error
	if m.slots, err = mpool.MakeSlice[uint64](mp, int(c)); err != nil {
		return nil, err
	}
	if m.dups, err = mpool.MakeSlice[int64](mp, int(c)); err != nil {
		m.Free()
		return nil, err
	}
	if m.next, err = mpool.MakeSlice[int64](mp, nrows); err != nil {
		m.Free()
		return nil, err
	}
	return m, nil
}

// Free returns the table memory to its pool.
func (m *MultiMap) Free() {
	mpool.FreeSlice(m.mp, m.slots)
	mpool.FreeSlice(m.mp, m.dups)
	mpool.FreeSlice(m.mp, m.next)
	m.slots, m.dups, m.next = nil, nil, nil
}

func (m *MultiMap) Capacity() int {
	return int(m.capacity)
}

// Keys is the number of distinct keys inserted.
func (m *MultiMap) Keys() int {
	return int(m.keys.Load())
}

func (m *MultiMap) Size() int64 {
	return int64(len(m.slots)+len(m.dups)+len(m.next)) * 8
}

func encode(row int64, hash uint64) uint64 {
	return uint64(row+1)<<32 | uint64(uint32(hash))
}

func slotRow(word uint64) int64 {
	return int64(word>>32) - 1
}

func sameTag(word, hash uint64) bool {
	return uint32(word) == uint32(hash)
}

// probe is the visit order of one key.
type probe struct {
	pos, stride, capacity uint64
}

func (m *MultiMap) newProbe(hash uint64) probe {
	p := probe{pos: reduce(hash, m.capacity), stride: 1, capacity: m.capacity}
	if m.scheme == DoubleHashing {
		p.stride = step(hash, m.mask)
	}
	return p
}

func (p *probe) advance() {
	p.pos += p.stride
	if p.pos >= p.capacity {
		p.pos -= p.capacity
	}
}

// Insert adds row under hash. equal reports whether an indexed row has the
// key of row. It fails with CapacityExceeded when the key would be one
// distinct key too many or every slot was probed.
func (m *MultiMap) Insert(ctx context.Context, hash uint64, row int64, equal func(other int64) bool) error {
	word := encode(row, hash)
	p := m.newProbe(hash)
	for i := uint64(0); i < m.capacity; i++ {
		slot := &m.slots[p.pos]
		for {
			cur := atomic.LoadUint64(slot)
			if cur == 0 {
				if !atomic.CompareAndSwapUint64(slot, 0, word) {
					// lost the slot, look at the winner
					continue
				}
				if n := m.keys.Add(1); n > m.maxKeys {
					return moerr.NewCapacityExceeded(ctx, "%d distinct keys over %d allowed by capacity %d", n, m.maxKeys, m.capacity)
				}
				return nil
			}
			if sameTag(cur, hash) && equal(slotRow(cur)) {
				m.pushDup(p.pos, row)
				return nil
			}
			break
		}
		p.advance()
	}
	return moerr.NewCapacityExceeded(ctx, "probe sequence of %d slots exhausted", m.capacity)
}

func (m *MultiMap) pushDup(pos uint64, row int64) {
	head := &m.dups[pos]
	for {
		h := atomic.LoadInt64(head)
		m.next[row] = h
		if atomic.CompareAndSwapInt64(head, h, row+1) {
			return
		}
	}
}

// Find returns the slot holding the key of hash, or NoSlot.
func (m *MultiMap) Find(hash uint64, equal func(row int64) bool) int {
	p := m.newProbe(hash)
	for i := uint64(0); i < m.capacity; i++ {
		cur := m.slots[p.pos]
		if cur == 0 {
			return NoSlot
		}
		if sameTag(cur, hash) && equal(slotRow(cur)) {
			return int(p.pos)
		}
		p.advance()
	}
	return NoSlot
}

// Count returns the number of rows indexed in slot.
func (m *MultiMap) Count(slot int) int {
	if slot == NoSlot {
		return 0
	}
	n := 1
	for r := m.dups[slot]; r != 0; r = m.next[r-1] {
		n++
	}
	return n
}

// ForEach calls fn with every row of slot, the first inserted row first.
func (m *MultiMap) ForEach(slot int, fn func(row int64)) {
	if slot == NoSlot {
		return
	}
	fn(slotRow(m.slots[slot]))
	for r := m.dups[slot]; r != 0; r = m.next[r-1] {
		fn(r - 1)
	}
}

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

package bitmap

import (
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/matrixorigin/relcore/pkg/common/malloc"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
)

//
// Bits past len in the last word are always zero. Every operation that can
// set them (Not, SetAll, AddRange) masks the trailing partial word, so
// word-wise kernels never count out-of-range rows.
//

type bitmask = uint64

const (
	WordBits  = 64
	WordBytes = 8
)

// Bitmap is a row bitmap stored in uint64 granules. As a validity mask,
// bit i set means row i is valid.
type Bitmap struct {
	len  int64
	data []uint64
	// buf owns data when the words live in allocator memory
	buf *mpool.Buffer
}

type Iterator interface {
	HasNext() bool
	Next() uint64
	PeekNext() uint64
}

type BitmapIterator struct {
	i        uint64
	has_next bool
	bm       *Bitmap
}

// Words returns how many granules hold n bits.
func Words(n int64) int64 {
	return (n + WordBits - 1) / WordBits
}

// Bytes returns the byte size of a bitmap of n bits.
func Bytes(n int64) int64 {
	return Words(n) * WordBytes
}

// tailMask returns the valid-bit mask of the last granule of an n bit map.
func tailMask(n int64) uint64 {
	if r := n % WordBits; r != 0 {
		return (uint64(1) << r) - 1
	}
	return ^uint64(0)
}

// New returns an all-clear bitmap of n bits on the Go heap.
func New(n int64) *Bitmap {
	return &Bitmap{
		len:  n,
		data: make([]uint64, Words(n)),
	}
}

// NewAllSet returns a bitmap of n bits with every bit set.
func NewAllSet(n int64) *Bitmap {
	bm := New(n)
	bm.setAll()
	return bm
}

// Alloc returns an all-clear bitmap of n bits from allocator. The bitmap
// holds one reference on its memory, Free drops it.
func Alloc(allocator malloc.Allocator, n int64) (*Bitmap, error) {
	if n < 0 {
		return nil, moerr.NewInvalidInputNoCtx("negative bitmap length %d", n)
	}
	if n == 0 {
		return &Bitmap{}, nil
	}
	buf, err := mpool.NewBuffer(allocator, int(Bytes(n)), 0)
	if err != nil {
		return nil, err
	}
	bm := &Bitmap{
		len:  n,
		data: unsafe.Slice((*uint64)(unsafe.Pointer(unsafe.SliceData(buf.Bytes()))), Words(n)),
		buf:  buf,
	}
	return bm, nil
}

// FromWords wraps existing granules without copying. It fails with
// InvalidState when words cannot hold n bits.
func FromWords(words []uint64, n int64) (*Bitmap, error) {
	if n < 0 {
		return nil, moerr.NewInvalidInputNoCtx("negative bitmap length %d", n)
	}
	if int64(len(words)) < Words(n) {
		return nil, moerr.NewInvalidStateNoCtx("bitmap of %d words is shorter than %d rows", len(words), n)
	}
	return &Bitmap{len: n, data: words[:Words(n)]}, nil
}

// FromBuffer adopts a reference on buf as the storage of an n bit map.
func FromBuffer(buf *mpool.Buffer, n int64) (*Bitmap, error) {
	if int64(buf.Len()) < Bytes(n) {
		return nil, moerr.NewInvalidStateNoCtx("bitmap of %d bytes is shorter than %d rows", buf.Len(), n)
	}
	bm := &Bitmap{len: n, buf: buf.IncRef()}
	if n > 0 {
		bm.data = unsafe.Slice((*uint64)(unsafe.Pointer(unsafe.SliceData(buf.Bytes()))), Words(n))
	}
	return bm, nil
}

// Free drops the bitmap's reference on allocator memory.
func (n *Bitmap) Free() {
	if n == nil {
		return
	}
	if n.buf != nil {
		n.buf.Free()
		n.buf = nil
	}
	n.data = nil
	n.len = 0
}

// Buffer returns the allocator buffer backing the words, nil for heap
// bitmaps.
func (n *Bitmap) Buffer() *mpool.Buffer {
	return n.buf
}

func (n *Bitmap) Clone() *Bitmap {
	if n == nil {
		return nil
	}
	return &Bitmap{
		len:  n.len,
		data: append([]uint64(nil), n.data...),
	}
}

func (n *Bitmap) Iterator() Iterator {
	// When initialization, the itr.i is set to the first set position.
	itr := BitmapIterator{i: 0, bm: n}
	if first, has_next := itr.hasNext(0); has_next {
		itr.i = first
		itr.has_next = true
		return &itr
	}
	itr.has_next = false
	return &itr
}

func (itr *BitmapIterator) hasNext(i uint64) (uint64, bool) {
	nwords := uint64(len(itr.bm.data))
	current_word := i >> 6
	mask := (^(bitmask)(0)) << (i & 0x3F) // ignore bits check before
	for ; current_word < nwords; current_word++ {
		word := itr.bm.data[current_word] & mask
		if word != 0 {
			return uint64(bits.TrailingZeros64(word)) + current_word*64, true
		}
		mask = ^(bitmask)(0)
	}
	return 0, false
}

func (itr *BitmapIterator) HasNext() bool {
	return itr.has_next
}

func (itr *BitmapIterator) PeekNext() uint64 {
	if itr.has_next {
		return itr.i
	}
	return 0
}

func (itr *BitmapIterator) Next() uint64 {
	pos := itr.i
	if next, has_next := itr.hasNext(itr.i + 1); has_next {
		itr.i = next
		itr.has_next = true
		return pos
	}
	itr.has_next = false
	return pos
}

// Len returns the number of bits in the Bitmap.
func (n *Bitmap) Len() int64 {
	if n == nil {
		return 0
	}
	return n.len
}

// Size return number of bytes in n.data
func (n *Bitmap) Size() int {
	return len(n.data) * WordBytes
}

// Words returns the granules.
func (n *Bitmap) Words() []uint64 {
	return n.data
}

func (n *Bitmap) Ptr() *uint64 {
	if n == nil || len(n.data) == 0 {
		return nil
	}
	return &n.data[0]
}

// IsEmpty returns true if no bit in the Bitmap is set.
func (n *Bitmap) IsEmpty() bool {
	for i := 0; i < len(n.data); i++ {
		if n.data[i] != 0 {
			return false
		}
	}
	return true
}

// We always assume that bitmap has been extended to at least row.
func (n *Bitmap) Add(row uint64) {
	n.data[row>>6] |= 1 << (row & 0x3F)
}

func (n *Bitmap) AddMany(rows []uint64) {
	for _, row := range rows {
		n.data[row>>6] |= 1 << (row & 0x3F)
	}
}

func (n *Bitmap) Remove(row uint64) {
	if row >= uint64(n.len) {
		return
	}
	n.data[row>>6] &^= (uint64(1) << (row & 0x3F))
}

// Contains returns true if the row is contained in the Bitmap
func (n *Bitmap) Contains(row uint64) bool {
	if row >= uint64(n.len) {
		return false
	}
	return (n.data[row>>6] & (1 << (row & 0x3F))) != 0
}

func (n *Bitmap) AddRange(start, end uint64) {
	if end > uint64(n.len) {
		end = uint64(n.len)
	}
	if start >= end {
		return
	}
	i, j := start>>6, (end-1)>>6
	if i == j {
		n.data[i] |= (^uint64(0) << uint(start&0x3F)) & (^uint64(0) >> (uint(-end) & 0x3F))
		return
	}
	n.data[i] |= (^uint64(0) << uint(start&0x3F))
	for k := i + 1; k < j; k++ {
		n.data[k] = ^uint64(0)
	}
	n.data[j] |= (^uint64(0) >> (uint(-end) & 0x3F))
}

func (n *Bitmap) RemoveRange(start, end uint64) {
	if end > uint64(n.len) {
		end = uint64(n.len)
	}
	if start >= end {
		return
	}
	i, j := start>>6, (end-1)>>6
	if i == j {
		n.data[i] &= ^((^uint64(0) << uint(start&0x3F)) & (^uint64(0) >> (uint(-end) & 0x3F)))
		return
	}
	n.data[i] &= ^(^uint64(0) << uint(start&0x3F))
	for k := i + 1; k < j; k++ {
		n.data[k] = 0
	}
	n.data[j] &= ^(^uint64(0) >> (uint(-end) & 0x3F))
}

func (n *Bitmap) IsSame(m *Bitmap) bool {
	if n.len != m.len || len(m.data) != len(n.data) {
		return false
	}
	for i := 0; i < len(n.data); i++ {
		if n.data[i] != m.data[i] {
			return false
		}
	}
	return true
}

func (n *Bitmap) setAll() {
	for i := range n.data {
		n.data[i] = ^uint64(0)
	}
	if len(n.data) > 0 {
		n.data[len(n.data)-1] &= tailMask(n.len)
	}
}

// CountSeq is the sequential popcount.
func (n *Bitmap) CountSeq() int {
	return countWords(n.data, n.len)
}

// countWords counts the set bits of the first n bits of words.
func countWords(words []uint64, n int64) int {
	full := n / WordBits
	var cnt int
	for i := int64(0); i < full; i++ {
		cnt += bits.OnesCount64(words[i])
	}
	if full < int64(len(words)) {
		cnt += bits.OnesCount64(words[full] & tailMask(n))
	}
	return cnt
}

func (n *Bitmap) ToArray() []uint64 {
	var rows []uint64
	itr := n.Iterator()
	for itr.HasNext() {
		rows = append(rows, itr.Next())
	}
	return rows
}

func (n *Bitmap) ToI64Array() []int64 {
	var rows []int64
	itr := n.Iterator()
	for itr.HasNext() {
		rows = append(rows, int64(itr.Next()))
	}
	return rows
}

func (n *Bitmap) String() string {
	return fmt.Sprintf("%v", n.ToArray())
}

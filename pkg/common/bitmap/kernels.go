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

package bitmap

import (
	"math/bits"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// NoMatch in a gather map selects a null row.
const NoMatch = -1

// wordBlock is the number of granules one kernel block covers.
func wordBlock(proc *process.Process) int {
	if bs := proc.BlockSize() / WordBits; bs > 0 {
		return bs
	}
	return 1
}

func checkShape(proc *process.Process, a, b *Bitmap) error {
	if a.Len() != b.Len() {
		return moerr.NewShapeMismatch(proc.Ctx, "bitmap of %d rows and bitmap of %d rows", a.Len(), b.Len())
	}
	return nil
}

func binary(proc *process.Process, a, b *Bitmap, fn func(x, y uint64) uint64) (*Bitmap, error) {
	if err := checkShape(proc, a, b); err != nil {
		return nil, err
	}
	r, err := Alloc(proc.Allocator(), a.len)
	if err != nil {
		return nil, err
	}
	ad, bd, rd := a.data, b.data, r.data
	if err := proc.LaunchBlocks(len(rd), wordBlock(proc), func(_, start, end int) {
		for i := start; i < end; i++ {
			rd[i] = fn(ad[i], bd[i])
		}
	}); err != nil {
		r.Free()
		return nil, err
	}
	return r, nil
}

// And returns a & b. A row of the result is valid iff it is valid in both
// inputs.
func And(proc *process.Process, a, b *Bitmap) (*Bitmap, error) {
	return binary(proc, a, b, func(x, y uint64) uint64 { return x & y })
}

// Or returns a | b.
func Or(proc *process.Process, a, b *Bitmap) (*Bitmap, error) {
	return binary(proc, a, b, func(x, y uint64) uint64 { return x | y })
}

// AndInPlace sets a to a & b.
func AndInPlace(proc *process.Process, a, b *Bitmap) error {
	if err := checkShape(proc, a, b); err != nil {
		return err
	}
	ad, bd := a.data, b.data
	return proc.LaunchBlocks(len(ad), wordBlock(proc), func(_, start, end int) {
		for i := start; i < end; i++ {
			ad[i] &= bd[i]
		}
	})
}

// Not returns ^a with the trailing partial granule masked.
func Not(proc *process.Process, a *Bitmap) (*Bitmap, error) {
	r, err := Alloc(proc.Allocator(), a.len)
	if err != nil {
		return nil, err
	}
	ad, rd := a.data, r.data
	last := len(rd) - 1
	mask := tailMask(a.len)
	if err := proc.LaunchBlocks(len(rd), wordBlock(proc), func(_, start, end int) {
		for i := start; i < end; i++ {
			rd[i] = ^ad[i]
		}
		if end-1 == last {
			rd[last] &= mask
		}
	}); err != nil {
		r.Free()
		return nil, err
	}
	return r, nil
}

// SetAll sets every bit of a.
func SetAll(proc *process.Process, a *Bitmap) error {
	ad := a.data
	last := len(ad) - 1
	mask := tailMask(a.len)
	return proc.LaunchBlocks(len(ad), wordBlock(proc), func(_, start, end int) {
		for i := start; i < end; i++ {
			ad[i] = ^uint64(0)
		}
		if end-1 == last {
			ad[last] &= mask
		}
	})
}

// Count returns the number of set bits among the first Len() bits.
func Count(proc *process.Process, a *Bitmap) (int, error) {
	nwords := len(a.data)
	if nwords == 0 {
		return 0, nil
	}
	bs := wordBlock(proc)
	partials, err := mpool.MakeSlice[int64](proc.Mp(), (nwords+bs-1)/bs)
	if err != nil {
		return 0, err
	}
	defer mpool.FreeSlice(proc.Mp(), partials)
	ad := a.data
	last := nwords - 1
	mask := tailMask(a.len)
	if err := proc.LaunchBlocks(nwords, bs, func(blk, start, end int) {
		var cnt int
		for i := start; i < end; i++ {
			w := ad[i]
			if i == last {
				w &= mask
			}
			cnt += bits.OnesCount64(w)
		}
		partials[blk] = int64(cnt)
	}); err != nil {
		return 0, err
	}
	var total int64
	for _, p := range partials {
		total += p
	}
	return int(total), nil
}

// GatherValidity builds the validity of a column gathered from a source
// with validity src through gatherMap. A nil src means every source row is
// valid, a NoMatch index yields a null row. The returned bitmap is nil
// when every gathered row is valid.
func GatherValidity(proc *process.Process, src *Bitmap, gatherMap []int64) (*Bitmap, int, error) {
	n := len(gatherMap)
	if n == 0 {
		return nil, 0, nil
	}
	r, err := Alloc(proc.Allocator(), int64(n))
	if err != nil {
		return nil, 0, err
	}
	rd := r.data
	// one block per whole number of granules, so no two blocks share a word
	bs := wordBlock(proc) * WordBits
	if err := proc.LaunchBlocks(n, bs, func(_, start, end int) {
		for i := start; i < end; i++ {
			idx := gatherMap[i]
			if idx == NoMatch {
				continue
			}
			if src == nil || src.Contains(uint64(idx)) {
				rd[i>>6] |= 1 << (uint(i) & 0x3F)
			}
		}
	}); err != nil {
		r.Free()
		return nil, 0, err
	}
	valid, err := Count(proc, r)
	if err != nil {
		r.Free()
		return nil, 0, err
	}
	if valid == n {
		r.Free()
		return nil, 0, nil
	}
	return r, n - valid, nil
}

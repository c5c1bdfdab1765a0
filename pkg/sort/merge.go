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

package sort

import (
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/logutil"
)

// sortParallel stably sorts part: every block is sorted on its own, then
// sorted runs are merged pairwise until one run is left.
func (s *sorter) sortParallel(part []int64, cmp compareFn) error {
	m := len(part)
	if m <= 1 {
		return nil
	}
	proc := s.proc
	bs := proc.BlockSize()
	if err := proc.LaunchBlocks(m, bs, func(_, start, end int) {
		slices.SortStableFunc(part[start:end], cmp)
	}); err != nil {
		return err
	}
	if m <= bs {
		return nil
	}

	tmp, err := mpool.MakeSliceNoClear[int64](proc.Mp(), m)
	if err != nil {
		return err
	}
	defer mpool.FreeSlice(proc.Mp(), tmp)

	src, dst := part, tmp
	rounds := 0
	for width := bs; width < m; width *= 2 {
		npairs := (m + 2*width - 1) / (2 * width)
		perBlock := bs / (2 * width)
		if perBlock < 1 {
			perBlock = 1
		}
		from, to := src, dst
		if err = proc.LaunchBlocks(npairs, perBlock, func(_, start, end int) {
			for p := start; p < end; p++ {
				lo := p * 2 * width
				mid := min(lo+width, m)
				hi := min(lo+2*width, m)
				merge(to[lo:hi], from[lo:mid], from[mid:hi], cmp)
			}
		}); err != nil {
			return err
		}
		src, dst = dst, src
		rounds++
	}
	if &src[0] != &part[0] {
		copy(part, src)
	}
	logutil.Debug("parallel sort",
		logutil.OpField(moerr.OpName(proc.Ctx)),
		logutil.RowsField("rows", m),
		zap.Int("blocks", (m+bs-1)/bs),
		zap.Int("merge-rounds", rounds))
	return nil
}

// merge writes the stable merge of the sorted runs a and b into dst. On
// ties the row from a comes first.
func merge(dst, a, b []int64, cmp compareFn) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if cmp(b[j], a[i]) < 0 {
			dst[k] = b[j]
			j++
		} else {
			dst[k] = a[i]
			i++
		}
		k++
	}
	k += copy(dst[k:], a[i:])
	copy(dst[k:], b[j:])
}

// sortSegment sorts perm[lo:hi] with the rows lo..hi-1 on the calling
// goroutine.
func (s *sorter) sortSegment(perm []int64, lo, hi int) {
	seg := perm[lo:hi]
	if len(seg) == 0 {
		return
	}
	if !s.firstNulls {
		for i := range seg {
			seg[i] = int64(lo + i)
		}
		slices.SortStableFunc(seg, s.valid)
		return
	}
	nvalid := 0
	for r := lo; r < hi; r++ {
		if s.first.IsValid(r) {
			nvalid++
		}
	}
	validAt, nullAt := 0, nvalid
	if s.nullsFirst {
		validAt, nullAt = len(seg)-nvalid, 0
	}
	validLo := validAt
	for r := lo; r < hi; r++ {
		if s.first.IsValid(r) {
			seg[validAt] = int64(r)
			validAt++
		} else {
			seg[nullAt] = int64(r)
			nullAt++
		}
	}
	slices.SortStableFunc(seg[validLo:validLo+nvalid], s.valid)
	if s.nullsFirst {
		slices.SortStableFunc(seg[:validLo], s.null)
	} else {
		slices.SortStableFunc(seg[nvalid:], s.null)
	}
}

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
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/scan"
	"github.com/matrixorigin/relcore/pkg/util/metric"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// Options of a sort. Keys are ascending unless Desc says otherwise for
// their position. Null placement does not depend on direction.
type Options struct {
	Desc       []bool
	NullsFirst bool
}

func (o Options) desc(i int) bool {
	return i < len(o.Desc) && o.Desc[i]
}

// Result of SortByKey. Keys and Payload are owned by the caller.
type Result struct {
	Keys    []*vector.Vector
	Payload []*vector.Vector
	Perm    []int64
}

func (r *Result) Free() {
	for _, v := range r.Keys {
		v.Free()
	}
	for _, v := range r.Payload {
		v.Free()
	}
	r.Keys, r.Payload, r.Perm = nil, nil, nil
}

// Order returns the stable permutation that sorts the rows of keys, the
// first key most significant. Equal rows keep their original order.
func Order(proc *process.Process, keys []*vector.Vector, opts Options) ([]int64, error) {
	s, err := newSorter(proc, keys, opts)
	if err != nil {
		return nil, err
	}
	n := keys[0].Length()
	metric.SortRowsCounter.Add(float64(n))
	perm := make([]int64, n)
	lo, hi, err := s.partition(perm)
	if err != nil {
		return nil, err
	}
	if err = s.sortParallel(perm[lo:hi], s.valid); err != nil {
		return nil, err
	}
	if err = s.sortParallel(perm[:lo], s.null); err != nil {
		return nil, err
	}
	if err = s.sortParallel(perm[hi:], s.null); err != nil {
		return nil, err
	}
	return perm, nil
}

// SortByKey sorts keys and gathers payload columns by the same
// permutation.
func SortByKey(proc *process.Process, keys []*vector.Vector, opts Options, payload []*vector.Vector) (*Result, error) {
	for _, p := range payload {
		if len(keys) > 0 && p.Length() != keys[0].Length() {
			return nil, moerr.NewShapeMismatch(proc.Ctx, "payload of %d rows for keys of %d rows", p.Length(), keys[0].Length())
		}
	}
	perm, err := Order(proc, keys, opts)
	if err != nil {
		return nil, err
	}
	r := &Result{Perm: perm}
	for _, k := range keys {
		v, err := vector.Gather(proc, k, perm)
		if err != nil {
			r.Free()
			return nil, err
		}
		r.Keys = append(r.Keys, v)
	}
	for _, p := range payload {
		v, err := vector.Gather(proc, p, perm)
		if err != nil {
			r.Free()
			return nil, err
		}
		r.Payload = append(r.Payload, v)
	}
	return r, nil
}

// SegmentedSort sorts the rows of every segment [offsets[i], offsets[i+1])
// independently. The permutation holds global row numbers and never moves
// a row out of its segment.
func SegmentedSort(proc *process.Process, keys []*vector.Vector, offsets []int64, opts Options) ([]int64, error) {
	s, err := newSorter(proc, keys, opts)
	if err != nil {
		return nil, err
	}
	n := keys[0].Length()
	if err = CheckOffsets(proc, offsets, n); err != nil {
		return nil, err
	}
	metric.SortRowsCounter.Add(float64(n))
	perm := make([]int64, n)
	nseg := len(offsets) - 1
	if nseg <= 0 {
		return perm, nil
	}
	if err = proc.LaunchBlocks(nseg, SegmentsPerBlock(proc, n, nseg), func(_, start, end int) {
		for seg := start; seg < end; seg++ {
			s.sortSegment(perm, int(offsets[seg]), int(offsets[seg+1]))
		}
	}); err != nil {
		return nil, err
	}
	return perm, nil
}

// CheckOffsets validates segment offsets over n rows: offsets[0] is 0, the
// last offset is n and no offset decreases.
func CheckOffsets(proc *process.Process, offsets []int64, n int) error {
	if len(offsets) == 0 {
		if n == 0 {
			return nil
		}
		return moerr.NewInvalidInput(proc.Ctx, "no segment offsets for %d rows", n)
	}
	if offsets[0] != 0 || offsets[len(offsets)-1] != int64(n) {
		return moerr.NewInvalidInput(proc.Ctx, "segment offsets must span [0, %d)", n)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return moerr.NewInvalidInput(proc.Ctx, "segment offsets decrease at %d", i)
		}
	}
	return nil
}

// SegmentsPerBlock keeps a block near the device block size in rows.
func SegmentsPerBlock(proc *process.Process, n, nseg int) int {
	avg := n / nseg
	if avg == 0 {
		avg = 1
	}
	if per := proc.BlockSize() / avg; per > 1 {
		return per
	}
	return 1
}

type sorter struct {
	proc       *process.Process
	first      *vector.Vector
	firstNulls bool
	nullsFirst bool
	// valid orders rows whose first key is valid, null rows whose first
	// key is null
	valid compareFn
	null  compareFn
}

func newSorter(proc *process.Process, keys []*vector.Vector, opts Options) (*sorter, error) {
	if len(keys) == 0 {
		return nil, moerr.NewInvalidInput(proc.Ctx, "sort without keys")
	}
	n := keys[0].Length()
	fns := make([]compareFn, len(keys))
	for i, k := range keys {
		if k.Length() != n {
			return nil, moerr.NewShapeMismatch(proc.Ctx, "sort key %d has %d rows, key 0 has %d", i, k.Length(), n)
		}
		fn, err := newCompare(proc, k, opts.desc(i), opts.NullsFirst)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	s := &sorter{
		proc:       proc,
		first:      keys[0],
		firstNulls: keys[0].HasNulls(),
		nullsFirst: opts.NullsFirst,
		valid:      chain(fns),
	}
	if len(fns) > 1 {
		s.null = chain(fns[1:])
	} else {
		s.null = func(a, b int64) int { return 0 }
	}
	return s, nil
}

// partition stably places the rows with a valid first key in perm[lo:hi]
// and the others before or after them.
func (s *sorter) partition(perm []int64) (lo, hi int, err error) {
	proc := s.proc
	n := len(perm)
	if !s.firstNulls {
		err = proc.Launch(n, func(_, start, end int) {
			for i := start; i < end; i++ {
				perm[i] = int64(i)
			}
		})
		return 0, n, err
	}
	flags, err := mpool.MakeSliceNoClear[int64](proc.Mp(), n)
	if err != nil {
		return 0, 0, err
	}
	defer mpool.FreeSlice(proc.Mp(), flags)
	first := s.first
	if err = proc.Launch(n, func(_, start, end int) {
		for i := start; i < end; i++ {
			if first.IsValid(i) {
				flags[i] = 1
			} else {
				flags[i] = 0
			}
		}
	}); err != nil {
		return 0, 0, err
	}
	nvalid64, err := scan.ExclusiveSum(proc, flags, flags)
	if err != nil {
		return 0, 0, err
	}
	nvalid := int(nvalid64)
	validBase, nullBase := 0, nvalid
	if s.nullsFirst {
		validBase, nullBase = n-nvalid, 0
	}
	if err = proc.Launch(n, func(_, start, end int) {
		for i := start; i < end; i++ {
			before := int(flags[i])
			if first.IsValid(i) {
				perm[validBase+before] = int64(i)
			} else {
				perm[nullBase+i-before] = int64(i)
			}
		}
	}); err != nil {
		return 0, 0, err
	}
	return validBase, validBase + nvalid, nil
}

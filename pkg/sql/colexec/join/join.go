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

package join

import (
	"bytes"

	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/matrixorigin/relcore/pkg/common/hashmap"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/container/hashtable"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/logutil"
	"github.com/matrixorigin/relcore/pkg/scan"
	"github.com/matrixorigin/relcore/pkg/util/metric"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

const opName = "join"

func String(kind Kind, opts Options, buf *bytes.Buffer) {
	buf.WriteString(opName)
	buf.WriteString(": ")
	buf.WriteString(kind.String())
	buf.WriteString(" join using ")
	buf.WriteString(opts.Strategy.String())
}

// Join matches the rows of left and right whose key columns are all
// equal. A null key matches nothing unless opts.Hash.NullEqual.
func Join(proc *process.Process, left, right []*vector.Vector, kind Kind, opts Options) (*Result, error) {
	proc = proc.WithOp(opName)
	if err := checkSides(proc, left, right, kind); err != nil {
		return nil, err
	}
	if opts.BuildSide > BuildRight {
		return nil, moerr.NewInvalidInput(proc.Ctx, "join build side %d", opts.BuildSide)
	}
	var (
		r   *Result
		err error
	)
	switch opts.Strategy {
	case HashJoin:
		r, err = hashJoin(proc, left, right, kind, opts)
	case SortMerge:
		r, err = sortMergeJoin(proc, left, right, kind, opts)
	default:
		return nil, moerr.NewInvalidInput(proc.Ctx, "join strategy %d", opts.Strategy)
	}
	if err != nil {
		return nil, err
	}
	metric.JoinRowsCounter.Add(float64(left[0].Length() + right[0].Length()))
	logutil.Debug("join done",
		logutil.OpField(opName),
		zap.Stringer("kind", kind),
		zap.Stringer("strategy", opts.Strategy),
		logutil.RowsField("left", left[0].Length()),
		logutil.RowsField("right", right[0].Length()),
		logutil.RowsField("out", r.Len()))
	return r, nil
}

func checkSides(proc *process.Process, left, right []*vector.Vector, kind Kind) error {
	if kind > Full {
		return moerr.NewInvalidInput(proc.Ctx, "join kind %d", kind)
	}
	if len(left) == 0 || len(left) != len(right) {
		return moerr.NewInvalidInput(proc.Ctx, "join of %d left keys and %d right keys", len(left), len(right))
	}
	for i := range left {
		if lt, rt := left[i].GetType(), right[i].GetType(); !lt.Eq(*rt) {
			return moerr.NewUnsupportedType(proc.Ctx, "join key %d of %s and %s", i, lt, rt)
		}
		if left[i].Length() != left[0].Length() {
			return moerr.NewShapeMismatch(proc.Ctx, "left key %d has %d rows, key 0 has %d", i, left[i].Length(), left[0].Length())
		}
		if right[i].Length() != right[0].Length() {
			return moerr.NewShapeMismatch(proc.Ctx, "right key %d has %d rows, key 0 has %d", i, right[i].Length(), right[0].Length())
		}
	}
	return nil
}

// buildsLeft reports whether a hash join indexes the left side. The probe
// side keeps every row of an outer join, so only inner joins may build left.
func buildsLeft(kind Kind, side BuildSide, nleft, nright int) bool {
	if kind != Inner {
		return false
	}
	switch side {
	case BuildLeft:
		return true
	case BuildAuto:
		return nleft < nright
	}
	return false
}

func hashJoin(proc *process.Process, left, right []*vector.Vector, kind Kind, opts Options) (*Result, error) {
	build, probe := right, left
	buildLeft := buildsLeft(kind, opts.BuildSide, left[0].Length(), right[0].Length())
	if buildLeft {
		build, probe = left, right
	}

	jm, err := hashmap.Build(proc, build, opts.Hash)
	if err != nil {
		return nil, err
	}
	defer jm.Free()
	p, err := jm.Probe(proc, probe)
	if err != nil {
		return nil, err
	}
	defer p.Free()

	n := p.Rows()
	mp := proc.Mp()
	slots, err := mpool.MakeSliceNoClear[int64](mp, n)
	if err != nil {
		return nil, err
	}
	defer mpool.FreeSlice(mp, slots)
	offsets, err := mpool.MakeSliceNoClear[int64](mp, n)
	if err != nil {
		return nil, err
	}
	defer mpool.FreeSlice(mp, offsets)

	outer := kind != Inner
	// count pass
	if err = proc.Launch(n, func(_, start, end int) {
		for r := start; r < end; r++ {
			slot := p.Find(r)
			slots[r] = int64(slot)
			c := int64(0)
			if slot != hashtable.NoSlot {
				p.ForEachInSlot(slot, func(int64) { c++ })
			}
			if c == 0 && outer {
				c = 1
			}
			offsets[r] = c
		}
	}); err != nil {
		return nil, err
	}
	total, err := scan.ExclusiveSum(proc, offsets, offsets)
	if err != nil {
		return nil, err
	}

	probeIdx := make([]int64, total)
	buildIdx := make([]int64, total)
	var matched []*roaring.Bitmap
	if kind == Full {
		matched = make([]*roaring.Bitmap, proc.Device().Blocks(n))
	}
	// write pass, every probe row owns [offsets[r], offsets[r]+count)
	if err = proc.Launch(n, func(blk, start, end int) {
		var seen *roaring.Bitmap
		if matched != nil {
			seen = roaring.New()
			matched[blk] = seen
		}
		for r := start; r < end; r++ {
			o := offsets[r]
			slot := int(slots[r])
			if slot == hashtable.NoSlot {
				if outer {
					probeIdx[o] = int64(r)
					buildIdx[o] = NoMatch
				}
				continue
			}
			p.ForEachInSlot(slot, func(b int64) {
				probeIdx[o] = int64(r)
				buildIdx[o] = b
				o++
				if seen != nil {
					seen.Add(uint32(b))
				}
			})
		}
	}); err != nil {
		return nil, err
	}

	if kind == Full {
		probeIdx, buildIdx = appendUnmatched(probeIdx, buildIdx, matched, jm.Rows())
	}
	if buildLeft {
		return &Result{LeftIndices: buildIdx, RightIndices: probeIdx}, nil
	}
	return &Result{LeftIndices: probeIdx, RightIndices: buildIdx}, nil
}

// appendUnmatched adds a (NoMatch, row) pair for every build row no probe
// row matched.
func appendUnmatched(probeIdx, buildIdx []int64, matched []*roaring.Bitmap, rows int) ([]int64, []int64) {
	var all *roaring.Bitmap
	if len(matched) == 0 {
		all = roaring.New()
	} else {
		all = roaring.FastOr(matched...)
	}
	all.Flip(0, uint64(rows))
	it := all.Iterator()
	for it.HasNext() {
		probeIdx = append(probeIdx, NoMatch)
		buildIdx = append(buildIdx, int64(it.Next()))
	}
	return probeIdx, buildIdx
}

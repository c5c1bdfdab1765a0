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

package restrict

import (
	"bytes"
	"fmt"

	"github.com/matrixorigin/relcore/pkg/common/bitmap"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/scan"
	"github.com/matrixorigin/relcore/pkg/util/metric"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

const opName = "restrict"

func String(predicate *bitmap.Bitmap, buf *bytes.Buffer) {
	buf.WriteString(fmt.Sprintf("σ(%d of %d rows)", predicate.CountSeq(), predicate.Len()))
}

// Selection returns the rows whose predicate bit is set, in row order.
func Selection(proc *process.Process, predicate *bitmap.Bitmap) ([]int64, error) {
	proc = proc.WithOp(opName)
	if predicate == nil {
		return nil, moerr.NewInvalidInput(proc.Ctx, "restrict without a predicate")
	}
	return selection(proc, predicate)
}

func selection(proc *process.Process, predicate *bitmap.Bitmap) ([]int64, error) {
	n := int(predicate.Len())
	if n == 0 {
		return []int64{}, nil
	}
	pos, err := mpool.MakeSliceNoClear[int64](proc.Mp(), n)
	if err != nil {
		return nil, err
	}
	defer mpool.FreeSlice(proc.Mp(), pos)

	if err = proc.Launch(n, func(_, start, end int) {
		for i := start; i < end; i++ {
			if predicate.Contains(uint64(i)) {
				pos[i] = 1
			} else {
				pos[i] = 0
			}
		}
	}); err != nil {
		return nil, err
	}
	total, err := scan.ExclusiveSum(proc, pos, pos)
	if err != nil {
		return nil, err
	}
	sels := make([]int64, total)
	if err = proc.Launch(n, func(_, start, end int) {
		for i := start; i < end; i++ {
			if predicate.Contains(uint64(i)) {
				sels[pos[i]] = int64(i)
			}
		}
	}); err != nil {
		return nil, err
	}
	return sels, nil
}

// Compact returns the rows of col whose predicate bit is set, in their
// original order. The result has popcount(predicate) rows and is owned by
// the caller.
func Compact(proc *process.Process, col *vector.Vector, predicate *bitmap.Bitmap) (*vector.Vector, error) {
	cols, err := CompactBatch(proc, []*vector.Vector{col}, predicate)
	if err != nil {
		return nil, err
	}
	return cols[0], nil
}

// CompactBatch compacts equal-length columns by one predicate, computing
// the output positions once.
func CompactBatch(proc *process.Process, cols []*vector.Vector, predicate *bitmap.Bitmap) ([]*vector.Vector, error) {
	proc = proc.WithOp(opName)
	if predicate == nil {
		return nil, moerr.NewInvalidInput(proc.Ctx, "restrict without a predicate")
	}
	n := int(predicate.Len())
	for i, col := range cols {
		if col.Length() != n {
			return nil, moerr.NewShapeMismatch(proc.Ctx, "column %d of %d rows for a predicate of %d rows", i, col.Length(), n)
		}
	}
	metric.CompactRowsCounter.Add(float64(n))

	kept, err := bitmap.Count(proc, predicate)
	if err != nil {
		return nil, err
	}
	out := make([]*vector.Vector, 0, len(cols))
	if kept == n {
		for _, col := range cols {
			out = append(out, col.Dup())
		}
		return out, nil
	}
	sels, err := selection(proc, predicate)
	if err != nil {
		return nil, err
	}
	for _, col := range cols {
		v, err := vector.Gather(proc, col, sels)
		if err != nil {
			for _, o := range out {
				o.Free()
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

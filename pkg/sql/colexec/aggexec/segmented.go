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

package aggexec

import (
	"go.uber.org/zap"

	"github.com/matrixorigin/relcore/pkg/common/bitmap"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/logutil"
	"github.com/matrixorigin/relcore/pkg/sort"
	"github.com/matrixorigin/relcore/pkg/util/metric"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// SegmentedReduce reduces every segment [offsets[i], offsets[i+1]) of col
// into row i of the result. A segment without valid rows gives a null,
// except for count which gives 0.
func SegmentedReduce(proc *process.Process, col *vector.Vector, offsets []int64, op Op) (*vector.Vector, error) {
	proc = proc.WithOp(opName)
	out, err := segmentedReduce(proc, col, offsets, op)
	if err != nil {
		return nil, err
	}
	metric.ReduceRowsCounter.Add(float64(col.Length()))
	logutil.Debug("segmented reduce done",
		logutil.OpField(opName),
		zap.Stringer("op", op),
		logutil.RowsField("rows", col.Length()),
		logutil.RowsField("segments", out.Length()))
	return out, nil
}

func segmentedReduce(proc *process.Process, col *vector.Vector, offsets []int64, op Op) (*vector.Vector, error) {
	rt, err := ResultType(proc.Ctx, op, col.Type())
	if err != nil {
		return nil, err
	}
	n := col.Length()
	if err = sort.CheckOffsets(proc, offsets, n); err != nil {
		return nil, err
	}
	nseg := 0
	if len(offsets) > 0 {
		nseg = len(offsets) - 1
	}
	out, err := vector.New(proc, rt, nseg)
	if err != nil {
		return nil, err
	}
	if nseg == 0 {
		return out, nil
	}
	if op == Count {
		err = countSegments(proc, col, offsets, out)
	} else {
		switch col.GetType().Oid {
		case types.T_int8:
			err = reduceSegments[int8](proc, col, offsets, op, out)
		case types.T_int16:
			err = reduceSegments[int16](proc, col, offsets, op, out)
		case types.T_int32:
			err = reduceSegments[int32](proc, col, offsets, op, out)
		case types.T_int64:
			err = reduceSegments[int64](proc, col, offsets, op, out)
		case types.T_uint8:
			err = reduceSegments[uint8](proc, col, offsets, op, out)
		case types.T_uint16:
			err = reduceSegments[uint16](proc, col, offsets, op, out)
		case types.T_uint32:
			err = reduceSegments[uint32](proc, col, offsets, op, out)
		case types.T_uint64:
			err = reduceSegments[uint64](proc, col, offsets, op, out)
		case types.T_float32:
			err = reduceSegments[float32](proc, col, offsets, op, out)
		case types.T_float64:
			err = reduceSegments[float64](proc, col, offsets, op, out)
		case types.T_date:
			err = reduceSegments[types.Date](proc, col, offsets, op, out)
		case types.T_datetime:
			err = reduceSegments[types.Datetime](proc, col, offsets, op, out)
		case types.T_timestamp:
			err = reduceSegments[types.Timestamp](proc, col, offsets, op, out)
		default:
			err = moerr.NewUnsupportedType(proc.Ctx, "%s of %s", op, col.GetType())
		}
	}
	if err != nil {
		out.Free()
		return nil, err
	}
	return out, nil
}

// segmentBlock is a whole number of bitmap granules, so blocks never share
// a validity word.
func segmentBlock(proc *process.Process, n, nseg int) int {
	per := sort.SegmentsPerBlock(proc, n, nseg)
	return (per + bitmap.WordBits - 1) / bitmap.WordBits * bitmap.WordBits
}

func countSegments(proc *process.Process, col *vector.Vector, offsets []int64, out *vector.Vector) error {
	nseg := out.Length()
	ws := vector.MustFixedCol[int64](out)
	return proc.LaunchBlocks(nseg, segmentBlock(proc, col.Length(), nseg), func(_, start, end int) {
		for seg := start; seg < end; seg++ {
			var cnt int64
			for i := offsets[seg]; i < offsets[seg+1]; i++ {
				if col.IsValid(int(i)) {
					cnt++
				}
			}
			ws[seg] = cnt
		}
	})
}

func reduceSegments[T types.OrderedT](proc *process.Process, col *vector.Vector, offsets []int64, op Op, out *vector.Vector) error {
	nseg := out.Length()
	rt := out.Type()
	validity, err := bitmap.Alloc(proc.Allocator(), int64(nseg))
	if err != nil {
		return err
	}
	put := writer[T](op, out)
	vs := vector.MustFixedCol[T](col)
	if err = proc.LaunchBlocks(nseg, segmentBlock(proc, col.Length(), nseg), func(_, start, end int) {
		for seg := start; seg < end; seg++ {
			var s state[T]
			for i := offsets[seg]; i < offsets[seg+1]; i++ {
				if col.IsValid(int(i)) {
					s.add(op, rt.Oid, vs[i])
				}
			}
			if s.n > 0 {
				put(seg, &s)
				validity.Add(uint64(seg))
			}
		}
	}); err != nil {
		validity.Free()
		return err
	}
	out.SetValidity(validity, -1)
	return nil
}

// writer stores a segment state into row seg of out.
func writer[T types.OrderedT](op Op, out *vector.Vector) func(seg int, s *state[T]) {
	switch {
	case op == Min || op == Max:
		ws := vector.MustFixedCol[T](out)
		return func(seg int, s *state[T]) { ws[seg] = s.ext }
	case op == Mean:
		ws := vector.MustFixedCol[float64](out)
		return func(seg int, s *state[T]) { ws[seg] = s.f / float64(s.n) }
	case out.GetType().Oid == types.T_int64:
		ws := vector.MustFixedCol[int64](out)
		return func(seg int, s *state[T]) { ws[seg] = s.i }
	case out.GetType().Oid == types.T_uint64:
		ws := vector.MustFixedCol[uint64](out)
		return func(seg int, s *state[T]) { ws[seg] = s.u }
	default:
		ws := vector.MustFixedCol[float64](out)
		return func(seg int, s *state[T]) { ws[seg] = s.f }
	}
}

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

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/logutil"
	"github.com/matrixorigin/relcore/pkg/sort"
	"github.com/matrixorigin/relcore/pkg/util/metric"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

const opName = "reduce"

// state accumulates the valid rows of one block or one segment.
type state[T types.OrderedT] struct {
	n int64
	i int64
	u uint64
	f float64
	// ext is the running min or max
	ext T
}

func (s *state[T]) add(op Op, sum types.T, x T) {
	if s.n == 0 {
		s.ext = x
	}
	s.n++
	switch op {
	case Sum:
		switch sum {
		case types.T_int64:
			s.i += int64(x)
		case types.T_uint64:
			s.u += uint64(x)
		default:
			s.f += float64(x)
		}
	case Mean:
		s.f += float64(x)
	case Min:
		if sort.Compare(x, s.ext) < 0 {
			s.ext = x
		}
	case Max:
		if sort.Compare(x, s.ext) > 0 {
			s.ext = x
		}
	}
}

func (s *state[T]) merge(op Op, o *state[T]) {
	if o.n == 0 {
		return
	}
	if s.n == 0 {
		*s = *o
		return
	}
	s.n += o.n
	s.i += o.i
	s.u += o.u
	s.f += o.f
	switch op {
	case Min:
		if sort.Compare(o.ext, s.ext) < 0 {
			s.ext = o.ext
		}
	case Max:
		if sort.Compare(o.ext, s.ext) > 0 {
			s.ext = o.ext
		}
	}
}

func (s *state[T]) value(op Op, sum types.T) (any, bool) {
	if op == Count {
		return s.n, true
	}
	if s.n == 0 {
		return nil, false
	}
	switch op {
	case Sum:
		switch sum {
		case types.T_int64:
			return s.i, true
		case types.T_uint64:
			return s.u, true
		}
		return s.f, true
	case Mean:
		return s.f / float64(s.n), true
	}
	return s.ext, true
}

// Reduce folds the valid rows of col with op. Null rows are skipped. The
// result is invalid when no row is valid, except for count which is 0.
func Reduce(proc *process.Process, col *vector.Vector, op Op) (Scalar, error) {
	proc = proc.WithOp(opName)
	rt, err := ResultType(proc.Ctx, op, col.Type())
	if err != nil {
		return Scalar{}, err
	}
	var s Scalar
	if op == Count {
		nulls, err := col.CountNulls(proc)
		if err != nil {
			return Scalar{}, err
		}
		s = Scalar{Type: rt, Value: int64(col.Length() - nulls), Valid: true}
	} else {
		switch col.GetType().Oid {
		case types.T_int8:
			s, err = reduceFixed[int8](proc, col, op, rt)
		case types.T_int16:
			s, err = reduceFixed[int16](proc, col, op, rt)
		case types.T_int32:
			s, err = reduceFixed[int32](proc, col, op, rt)
		case types.T_int64:
			s, err = reduceFixed[int64](proc, col, op, rt)
		case types.T_uint8:
			s, err = reduceFixed[uint8](proc, col, op, rt)
		case types.T_uint16:
			s, err = reduceFixed[uint16](proc, col, op, rt)
		case types.T_uint32:
			s, err = reduceFixed[uint32](proc, col, op, rt)
		case types.T_uint64:
			s, err = reduceFixed[uint64](proc, col, op, rt)
		case types.T_float32:
			s, err = reduceFixed[float32](proc, col, op, rt)
		case types.T_float64:
			s, err = reduceFixed[float64](proc, col, op, rt)
		case types.T_date:
			s, err = reduceFixed[types.Date](proc, col, op, rt)
		case types.T_datetime:
			s, err = reduceFixed[types.Datetime](proc, col, op, rt)
		case types.T_timestamp:
			s, err = reduceFixed[types.Timestamp](proc, col, op, rt)
		default:
			return Scalar{}, moerr.NewUnsupportedType(proc.Ctx, "%s of %s", op, col.GetType())
		}
		if err != nil {
			return Scalar{}, err
		}
	}
	metric.ReduceRowsCounter.Add(float64(col.Length()))
	logutil.Debug("reduce done",
		logutil.OpField(opName),
		zap.Stringer("op", op),
		logutil.RowsField("rows", col.Length()),
		zap.Bool("valid", s.Valid))
	return s, nil
}

// reduceFixed keeps one partial per block and folds the partials in block
// order, so a float sum does not depend on the worker count.
func reduceFixed[T types.OrderedT](proc *process.Process, col *vector.Vector, op Op, rt types.Type) (Scalar, error) {
	n := col.Length()
	bs := proc.BlockSize()
	partials := make([]state[T], (n+bs-1)/bs)
	vs := vector.MustFixedCol[T](col)
	if err := proc.LaunchBlocks(n, bs, func(blk, start, end int) {
		var s state[T]
		for i := start; i < end; i++ {
			if col.IsValid(i) {
				s.add(op, rt.Oid, vs[i])
			}
		}
		partials[blk] = s
	}); err != nil {
		return Scalar{}, err
	}
	var total state[T]
	for i := range partials {
		total.merge(op, &partials[i])
	}
	v, ok := total.value(op, rt.Oid)
	return Scalar{Type: rt, Value: v, Valid: ok}, nil
}

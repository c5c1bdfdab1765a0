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
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// compareFn orders two rows of the key columns.
type compareFn = func(a, b int64) int

func newCompare(proc *process.Process, vec *vector.Vector, desc, nullsFirst bool) (compareFn, error) {
	switch vec.GetType().Oid {
	case types.T_bool:
		return boolCompare(vec, desc, nullsFirst), nil
	case types.T_int8:
		return orderedCompare[int8](vec, desc, nullsFirst), nil
	case types.T_int16:
		return orderedCompare[int16](vec, desc, nullsFirst), nil
	case types.T_int32:
		return orderedCompare[int32](vec, desc, nullsFirst), nil
	case types.T_int64:
		return orderedCompare[int64](vec, desc, nullsFirst), nil
	case types.T_uint8:
		return orderedCompare[uint8](vec, desc, nullsFirst), nil
	case types.T_uint16:
		return orderedCompare[uint16](vec, desc, nullsFirst), nil
	case types.T_uint32:
		return orderedCompare[uint32](vec, desc, nullsFirst), nil
	case types.T_uint64:
		return orderedCompare[uint64](vec, desc, nullsFirst), nil
	case types.T_float32:
		return orderedCompare[float32](vec, desc, nullsFirst), nil
	case types.T_float64:
		return orderedCompare[float64](vec, desc, nullsFirst), nil
	case types.T_date:
		return orderedCompare[types.Date](vec, desc, nullsFirst), nil
	case types.T_datetime:
		return orderedCompare[types.Datetime](vec, desc, nullsFirst), nil
	case types.T_timestamp:
		return orderedCompare[types.Timestamp](vec, desc, nullsFirst), nil
	default:
		return nil, moerr.NewUnsupportedType(proc.Ctx, "sort key of %s", vec.GetType())
	}
}

// Compare orders two values, NaN after every other float and equal to
// itself.
func Compare[T types.OrderedT](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	case x == y:
		return 0
	}
	// at least one side is NaN
	xnan, ynan := x != x, y != y
	switch {
	case xnan && ynan:
		return 0
	case xnan:
		return 1
	default:
		return -1
	}
}

func nullCompare(vec *vector.Vector, a, b int64, nullsFirst bool) (int, bool) {
	an, bn := vec.IsNull(int(a)), vec.IsNull(int(b))
	if !an && !bn {
		return 0, false
	}
	switch {
	case an && bn:
		return 0, true
	case an == nullsFirst:
		return -1, true
	default:
		return 1, true
	}
}

func orderedCompare[T types.OrderedT](vec *vector.Vector, desc, nullsFirst bool) compareFn {
	vs := vector.MustFixedCol[T](vec)
	hasNulls := vec.HasNulls()
	return func(a, b int64) int {
		if hasNulls {
			if r, ok := nullCompare(vec, a, b, nullsFirst); ok {
				return r
			}
		}
		r := Compare(vs[a], vs[b])
		if desc {
			return -r
		}
		return r
	}
}

func boolCompare(vec *vector.Vector, desc, nullsFirst bool) compareFn {
	vs := vector.MustFixedCol[bool](vec)
	hasNulls := vec.HasNulls()
	return func(a, b int64) int {
		if hasNulls {
			if r, ok := nullCompare(vec, a, b, nullsFirst); ok {
				return r
			}
		}
		var r int
		switch x, y := vs[a], vs[b]; {
		case x == y:
		case y:
			r = -1
		default:
			r = 1
		}
		if desc {
			return -r
		}
		return r
	}
}

// chain orders by the first comparator that tells two rows apart.
func chain(fns []compareFn) compareFn {
	if len(fns) == 1 {
		return fns[0]
	}
	return func(a, b int64) int {
		for _, fn := range fns {
			if r := fn(a, b); r != 0 {
				return r
			}
		}
		return 0
	}
}

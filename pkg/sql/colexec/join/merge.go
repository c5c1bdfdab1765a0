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

package join

import (
	"math"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/sort"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// crossFn orders row a of the left keys against row b of the right keys
// the way sort.Order orders ascending keys with nulls last.
type crossFn = func(a, b int64) int

// sortMergeJoin argsorts both sides and merges runs of equal keys.
func sortMergeJoin(proc *process.Process, left, right []*vector.Vector, kind Kind, opts Options) (*Result, error) {
	sortOpts := sort.Options{}
	lp, err := sort.Order(proc, left, sortOpts)
	if err != nil {
		return nil, err
	}
	rp, err := sort.Order(proc, right, sortOpts)
	if err != nil {
		return nil, err
	}
	cmp, err := newCross(proc, left, right)
	if err != nil {
		return nil, err
	}
	lok := matchable(left, opts.Hash.NullEqual, opts.Hash.NaNEqual)
	rok := matchable(right, opts.Hash.NullEqual, opts.Hash.NaNEqual)

	outer, full := kind != Inner, kind == Full
	r := &Result{}
	emit := func(l, rr int64) {
		r.LeftIndices = append(r.LeftIndices, l)
		r.RightIndices = append(r.RightIndices, rr)
	}
	i, j := 0, 0
	for i < len(lp) || j < len(rp) {
		switch {
		case i < len(lp) && !lok(lp[i]):
			if outer {
				emit(lp[i], NoMatch)
			}
			i++
		case j < len(rp) && !rok(rp[j]):
			if full {
				emit(NoMatch, rp[j])
			}
			j++
		case i == len(lp):
			if full {
				emit(NoMatch, rp[j])
			}
			j++
		case j == len(rp):
			if outer {
				emit(lp[i], NoMatch)
			}
			i++
		default:
			c := cmp(lp[i], rp[j])
			if c < 0 {
				if outer {
					emit(lp[i], NoMatch)
				}
				i++
				continue
			}
			if c > 0 {
				if full {
					emit(NoMatch, rp[j])
				}
				j++
				continue
			}
			// the run of the key on both sides
			ie := i
			for ie < len(lp) && cmp(lp[ie], rp[j]) == 0 {
				ie++
			}
			je := j
			for je < len(rp) && cmp(lp[i], rp[je]) == 0 {
				je++
			}
			for a := i; a < ie; a++ {
				if !lok(lp[a]) {
					if outer {
						emit(lp[a], NoMatch)
					}
					continue
				}
				matchedAny := false
				for b := j; b < je; b++ {
					if rok(rp[b]) {
						emit(lp[a], rp[b])
						matchedAny = true
					}
				}
				if !matchedAny && outer {
					emit(lp[a], NoMatch)
				}
			}
			if full {
				for b := j; b < je; b++ {
					if !rok(rp[b]) {
						emit(NoMatch, rp[b])
					}
				}
			}
			i, j = ie, je
		}
	}
	if r.LeftIndices == nil {
		r.LeftIndices, r.RightIndices = []int64{}, []int64{}
	}
	return r, nil
}

// matchable reports whether a row can match any row at all.
func matchable(keys []*vector.Vector, nullEqual, nanEqual bool) func(row int64) bool {
	type col struct {
		vec   *vector.Vector
		nulls bool
		nan   func(row int64) bool
	}
	cols := make([]col, len(keys))
	for i, k := range keys {
		cols[i] = col{vec: k, nulls: k.HasNulls()}
		if !nanEqual {
			switch k.GetType().Oid {
			case types.T_float32:
				vs := vector.MustFixedCol[float32](k)
				cols[i].nan = func(row int64) bool { return math.IsNaN(float64(vs[row])) }
			case types.T_float64:
				vs := vector.MustFixedCol[float64](k)
				cols[i].nan = func(row int64) bool { return math.IsNaN(vs[row]) }
			}
		}
	}
	return func(row int64) bool {
		for _, c := range cols {
			if c.nulls && c.vec.IsNull(int(row)) {
				if !nullEqual {
					return false
				}
				continue
			}
			if c.nan != nil && c.nan(row) {
				return false
			}
		}
		return true
	}
}

func newCross(proc *process.Process, left, right []*vector.Vector) (crossFn, error) {
	fns := make([]crossFn, len(left))
	for i := range left {
		fn, err := crossKey(proc, left[i], right[i])
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	return func(a, b int64) int {
		for _, fn := range fns {
			if c := fn(a, b); c != 0 {
				return c
			}
		}
		return 0
	}, nil
}

func crossKey(proc *process.Process, l, r *vector.Vector) (crossFn, error) {
	switch l.GetType().Oid {
	case types.T_bool:
		return crossTyped(l, r, vector.MustFixedCol[bool](l), vector.MustFixedCol[bool](r), compareBool), nil
	case types.T_int8:
		return crossOrdered[int8](l, r), nil
	case types.T_int16:
		return crossOrdered[int16](l, r), nil
	case types.T_int32:
		return crossOrdered[int32](l, r), nil
	case types.T_int64:
		return crossOrdered[int64](l, r), nil
	case types.T_uint8:
		return crossOrdered[uint8](l, r), nil
	case types.T_uint16:
		return crossOrdered[uint16](l, r), nil
	case types.T_uint32:
		return crossOrdered[uint32](l, r), nil
	case types.T_uint64:
		return crossOrdered[uint64](l, r), nil
	case types.T_float32:
		return crossOrdered[float32](l, r), nil
	case types.T_float64:
		return crossOrdered[float64](l, r), nil
	case types.T_date:
		return crossOrdered[types.Date](l, r), nil
	case types.T_datetime:
		return crossOrdered[types.Datetime](l, r), nil
	case types.T_timestamp:
		return crossOrdered[types.Timestamp](l, r), nil
	default:
		return nil, moerr.NewUnsupportedType(proc.Ctx, "join key of %s", l.GetType())
	}
}

func compareBool(x, y bool) int {
	switch {
	case x == y:
		return 0
	case y:
		return -1
	default:
		return 1
	}
}

func crossOrdered[T types.OrderedT](l, r *vector.Vector) crossFn {
	return crossTyped(l, r, vector.MustFixedCol[T](l), vector.MustFixedCol[T](r), sort.Compare[T])
}

func crossTyped[T types.FixedSizeT](l, r *vector.Vector, lv, rv []T, compare func(x, y T) int) crossFn {
	lnulls, rnulls := l.HasNulls(), r.HasNulls()
	return func(a, b int64) int {
		an := lnulls && l.IsNull(int(a))
		bn := rnulls && r.IsNull(int(b))
		switch {
		case an && bn:
			return 0
		case an:
			return 1
		case bn:
			return -1
		}
		return compare(lv[a], rv[b])
	}
}

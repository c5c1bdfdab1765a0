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

package vector

import (
	"sync/atomic"

	"github.com/matrixorigin/relcore/pkg/common/bitmap"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// NoMatch is the gather map index of a row without a source, it gathers
// a null.
const NoMatch = bitmap.NoMatch

// Gather materializes src[gatherMap[i]] for every i into a new column.
// Validity follows the gathered rows; the result has no bitmap when every
// gathered row is valid.
func Gather(proc *process.Process, src *Vector, gatherMap []int64) (*Vector, error) {
	switch src.typ.Oid {
	case types.T_bool:
		return gatherFixed[bool](proc, src, gatherMap)
	case types.T_int8:
		return gatherFixed[int8](proc, src, gatherMap)
	case types.T_int16:
		return gatherFixed[int16](proc, src, gatherMap)
	case types.T_int32:
		return gatherFixed[int32](proc, src, gatherMap)
	case types.T_int64:
		return gatherFixed[int64](proc, src, gatherMap)
	case types.T_uint8:
		return gatherFixed[uint8](proc, src, gatherMap)
	case types.T_uint16:
		return gatherFixed[uint16](proc, src, gatherMap)
	case types.T_uint32:
		return gatherFixed[uint32](proc, src, gatherMap)
	case types.T_uint64:
		return gatherFixed[uint64](proc, src, gatherMap)
	case types.T_float32:
		return gatherFixed[float32](proc, src, gatherMap)
	case types.T_float64:
		return gatherFixed[float64](proc, src, gatherMap)
	case types.T_date:
		return gatherFixed[types.Date](proc, src, gatherMap)
	case types.T_datetime:
		return gatherFixed[types.Datetime](proc, src, gatherMap)
	case types.T_timestamp:
		return gatherFixed[types.Timestamp](proc, src, gatherMap)
	default:
		return nil, moerr.NewUnsupportedType(proc.Ctx, "gather of %s", src.typ)
	}
}

func gatherFixed[T types.FixedSizeT](proc *process.Process, src *Vector, gatherMap []int64) (*Vector, error) {
	n := len(gatherMap)
	out, err := New(proc, src.typ, n)
	if err != nil {
		return nil, err
	}
	vs := MustFixedCol[T](src)
	ws := MustFixedCol[T](out)
	limit := int64(len(vs))
	var outOfRange atomic.Bool
	if err = proc.Launch(n, func(_, start, end int) {
		for i := start; i < end; i++ {
			idx := gatherMap[i]
			if idx == NoMatch {
				continue
			}
			if idx < 0 || idx >= limit {
				outOfRange.Store(true)
				continue
			}
			ws[i] = vs[idx]
		}
	}); err != nil {
		out.Free()
		return nil, err
	}
	if outOfRange.Load() {
		out.Free()
		return nil, moerr.NewInvalidInput(proc.Ctx, "gather index out of range [0, %d)", limit)
	}
	bm, nulls, err := bitmap.GatherValidity(proc, src.validity, gatherMap)
	if err != nil {
		out.Free()
		return nil, err
	}
	out.SetValidity(bm, nulls)
	return out, nil
}

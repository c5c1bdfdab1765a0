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
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/logutil"
	"github.com/matrixorigin/relcore/pkg/scan"
	"github.com/matrixorigin/relcore/pkg/sort"
	"github.com/matrixorigin/relcore/pkg/sql/colexec/restrict"
	"github.com/matrixorigin/relcore/pkg/util/metric"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// Grouped is the result of GroupBy, one row per distinct key in ascending
// key order with the null key last.
type Grouped struct {
	Keys   []*vector.Vector
	Values *vector.Vector
	// Groups maps every input row to its group.
	Groups []int64
}

func (g *Grouped) Len() int {
	if g.Values == nil {
		return 0
	}
	return g.Values.Length()
}

func (g *Grouped) Free() {
	for _, v := range g.Keys {
		v.Free()
	}
	g.Values.Free()
	g.Keys, g.Values, g.Groups = nil, nil, nil
}

// GroupBy reduces values with op over the rows sharing equal keys. All
// null keys form one group.
func GroupBy(proc *process.Process, keys []*vector.Vector, values *vector.Vector, op Op) (*Grouped, error) {
	proc = proc.WithOp(opName)
	if _, err := ResultType(proc.Ctx, op, values.Type()); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, moerr.NewInvalidInput(proc.Ctx, "group by without keys")
	}
	n := values.Length()
	for i, k := range keys {
		if k.Length() != n {
			return nil, moerr.NewShapeMismatch(proc.Ctx, "group key %d has %d rows, values have %d", i, k.Length(), n)
		}
	}
	for _, k := range keys {
		if _, err := rowEqual(proc, k); err != nil {
			return nil, err
		}
	}

	sorted, err := sort.SortByKey(proc, keys, sort.Options{}, []*vector.Vector{values})
	if err != nil {
		return nil, err
	}
	defer sorted.Free()
	g, err := group(proc, sorted)
	if err != nil {
		return nil, err
	}
	res, err := g.reduce(proc, sorted, op)
	if err != nil {
		return nil, err
	}
	metric.ReduceRowsCounter.Add(float64(n))
	logutil.Debug("group by done",
		logutil.OpField(opName),
		zap.Stringer("op", op),
		logutil.RowsField("rows", n),
		logutil.RowsField("groups", res.Len()))
	return res, nil
}

type grouping struct {
	ids    []int64
	starts *bitmap.Bitmap
}

func (g *grouping) reduce(proc *process.Process, sorted *sort.Result, op Op) (_ *Grouped, err error) {
	defer g.starts.Free()
	n := int64(len(g.ids))
	starts, err := restrict.Selection(proc, g.starts)
	if err != nil {
		return nil, err
	}
	offsets := append(starts[:len(starts):len(starts)], n)

	res := &Grouped{}
	defer func() {
		if err != nil {
			res.Free()
		}
	}()
	if res.Values, err = segmentedReduce(proc, sorted.Payload[0], offsets, op); err != nil {
		return nil, err
	}
	for _, k := range sorted.Keys {
		gk, err := vector.Gather(proc, k, starts)
		if err != nil {
			return nil, err
		}
		res.Keys = append(res.Keys, gk)
	}
	res.Groups = make([]int64, n)
	perm := sorted.Perm
	if err = proc.Launch(int(n), func(_, start, end int) {
		for j := start; j < end; j++ {
			res.Groups[perm[j]] = g.ids[j]
		}
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// group flags the first row of every run of equal sorted keys and numbers
// the runs with an inclusive scan of the flags.
func group(proc *process.Process, sorted *sort.Result) (*grouping, error) {
	n := sorted.Keys[0].Length()
	same := make([]func(a, b int) bool, len(sorted.Keys))
	for i, k := range sorted.Keys {
		fn, err := rowEqual(proc, k)
		if err != nil {
			return nil, err
		}
		same[i] = fn
	}
	starts, err := bitmap.Alloc(proc.Allocator(), int64(n))
	if err != nil {
		return nil, err
	}
	flags, err := mpool.MakeSliceNoClear[int64](proc.Mp(), n)
	if err != nil {
		starts.Free()
		return nil, err
	}
	defer mpool.FreeSlice(proc.Mp(), flags)
	if err = proc.LaunchBlocks(n, proc.BlockSize()/bitmap.WordBits*bitmap.WordBits, func(_, start, end int) {
		for i := start; i < end; i++ {
			flags[i] = 0
			if i == 0 || !sameRow(same, i-1, i) {
				flags[i] = 1
				starts.Add(uint64(i))
			}
		}
	}); err != nil {
		starts.Free()
		return nil, err
	}
	ids := make([]int64, n)
	if err = scan.InclusiveScan[int64](proc, flags, ids, scan.Sum[int64]{}); err != nil {
		starts.Free()
		return nil, err
	}
	for i := range ids {
		ids[i]--
	}
	return &grouping{ids: ids, starts: starts}, nil
}

func sameRow(same []func(a, b int) bool, a, b int) bool {
	for _, fn := range same {
		if !fn(a, b) {
			return false
		}
	}
	return true
}

// rowEqual compares two rows of v the way sort orders them: nulls equal
// each other, NaN equals NaN.
func rowEqual(proc *process.Process, v *vector.Vector) (func(a, b int) bool, error) {
	switch v.GetType().Oid {
	case types.T_bool:
		vs := vector.MustFixedCol[bool](v)
		return func(a, b int) bool {
			if an, bn := v.IsNull(a), v.IsNull(b); an || bn {
				return an && bn
			}
			return vs[a] == vs[b]
		}, nil
	case types.T_int8:
		return orderedEqual[int8](v), nil
	case types.T_int16:
		return orderedEqual[int16](v), nil
	case types.T_int32:
		return orderedEqual[int32](v), nil
	case types.T_int64:
		return orderedEqual[int64](v), nil
	case types.T_uint8:
		return orderedEqual[uint8](v), nil
	case types.T_uint16:
		return orderedEqual[uint16](v), nil
	case types.T_uint32:
		return orderedEqual[uint32](v), nil
	case types.T_uint64:
		return orderedEqual[uint64](v), nil
	case types.T_float32:
		return orderedEqual[float32](v), nil
	case types.T_float64:
		return orderedEqual[float64](v), nil
	case types.T_date:
		return orderedEqual[types.Date](v), nil
	case types.T_datetime:
		return orderedEqual[types.Datetime](v), nil
	case types.T_timestamp:
		return orderedEqual[types.Timestamp](v), nil
	}
	return nil, moerr.NewUnsupportedType(proc.Ctx, "group key of %s", v.GetType())
}

func orderedEqual[T types.OrderedT](v *vector.Vector) func(a, b int) bool {
	vs := vector.MustFixedCol[T](v)
	return func(a, b int) bool {
		if an, bn := v.IsNull(a), v.IsNull(b); an || bn {
			return an && bn
		}
		return sort.Compare(vs[a], vs[b]) == 0
	}
}

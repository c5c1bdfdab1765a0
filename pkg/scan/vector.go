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

package scan

import (
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

type Kind uint8

const (
	KindSum Kind = iota
	KindMax
	KindMin
)

func (k Kind) String() string {
	switch k {
	case KindSum:
		return "sum"
	case KindMax:
		return "max"
	case KindMin:
		return "min"
	}
	return "unknown"
}

// Options of a column scan.
type Options struct {
	Kind      Kind
	Inclusive bool
}

// ScanVector scans a numeric column. Null rows contribute the identity and
// stay null in the result, which has the type of the input.
func ScanVector(proc *process.Process, v *vector.Vector, opts Options) (*vector.Vector, error) {
	switch v.GetType().Oid {
	case types.T_int8:
		return scanFixed[int8](proc, v, opts)
	case types.T_int16:
		return scanFixed[int16](proc, v, opts)
	case types.T_int32:
		return scanFixed[int32](proc, v, opts)
	case types.T_int64:
		return scanFixed[int64](proc, v, opts)
	case types.T_uint8:
		return scanFixed[uint8](proc, v, opts)
	case types.T_uint16:
		return scanFixed[uint16](proc, v, opts)
	case types.T_uint32:
		return scanFixed[uint32](proc, v, opts)
	case types.T_uint64:
		return scanFixed[uint64](proc, v, opts)
	case types.T_float32:
		return scanFixed[float32](proc, v, opts)
	case types.T_float64:
		return scanFixed[float64](proc, v, opts)
	default:
		return nil, moerr.NewUnsupportedType(proc.Ctx, "%s scan of %s", opts.Kind, v.GetType())
	}
}

func opOf[T types.Number](k Kind) (Op[T], bool) {
	switch k {
	case KindSum:
		return Sum[T]{}, true
	case KindMax:
		return Max[T]{}, true
	case KindMin:
		return Min[T]{}, true
	}
	return nil, false
}

func scanFixed[T types.OrderedT](proc *process.Process, v *vector.Vector, opts Options) (*vector.Vector, error) {
	op, ok := opOf[T](opts.Kind)
	if !ok {
		return nil, moerr.NewInvalidInput(proc.Ctx, "scan kind %d", opts.Kind)
	}
	out, err := vector.New(proc, v.Type(), v.Length())
	if err != nil {
		return nil, err
	}
	vs := vector.MustFixedCol[T](v)
	ws := vector.MustFixedCol[T](out)
	src := vs
	if v.HasNulls() {
		// nulls read as the identity
		identity := op.Identity()
		copy(ws, vs)
		if err = proc.Launch(len(ws), func(_, start, end int) {
			for i := start; i < end; i++ {
				if v.IsNull(i) {
					ws[i] = identity
				}
			}
		}); err != nil {
			out.Free()
			return nil, err
		}
		src = ws
	}
	if opts.Inclusive {
		err = InclusiveScan(proc, src, ws, op)
	} else {
		_, err = ExclusiveScan(proc, src, ws, op)
	}
	if err != nil {
		out.Free()
		return nil, err
	}
	out.SetValidity(v.ShareValidity(), v.NullCount())
	return out, nil
}

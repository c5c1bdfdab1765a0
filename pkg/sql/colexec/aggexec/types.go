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
	"context"
	"fmt"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/types"
)

// Op is a reduction over the valid rows of a column.
type Op uint8

const (
	Sum Op = iota
	Min
	Max
	Count
	Mean
)

func (op Op) String() string {
	switch op {
	case Sum:
		return "sum"
	case Min:
		return "min"
	case Max:
		return "max"
	case Count:
		return "count"
	case Mean:
		return "mean"
	}
	return fmt.Sprintf("unknown op %d", uint8(op))
}

// Scalar is the result of a whole-column reduction. Value holds the Go
// value of Type and is meaningless when Valid is false.
type Scalar struct {
	Type  types.Type
	Value any
	Valid bool
}

// ResultType is the type op produces over a column of typ.
//
//	sum:     int64 for signed, uint64 for unsigned, float64 for floats
//	mean:    float64 for any numeric
//	min/max: typ for any ordered type
//	count:   int64 for any type
func ResultType(ctx context.Context, op Op, typ types.Type) (types.Type, error) {
	oid := typ.Oid
	switch op {
	case Sum:
		if oid.IsNumeric() {
			return oid.SumType().ToType(), nil
		}
	case Mean:
		if oid.IsNumeric() {
			return types.T_float64.ToType(), nil
		}
	case Min, Max:
		if oid.IsNumeric() || oid.IsTemporal() {
			return typ, nil
		}
	case Count:
		if oid.Valid() {
			return types.T_int64.ToType(), nil
		}
	default:
		return types.Type{}, moerr.NewInvalidInput(ctx, "reduction %s", op)
	}
	return types.Type{}, moerr.NewUnsupportedType(ctx, "%s of %s", op, typ)
}

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

package vector

import (
	"fmt"
	"unsafe"

	"github.com/matrixorigin/relcore/pkg/common/bitmap"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

const unknownNullCount = -1

// Vector represent a column
//
// A vector without a validity bitmap has no nulls. With one, bit i set
// means row i is valid and the value stored at an invalid row is never
// read.
type Vector struct {
	typ types.Type
	// data holds length elements of typ
	data *mpool.Buffer
	// validity is nil when every row is valid
	validity *bitmap.Bitmap

	length    int
	nullCount int
}

// New allocates an all-valid zeroed column of n rows from the process
// allocator.
func New(proc *process.Process, typ types.Type, n int) (*Vector, error) {
	if !typ.IsFixedLen() {
		return nil, moerr.NewUnsupportedType(proc.Ctx, "column of %s", typ)
	}
	if n < 0 {
		return nil, moerr.NewInvalidInput(proc.Ctx, "negative column length %d", n)
	}
	buf, err := mpool.NewBuffer(proc.Allocator(), n*int(typ.Size), 0)
	if err != nil {
		return nil, err
	}
	return &Vector{typ: typ, data: buf, length: n}, nil
}

// NewFromBuffer adopts a reference on data as the storage of n rows.
func NewFromBuffer(typ types.Type, data *mpool.Buffer, n int) (*Vector, error) {
	if !typ.IsFixedLen() {
		return nil, moerr.NewUnsupportedTypeNoCtx("column of %s", typ)
	}
	if data.Len() < n*int(typ.Size) {
		return nil, moerr.NewInvalidStateNoCtx("data buffer of %d bytes is shorter than %d %s rows", data.Len(), n, typ)
	}
	return &Vector{typ: typ, data: data.IncRef(), length: n}, nil
}

// NewFixed wraps vals without copying. The column does not own vals.
func NewFixed[T types.FixedSizeT](oid types.T, vals []T) *Vector {
	typ := oid.ToType()
	var v T
	if int(unsafe.Sizeof(v)) != int(typ.Size) {
		panic(moerr.NewInternalErrorNoCtx("%T values for a %s column", v, oid))
	}
	return &Vector{
		typ:    typ,
		data:   mpool.WrapBuffer(types.EncodeSlice(vals)),
		length: len(vals),
	}
}

// MustFixedCol returns the typed view of the data buffer.
func MustFixedCol[T types.FixedSizeT](v *Vector) []T {
	if v.length == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(v.data.Bytes()))), v.length)
}

func (v *Vector) Length() int {
	return v.length
}

func (v *Vector) GetType() *types.Type {
	return &v.typ
}

func (v *Vector) Type() types.Type {
	return v.typ
}

// Data returns the buffer holding the values.
func (v *Vector) Data() *mpool.Buffer {
	return v.data
}

// Validity returns the validity bitmap, nil when all rows are valid.
func (v *Vector) Validity() *bitmap.Bitmap {
	return v.validity
}

// Size is the byte footprint of data and validity.
func (v *Vector) Size() int {
	sz := v.length * int(v.typ.Size)
	if v.validity != nil {
		sz += v.validity.Size()
	}
	return sz
}

func (v *Vector) IsValid(i int) bool {
	return v.validity == nil || v.validity.Contains(uint64(i))
}

func (v *Vector) IsNull(i int) bool {
	return !v.IsValid(i)
}

func (v *Vector) HasNulls() bool {
	return v.validity != nil && v.NullCount() > 0
}

// NullCount returns the cached null count, counting the bitmap when the
// cache is stale.
func (v *Vector) NullCount() int {
	if v.validity == nil {
		return 0
	}
	if v.nullCount == unknownNullCount {
		v.nullCount = v.length - v.validity.CountSeq()
	}
	return v.nullCount
}

// CountNulls recounts the nulls with the parallel popcount kernel and
// refreshes the cache.
func (v *Vector) CountNulls(proc *process.Process) (int, error) {
	if v.validity == nil {
		return 0, nil
	}
	valid, err := bitmap.Count(proc, v.validity)
	if err != nil {
		return 0, err
	}
	v.nullCount = v.length - valid
	return v.nullCount, nil
}

// SetNull marks row i invalid, creating the validity bitmap on first use.
func (v *Vector) SetNull(i int) {
	if v.validity == nil {
		v.validity = bitmap.NewAllSet(int64(v.length))
		v.nullCount = 0
	}
	if v.validity.Contains(uint64(i)) {
		v.validity.Remove(uint64(i))
		if v.nullCount != unknownNullCount {
			v.nullCount++
		}
	}
}

// SetValidity installs bm as the validity bitmap, taking over the caller's
// reference. nullCount < 0 means unknown. A bitmap without nulls is
// dropped so the column keeps no bitmap when all rows are valid.
func (v *Vector) SetValidity(bm *bitmap.Bitmap, nullCount int) {
	if v.validity != nil {
		v.validity.Free()
		v.validity = nil
	}
	if bm == nil {
		v.nullCount = 0
		return
	}
	if nullCount < 0 {
		nullCount = v.length - bm.CountSeq()
	}
	if nullCount == 0 {
		bm.Free()
		v.nullCount = 0
		return
	}
	v.validity = bm
	v.nullCount = nullCount
}

// Validate checks the column invariants: a bitmap covers every row and is
// present exactly when the column has nulls.
func (v *Vector) Validate() error {
	if need := v.length * int(v.typ.Size); v.data == nil || v.data.Len() < need {
		return moerr.NewInvalidStateNoCtx("data buffer shorter than %d %s rows", v.length, v.typ)
	}
	if v.validity == nil {
		return nil
	}
	if v.validity.Len() < int64(v.length) {
		return moerr.NewInvalidStateNoCtx("validity bitmap of %d rows is shorter than %d rows", v.validity.Len(), v.length)
	}
	if cached := v.nullCount; cached != unknownNullCount {
		v.nullCount = unknownNullCount
		if recount := v.NullCount(); recount != cached {
			return moerr.NewInvalidStateNoCtx("cached null count %d, bitmap has %d nulls", cached, recount)
		}
	}
	if v.NullCount() == 0 {
		return moerr.NewInvalidStateNoCtx("validity bitmap present on a column without nulls")
	}
	return nil
}

// Dup returns a column sharing v's buffers.
func (v *Vector) Dup() *Vector {
	w := &Vector{
		typ:       v.typ,
		data:      v.data.IncRef(),
		length:    v.length,
		nullCount: v.nullCount,
	}
	w.validity = v.ShareValidity()
	return w
}

// ShareValidity returns a bitmap holding its own reference on v's
// validity, nil when all rows are valid.
func (v *Vector) ShareValidity() *bitmap.Bitmap {
	if v.validity == nil {
		return nil
	}
	if buf := v.validity.Buffer(); buf != nil {
		bm, _ := bitmap.FromBuffer(buf, v.validity.Len())
		return bm
	}
	return v.validity.Clone()
}

// Free drops the column's references on its buffers.
func (v *Vector) Free() {
	if v == nil {
		return
	}
	if v.data != nil {
		v.data.Free()
		v.data = nil
	}
	if v.validity != nil {
		v.validity.Free()
		v.validity = nil
	}
	v.length = 0
	v.nullCount = 0
}

func (v *Vector) String() string {
	switch v.typ.Oid {
	case types.T_bool:
		return vecToString[bool](v)
	case types.T_int8:
		return vecToString[int8](v)
	case types.T_int16:
		return vecToString[int16](v)
	case types.T_int32:
		return vecToString[int32](v)
	case types.T_int64:
		return vecToString[int64](v)
	case types.T_uint8:
		return vecToString[uint8](v)
	case types.T_uint16:
		return vecToString[uint16](v)
	case types.T_uint32:
		return vecToString[uint32](v)
	case types.T_uint64:
		return vecToString[uint64](v)
	case types.T_float32:
		return vecToString[float32](v)
	case types.T_float64:
		return vecToString[float64](v)
	case types.T_date:
		return vecToString[types.Date](v)
	case types.T_datetime:
		return vecToString[types.Datetime](v)
	case types.T_timestamp:
		return vecToString[types.Timestamp](v)
	default:
		panic(fmt.Sprintf("unexpect type %s for function vector.String", v.typ))
	}
}

func vecToString[T types.FixedSizeT](v *Vector) string {
	col := MustFixedCol[T](v)
	out := make([]string, len(col))
	for i := range col {
		if v.IsNull(i) {
			out[i] = "null"
		} else {
			out[i] = fmt.Sprintf("%v", col[i])
		}
	}
	return fmt.Sprintf("%v", out)
}

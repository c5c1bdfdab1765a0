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
	"unsafe"

	"github.com/matrixorigin/relcore/pkg/common/bitmap"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/container/types"
)

// Interchange is the fixed layout column record exchanged with callers
// and other processes. Validity is nil when the column has no nulls.
type Interchange struct {
	Oid       types.T
	Data      unsafe.Pointer
	Validity  unsafe.Pointer
	Length    int64
	NullCount int64

	// references held by the record, nil for foreign memory
	dataRef     *mpool.Buffer
	validityRef *mpool.Buffer
}

// ToInterchange exports v without copying. The record holds its own
// references on v's buffers until Release.
func (v *Vector) ToInterchange() *Interchange {
	ic := &Interchange{
		Oid:    v.typ.Oid,
		Length: int64(v.length),
	}
	if v.length > 0 {
		ic.Data = unsafe.Pointer(unsafe.SliceData(v.data.Bytes()))
		ic.dataRef = v.data.IncRef()
	}
	if v.validity != nil {
		ic.NullCount = int64(v.NullCount())
		ic.Validity = unsafe.Pointer(v.validity.Ptr())
		if buf := v.validity.Buffer(); buf != nil {
			ic.validityRef = buf.IncRef()
		}
	}
	return ic
}

// Release drops the references the record holds.
func (ic *Interchange) Release() {
	if ic.dataRef != nil {
		ic.dataRef.Free()
		ic.dataRef = nil
	}
	if ic.validityRef != nil {
		ic.validityRef.Free()
		ic.validityRef = nil
	}
}

// FromInterchange imports a record without copying. Buffers owned by the
// engine gain a reference; foreign memory must outlive the column.
func FromInterchange(ic *Interchange) (*Vector, error) {
	typ := ic.Oid.ToType()
	if !typ.IsFixedLen() {
		return nil, moerr.NewUnsupportedTypeNoCtx("column exchange of type %d", ic.Oid)
	}
	if ic.Length < 0 || ic.NullCount < 0 || ic.NullCount > ic.Length {
		return nil, moerr.NewInvalidStateNoCtx("%d nulls in a column of %d rows", ic.NullCount, ic.Length)
	}
	if ic.NullCount > 0 && ic.Validity == nil {
		return nil, moerr.NewInvalidStateNoCtx("%d nulls without a validity bitmap", ic.NullCount)
	}
	n := int(ic.Length)
	if n > 0 && ic.Data == nil {
		return nil, moerr.NewInvalidStateNoCtx("%d rows without a data buffer", n)
	}

	var data *mpool.Buffer
	if ic.dataRef != nil {
		data = ic.dataRef.IncRef()
	} else {
		data = mpool.WrapBuffer(unsafe.Slice((*byte)(ic.Data), n*int(typ.Size)))
	}
	v := &Vector{typ: typ, data: data, length: n}
	if ic.NullCount == 0 {
		return v, nil
	}
	if ic.validityRef != nil {
		bm, err := bitmap.FromBuffer(ic.validityRef, ic.Length)
		if err != nil {
			v.Free()
			return nil, err
		}
		v.validity = bm
	} else {
		bm, err := bitmap.FromWords(unsafe.Slice((*uint64)(ic.Validity), bitmap.Words(ic.Length)), ic.Length)
		if err != nil {
			v.Free()
			return nil, err
		}
		v.validity = bm
	}
	v.nullCount = int(ic.NullCount)
	return v, nil
}

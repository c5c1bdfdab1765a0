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

package types

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// T is the closed set of column element types. Operators switch on it
// once at their entry and run a kernel instantiated for the matching Go
// type.
type T uint8

const (
	T_any T = 0

	T_bool T = 10

	T_int8  T = 20
	T_int16 T = 21
	T_int32 T = 22
	T_int64 T = 23

	T_uint8  T = 25
	T_uint16 T = 26
	T_uint32 T = 27
	T_uint64 T = 28

	T_float32 T = 30
	T_float64 T = 31

	T_date      T = 50
	T_datetime  T = 52
	T_timestamp T = 53
)

const (
	DateSize      int = 4
	DatetimeSize  int = 8
	TimestampSize int = 8
)

// Date is days since 0001-01-01.
type Date int32

// Datetime is microseconds since 0001-01-01 00:00:00.
type Datetime int64

// Timestamp is microseconds since 0001-01-01 00:00:00 UTC.
type Timestamp int64

type Ints interface {
	int8 | int16 | int32 | int64
}

type UInts interface {
	uint8 | uint16 | uint32 | uint64
}

type Floats interface {
	float32 | float64
}

// OrderedT is every element type with a total order used by sort, join
// and min/max.
type OrderedT interface {
	Ints | UInts | Floats | Date | Datetime | Timestamp
}

// FixedSizeT is every element type a column may hold.
type FixedSizeT interface {
	bool | OrderedT
}

// Number is the constraint of arithmetic reductions.
type Number interface {
	constraints.Integer | constraints.Float
}

type Type struct {
	Oid  T
	Size int32
}

func New(oid T) Type {
	return Type{Oid: oid, Size: int32(oid.FixedLength())}
}

func (t T) ToType() Type {
	return New(t)
}

func (t Type) Eq(b Type) bool {
	return t.Oid == b.Oid
}

func (t Type) String() string {
	return t.Oid.String()
}

func (t Type) IsFixedLen() bool {
	return t.Oid.FixedLength() > 0
}

// FixedLength returns the element byte width, -1 for unknown types.
func (t T) FixedLength() int {
	switch t {
	case T_bool, T_int8, T_uint8:
		return 1
	case T_int16, T_uint16:
		return 2
	case T_int32, T_uint32, T_float32:
		return 4
	case T_date:
		return DateSize
	case T_int64, T_uint64, T_float64:
		return 8
	case T_datetime:
		return DatetimeSize
	case T_timestamp:
		return TimestampSize
	}
	return -1
}

func (t T) Valid() bool {
	return t.FixedLength() > 0
}

func (t T) IsSignedInt() bool {
	switch t {
	case T_int8, T_int16, T_int32, T_int64:
		return true
	}
	return false
}

func (t T) IsUnsignedInt() bool {
	switch t {
	case T_uint8, T_uint16, T_uint32, T_uint64:
		return true
	}
	return false
}

func (t T) IsFloat() bool {
	return t == T_float32 || t == T_float64
}

func (t T) IsTemporal() bool {
	return t == T_date || t == T_datetime || t == T_timestamp
}

// IsNumeric reports whether values of t can be summed.
func (t T) IsNumeric() bool {
	return t.IsSignedInt() || t.IsUnsignedInt() || t.IsFloat()
}

func (t T) String() string {
	switch t {
	case T_any:
		return "ANY"
	case T_bool:
		return "BOOL"
	case T_int8:
		return "TINYINT"
	case T_int16:
		return "SMALLINT"
	case T_int32:
		return "INT"
	case T_int64:
		return "BIGINT"
	case T_uint8:
		return "TINYINT UNSIGNED"
	case T_uint16:
		return "SMALLINT UNSIGNED"
	case T_uint32:
		return "INT UNSIGNED"
	case T_uint64:
		return "BIGINT UNSIGNED"
	case T_float32:
		return "FLOAT"
	case T_float64:
		return "DOUBLE"
	case T_date:
		return "DATE"
	case T_datetime:
		return "DATETIME"
	case T_timestamp:
		return "TIMESTAMP"
	}
	return fmt.Sprintf("unexpected type: %d", t)
}

// OidString returns T string
func (t T) OidString() string {
	switch t {
	case T_any:
		return "T_any"
	case T_bool:
		return "T_bool"
	case T_int8:
		return "T_int8"
	case T_int16:
		return "T_int16"
	case T_int32:
		return "T_int32"
	case T_int64:
		return "T_int64"
	case T_uint8:
		return "T_uint8"
	case T_uint16:
		return "T_uint16"
	case T_uint32:
		return "T_uint32"
	case T_uint64:
		return "T_uint64"
	case T_float32:
		return "T_float32"
	case T_float64:
		return "T_float64"
	case T_date:
		return "T_date"
	case T_datetime:
		return "T_datetime"
	case T_timestamp:
		return "T_timestamp"
	}
	return "unknown_type"
}

// SumType returns the accumulator type of a sum over t.
func (t T) SumType() T {
	switch {
	case t.IsSignedInt():
		return T_int64
	case t.IsUnsignedInt():
		return T_uint64
	case t.IsFloat():
		return T_float64
	}
	return T_any
}

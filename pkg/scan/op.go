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
	"math"
	"reflect"

	"github.com/matrixorigin/relcore/pkg/container/types"
)

// Op is an associative binary operator with an identity element.
type Op[T types.Number] interface {
	Identity() T
	Combine(a, b T) T
}

type Sum[T types.Number] struct{}

func (Sum[T]) Identity() T {
	return 0
}

func (Sum[T]) Combine(a, b T) T {
	return a + b
}

type Max[T types.Number] struct{}

func (Max[T]) Identity() T {
	return MinValue[T]()
}

func (Max[T]) Combine(a, b T) T {
	if b > a {
		return b
	}
	return a
}

type Min[T types.Number] struct{}

func (Min[T]) Identity() T {
	return MaxValue[T]()
}

func (Min[T]) Combine(a, b T) T {
	if b < a {
		return b
	}
	return a
}

// MaxValue returns the largest value of T, +Inf for floats.
func MaxValue[T types.Number]() T {
	var v T
	switch p := any(&v).(type) {
	case *int8:
		*p = math.MaxInt8
	case *int16:
		*p = math.MaxInt16
	case *int32:
		*p = math.MaxInt32
	case *int64:
		*p = math.MaxInt64
	case *int:
		*p = math.MaxInt
	case *uint8:
		*p = math.MaxUint8
	case *uint16:
		*p = math.MaxUint16
	case *uint32:
		*p = math.MaxUint32
	case *uint64:
		*p = math.MaxUint64
	case *uint:
		*p = math.MaxUint
	case *float32:
		*p = float32(math.Inf(1))
	case *float64:
		*p = math.Inf(1)
	default:
		return boundOf[T](true)
	}
	return v
}

// MinValue returns the smallest value of T, -Inf for floats.
func MinValue[T types.Number]() T {
	var v T
	switch p := any(&v).(type) {
	case *int8:
		*p = math.MinInt8
	case *int16:
		*p = math.MinInt16
	case *int32:
		*p = math.MinInt32
	case *int64:
		*p = math.MinInt64
	case *int:
		*p = math.MinInt
	case *uint8, *uint16, *uint32, *uint64, *uint:
	case *float32:
		*p = float32(math.Inf(-1))
	case *float64:
		*p = math.Inf(-1)
	default:
		return boundOf[T](false)
	}
	return v
}

// boundOf handles named numeric types such as types.Date.
func boundOf[T types.Number](upper bool) T {
	var v T
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		bits := rv.Type().Bits()
		if upper {
			rv.SetInt(int64(uint64(1)<<(bits-1) - 1))
		} else {
			rv.SetInt(-1 << (bits - 1))
		}
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint, reflect.Uintptr:
		if upper {
			rv.SetUint(math.MaxUint64 >> (64 - rv.Type().Bits()))
		}
	case reflect.Float32, reflect.Float64:
		if upper {
			rv.SetFloat(math.Inf(1))
		} else {
			rv.SetFloat(math.Inf(-1))
		}
	}
	return v
}

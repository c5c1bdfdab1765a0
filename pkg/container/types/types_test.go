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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestType_String(t *testing.T) {
	myType := T_int64.ToType()
	require.Equal(t, "BIGINT", myType.String())
}

func TestType_Eq(t *testing.T) {
	myType := T_int64.ToType()
	myType1 := T_int64.ToType()
	require.True(t, myType.Eq(myType1))
	require.False(t, myType.Eq(T_uint64.ToType()))
}

func TestT_ToType(t *testing.T) {
	require.Equal(t, int32(1), T_bool.ToType().Size)
	require.Equal(t, int32(1), T_int8.ToType().Size)
	require.Equal(t, int32(2), T_int16.ToType().Size)
	require.Equal(t, int32(4), T_int32.ToType().Size)
	require.Equal(t, int32(8), T_int64.ToType().Size)
	require.Equal(t, int32(1), T_uint8.ToType().Size)
	require.Equal(t, int32(2), T_uint16.ToType().Size)
	require.Equal(t, int32(4), T_uint32.ToType().Size)
	require.Equal(t, int32(8), T_uint64.ToType().Size)
	require.Equal(t, int32(4), T_date.ToType().Size)
	require.Equal(t, int32(8), T_timestamp.ToType().Size)
	require.Equal(t, int32(-1), T_any.ToType().Size)
	require.False(t, T_any.ToType().IsFixedLen())
}

func TestT_OidString(t *testing.T) {
	require.Equal(t, "T_int8", T_int8.OidString())
	require.Equal(t, "T_uint64", T_uint64.OidString())
	require.Equal(t, "T_float64", T_float64.OidString())
	require.Equal(t, "T_datetime", T_datetime.OidString())
	require.Equal(t, "unknown_type", T(99).OidString())
}

func TestSumType(t *testing.T) {
	require.Equal(t, T_int64, T_int8.SumType())
	require.Equal(t, T_uint64, T_uint16.SumType())
	require.Equal(t, T_float64, T_float32.SumType())
	require.Equal(t, T_any, T_date.SumType())
	require.True(t, T_date.IsTemporal())
	require.False(t, T_bool.IsNumeric())
}

func TestEncodeDecode(t *testing.T) {
	xs := []int32{1, -2, 3}
	bs := EncodeSlice(xs)
	require.Equal(t, 12, len(bs))
	require.Equal(t, xs, DecodeSlice[int32](bs))
	require.Nil(t, EncodeSlice[int32](nil))
	require.Panics(t, func() { DecodeSlice[int64](bs[:5]) })

	require.Equal(t, int32(-2), DecodeValue(EncodeFixed(int32(-2)), T_int32))
	require.Equal(t, Date(7), DecodeValue(EncodeFixed(Date(7)), T_date))
	require.Panics(t, func() { DecodeValue([]byte{1}, T_any) })
}

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
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/device"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

func newTestProcess(t *testing.T, workers, blockSize int) *process.Process {
	dev, err := device.New("scan-test", workers, blockSize)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	proc, err := process.New(context.Background(), dev, nil, 0)
	require.NoError(t, err)
	t.Cleanup(proc.Free)
	return proc
}

func TestExclusiveSum(t *testing.T) {
	proc := newTestProcess(t, 4, device.MinBlockSize)
	in := []int64{3, 1, 7, 0, 4, 1, 6, 3}
	out := make([]int64, len(in))
	total, err := ExclusiveSum(proc, in, out)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 3, 4, 11, 11, 15, 16, 22}, out)
	require.Equal(t, int64(25), total)

	require.NoError(t, InclusiveScan[int64](proc, in, out, Sum[int64]{}))
	require.Equal(t, []int64{3, 4, 11, 11, 15, 16, 22, 25}, out)
}

func TestEmpty(t *testing.T) {
	proc := newTestProcess(t, 2, device.MinBlockSize)
	total, err := ExclusiveScan[int32](proc, nil, nil, Min[int32]{})
	require.NoError(t, err)
	require.Equal(t, int32(math.MaxInt32), total)
}

func TestShapeMismatch(t *testing.T) {
	proc := newTestProcess(t, 2, device.MinBlockSize)
	_, err := ExclusiveSum(proc, make([]int64, 3), make([]int64, 2))
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrShapeMismatch))
}

func TestMultiBlock(t *testing.T) {
	proc := newTestProcess(t, 8, device.MinBlockSize)
	for _, n := range []int{1, 63, 64, 65, 1000, 4097} {
		in := make([]int64, n)
		for i := range in {
			in[i] = int64(rand.Intn(100) - 50)
		}
		out := make([]int64, n)
		total, err := ExclusiveSum(proc, in, out)
		require.NoError(t, err)
		var acc int64
		for i := range in {
			require.Equal(t, acc, out[i], "n=%d i=%d", n, i)
			acc += in[i]
		}
		require.Equal(t, acc, total)

		maxes := make([]int64, n)
		require.NoError(t, InclusiveScan[int64](proc, in, maxes, Max[int64]{}))
		cur := int64(math.MinInt64)
		for i := range in {
			if in[i] > cur {
				cur = in[i]
			}
			require.Equal(t, cur, maxes[i])
		}
	}
}

func TestInPlace(t *testing.T) {
	proc := newTestProcess(t, 4, device.MinBlockSize)
	vals := make([]uint32, 300)
	for i := range vals {
		vals[i] = 1
	}
	require.NoError(t, InclusiveScan[uint32](proc, vals, vals, Sum[uint32]{}))
	for i := range vals {
		require.Equal(t, uint32(i+1), vals[i])
	}
}

func TestDeterministicFloat(t *testing.T) {
	in := make([]float64, 10000)
	r := rand.New(rand.NewSource(42))
	for i := range in {
		in[i] = r.Float64() * math.Pow(10, float64(r.Intn(12)-6))
	}
	var expect []float64
	for _, workers := range []int{1, 2, 3, 8, 16} {
		proc := newTestProcess(t, workers, 256)
		for round := 0; round < 3; round++ {
			out := make([]float64, len(in))
			_, err := ExclusiveScan[float64](proc, in, out, Sum[float64]{})
			require.NoError(t, err)
			if expect == nil {
				expect = out
				continue
			}
			for i := range out {
				require.Equal(t, math.Float64bits(expect[i]), math.Float64bits(out[i]),
					"workers=%d round=%d i=%d", workers, round, i)
			}
		}
	}
}

func TestBounds(t *testing.T) {
	require.Equal(t, int8(math.MaxInt8), MaxValue[int8]())
	require.Equal(t, int8(math.MinInt8), MinValue[int8]())
	require.Equal(t, uint16(math.MaxUint16), MaxValue[uint16]())
	require.Equal(t, uint16(0), MinValue[uint16]())
	require.True(t, math.IsInf(float64(MaxValue[float32]()), 1))
	require.True(t, math.IsInf(MinValue[float64](), -1))
	require.Equal(t, types.Date(math.MaxInt32), MaxValue[types.Date]())
	require.Equal(t, types.Date(math.MinInt32), MinValue[types.Date]())
}

func TestScanVector(t *testing.T) {
	proc := newTestProcess(t, 4, device.MinBlockSize)
	v := vector.NewFixed(types.T_int32, []int32{5, 2, 9, 1, 4})
	v.SetNull(2)

	sum, err := ScanVector(proc, v, Options{Kind: KindSum, Inclusive: true})
	require.NoError(t, err)
	require.Equal(t, []int32{5, 7, 7, 8, 12}, vector.MustFixedCol[int32](sum))
	require.True(t, sum.IsNull(2))
	require.Equal(t, 1, sum.NullCount())
	require.NoError(t, sum.Validate())
	sum.Free()

	mins, err := ScanVector(proc, v, Options{Kind: KindMin})
	require.NoError(t, err)
	require.Equal(t, []int32{math.MaxInt32, 5, 2, 2, 1}, vector.MustFixedCol[int32](mins))
	mins.Free()

	// the input keeps its values
	require.Equal(t, []int32{5, 2, 9, 1, 4}, vector.MustFixedCol[int32](v))

	fv := vector.NewFixed(types.T_float64, []float64{1.5, -2, 0.25, 8})
	fv.SetNull(0)
	maxes, err := ScanVector(proc, fv, Options{Kind: KindMax, Inclusive: true})
	require.NoError(t, err)
	require.Equal(t, []float64{math.Inf(-1), -2, 0.25, 8}, vector.MustFixedCol[float64](maxes))
	require.True(t, maxes.IsNull(0))
	maxes.Free()

	u8 := vector.NewFixed(types.T_uint8, []uint8{200, 100, 1})
	wrapped, err := ScanVector(proc, u8, Options{Kind: KindSum, Inclusive: true})
	require.NoError(t, err)
	require.Equal(t, []uint8{200, 44, 45}, vector.MustFixedCol[uint8](wrapped))
	wrapped.Free()

	_, err = ScanVector(proc, vector.NewFixed(types.T_bool, []bool{true}), Options{})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrUnsupportedType))
}

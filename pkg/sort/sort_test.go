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

package sort

import (
	"context"
	"math"
	"math/rand"
	gosort "sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/device"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

const (
	Num   = 5000
	Limit = 100
)

func newTestProcess(t *testing.T) *process.Process {
	dev, err := device.New("sort-test", 4, device.MinBlockSize)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	proc, err := process.New(context.Background(), dev, nil, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.Equal(t, int64(0), proc.Mp().CurrNB())
		proc.Free()
	})
	return proc
}

func generate(n int) []int64 {
	xs := make([]int64, n)
	for i := range xs {
		xs[i] = rand.Int63() % Limit
	}
	return xs
}

// referenceOrder is the stable argsort by the standard library.
func referenceOrder(n int, less func(a, b int) bool) []int64 {
	perm := make([]int64, n)
	for i := range perm {
		perm[i] = int64(i)
	}
	gosort.SliceStable(perm, func(i, j int) bool { return less(int(perm[i]), int(perm[j])) })
	return perm
}

func TestOrder(t *testing.T) {
	proc := newTestProcess(t)
	tcs := []struct {
		name string
		vals []int64
		desc bool
		want []int64
	}{
		{name: "asc", vals: []int64{3, 1, 2}, want: []int64{1, 2, 0}},
		{name: "desc", vals: []int64{3, 1, 2}, desc: true, want: []int64{0, 2, 1}},
		{name: "ties keep order", vals: []int64{2, 1, 2, 1}, want: []int64{1, 3, 0, 2}},
		{name: "ties keep order desc", vals: []int64{2, 1, 2, 1}, desc: true, want: []int64{0, 2, 1, 3}},
		{name: "single", vals: []int64{9}, want: []int64{0}},
		{name: "empty", vals: []int64{}, want: []int64{}},
	}
	for _, tc := range tcs {
		v := vector.NewFixed(types.T_int64, tc.vals)
		perm, err := Order(proc, []*vector.Vector{v}, Options{Desc: []bool{tc.desc}})
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, perm, tc.name)
	}
}

func TestOrderLarge(t *testing.T) {
	proc := newTestProcess(t)
	xs := generate(Num)
	v := vector.NewFixed(types.T_int64, xs)
	perm, err := Order(proc, []*vector.Vector{v}, Options{})
	require.NoError(t, err)
	require.Equal(t, referenceOrder(Num, func(a, b int) bool { return xs[a] < xs[b] }), perm)

	perm, err = Order(proc, []*vector.Vector{v}, Options{Desc: []bool{true}})
	require.NoError(t, err)
	require.Equal(t, referenceOrder(Num, func(a, b int) bool { return xs[a] > xs[b] }), perm)
}

func TestOrderMultiKey(t *testing.T) {
	proc := newTestProcess(t)
	a := generate(Num)
	b := make([]float64, Num)
	for i := range b {
		b[i] = float64(rand.Intn(10))
	}
	va := vector.NewFixed(types.T_int64, a)
	vb := vector.NewFixed(types.T_float64, b)
	perm, err := Order(proc, []*vector.Vector{va, vb}, Options{Desc: []bool{false, true}})
	require.NoError(t, err)
	want := referenceOrder(Num, func(x, y int) bool {
		if a[x] != a[y] {
			return a[x] < a[y]
		}
		return b[x] > b[y]
	})
	require.Equal(t, want, perm)
}

func TestOrderNulls(t *testing.T) {
	proc := newTestProcess(t)
	mk := func() *vector.Vector {
		v := vector.NewFixed(types.T_int32, []int32{4, 0, 2, 0, 1})
		v.SetNull(1)
		v.SetNull(3)
		return v
	}
	perm, err := Order(proc, []*vector.Vector{mk()}, Options{})
	require.NoError(t, err)
	require.Equal(t, []int64{4, 2, 0, 1, 3}, perm)

	perm, err = Order(proc, []*vector.Vector{mk()}, Options{NullsFirst: true})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3, 4, 2, 0}, perm)

	perm, err = Order(proc, []*vector.Vector{mk()}, Options{Desc: []bool{true}})
	require.NoError(t, err)
	require.Equal(t, []int64{0, 2, 4, 1, 3}, perm)
}

func TestOrderNullsLarge(t *testing.T) {
	proc := newTestProcess(t)
	xs := generate(Num)
	v := vector.NewFixed(types.T_int64, xs)
	null := make([]bool, Num)
	for i := range xs {
		if rand.Intn(5) == 0 {
			v.SetNull(i)
			null[i] = true
		}
	}
	perm, err := Order(proc, []*vector.Vector{v}, Options{})
	require.NoError(t, err)
	want := referenceOrder(Num, func(a, b int) bool {
		if null[a] || null[b] {
			return !null[a] && null[b]
		}
		return xs[a] < xs[b]
	})
	require.Equal(t, want, perm)
}

func TestIdempotent(t *testing.T) {
	proc := newTestProcess(t)
	v := vector.NewFixed(types.T_int64, generate(Num))
	r, err := SortByKey(proc, []*vector.Vector{v}, Options{}, nil)
	require.NoError(t, err)
	defer r.Free()

	again, err := Order(proc, r.Keys, Options{})
	require.NoError(t, err)
	for i := range again {
		require.Equal(t, int64(i), again[i])
	}
}

func TestSortByKey(t *testing.T) {
	proc := newTestProcess(t)
	keys := vector.NewFixed(types.T_uint16, []uint16{30, 10, 20, 10})
	payload := vector.NewFixed(types.T_float32, []float32{0.3, 0.1, 0.2, 0.15})
	r, err := SortByKey(proc, []*vector.Vector{keys}, Options{}, []*vector.Vector{payload})
	require.NoError(t, err)
	defer r.Free()
	require.Equal(t, []int64{1, 3, 2, 0}, r.Perm)
	require.Equal(t, []uint16{10, 10, 20, 30}, vector.MustFixedCol[uint16](r.Keys[0]))
	require.Equal(t, []float32{0.1, 0.15, 0.2, 0.3}, vector.MustFixedCol[float32](r.Payload[0]))

	short := vector.NewFixed(types.T_int8, []int8{1})
	_, err = SortByKey(proc, []*vector.Vector{keys}, Options{}, []*vector.Vector{short})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrShapeMismatch))
}

func TestSegmentedSort(t *testing.T) {
	proc := newTestProcess(t)
	xs := generate(Num)
	v := vector.NewFixed(types.T_int64, xs)
	for i := 0; i < Num; i += 7 {
		v.SetNull(i)
	}
	offsets := []int64{0}
	for last := int64(0); last < Num; {
		last += int64(rand.Intn(300))
		if last > Num {
			last = Num
		}
		offsets = append(offsets, last)
	}
	opts := Options{Desc: []bool{true}, NullsFirst: true}
	perm, err := SegmentedSort(proc, []*vector.Vector{v}, offsets, opts)
	require.NoError(t, err)

	for s := 0; s+1 < len(offsets); s++ {
		lo, hi := offsets[s], offsets[s+1]
		seg := vector.NewFixed(types.T_int64, xs[lo:hi])
		for i := lo; i < hi; i++ {
			if v.IsNull(int(i)) {
				seg.SetNull(int(i - lo))
			}
		}
		want, err := Order(proc, []*vector.Vector{seg}, opts)
		require.NoError(t, err)
		for i := range want {
			require.Equal(t, want[i]+lo, perm[int(lo)+i], "segment %d", s)
		}
	}
}

func TestSegmentedSortOffsets(t *testing.T) {
	proc := newTestProcess(t)
	v := vector.NewFixed(types.T_int64, []int64{3, 2, 1})
	for _, offsets := range [][]int64{nil, {1, 3}, {0, 2}, {0, 2, 1, 3}} {
		_, err := SegmentedSort(proc, []*vector.Vector{v}, offsets, Options{})
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput), "%v", offsets)
	}
	perm, err := SegmentedSort(proc, []*vector.Vector{v}, []int64{0, 0, 2, 3}, Options{})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 0, 2}, perm)
}

func TestFloatOrder(t *testing.T) {
	proc := newTestProcess(t)
	v := vector.NewFixed(types.T_float64, []float64{math.NaN(), 1, math.Inf(-1), math.Inf(1), -0.5})
	perm, err := Order(proc, []*vector.Vector{v}, Options{})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 4, 1, 3, 0}, perm)
}

func TestErrors(t *testing.T) {
	proc := newTestProcess(t)
	_, err := Order(proc, nil, Options{})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

	a := vector.NewFixed(types.T_int64, []int64{1, 2})
	b := vector.NewFixed(types.T_int64, []int64{1})
	_, err = Order(proc, []*vector.Vector{a, b}, Options{})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrShapeMismatch))
}

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

package device

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lni/goutils/leaktest"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

func newTestDevice(t *testing.T, workers int) *Device {
	d, err := New("test", workers, MinBlockSize)
	require.NoError(t, err)
	return d
}

func TestNew(t *testing.T) {
	defer leaktest.AfterTest(t)()
	stubs := gostub.Stub(&numCPU, func() int { return 3 })
	defer stubs.Reset()

	d, err := New("cpu", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 3, d.Workers())
	require.Equal(t, DefaultBlockSize, d.BlockSize())
	require.Equal(t, "cpu", d.Info().Name)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err = New("small", 1, MinBlockSize-1)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
}

func TestNumBlocks(t *testing.T) {
	tcs := []struct {
		n, bs, want int
	}{
		{0, 64, 0},
		{-1, 64, 0},
		{1, 64, 1},
		{64, 64, 1},
		{65, 64, 2},
		{1000, 64, 16},
	}
	for _, tc := range tcs {
		require.Equal(t, tc.want, NumBlocks(tc.n, tc.bs), "n=%d bs=%d", tc.n, tc.bs)
	}
}

func TestLaunch(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := newTestDevice(t, 4)
	defer d.Close()

	ctx := context.Background()
	for _, n := range []int{0, 1, 63, 64, 65, 1000, 10007} {
		out := make([]int32, n)
		var blocks, misplaced atomic.Int32
		err := d.Launch(ctx, n, func(blk, start, end int) {
			blocks.Add(1)
			if start != blk*MinBlockSize {
				misplaced.Add(1)
			}
			for i := start; i < end; i++ {
				out[i] += int32(i)
			}
		})
		require.NoError(t, err)
		require.Equal(t, int32(d.Blocks(n)), blocks.Load())
		require.Equal(t, int32(0), misplaced.Load())
		for i := range out {
			require.Equal(t, int32(i), out[i])
		}
	}
}

func TestLaunchChainedBlocks(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := newTestDevice(t, 2)
	defer d.Close()

	n := 64 * 50
	nblk := d.Blocks(n)
	ready := make([]chan struct{}, nblk)
	for i := range ready {
		ready[i] = make(chan struct{})
	}
	order := make([]int, 0, nblk)
	err := d.Launch(context.Background(), n, func(blk, start, end int) {
		defer close(ready[blk])
		if blk > 0 {
			<-ready[blk-1]
		}
		order = append(order, blk)
	})
	require.NoError(t, err)
	for i := range order {
		require.Equal(t, i, order[i])
	}
}

func TestLaunchFault(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := newTestDevice(t, 4)
	defer d.Close()

	ctx := moerr.WithOpName(context.Background(), "faulty")
	err := d.Launch(ctx, 1000, func(blk, start, end int) {
		if blk == 3 {
			panic("bad kernel")
		}
	})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrDeviceFault))
	require.True(t, moerr.IsMoErrCode(d.Fault(), moerr.ErrDeviceFault))

	// the fault is sticky
	ran := false
	err = d.Launch(ctx, 10, func(int, int, int) { ran = true })
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrDeviceFault))
	require.False(t, ran)

	_, err = d.NewStream()
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrDeviceFault))
}

func TestLaunchFaultFromMoError(t *testing.T) {
	d := newTestDevice(t, 1)
	defer d.Close()
	err := d.Launch(context.Background(), 1, func(int, int, int) {
		panic(moerr.NewInvalidStateNoCtx("boom"))
	})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrDeviceFault))
}

func TestCloseReleasesWorkers(t *testing.T) {
	check := leaktest.AfterTest(t)
	d := newTestDevice(t, 8)
	var rows atomic.Int64
	require.NoError(t, d.Launch(context.Background(), 100*MinBlockSize, func(_, start, end int) {
		rows.Add(int64(end - start))
	}))
	require.Equal(t, int64(100*MinBlockSize), rows.Load())

	// the pool's workers and background goroutines are gone once Close returns
	require.NoError(t, d.Close())
	check()
	require.NoError(t, d.Close())
}

func TestLaunchClosed(t *testing.T) {
	d := newTestDevice(t, 1)
	require.NoError(t, d.Close())
	err := d.Launch(context.Background(), 10, func(int, int, int) {})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidState))
}

func TestStreamOrder(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := newTestDevice(t, 4)
	defer d.Close()

	s, err := d.NewStream()
	require.NoError(t, err)
	require.Equal(t, d, s.Device())

	var seq []int
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, s.Submit(func(ctx context.Context) error {
			seq = append(seq, i)
			return nil
		}))
	}
	require.NoError(t, s.Synchronize(context.Background()))
	require.Equal(t, 100, len(seq))
	for i := range seq {
		require.Equal(t, i, seq[i])
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Submit(func(context.Context) error { return nil })
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrStreamClosed))
	err = s.Synchronize(context.Background())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrStreamClosed))
}

func TestStreamPoisoned(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := newTestDevice(t, 2)
	defer d.Close()

	s, err := d.NewStream()
	require.NoError(t, err)
	require.NoError(t, s.Submit(func(context.Context) error {
		return moerr.NewShapeMismatchNoCtx("left 1 rows, right 2 rows")
	}))
	ran := false
	_ = s.Submit(func(context.Context) error {
		ran = true
		return nil
	})
	err = s.Synchronize(context.Background())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrShapeMismatch))
	require.False(t, ran)

	err = s.Submit(func(context.Context) error { return nil })
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrShapeMismatch))
	require.True(t, moerr.IsMoErrCode(s.Close(), moerr.ErrShapeMismatch))
}

func TestStreamPanic(t *testing.T) {
	d := newTestDevice(t, 2)
	s, err := d.NewStream()
	require.NoError(t, err)
	require.NoError(t, s.Submit(func(context.Context) error {
		panic("stream op")
	}))
	err = s.Synchronize(context.Background())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrDeviceFault))
	require.True(t, moerr.IsMoErrCode(d.Fault(), moerr.ErrDeviceFault))
	// Close reports the error left on the stream
	require.True(t, moerr.IsMoErrCode(d.Close(), moerr.ErrDeviceFault))
}

func TestStreamSynchronizeTimeout(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := newTestDevice(t, 2)
	defer d.Close()

	s, err := d.NewStream()
	require.NoError(t, err)
	release := make(chan struct{})
	require.NoError(t, s.Submit(func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = s.Synchronize(ctx)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrSyncTimeout))

	close(release)
	require.NoError(t, s.Synchronize(context.Background()))
	require.NoError(t, s.Close())
}

func TestStreamsOverlap(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := newTestDevice(t, 2)
	defer d.Close()

	s1, err := d.NewStream()
	require.NoError(t, err)
	s2, err := d.NewStream()
	require.NoError(t, err)

	// s1 blocks until s2 has run, which only works if the streams overlap
	s2ran := make(chan struct{})
	require.NoError(t, s1.Submit(func(context.Context) error {
		<-s2ran
		return nil
	}))
	require.NoError(t, s2.Submit(func(context.Context) error {
		close(s2ran)
		return nil
	}))
	require.NoError(t, s1.Synchronize(context.Background()))
	require.NoError(t, s2.Synchronize(context.Background()))
}

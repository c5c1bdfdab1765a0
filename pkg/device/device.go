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

// Package device is the data-parallel execution layer. A kernel is a
// function over a contiguous range of rows (or bitmask granules); Launch
// splits the range into blocks and runs the blocks on a bounded worker
// pool, returning once every block has finished.
package device

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/logutil"
	"github.com/matrixorigin/relcore/pkg/util/metric"
)

const (
	DefaultBlockSize = 8192
	MinBlockSize     = 64

	releaseTimeout = 5 * time.Second
)

var numCPU = runtime.NumCPU

// Kernel processes the half open range [start, end) as block number blk.
type Kernel func(blk, start, end int)

type Info struct {
	Name      string
	Workers   int
	BlockSize int
}

// Device runs kernels. It is safe for concurrent use; launches issued from
// different goroutines share the worker pool.
type Device struct {
	info Info
	pool *ants.Pool

	fault  atomic.Pointer[moerr.Error]
	closed atomic.Bool

	mu      sync.Mutex
	streams map[*Stream]struct{}
}

// New creates a device with the given worker count and default block
// size. workers <= 0 means one worker per CPU.
func New(name string, workers, blockSize int) (*Device, error) {
	if workers <= 0 {
		workers = numCPU()
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize < MinBlockSize {
		return nil, moerr.NewInvalidInputNoCtx("block size %d is below the minimum %d", blockSize, MinBlockSize)
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v interface{}) {
		logutil.Error("device worker panic escaped kernel recovery", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, moerr.ConvertGoError(context.Background(), err)
	}
	return &Device{
		info: Info{
			Name:      name,
			Workers:   workers,
			BlockSize: blockSize,
		},
		pool:    pool,
		streams: make(map[*Stream]struct{}),
	}, nil
}

func (d *Device) Info() Info {
	return d.info
}

func (d *Device) Workers() int {
	return d.info.Workers
}

func (d *Device) BlockSize() int {
	return d.info.BlockSize
}

// Blocks returns how many blocks Launch uses for n items.
func (d *Device) Blocks(n int) int {
	return NumBlocks(n, d.info.BlockSize)
}

func NumBlocks(n, blockSize int) int {
	if n <= 0 {
		return 0
	}
	return (n + blockSize - 1) / blockSize
}

// Fault returns the sticky fault recorded by a failed kernel, or nil.
func (d *Device) Fault() error {
	if f := d.fault.Load(); f != nil {
		return f
	}
	return nil
}

// Launch runs kernel over [0, n) with the device block size.
func (d *Device) Launch(ctx context.Context, n int, kernel Kernel) error {
	return d.LaunchBlocks(ctx, n, d.info.BlockSize, kernel)
}

// LaunchBlocks runs kernel over [0, n) split into blocks of blockSize.
// Blocks are submitted in block order, so a block may wait on the result
// of any lower numbered block. Launch does not observe ctx cancellation
// once started; ctx only labels errors.
func (d *Device) LaunchBlocks(ctx context.Context, n, blockSize int, kernel Kernel) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	if blockSize <= 0 {
		blockSize = d.info.BlockSize
	}
	nblk := NumBlocks(n, blockSize)
	if nblk == 0 {
		return nil
	}
	metric.KernelLaunchCounter.Inc()
	metric.KernelBlockCounter.Add(float64(nblk))

	var faultOnce sync.Once
	var fault *moerr.Error
	run := func(blk int) {
		defer func() {
			if r := recover(); r != nil {
				faultOnce.Do(func() {
					fault = toFault(ctx, r)
				})
			}
		}()
		start := blk * blockSize
		end := start + blockSize
		if end > n {
			end = n
		}
		kernel(blk, start, end)
	}

	if nblk == 1 {
		run(0)
	} else {
		var wg sync.WaitGroup
		var submitErr error
		for blk := 0; blk < nblk; blk++ {
			blk := blk
			wg.Add(1)
			if err := d.pool.Submit(func() {
				defer wg.Done()
				run(blk)
			}); err != nil {
				wg.Done()
				submitErr = err
				break
			}
		}
		wg.Wait()
		if submitErr != nil && fault == nil {
			return moerr.NewInvalidState(ctx, "kernel launch: %v", submitErr)
		}
	}
	if fault != nil {
		d.recordFault(ctx, fault)
		return fault
	}
	return nil
}

func (d *Device) check(ctx context.Context) error {
	if d.closed.Load() {
		return moerr.NewInvalidState(ctx, "device %s is closed", d.info.Name)
	}
	if f := d.fault.Load(); f != nil {
		return f
	}
	return nil
}

func toFault(ctx context.Context, r any) *moerr.Error {
	e := moerr.ConvertPanicError(ctx, r)
	if e.ErrorCode() == moerr.ErrDeviceFault {
		return e
	}
	return moerr.NewDeviceFault(ctx, "%s", e.Error())
}

func (d *Device) recordFault(ctx context.Context, fault *moerr.Error) {
	if d.fault.CompareAndSwap(nil, fault) {
		metric.DeviceFaultCounter.Inc()
		logutil.Error("device fault",
			zap.String("device", d.info.Name),
			logutil.OpField(moerr.OpName(ctx)),
			zap.Error(fault))
	}
}

// NewStream creates an in-order operation queue on the device.
func (d *Device) NewStream() (*Stream, error) {
	if err := d.check(context.Background()); err != nil {
		return nil, err
	}
	s := newStream(d)
	d.mu.Lock()
	d.streams[s] = struct{}{}
	d.mu.Unlock()
	return s, nil
}

func (d *Device) forgetStream(s *Stream) {
	d.mu.Lock()
	delete(d.streams, s)
	d.mu.Unlock()
}

// Close drains and closes every open stream and releases the worker pool,
// waiting for its workers to exit. The returned error combines the errors
// left on the closed streams and a pool release timeout.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	streams := make([]*Stream, 0, len(d.streams))
	for s := range d.streams {
		streams = append(streams, s)
	}
	d.mu.Unlock()

	var err error
	for _, s := range streams {
		err = multierr.Append(err, s.Close())
	}
	return multierr.Append(err, d.pool.ReleaseTimeout(releaseTimeout))
}

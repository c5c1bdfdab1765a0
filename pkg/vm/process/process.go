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

package process

import (
	"context"

	"go.uber.org/zap"

	"github.com/matrixorigin/relcore/pkg/common/malloc"
	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/device"
	"github.com/matrixorigin/relcore/pkg/logutil"
)

// Process carries what one operator call needs: the device to launch
// kernels on, a scratch arena released when the call returns and the
// allocator output buffers are drawn from.
type Process struct {
	Ctx context.Context

	dev       *device.Device
	mp        *mpool.MPool
	allocator malloc.Allocator
}

// New creates a process for one call. scratchLimit bounds the arena, 0 is
// unlimited. The caller must Free the process on every exit path.
func New(ctx context.Context, dev *device.Device, allocator malloc.Allocator, scratchLimit int64) (*Process, error) {
	if dev == nil {
		return nil, moerr.NewInvalidInput(ctx, "process without a device")
	}
	if allocator == nil {
		allocator = malloc.NewGoAllocator()
	}
	mp, err := mpool.NewMPool(moerr.OpName(ctx), scratchLimit, allocator)
	if err != nil {
		return nil, err
	}
	return &Process{
		Ctx:       ctx,
		dev:       dev,
		mp:        mp,
		allocator: allocator,
	}, nil
}

// WithOp returns a process sharing proc's resources whose context names
// the running operator.
func (proc *Process) WithOp(name string) *Process {
	p := *proc
	p.Ctx = moerr.WithOpName(proc.Ctx, name)
	return &p
}

func (proc *Process) Mp() *mpool.MPool {
	return proc.mp
}

func (proc *Process) Device() *device.Device {
	return proc.dev
}

// Allocator returns the allocator for buffers that outlive the call.
func (proc *Process) Allocator() malloc.Allocator {
	return proc.allocator
}

func (proc *Process) BlockSize() int {
	return proc.dev.BlockSize()
}

// Launch runs kernel over [0, n) on the process device.
func (proc *Process) Launch(n int, kernel device.Kernel) error {
	return proc.dev.Launch(proc.Ctx, n, kernel)
}

// LaunchBlocks is Launch with an explicit block size.
func (proc *Process) LaunchBlocks(n, blockSize int, kernel device.Kernel) error {
	return proc.dev.LaunchBlocks(proc.Ctx, n, blockSize, kernel)
}

// Free releases the scratch arena.
func (proc *Process) Free() {
	if n := proc.mp.Release(); n > 0 {
		logutil.Debug("released scratch buffers",
			logutil.OpField(moerr.OpName(proc.Ctx)),
			zap.Int("buffers", n))
	}
}

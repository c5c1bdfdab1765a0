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

package engine

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matrixorigin/relcore/pkg/common/bitmap"
	"github.com/matrixorigin/relcore/pkg/common/malloc"
	"github.com/matrixorigin/relcore/pkg/config"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/device"
	"github.com/matrixorigin/relcore/pkg/logutil"
	"github.com/matrixorigin/relcore/pkg/scan"
	"github.com/matrixorigin/relcore/pkg/sort"
	"github.com/matrixorigin/relcore/pkg/sql/colexec/aggexec"
	"github.com/matrixorigin/relcore/pkg/sql/colexec/join"
	"github.com/matrixorigin/relcore/pkg/sql/colexec/restrict"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// Engine runs the column operators on one device. Every call gets its own
// process, so scratch memory never outlives the call; results are drawn
// from the configured allocator and are owned by the caller.
type Engine struct {
	cfg       *config.Config
	dev       *device.Device
	allocator malloc.Allocator
	joinOpts  join.Options
}

// New creates an engine for a validated configuration. A nil cfg means
// the defaults.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	allocator, err := malloc.NewStrategyAllocator(ctx, cfg.Memory.Allocator, cfg.Memory.Limit)
	if err != nil {
		return nil, err
	}
	dev, err := device.New("relcore", cfg.Device.Workers, cfg.Device.BlockSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg,
		dev:       dev,
		allocator: allocator,
		joinOpts:  joinOptions(cfg),
	}
	logutil.Info("engine started",
		zap.Int("workers", dev.Workers()),
		zap.Int("block-size", dev.BlockSize()),
		zap.String("allocator", cfg.Memory.Allocator),
		zap.Stringer("join-strategy", e.joinOpts.Strategy))
	return e, nil
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}

func (e *Engine) Device() *device.Device {
	return e.dev
}

func (e *Engine) Allocator() malloc.Allocator {
	return e.allocator
}

// JoinOptions returns the join options the configuration maps to.
func (e *Engine) JoinOptions() join.Options {
	return e.joinOpts
}

// NewStream opens an in-order operation queue on the engine device.
func (e *Engine) NewStream() (*device.Stream, error) {
	return e.dev.NewStream()
}

// Close stops every stream and the device. The error combines whatever
// the streams and the device left behind.
func (e *Engine) Close() error {
	var err error
	err = multierr.Append(err, e.dev.Fault())
	err = multierr.Append(err, e.dev.Close())
	return err
}

// run executes fn with a fresh process released on return.
func (e *Engine) run(ctx context.Context, fn func(proc *process.Process) error) error {
	proc, err := process.New(ctx, e.dev, e.allocator, e.cfg.Memory.ScratchLimit)
	if err != nil {
		return err
	}
	defer proc.Free()
	return fn(proc)
}

// Join returns the gather maps of an equi-join of left and right keys.
func (e *Engine) Join(ctx context.Context, left, right []*vector.Vector, kind join.Kind) (r *join.Result, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		r, err = join.Join(proc, left, right, kind, e.joinOpts)
		return err
	})
	return r, err
}

// JoinColumns joins on the key columns and materializes leftCols then
// rightCols through the resulting gather maps.
func (e *Engine) JoinColumns(ctx context.Context, left, right []*vector.Vector, kind join.Kind, leftCols, rightCols []*vector.Vector) (cols []*vector.Vector, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		r, err := join.Join(proc, left, right, kind, e.joinOpts)
		if err != nil {
			return err
		}
		cols, err = join.Materialize(proc, r, leftCols, rightCols)
		return err
	})
	return cols, err
}

// Order returns the stable sort permutation of keys.
func (e *Engine) Order(ctx context.Context, keys []*vector.Vector, desc []bool) (perm []int64, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		perm, err = sort.Order(proc, keys, sortOptions(e.cfg, desc))
		return err
	})
	return perm, err
}

// SortByKey sorts keys and payload by keys.
func (e *Engine) SortByKey(ctx context.Context, keys []*vector.Vector, desc []bool, payload []*vector.Vector) (r *sort.Result, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		r, err = sort.SortByKey(proc, keys, sortOptions(e.cfg, desc), payload)
		return err
	})
	return r, err
}

// SegmentedOrder sorts every segment of keys independently.
func (e *Engine) SegmentedOrder(ctx context.Context, keys []*vector.Vector, offsets []int64, desc []bool) (perm []int64, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		perm, err = sort.SegmentedSort(proc, keys, offsets, sortOptions(e.cfg, desc))
		return err
	})
	return perm, err
}

// Compact keeps the rows of cols whose predicate bit is set.
func (e *Engine) Compact(ctx context.Context, cols []*vector.Vector, predicate *bitmap.Bitmap) (out []*vector.Vector, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		out, err = restrict.CompactBatch(proc, cols, predicate)
		return err
	})
	return out, err
}

// Scan computes the prefix scan of a numeric column.
func (e *Engine) Scan(ctx context.Context, col *vector.Vector, opts scan.Options) (out *vector.Vector, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		out, err = scan.ScanVector(proc, col, opts)
		return err
	})
	return out, err
}

func (e *Engine) Reduce(ctx context.Context, col *vector.Vector, op aggexec.Op) (s aggexec.Scalar, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		s, err = aggexec.Reduce(proc, col, op)
		return err
	})
	return s, err
}

func (e *Engine) SegmentedReduce(ctx context.Context, col *vector.Vector, offsets []int64, op aggexec.Op) (out *vector.Vector, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		out, err = aggexec.SegmentedReduce(proc, col, offsets, op)
		return err
	})
	return out, err
}

func (e *Engine) GroupBy(ctx context.Context, keys []*vector.Vector, values *vector.Vector, op aggexec.Op) (g *aggexec.Grouped, err error) {
	err = e.run(ctx, func(proc *process.Process) error {
		g, err = aggexec.GroupBy(proc, keys, values, op)
		return err
	})
	return g, err
}

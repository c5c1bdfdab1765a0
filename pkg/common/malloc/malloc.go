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

// Package malloc provides the device memory allocation strategies.
// An Allocator hands out byte slices together with the Deallocator that
// releases them; allocators compose by wrapping an upstream allocator.
package malloc

import (
	"context"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

const (
	KB = 1 << 10
	MB = 1 << 20
	GB = 1 << 30
)

type Hints uint64

const (
	// NoClear skips zeroing the returned memory.
	NoClear Hints = 1 << iota
)

type Allocator interface {
	Allocate(size uint64, hints Hints) ([]byte, Deallocator, error)
}

type Deallocator interface {
	Deallocate(hints Hints)
}

// DeallocatorFunc adapts a function to Deallocator.
type DeallocatorFunc func(Hints)

func (f DeallocatorFunc) Deallocate(hints Hints) {
	f(hints)
}

type chainDeallocator []Deallocator

// ChainDeallocator returns a Deallocator that runs every non-nil
// deallocator in order.
func ChainDeallocator(decs ...Deallocator) Deallocator {
	var ret chainDeallocator
	for _, dec := range decs {
		if dec == nil {
			continue
		}
		if chain, ok := dec.(chainDeallocator); ok {
			ret = append(ret, chain...)
			continue
		}
		ret = append(ret, dec)
	}
	return ret
}

func (c chainDeallocator) Deallocate(hints Hints) {
	for _, dec := range c {
		dec.Deallocate(hints)
	}
}

var noopDeallocator = DeallocatorFunc(func(Hints) {})

const (
	StrategyGo      = "go"
	StrategyManaged = "managed"
)

// NewStrategyAllocator builds the allocator stack for a named strategy:
// the base allocator, an optional byte limit and the metrics reporter.
func NewStrategyAllocator(ctx context.Context, strategy string, limit uint64) (Allocator, error) {
	var base Allocator
	switch strategy {
	case StrategyGo, "":
		base = NewGoAllocator()
	case StrategyManaged:
		base = NewManagedAllocator()
	default:
		return nil, moerr.NewBadConfig(ctx, "unknown allocator strategy %q", strategy)
	}
	if limit > 0 {
		base = NewLimitAllocator(base, limit)
	}
	return NewMetricsAllocator(base), nil
}

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

package malloc

import (
	"context"
	"sync/atomic"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

// LimitAllocator caps the bytes outstanding from its upstream. A request
// that would push the total past the limit fails with ErrOOM and leaves
// the upstream untouched.
type LimitAllocator struct {
	upstream Allocator
	limit    uint64
	inUse    atomic.Uint64
}

func NewLimitAllocator(upstream Allocator, limit uint64) *LimitAllocator {
	return &LimitAllocator{
		upstream: upstream,
		limit:    limit,
	}
}

var _ Allocator = new(LimitAllocator)

func (l *LimitAllocator) Allocate(size uint64, hints Hints) ([]byte, Deallocator, error) {
	for {
		cur := l.inUse.Load()
		if cur+size > l.limit {
			return nil, nil, moerr.NewOOM(context.Background(), size)
		}
		if l.inUse.CompareAndSwap(cur, cur+size) {
			break
		}
	}
	slice, dec, err := l.upstream.Allocate(size, hints)
	if err != nil {
		l.inUse.Add(-size)
		return nil, nil, err
	}
	return slice, ChainDeallocator(dec, DeallocatorFunc(func(Hints) {
		l.inUse.Add(-size)
	})), nil
}

// InUse returns the bytes currently outstanding.
func (l *LimitAllocator) InUse() uint64 {
	return l.inUse.Load()
}

func (l *LimitAllocator) Limit() uint64 {
	return l.limit
}

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

// small requests are served from the Go heap, mapping a page for a few
// bytes is wasteful
const managedMinMapSize = 64 * KB

// ManagedAllocator is the unified-memory strategy: large buffers are
// anonymous private mappings whose pages are backed lazily on first touch
// and returned to the OS on free.
type ManagedAllocator struct {
	small   GoAllocator
	mapped  atomic.Int64
	regions atomic.Int64
}

func NewManagedAllocator() *ManagedAllocator {
	return &ManagedAllocator{}
}

var _ Allocator = new(ManagedAllocator)

func (m *ManagedAllocator) Allocate(size uint64, hints Hints) ([]byte, Deallocator, error) {
	if size < managedMinMapSize || !mmapSupported {
		return m.small.Allocate(size, hints)
	}
	slice, err := mmapAnonymous(size)
	if err != nil {
		return nil, nil, moerr.NewOOM(context.Background(), size)
	}
	// fresh anonymous pages are zero filled, hints&NoClear does not matter
	m.mapped.Add(int64(size))
	m.regions.Add(1)
	return slice, DeallocatorFunc(func(Hints) {
		munmapRegion(slice)
		m.mapped.Add(-int64(size))
		m.regions.Add(-1)
	}), nil
}

// MappedBytes reports the bytes currently held in mappings.
func (m *ManagedAllocator) MappedBytes() int64 {
	return m.mapped.Load()
}

// Regions reports the number of live mappings.
func (m *ManagedAllocator) Regions() int64 {
	return m.regions.Load()
}

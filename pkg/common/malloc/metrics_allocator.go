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
	"github.com/matrixorigin/relcore/pkg/util/metric"
)

type MetricsAllocator struct {
	upstream Allocator
}

func NewMetricsAllocator(upstream Allocator) *MetricsAllocator {
	return &MetricsAllocator{
		upstream: upstream,
	}
}

var _ Allocator = new(MetricsAllocator)

func (m *MetricsAllocator) Allocate(size uint64, hints Hints) ([]byte, Deallocator, error) {
	slice, dec, err := m.upstream.Allocate(size, hints)
	if err != nil {
		return nil, nil, err
	}
	metric.MemAllocateBytesCounter.Add(float64(size))
	metric.MemAllocateObjectsCounter.Inc()
	metric.MemInuseBytesGauge.Add(float64(size))
	metric.MemInuseObjectsGauge.Inc()
	return slice, ChainDeallocator(dec, DeallocatorFunc(func(Hints) {
		metric.MemInuseBytesGauge.Sub(float64(size))
		metric.MemInuseObjectsGauge.Dec()
	})), nil
}

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

package metric

import "github.com/prometheus/client_golang/prometheus"

var registry = prometheus.NewRegistry()

var (
	kernelLaunchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relcore",
			Subsystem: "device",
			Name:      "kernel_launch_total",
			Help:      "Total number of kernel launches.",
		}, []string{"type"})

	KernelLaunchCounter = kernelLaunchCounter.WithLabelValues("grid")
	KernelBlockCounter  = kernelLaunchCounter.WithLabelValues("block")

	DeviceFaultCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relcore",
			Subsystem: "device",
			Name:      "fault_total",
			Help:      "Total number of kernel faults.",
		})
)

var (
	operatorRowsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relcore",
			Subsystem: "operator",
			Name:      "rows_total",
			Help:      "Total number of input rows processed by operator.",
		}, []string{"op"})

	CompactRowsCounter = operatorRowsCounter.WithLabelValues("compact")
	SortRowsCounter    = operatorRowsCounter.WithLabelValues("sort")
	JoinRowsCounter    = operatorRowsCounter.WithLabelValues("join")
	ReduceRowsCounter  = operatorRowsCounter.WithLabelValues("reduce")
	ScanRowsCounter    = operatorRowsCounter.WithLabelValues("scan")
)

var (
	hashTableCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relcore",
			Subsystem: "hash",
			Name:      "table_total",
			Help:      "Total number of hash table builds by outcome.",
		}, []string{"type"})

	HashBuildCounter            = hashTableCounter.WithLabelValues("build")
	HashCapacityExceededCounter = hashTableCounter.WithLabelValues("capacity_exceeded")
)

var (
	memAllocatedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relcore",
			Subsystem: "mem",
			Name:      "allocate_total",
			Help:      "Total bytes and objects allocated.",
		}, []string{"type"})

	MemAllocateBytesCounter   = memAllocatedCounter.WithLabelValues("bytes")
	MemAllocateObjectsCounter = memAllocatedCounter.WithLabelValues("objects")

	memInuseGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relcore",
			Subsystem: "mem",
			Name:      "inuse",
			Help:      "Bytes and objects currently allocated.",
		}, []string{"type"})

	MemInuseBytesGauge   = memInuseGauge.WithLabelValues("bytes")
	MemInuseObjectsGauge = memInuseGauge.WithLabelValues("objects")
)

func init() {
	registry.MustRegister(kernelLaunchCounter)
	registry.MustRegister(DeviceFaultCounter)
	registry.MustRegister(operatorRowsCounter)
	registry.MustRegister(hashTableCounter)
	registry.MustRegister(memAllocatedCounter)
	registry.MustRegister(memInuseGauge)
}

// Registry returns the registry holding every relcore collector, so an
// embedding process can expose or gather it.
func Registry() *prometheus.Registry {
	return registry
}

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

package hashmap

import (
	"github.com/matrixorigin/relcore/pkg/container/hashtable"
)

// Estimator picks the capacity of a build when Options.Capacity is 0.
type Estimator uint8

const (
	// ExactEstimator sizes for every build row that can match.
	ExactEstimator Estimator = iota
	// HLLEstimator sizes for a hyperloglog estimate of the distinct keys.
	// The estimate may fall short, the build then fails with
	// CapacityExceeded.
	HLLEstimator
)

func (e Estimator) String() string {
	switch e {
	case ExactEstimator:
		return "exact"
	case HLLEstimator:
		return "hll"
	}
	return "unknown"
}

type Options struct {
	// Capacity of the table in slots, 0 to estimate it.
	Capacity      int
	MaxLoadFactor float64
	Scheme        hashtable.ProbeScheme
	Estimator     Estimator
	// NullEqual makes a null key match a null key.
	NullEqual bool
	// NaNEqual makes a NaN key match a NaN key.
	NaNEqual bool
}

func DefaultOptions() Options {
	return Options{
		MaxLoadFactor: 0.5,
		Scheme:        hashtable.Linear,
		Estimator:     ExactEstimator,
		NaNEqual:      true,
	}
}

// JoinMap indexes the build rows of a join by key. It lives in the
// scratch arena of the process that built it.
type JoinMap struct {
	build *keySet
	mm    *hashtable.MultiMap
	opts  Options
	valid bool
}

// Prober looks up the rows of probe key columns in a JoinMap.
type Prober struct {
	jm    *JoinMap
	probe *keySet
}

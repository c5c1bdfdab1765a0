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
	"github.com/matrixorigin/relcore/pkg/common/hashmap"
	"github.com/matrixorigin/relcore/pkg/config"
	"github.com/matrixorigin/relcore/pkg/container/hashtable"
	"github.com/matrixorigin/relcore/pkg/sort"
	"github.com/matrixorigin/relcore/pkg/sql/colexec/join"
)

// hashOptions maps a validated configuration onto the hash table options.
func hashOptions(c *config.Config) hashmap.Options {
	opts := hashmap.DefaultOptions()
	opts.MaxLoadFactor = c.Hash.MaxLoadFactor
	if c.Hash.ProbeScheme == config.ProbeDouble {
		opts.Scheme = hashtable.DoubleHashing
	}
	if c.Hash.CapacityEstimator == config.EstimatorHLL {
		opts.Estimator = hashmap.HLLEstimator
	}
	opts.NullEqual = c.Hash.NullEqual
	opts.NaNEqual = c.Hash.NaN == config.NaNEqual
	return opts
}

func joinOptions(c *config.Config) join.Options {
	opts := join.DefaultOptions()
	if c.Join.Strategy == config.JoinSortMerge {
		opts.Strategy = join.SortMerge
	}
	switch c.Join.BuildSide {
	case config.BuildLeft:
		opts.BuildSide = join.BuildLeft
	case config.BuildRight:
		opts.BuildSide = join.BuildRight
	}
	opts.Hash = hashOptions(c)
	return opts
}

func sortOptions(c *config.Config, desc []bool) sort.Options {
	return sort.Options{
		Desc:       desc,
		NullsFirst: c.Sort.NullOrder == config.NullsFirst,
	}
}

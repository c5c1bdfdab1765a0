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

package join

import (
	"github.com/matrixorigin/relcore/pkg/common/hashmap"
	"github.com/matrixorigin/relcore/pkg/container/vector"
)

// NoMatch stands for the missing side of an outer join pair.
const NoMatch = vector.NoMatch

type Kind uint8

const (
	Inner Kind = iota
	Left
	Full
)

func (k Kind) String() string {
	switch k {
	case Inner:
		return "inner"
	case Left:
		return "left"
	case Full:
		return "full"
	}
	return "unknown"
}

type Strategy uint8

const (
	HashJoin Strategy = iota
	SortMerge
)

func (s Strategy) String() string {
	switch s {
	case HashJoin:
		return "hash"
	case SortMerge:
		return "sort_merge"
	}
	return "unknown"
}

// BuildSide picks the side a hash inner join indexes. Left and full joins
// always index the right side.
type BuildSide uint8

const (
	BuildAuto BuildSide = iota
	BuildLeft
	BuildRight
)

type Options struct {
	Strategy Strategy
	// BuildSide only steers inner hash joins. Left and full joins probe with
	// the left side whatever its value, and the sort-merge strategy ignores it.
	BuildSide BuildSide
	// Hash configures the table of the hash strategy, its NullEqual and
	// NaNEqual apply to both strategies.
	Hash hashmap.Options
}

func DefaultOptions() Options {
	return Options{
		Strategy:  HashJoin,
		BuildSide: BuildAuto,
		Hash:      hashmap.DefaultOptions(),
	}
}

// Result pairs a left row with a right row per output row. Either side is
// NoMatch for the unmatched rows of outer joins.
type Result struct {
	LeftIndices  []int64
	RightIndices []int64
}

func (r *Result) Len() int {
	return len(r.LeftIndices)
}

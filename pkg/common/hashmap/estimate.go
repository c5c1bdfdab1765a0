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

package hashmap

import (
	"math"
	"math/bits"

	"github.com/axiomhq/hyperloglog"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/container/hashtable"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// EstimateCapacity returns the table capacity Build would pick for keys.
func EstimateCapacity(proc *process.Process, keys []*vector.Vector, opts Options) (int, error) {
	ks, err := newKeySet(proc, keys, opts.NullEqual, opts.NaNEqual)
	if err != nil {
		return 0, err
	}
	defer ks.free()
	return estimate(proc, ks, opts)
}

func estimate(proc *process.Process, ks *keySet, opts Options) (int, error) {
	if opts.MaxLoadFactor <= 0 || opts.MaxLoadFactor > 1 {
		return 0, moerr.NewInvalidInput(proc.Ctx, "hash table load factor %v not in (0, 1]", opts.MaxLoadFactor)
	}
	var keys uint64
	var err error
	switch opts.Estimator {
	case ExactEstimator:
		keys, err = countIndexed(proc, ks)
	case HLLEstimator:
		keys, err = sketchDistinct(proc, ks)
	default:
		return 0, moerr.NewInvalidInput(proc.Ctx, "capacity estimator %d", opts.Estimator)
	}
	if err != nil {
		return 0, err
	}
	c := uint64(math.Ceil(float64(keys) / opts.MaxLoadFactor))
	if c == 0 {
		c = 1
	}
	if opts.Scheme == hashtable.DoubleHashing && bits.OnesCount64(c) != 1 {
		c = 1 << bits.Len64(c)
	}
	return int(c), nil
}

// countIndexed counts the rows Build would insert.
func countIndexed(proc *process.Process, ks *keySet) (uint64, error) {
	nblk := proc.Device().Blocks(ks.n)
	if nblk == 0 {
		return 0, nil
	}
	partial, err := mpool.MakeSlice[uint64](proc.Mp(), nblk)
	if err != nil {
		return 0, err
	}
	defer mpool.FreeSlice(proc.Mp(), partial)
	if err = proc.Launch(ks.n, func(blk, start, end int) {
		var c uint64
		for r := start; r < end; r++ {
			if !ks.skip[r] {
				c++
			}
		}
		partial[blk] = c
	}); err != nil {
		return 0, err
	}
	var total uint64
	for _, c := range partial {
		total += c
	}
	return total, nil
}

// sketchDistinct estimates the distinct keys of the rows Build would
// insert. Every block fills its own sketch, the sketches merge in block
// order.
func sketchDistinct(proc *process.Process, ks *keySet) (uint64, error) {
	nblk := proc.Device().Blocks(ks.n)
	if nblk == 0 {
		return 0, nil
	}
	sketches := make([]*hyperloglog.Sketch, nblk)
	if err := proc.Launch(ks.n, func(blk, start, end int) {
		sk := hyperloglog.New()
		for r := start; r < end; r++ {
			if !ks.skip[r] {
				sk.InsertHash(ks.hashes[r])
			}
		}
		sketches[blk] = sk
	}); err != nil {
		return 0, err
	}
	sk := sketches[0]
	for _, other := range sketches[1:] {
		if err := sk.Merge(other); err != nil {
			return 0, moerr.ConvertGoError(proc.Ctx, err)
		}
	}
	return sk.Estimate(), nil
}

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

package scan

import (
	"math/bits"

	"golang.org/x/sys/cpu"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/util/metric"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// The scan runs in a single launch. Every block first scans its rows in a
// scratch tree (up-sweep then down-sweep), then waits for the inclusive
// prefix of the block before it, publishes its own and writes the final
// values. The combination tree depends on the block size only, so float
// results are identical for any number of workers.

// carry is the published inclusive prefix of one block.
type carry[T types.Number] struct {
	_      cpu.CacheLinePad
	prefix T
	ready  chan struct{}
}

// ExclusiveScan writes out[i] = in[0] op ... op in[i-1], with out[0] the
// identity, and returns the reduction of every element. out may alias in.
func ExclusiveScan[T types.Number](proc *process.Process, in, out []T, op Op[T]) (T, error) {
	return run(proc, in, out, op, false)
}

// InclusiveScan writes out[i] = in[0] op ... op in[i]. out may alias in.
func InclusiveScan[T types.Number](proc *process.Process, in, out []T, op Op[T]) error {
	_, err := run(proc, in, out, op, true)
	return err
}

// ExclusiveSum is the int64 prefix sum used to size and place outputs.
func ExclusiveSum(proc *process.Process, in, out []int64) (int64, error) {
	return ExclusiveScan[int64](proc, in, out, Sum[int64]{})
}

func run[T types.Number](proc *process.Process, in, out []T, op Op[T], inclusive bool) (T, error) {
	identity := op.Identity()
	if len(out) != len(in) {
		return identity, moerr.NewShapeMismatch(proc.Ctx, "scan of %d rows into %d rows", len(in), len(out))
	}
	n := len(in)
	if n == 0 {
		return identity, nil
	}
	metric.ScanRowsCounter.Add(float64(n))

	bs := proc.BlockSize()
	if bs > n {
		bs = n
	}
	width := ceilPow2(bs)
	nblk := (n + bs - 1) / bs
	scratch, err := mpool.MakeSliceNoClear[T](proc.Mp(), nblk*width)
	if err != nil {
		return identity, err
	}
	defer mpool.FreeSlice(proc.Mp(), scratch)

	carries := make([]carry[T], nblk)
	for i := range carries {
		carries[i].ready = make(chan struct{})
	}

	err = proc.LaunchBlocks(n, bs, func(blk, start, end int) {
		c := &carries[blk]
		published := false
		defer func() {
			// successors must never wait on a block that panicked
			if !published {
				close(c.ready)
			}
		}()

		s := scratch[blk*width : (blk+1)*width]
		total := blockScan(s, in[start:end], op)

		base := identity
		if blk > 0 {
			prev := &carries[blk-1]
			<-prev.ready
			base = prev.prefix
		}
		c.prefix = op.Combine(base, total)
		close(c.ready)
		published = true

		for i := start; i < end; i++ {
			v := op.Combine(base, s[i-start])
			if inclusive {
				v = op.Combine(v, in[i])
			}
			out[i] = v
		}
	})
	if err != nil {
		return identity, err
	}
	return carries[nblk-1].prefix, nil
}

// blockScan leaves the exclusive scan of vals in s and returns the block
// reduction. len(s) is a power of two no smaller than len(vals).
func blockScan[T types.Number](s, vals []T, op Op[T]) T {
	copy(s, vals)
	for i := len(vals); i < len(s); i++ {
		s[i] = op.Identity()
	}
	w := len(s)
	for d := 1; d < w; d <<= 1 {
		for i := 2*d - 1; i < w; i += 2 * d {
			s[i] = op.Combine(s[i-d], s[i])
		}
	}
	total := s[w-1]
	s[w-1] = op.Identity()
	for d := w >> 1; d >= 1; d >>= 1 {
		for i := 2*d - 1; i < w; i += 2 * d {
			left := s[i-d]
			s[i-d] = s[i]
			s[i] = op.Combine(s[i], left)
		}
	}
	return total
}

func ceilPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

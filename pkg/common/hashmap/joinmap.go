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
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/hashtable"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/logutil"
	"github.com/matrixorigin/relcore/pkg/util/metric"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// Build indexes the rows of the key columns. A row with a null key is not
// indexed unless opts.NullEqual, a row with a NaN key unless opts.NaNEqual.
func Build(proc *process.Process, keys []*vector.Vector, opts Options) (*JoinMap, error) {
	ks, err := newKeySet(proc, keys, opts.NullEqual, opts.NaNEqual)
	if err != nil {
		return nil, err
	}
	capacity := opts.Capacity
	if capacity == 0 {
		if capacity, err = estimate(proc, ks, opts); err != nil {
			ks.free()
			return nil, err
		}
	}
	mm, err := hashtable.NewMultiMap(proc.Ctx, proc.Mp(), ks.n, hashtable.Options{
		Capacity:      capacity,
		MaxLoadFactor: opts.MaxLoadFactor,
		Scheme:        opts.Scheme,
	})
	if err != nil {
		ks.free()
		return nil, err
	}
	metric.HashBuildCounter.Inc()
	logutil.Debug("hash build",
		logutil.OpField(moerr.OpName(proc.Ctx)),
		logutil.RowsField("rows", ks.n),
		zap.Int("capacity", capacity),
		zap.Stringer("scheme", opts.Scheme),
		zap.Stringer("estimator", opts.Estimator))

	var failed atomic.Bool
	var once sync.Once
	var insertErr error
	if err = proc.Launch(ks.n, func(_, start, end int) {
		for r := start; r < end; r++ {
			if failed.Load() {
				return
			}
			if ks.skip[r] {
				continue
			}
			row := int64(r)
			if err := mm.Insert(proc.Ctx, ks.hashes[r], row, func(other int64) bool {
				return ks.equal(other, ks, row)
			}); err != nil {
				once.Do(func() { insertErr = err })
				failed.Store(true)
				return
			}
		}
	}); err == nil {
		err = insertErr
	}
	if err != nil {
		if moerr.IsMoErrCode(err, moerr.ErrCapacityExceeded) {
			metric.HashCapacityExceededCounter.Inc()
		}
		mm.Free()
		ks.free()
		return nil, err
	}
	return &JoinMap{build: ks, mm: mm, opts: opts, valid: true}, nil
}

// Rows is the number of build rows, indexed or not.
func (jm *JoinMap) Rows() int {
	return jm.build.n
}

// Keys is the number of distinct indexed keys.
func (jm *JoinMap) Keys() int {
	return jm.mm.Keys()
}

func (jm *JoinMap) Capacity() int {
	return jm.mm.Capacity()
}

func (jm *JoinMap) IsValid() bool {
	return jm.valid
}

func (jm *JoinMap) Size() int64 {
	if !jm.valid {
		return 0
	}
	return jm.mm.Size() + int64(jm.build.n)*int64(8*len(jm.build.words)+9)
}

func (jm *JoinMap) Free() {
	if !jm.valid {
		return
	}
	jm.mm.Free()
	jm.build.free()
	jm.valid = false
}

// Probe prepares the rows of keys for lookups. keys must match the build
// keys column by column in type.
func (jm *JoinMap) Probe(proc *process.Process, keys []*vector.Vector) (*Prober, error) {
	if !jm.valid {
		return nil, moerr.NewInvalidState(proc.Ctx, "probe of a freed join map")
	}
	if len(keys) != len(jm.build.cols) {
		return nil, moerr.NewShapeMismatch(proc.Ctx, "%d probe keys for %d build keys", len(keys), len(jm.build.cols))
	}
	for i, k := range keys {
		if bt := jm.build.cols[i].GetType(); !k.GetType().Eq(*bt) {
			return nil, moerr.NewUnsupportedType(proc.Ctx, "probe key %d of %s against build key of %s", i, k.GetType(), bt)
		}
	}
	ks, err := newKeySet(proc, keys, jm.opts.NullEqual, jm.opts.NaNEqual)
	if err != nil {
		return nil, err
	}
	return &Prober{jm: jm, probe: ks}, nil
}

// ProbeCount returns the number of build matches of every probe row.
func (jm *JoinMap) ProbeCount(proc *process.Process, keys []*vector.Vector) ([]int64, error) {
	p, err := jm.Probe(proc, keys)
	if err != nil {
		return nil, err
	}
	defer p.Free()
	counts := make([]int64, p.Rows())
	if err = p.CountAll(proc, counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func (p *Prober) Rows() int {
	return p.probe.n
}

// Find returns the slot of the build rows matching probe row, or
// hashtable.NoSlot.
func (p *Prober) Find(row int) int {
	if p.probe.skip[row] {
		return hashtable.NoSlot
	}
	r := int64(row)
	return p.jm.mm.Find(p.probe.hashes[row], func(b int64) bool {
		return p.jm.build.equal(b, p.probe, r)
	})
}

// Count returns the number of build rows matching probe row.
func (p *Prober) Count(row int) int {
	return p.jm.mm.Count(p.Find(row))
}

// ForEachMatch calls fn with every build row matching probe row.
func (p *Prober) ForEachMatch(row int, fn func(buildRow int64)) {
	p.jm.mm.ForEach(p.Find(row), fn)
}

// ForEachInSlot calls fn with every build row of a slot returned by Find.
func (p *Prober) ForEachInSlot(slot int, fn func(buildRow int64)) {
	p.jm.mm.ForEach(slot, fn)
}

// CountAll writes the match count of every probe row into counts.
func (p *Prober) CountAll(proc *process.Process, counts []int64) error {
	if len(counts) != p.probe.n {
		return moerr.NewShapeMismatch(proc.Ctx, "%d counts for %d probe rows", len(counts), p.probe.n)
	}
	return proc.Launch(p.probe.n, func(_, start, end int) {
		for r := start; r < end; r++ {
			counts[r] = int64(p.Count(r))
		}
	})
}

func (p *Prober) Free() {
	p.probe.free()
}

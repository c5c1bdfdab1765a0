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
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/container/types"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

const (
	canonicalNaN = 0x7ff8000000000001
	// nullWord is hashed for a null key when nulls compare equal
	nullWord = 0x9e3779b97f4a7c15
)

// keySet holds the key columns of one side normalized to 64 bit words, so
// that equal keys have equal words: integers widen, floats widen with -0
// folded into 0 and every NaN into one pattern.
type keySet struct {
	mp    *mpool.MPool
	n     int
	cols  []*vector.Vector
	words [][]uint64
	// nulls reports per column whether it has any null row
	nulls  []bool
	hashes []uint64
	// skip marks rows that can never match
	skip []bool
}

func (ks *keySet) free() {
	for _, w := range ks.words {
		mpool.FreeSlice(ks.mp, w)
	}
	mpool.FreeSlice(ks.mp, ks.hashes)
	mpool.FreeSlice(ks.mp, ks.skip)
	ks.words, ks.hashes, ks.skip = nil, nil, nil
}

func checkKeys(proc *process.Process, keys []*vector.Vector) error {
	if len(keys) == 0 {
		return moerr.NewInvalidInput(proc.Ctx, "hash keys without columns")
	}
	n := keys[0].Length()
	for i, k := range keys {
		if k.Length() != n {
			return moerr.NewShapeMismatch(proc.Ctx, "key %d has %d rows, key 0 has %d", i, k.Length(), n)
		}
		if !hashable(k.GetType().Oid) {
			return moerr.NewUnsupportedType(proc.Ctx, "hash key of %s", k.GetType())
		}
	}
	return nil
}

func hashable(oid types.T) bool {
	switch oid {
	case types.T_bool,
		types.T_int8, types.T_int16, types.T_int32, types.T_int64,
		types.T_uint8, types.T_uint16, types.T_uint32, types.T_uint64,
		types.T_float32, types.T_float64,
		types.T_date, types.T_datetime, types.T_timestamp:
		return true
	}
	return false
}

func newKeySet(proc *process.Process, keys []*vector.Vector, nullEqual, nanEqual bool) (*keySet, error) {
	if err := checkKeys(proc, keys); err != nil {
		return nil, err
	}
	n := keys[0].Length()
	ks := &keySet{
		mp:    proc.Mp(),
		n:     n,
		cols:  keys,
		words: make([][]uint64, len(keys)),
		nulls: make([]bool, len(keys)),
	}
	floatCols := make([]bool, len(keys))
	for i, k := range keys {
		floatCols[i] = k.GetType().Oid.IsFloat()
	}
	var err error
	if ks.hashes, err = mpool.MakeSliceNoClear[uint64](ks.mp, n); err != nil {
		return nil, err
	}
	if ks.skip, err = mpool.MakeSliceNoClear[bool](ks.mp, n); err != nil {
		ks.free()
		return nil, err
	}
	for i, k := range keys {
		ks.nulls[i] = k.HasNulls()
		if ks.words[i], err = mpool.MakeSliceNoClear[uint64](ks.mp, n); err != nil {
			ks.free()
			return nil, err
		}
	}

	if err = proc.Launch(n, func(_, start, end int) {
		for c, k := range keys {
			normalize(k, ks.words[c][start:end], start)
		}
		for r := start; r < end; r++ {
			h := uint64(0)
			skip := false
			for c, k := range keys {
				w := ks.words[c][r]
				switch {
				case ks.nulls[c] && k.IsNull(r):
					skip = skip || !nullEqual
					w = nullWord
				case w == canonicalNaN && floatCols[c]:
					skip = skip || !nanEqual
				}
				if c == 0 {
					h = hashWord(w)
				} else {
					h = combine(h, hashWord(w))
				}
			}
			ks.hashes[r] = h
			ks.skip[r] = skip
		}
	}); err != nil {
		ks.free()
		return nil, err
	}
	return ks, nil
}

func hashWord(w uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], w)
	return xxhash.Sum64(b[:])
}

// combine folds the hash of the next key column into seed, the boost
// hash_combine recipe widened to 64 bits.
func combine(seed, h uint64) uint64 {
	return seed ^ (h + 0x9e3779b97f4a7c15 + (seed << 6) + (seed >> 2))
}

// normalize writes the words of rows [start, start+len(dst)).
func normalize(vec *vector.Vector, dst []uint64, start int) {
	switch vec.GetType().Oid {
	case types.T_bool:
		vs := vector.MustFixedCol[bool](vec)[start:]
		for i := range dst {
			if vs[i] {
				dst[i] = 1
			} else {
				dst[i] = 0
			}
		}
	case types.T_int8:
		signed(vector.MustFixedCol[int8](vec)[start:], dst)
	case types.T_int16:
		signed(vector.MustFixedCol[int16](vec)[start:], dst)
	case types.T_int32:
		signed(vector.MustFixedCol[int32](vec)[start:], dst)
	case types.T_int64:
		signed(vector.MustFixedCol[int64](vec)[start:], dst)
	case types.T_date:
		signed(vector.MustFixedCol[types.Date](vec)[start:], dst)
	case types.T_datetime:
		signed(vector.MustFixedCol[types.Datetime](vec)[start:], dst)
	case types.T_timestamp:
		signed(vector.MustFixedCol[types.Timestamp](vec)[start:], dst)
	case types.T_uint8:
		unsigned(vector.MustFixedCol[uint8](vec)[start:], dst)
	case types.T_uint16:
		unsigned(vector.MustFixedCol[uint16](vec)[start:], dst)
	case types.T_uint32:
		unsigned(vector.MustFixedCol[uint32](vec)[start:], dst)
	case types.T_uint64:
		unsigned(vector.MustFixedCol[uint64](vec)[start:], dst)
	case types.T_float32:
		floats(vector.MustFixedCol[float32](vec)[start:], dst)
	case types.T_float64:
		floats(vector.MustFixedCol[float64](vec)[start:], dst)
	}
}

type signedKey interface {
	types.Ints | types.Date | types.Datetime | types.Timestamp
}

func signed[T signedKey](vs []T, dst []uint64) {
	for i := range dst {
		dst[i] = uint64(int64(vs[i]))
	}
}

func unsigned[T types.UInts](vs []T, dst []uint64) {
	for i := range dst {
		dst[i] = uint64(vs[i])
	}
}

func floats[T types.Floats](vs []T, dst []uint64) {
	for i := range dst {
		f := float64(vs[i])
		switch {
		case math.IsNaN(f):
			dst[i] = canonicalNaN
		case f == 0:
			dst[i] = 0
		default:
			dst[i] = math.Float64bits(f)
		}
	}
}

// equal reports whether row a of ks and row b of other hold equal keys.
// Rows marked in skip never get here.
func (ks *keySet) equal(a int64, other *keySet, b int64) bool {
	for c := range ks.words {
		an := ks.nulls[c] && ks.cols[c].IsNull(int(a))
		bn := other.nulls[c] && other.cols[c].IsNull(int(b))
		if an || bn {
			if an != bn {
				return false
			}
			continue
		}
		if ks.words[c][a] != other.words[c][b] {
			return false
		}
	}
	return true
}

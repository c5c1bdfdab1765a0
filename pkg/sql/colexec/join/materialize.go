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

package join

import (
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/vm/process"
)

// Materialize gathers the payload columns of both sides by a join result.
// The missing side of an outer pair reads as null. The columns are
// returned left first.
func Materialize(proc *process.Process, r *Result, leftCols, rightCols []*vector.Vector) ([]*vector.Vector, error) {
	proc = proc.WithOp(opName)
	out := make([]*vector.Vector, 0, len(leftCols)+len(rightCols))
	gather := func(cols []*vector.Vector, idx []int64) error {
		for _, c := range cols {
			v, err := vector.Gather(proc, c, idx)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	}
	err := gather(leftCols, r.LeftIndices)
	if err == nil {
		err = gather(rightCols, r.RightIndices)
	}
	if err != nil {
		for _, v := range out {
			v.Free()
		}
		return nil, err
	}
	return out, nil
}

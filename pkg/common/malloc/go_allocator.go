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

// GoAllocator is the non-recycled strategy: every allocation is a fresh Go
// heap slice and deallocation drops the reference.
type GoAllocator struct{}

func NewGoAllocator() *GoAllocator {
	return &GoAllocator{}
}

var _ Allocator = new(GoAllocator)

func (g *GoAllocator) Allocate(size uint64, hints Hints) ([]byte, Deallocator, error) {
	if size == 0 {
		return nil, noopDeallocator, nil
	}
	// make always returns zeroed memory, hints&NoClear does not matter
	return make([]byte, size), noopDeallocator, nil
}

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

package process

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/common/mpool"
	"github.com/matrixorigin/relcore/pkg/device"
)

func TestProcess(t *testing.T) {
	dev, err := device.New("test", 2, device.MinBlockSize)
	require.NoError(t, err)
	defer dev.Close()

	_, err = New(context.Background(), nil, nil, 0)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

	proc, err := New(context.Background(), dev, nil, 1024)
	require.NoError(t, err)
	require.Equal(t, dev, proc.Device())
	require.NotNil(t, proc.Allocator())
	require.Equal(t, device.MinBlockSize, proc.BlockSize())

	_, err = mpool.MakeSlice[int64](proc.Mp(), 16)
	require.NoError(t, err)
	_, err = proc.Mp().Alloc(1024)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))

	op := proc.WithOp("compact")
	require.Equal(t, "compact", moerr.OpName(op.Ctx))
	require.Equal(t, proc.Mp(), op.Mp())

	out := make([]int, 200)
	require.NoError(t, op.Launch(len(out), func(_, start, end int) {
		for i := start; i < end; i++ {
			out[i] = i
		}
	}))
	require.Equal(t, 199, out[199])
	require.NoError(t, op.LaunchBlocks(len(out), 100, func(blk, start, end int) {
		for i := start; i < end; i++ {
			out[i] = blk
		}
	}))
	require.Equal(t, 1, out[199])

	proc.Free()
	require.Equal(t, int64(0), proc.Mp().CurrNB())
}

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

package moerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMoErrCode(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		code uint16
		want bool
	}{
		{name: "nil is ok", err: nil, code: Ok, want: true},
		{name: "nil is not shape mismatch", err: nil, code: ErrShapeMismatch, want: false},
		{name: "shape mismatch", err: NewShapeMismatch(ctx, "rows %d != %d", 1, 2), code: ErrShapeMismatch, want: true},
		{name: "capacity", err: NewCapacityExceeded(ctx, "capacity %d", 8), code: ErrCapacityExceeded, want: true},
		{name: "go error", err: errors.New("boom"), code: ErrInternal, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsMoErrCode(tt.err, tt.code))
		})
	}
}

func TestMessageFormat(t *testing.T) {
	err := NewShapeMismatchNoCtx("rows %d != %d", 3, 4)
	require.Equal(t, "shape mismatch: rows 3 != 4", err.Error())
	require.Equal(t, ErrShapeMismatch, err.ErrorCode())
	require.False(t, err.Succeeded())

	oom := NewOOM(context.Background(), 1024)
	require.Equal(t, "allocation failure: out of device memory, requested 1024 bytes", oom.Error())
}

func TestOpNameDetail(t *testing.T) {
	ctx := WithOpName(context.Background(), "join")
	err := NewInvalidState(ctx, "bitmask has %d bits", 3)
	require.Equal(t, "join", err.Detail())
	require.Equal(t, "join: invalid state: bitmask has 3 bits", err.Display())
	require.Equal(t, "", OpName(context.Background()))
}

func TestCodeAndConvert(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, Ok, Code(nil))
	require.Equal(t, ErrInternal, Code(errors.New("x")))
	require.Equal(t, ErrOOM, Code(NewOOM(ctx, 1)))

	require.NoError(t, ConvertGoError(ctx, nil))
	orig := NewInvalidInput(ctx, "x")
	require.Same(t, orig, ConvertGoError(ctx, orig))
	require.True(t, IsMoErrCode(ConvertGoError(ctx, errors.New("y")), ErrInternal))

	require.Same(t, orig, ConvertPanicError(ctx, orig))
	require.True(t, IsMoErrCode(ConvertPanicError(ctx, "index out of range"), ErrDeviceFault))
}

func TestUnknownCodePanics(t *testing.T) {
	require.Panics(t, func() {
		_ = newError(context.Background(), 12345)
	})
}

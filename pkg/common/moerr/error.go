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
	"fmt"
	"runtime/debug"
)

const (
	// 0 - 99 is OK.
	Ok    uint16 = 0
	OkMax uint16 = 99

	// Group 1: internal errors
	ErrStart        uint16 = 20100
	ErrInternal     uint16 = 20101
	ErrOOM          uint16 = 20103
	ErrDeviceFault  uint16 = 20104
	ErrNotSupported uint16 = 20105

	// Group 2: shape and type errors
	ErrShapeMismatch    uint16 = 20200
	ErrUnsupportedType  uint16 = 20201
	ErrCapacityExceeded uint16 = 20202

	// Group 3: invalid input
	ErrBadConfig    uint16 = 20300
	ErrInvalidInput uint16 = 20301

	// Group 4: unexpected state
	ErrInvalidState uint16 = 20400
	ErrSyncTimeout  uint16 = 20401
	ErrStreamClosed uint16 = 20402

	// Group End: max value of MOErrorCode
	ErrEnd uint16 = 65535
)

type moErrorMsgItem struct {
	errorMsgOrFormat string
}

var errorMsgRefer = map[uint16]moErrorMsgItem{
	Ok: {"ok"},

	// Group 1: internal errors
	ErrStart:        {"start error code"},
	ErrInternal:     {"internal error: %s"},
	ErrOOM:          {"allocation failure: out of device memory, requested %d bytes"},
	ErrDeviceFault:  {"device fault: %s"},
	ErrNotSupported: {"not supported: %s"},

	// Group 2: shape and type errors
	ErrShapeMismatch:    {"shape mismatch: %s"},
	ErrUnsupportedType:  {"unsupported type: %s"},
	ErrCapacityExceeded: {"hash table capacity exceeded: %s"},

	// Group 3: invalid input
	ErrBadConfig:    {"invalid configuration: %s"},
	ErrInvalidInput: {"invalid input: %s"},

	// Group 4: unexpected state
	ErrInvalidState: {"invalid state: %s"},
	ErrSyncTimeout:  {"stream synchronize timeout: %s"},
	ErrStreamClosed: {"stream closed"},

	// Group End: max value of MOErrorCode
	ErrEnd: {"internal error: end of errcode code"},
}

type opNameKey struct{}

// WithOpName tags ctx with the name of the operator being executed. Errors
// created under the returned context carry the name as their detail.
func WithOpName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, opNameKey{}, name)
}

// OpName returns the operator name attached by WithOpName, if any.
func OpName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(opNameKey{}).(string)
	return name
}

func newError(ctx context.Context, code uint16, args ...any) *Error {
	item, has := errorMsgRefer[code]
	if !has {
		panic(NewInternalError(ctx, "not exist MOErrorCode: %d", code))
	}
	var err *Error
	if len(args) == 0 {
		err = &Error{
			code:    code,
			message: item.errorMsgOrFormat,
		}
	} else {
		err = &Error{
			code:    code,
			message: fmt.Sprintf(item.errorMsgOrFormat, args...),
		}
	}
	err.detail = OpName(ctx)
	return err
}

type Error struct {
	code    uint16
	message string
	detail  string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Detail() string {
	return e.detail
}

func (e *Error) Display() string {
	if len(e.detail) == 0 {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.detail, e.message)
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

func (e *Error) Succeeded() bool {
	return e.code < OkMax
}

func IsMoErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}

	me, ok := e.(*Error)
	if !ok {
		// This is not a moerr
		return false
	}
	return me.code == rc
}

// Code returns the result code carried by e. A nil error is Ok and any
// foreign error is reported as ErrInternal.
func Code(e error) uint16 {
	if e == nil {
		return Ok
	}
	if me, ok := e.(*Error); ok {
		return me.code
	}
	return ErrInternal
}

// ConvertPanicError converts a runtime panic to a device fault.
func ConvertPanicError(ctx context.Context, v interface{}) *Error {
	if e, ok := v.(*Error); ok {
		return e
	}
	return newError(ctx, ErrDeviceFault, fmt.Sprintf("panic %v: %s", v, debug.Stack()))
}

// ConvertGoError converts a go error into mo error.
// Note here we must return error, because nil error
// is the same as nil *Error -- Go strangeness.
func ConvertGoError(ctx context.Context, err error) error {
	if err == nil {
		return err
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return NewInternalError(ctx, "convert go error to mo error %v", err)
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInternal, xmsg)
}

func NewOOM(ctx context.Context, size uint64) *Error {
	return newError(ctx, ErrOOM, size)
}

func NewDeviceFault(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrDeviceFault, xmsg)
}

func NewNotSupported(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNotSupported, xmsg)
}

func NewShapeMismatch(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrShapeMismatch, xmsg)
}

func NewUnsupportedType(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrUnsupportedType, xmsg)
}

func NewCapacityExceeded(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrCapacityExceeded, xmsg)
}

func NewBadConfig(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrBadConfig, xmsg)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidInput, xmsg)
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidState, xmsg)
}

func NewSyncTimeout(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrSyncTimeout, xmsg)
}

func NewStreamClosed(ctx context.Context) *Error {
	return newError(ctx, ErrStreamClosed)
}

// Context returns the context used by the NoCtx constructors.
func Context() context.Context {
	return context.Background()
}

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return NewInternalError(Context(), msg, args...)
}

func NewShapeMismatchNoCtx(msg string, args ...any) *Error {
	return NewShapeMismatch(Context(), msg, args...)
}

func NewUnsupportedTypeNoCtx(msg string, args ...any) *Error {
	return NewUnsupportedType(Context(), msg, args...)
}

func NewInvalidInputNoCtx(msg string, args ...any) *Error {
	return NewInvalidInput(Context(), msg, args...)
}

func NewInvalidStateNoCtx(msg string, args ...any) *Error {
	return NewInvalidState(Context(), msg, args...)
}

func NewBadConfigNoCtx(msg string, args ...any) *Error {
	return NewBadConfig(Context(), msg, args...)
}

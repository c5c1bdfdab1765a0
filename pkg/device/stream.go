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

package device

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

const streamQueueSize = 256

// Op is one unit of work on a stream.
type Op func(ctx context.Context) error

type task struct {
	op Op
	// barrier is closed when the stream reaches the task, set only for
	// synchronization points
	barrier chan struct{}
}

type stickyErr struct {
	err error
}

// Stream executes submitted operations one at a time in submission order.
// Independent streams overlap. The first failing operation poisons the
// stream: later operations are dropped and Submit reports the failure.
type Stream struct {
	dev   *Device
	queue chan task
	done  chan struct{}
	err   atomic.Pointer[stickyErr]

	mu     sync.Mutex
	closed bool
}

func newStream(dev *Device) *Stream {
	s := &Stream{
		dev:   dev,
		queue: make(chan task, streamQueueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Stream) Device() *Device {
	return s.dev
}

func (s *Stream) run() {
	defer close(s.done)
	ctx := moerr.WithOpName(context.Background(), "stream")
	for t := range s.queue {
		if t.barrier != nil {
			close(t.barrier)
			continue
		}
		if s.Err() != nil {
			continue
		}
		if err := s.exec(ctx, t.op); err != nil {
			s.err.CompareAndSwap(nil, &stickyErr{err: err})
		}
	}
}

func (s *Stream) exec(ctx context.Context, op Op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fault := toFault(ctx, r)
			s.dev.recordFault(ctx, fault)
			err = fault
		}
	}()
	return op(ctx)
}

// Err returns the error that poisoned the stream, or nil.
func (s *Stream) Err() error {
	if e := s.err.Load(); e != nil {
		return e.err
	}
	return nil
}

// Submit enqueues op. It blocks while the queue is full.
func (s *Stream) Submit(op Op) error {
	if err := s.Err(); err != nil {
		return err
	}
	return s.enqueue(context.Background(), task{op: op})
}

func (s *Stream) enqueue(ctx context.Context, t task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return moerr.NewStreamClosed(ctx)
	}
	s.queue <- t
	return nil
}

// Synchronize waits until every operation submitted before the call has
// completed, or until ctx is done. Expiry returns ErrSyncTimeout and does
// not cancel the queued operations.
func (s *Stream) Synchronize(ctx context.Context) error {
	reached := make(chan struct{})
	if err := s.enqueue(ctx, task{barrier: reached}); err != nil {
		return err
	}
	select {
	case <-reached:
		return s.Err()
	case <-ctx.Done():
		return moerr.NewSyncTimeout(ctx, "%v", ctx.Err())
	}
}

// Close drains the queue and stops the stream, returning the error that
// poisoned it, if any.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	s.dev.forgetStream(s)
	return s.Err()
}

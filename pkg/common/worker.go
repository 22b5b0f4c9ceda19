/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package common

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Errors that may occur when sending tasks to a worker.
var (
	ErrWorkerClosed  = errors.New("worker is closed")
	ErrWorkerTooBusy = errors.New("worker is already overloaded")
)

// Configuration for the worker.
type WorkerConfig[T any] struct {
	// The size of the bounded channel.
	ChannelSize int
	// Timeout after which `OnTimeout` is called if no tasks arrived in the meantime.
	Timeout time.Duration
	// A closure that is called once `Timeout` is reached.
	OnTimeout func()
	// A closure that is executed upon reception of a task.
	OnTask func(T)
}

// A single-consumer task queue. All tasks sent to the worker are executed one by one,
// in the order they were sent, on a single goroutine owned by the worker.
//
// We need to wrap the channel in a struct so that we can close it from the outside and
// check by the sender if the channel is closed (there is no elegant way to do it in Go).
type Worker[T any] struct {
	channel chan<- T
	// Senders hold the read lock while they send, `Stop` takes the write lock to close.
	mutex   sync.RWMutex
	closed  bool
	done    chan struct{}
}

// Stop the worker unless already stopped. Tasks that are already queued are still executed.
func (w *Worker[T]) Stop() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.closed {
		close(w.channel)
		w.closed = true
	}
}

// Send a task to the worker. Never blocks: returns `ErrWorkerTooBusy` if the queue is full
// and `ErrWorkerClosed` if the worker has been stopped.
func (w *Worker[T]) Send(task T) error {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	if w.closed {
		return ErrWorkerClosed
	}

	select {
	case w.channel <- task:
		return nil
	default:
		return ErrWorkerTooBusy
	}
}

// Send a task to the worker, waiting for a free slot if the queue is full. Returns
// `ErrWorkerClosed` if the worker has been stopped and the context error if `ctx` is done
// before the task could be queued. Must not be called from the worker's own goroutine.
func (w *Worker[T]) SendContext(ctx context.Context, task T) error {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	if w.closed {
		return ErrWorkerClosed
	}

	select {
	case w.channel <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the worker has executed all queued tasks after `Stop`.
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}

// Starts a worker that executes `c.OnTask` for each task and `c.OnTimeout` each time no
// tasks have been received for `c.Timeout`. The worker stops once the user calls `Stop`.
func StartWorker[T any](c WorkerConfig[T]) *Worker[T] {
	incoming := make(chan T, c.ChannelSize)
	done := make(chan struct{})

	go func() {
		defer close(done)

		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()

		for {
			select {
			case task, ok := <-incoming:
				if !ok {
					return
				}
				c.OnTask(task)
			case <-timer.C:
				c.OnTimeout()
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.Timeout)
		}
	}()

	return &Worker[T]{channel: incoming, done: done}
}

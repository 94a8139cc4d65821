// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"sync"
)

// taskQueue is the single serial task queue that owns all session state
// mutation (§5 Concurrency model: "a single serial task queue owns all
// state mutation"). Every callback delivered by the event bus or the
// response table's reaper runs as one function posted here, so no two of
// them ever run concurrently with each other. Stanza dispatch does not go
// through the queue; it runs on the session's reader goroutine.
type taskQueue struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
}

// newTaskQueue starts a queue with the given run-loop buffer size and
// returns it already running. buf of 0 is a valid, fully synchronous queue.
func newTaskQueue(buf int) *taskQueue {
	q := &taskQueue{
		tasks: make(chan func(), buf),
		done:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *taskQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case fn := <-q.tasks:
			fn()
		case <-q.done:
			// Drain whatever is already buffered before exiting so that a
			// Stop racing with in-flight Posts doesn't silently drop work.
			for {
				select {
				case fn := <-q.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues fn to run on the queue's goroutine. It never blocks the
// caller on fn's execution, only (if the buffer is full) on there being
// room to enqueue it.
func (q *taskQueue) Post(fn func()) {
	q.tasks <- fn
}

// PostCtx is like Post, but gives up and returns ctx.Err() if ctx is done
// before fn can be enqueued.
func (q *taskQueue) PostCtx(ctx context.Context, fn func()) error {
	select {
	case q.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call posts fn and blocks until it has run (or ctx is done first),
// returning fn's error. No Session method uses it; they run on the
// caller's goroutine.
func (q *taskQueue) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	err := q.PostCtx(ctx, func() {
		result <- fn()
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the run loop to drain and exit, then waits for it to do so.
// The tasks channel is never closed, so a Post after Stop does not panic:
// fn is never run, and once the buffer is full the Post blocks forever.
// Callers must not Post after Stop.
func (q *taskQueue) Stop() {
	close(q.done)
	q.wg.Wait()
}

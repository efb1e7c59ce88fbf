// Package queue implements a single-consumer FIFO of asynchronous tasks.
// At most one task runs at a time; a task starts only after the previous one
// has returned, whatever its outcome.
package queue

import (
	"errors"
	"fmt"
	"sync"

	"avatx/internal/logging"
)

// ErrCleared is reported by a Handle whose task was dropped by Clear before it started.
var ErrCleared = errors.New("queue: task cleared before it started")

// Task is one unit of queued work.
type Task func() error

// Option configures a single queued task.
type Option func(*entry)

// OnError routes the task's error to fn instead of the queue-wide handler.
func OnError(fn func(error)) Option {
	return func(e *entry) { e.onError = fn }
}

// OnCancel registers fn to be called when Clear drops the task.
func OnCancel(fn func()) Option {
	return func(e *entry) { e.onCancel = fn }
}

// Handle tracks one queued task.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed once the task has finished or was cleared.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task's error once Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

type entry struct {
	task     Task
	handle   *Handle
	onError  func(error)
	onCancel func()
}

// Queue serializes tasks.
type Queue struct {
	mu      sync.Mutex
	pending []*entry
	running bool
	onError func(error)
}

// New creates a Queue. onError receives errors from tasks that registered no
// handler of their own; nil means the errors are logged.
func New(onError func(error)) *Queue {
	if onError == nil {
		log := logging.For("queue")
		onError = func(err error) {
			log.Error().Err(err).Msg("queued task failed")
		}
	}
	return &Queue{onError: onError}
}

// Add appends task. If the queue is idle the task starts immediately.
func (q *Queue) Add(task Task, opts ...Option) *Handle {
	e := &entry{task: task, handle: &Handle{done: make(chan struct{})}}
	for _, opt := range opts {
		opt(e)
	}

	q.mu.Lock()
	if q.running {
		q.pending = append(q.pending, e)
		q.mu.Unlock()
		return e.handle
	}
	q.running = true
	q.mu.Unlock()

	go q.drain(e)
	return e.handle
}

// Clear drops every task that has not started yet. The running task is not
// affected. Cancel callbacks run on their own goroutines.
func (q *Queue) Clear() {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, e := range dropped {
		e.handle.err = ErrCleared
		close(e.handle.done)
		if e.onCancel != nil {
			go e.onCancel()
		}
	}
}

// Len returns the number of tasks waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Busy reports whether a task is currently running.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) drain(e *entry) {
	for e != nil {
		q.run(e)

		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		e = q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
	}
}

func (q *Queue) run(e *entry) {
	err := safeCall(e.task)
	e.handle.err = err
	close(e.handle.done)

	if err == nil {
		return
	}
	if e.onError != nil {
		e.onError(err)
		return
	}
	q.onError(err)
}

func safeCall(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: task panicked: %v", r)
		}
	}()
	return task()
}

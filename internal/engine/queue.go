package engine

import (
	"sync"
	"sync/atomic"
)

// Task is a deferred callable run on the main goroutine.
type Task func()

// TaskQueue is a thread-safe FIFO of tasks executed only by the frame loop.
//
// Any goroutine may Submit. Only the main goroutine calls Drain, once per
// frame. Drain runs the snapshot that was pending when it took the lock;
// tasks submitted while that snapshot runs (including by the tasks
// themselves) wait for the next Drain. Close only stops new submissions;
// the engine's Shutdown closes the queue and discards whatever is still
// pending, logging the count.
type TaskQueue struct {
	mu      sync.Mutex
	tasks   []Task
	closed  bool
	pending atomic.Int64 // mirrors len(tasks) for the lock-free empty check
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		tasks: make([]Task, 0, 16),
	}
}

// Submit appends t to the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if t is nil or the queue is closed.
func (q *TaskQueue) Submit(t Task) bool {
	if t == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)
	q.pending.Add(1)
	return true
}

// Drain runs every task pending at the moment of the call, in FIFO order,
// and returns how many ran.
//
// The empty case returns without locking. Tasks run outside the lock so a
// task may Submit without deadlocking; such submissions run next Drain.
func (q *TaskQueue) Drain() int {
	if q.pending.Load() == 0 {
		return 0
	}

	q.mu.Lock()
	batch := q.tasks
	q.tasks = make([]Task, 0, cap(batch))
	q.pending.Add(-int64(len(batch)))
	q.mu.Unlock()

	for i, t := range batch {
		batch[i] = nil
		t()
	}
	return len(batch)
}

// Len returns the number of pending tasks.
func (q *TaskQueue) Len() int {
	return int(q.pending.Load())
}

// Close rejects further submissions. Pending tasks remain drainable.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Closed reports whether Close has been called.
func (q *TaskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

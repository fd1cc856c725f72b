package inventory

import (
	"context"
	"sync"
)

// Task is a handle on one in-flight collection.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func newTask(cancel context.CancelFunc) *Task {
	return &Task{cancel: cancel, done: make(chan struct{})}
}

// Cancel asks the collection to stop. Previously applied state is kept.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the task's outcome has been applied on the foreground,
// or once the queue closed before that could happen.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until Done and returns the collection error, if any. It must
// not be called from the goroutine running the Queue.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Err returns the outcome without blocking; nil while the task is running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) finish(err error) {
	t.once.Do(func() {
		t.err = err
		t.cancel()
		close(t.done)
	})
}

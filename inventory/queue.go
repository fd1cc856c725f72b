package inventory

import (
	"context"
	"errors"
	"sync"
)

const defaultQueueSize = 1024

// ErrQueueClosed is the outcome of work abandoned because its queue closed.
var ErrQueueClosed = errors.New("foreground queue closed")

// Queue serializes work onto a single foreground goroutine. Background
// goroutines Post closures; whoever calls Run or RunUntil executes them in
// posting order.
type Queue struct {
	work      chan func()
	closed    chan struct{}
	closeOnce sync.Once
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{work: make(chan func(), size), closed: make(chan struct{})}
}

// Post enqueues fn. It blocks while the queue is full and returns false once
// the queue has been closed.
func (q *Queue) Post(fn func()) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.work <- fn:
		return true
	case <-q.closed:
		return false
	}
}

// Run executes posted work until ctx is done or the queue is closed.
func (q *Queue) Run(ctx context.Context) error {
	return q.RunUntil(ctx, nil)
}

// RunUntil executes posted work until done is closed, ctx is done or the
// queue is closed. Work already queued when done fires is drained first.
func (q *Queue) RunUntil(ctx context.Context, done <-chan struct{}) error {
	for {
		select {
		case fn := <-q.work:
			fn()
		case <-done:
			q.Drain()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closed:
			return nil
		}
	}
}

// Drain runs everything currently queued without waiting for more and
// reports how many closures ran.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case fn := <-q.work:
			fn()
			n++
		default:
			return n
		}
	}
}

// Close stops the queue. Pending work is discarded and later Posts fail.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Closed is closed once Close has been called.
func (q *Queue) Closed() <-chan struct{} { return q.closed }

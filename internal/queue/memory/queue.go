// Package memory provides the in-process enrichment queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/notes-service/internal/links"
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO of worker messages with context-aware operations.
// Close never closes the underlying channel, so producers racing with Close
// cannot panic; messages left in the buffer are simply never dequeued.
type Queue struct {
	ch        chan links.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan links.Message, capacity),
		done: make(chan struct{}),
	}
}

// TryEnqueue offers msg without blocking. It reports false when the queue is
// full or closed.
func (q *Queue) TryEnqueue(msg links.Message) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- msg:
		return true
	default:
		return false
	}
}

// Enqueue pushes msg, waiting for space until the context ends or the queue
// is closed.
func (q *Queue) Enqueue(ctx context.Context, msg links.Message) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- msg:
		return nil
	}
}

// Dequeue pops the next message, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (links.Message, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return nil, ErrClosed
	case msg := <-q.ch:
		return msg, nil
	}
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close stops accepting and delivering messages. Closing twice is safe.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

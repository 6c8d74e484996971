// Package memory provides an in-process submission queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"linkcast/internal/cast"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch chan cast.QueueItem
	// mu fences Enqueue against Close: sends hold the read lock so the
	// channel can never be closed mid-send.
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan cast.QueueItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
// Enqueueing into a closed queue is an error, not a panic.
func (q *Queue) Enqueue(ctx context.Context, item cast.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errors.New("queue closed")
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (cast.QueueItem, error) {
	select {
	case <-ctx.Done():
		return cast.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return cast.QueueItem{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown. It waits for
// in-flight Enqueue calls to return; their contexts must be cancelled
// first or Close can block on a full queue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Package memory provides queue implementations for single-process mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/patronemptor/titlesvc/internal/titles"
)

// Queue is a bounded in-memory queue with context-aware operations.
// It provides at-most-once delivery; cross-process deployments use the
// Pub/Sub queue instead.
type Queue struct {
	ch      chan titles.Task
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan titles.Task, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task titles.Task) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (titles.Task, error) {
	select {
	case <-ctx.Done():
		return titles.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return titles.Task{}, errors.New("queue closed")
		}
		return task, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

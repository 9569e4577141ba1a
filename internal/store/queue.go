// Package store contains the persistence interfaces for shipyard.
package store

import (
	"context"
	"time"

	"shipyard/pkg/api"
)

// Queue is the work queue between the tracking service and the workers.
// Delivery is at-most-once: a message is removed when it is dequeued.
type Queue interface {
	// Enqueue appends a message to the tail of the queue.
	Enqueue(ctx context.Context, msg api.JobMessage) error

	// Dequeue blocks up to wait for a message from the head of the queue.
	// It returns nil, nil when the wait elapses without a message.
	Dequeue(ctx context.Context, wait time.Duration) (*api.JobMessage, error)

	// Len returns the number of waiting messages.
	Len(ctx context.Context) (int64, error)
}

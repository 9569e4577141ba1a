// Package redis implements the work queue on a Redis list.
//
// Producers RPUSH JSON messages and workers BLPOP them. A worker that crashes
// after BLPOP loses the message; the tracking service keeps the job in its last
// reported state and callers resubmit.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"shipyard/internal/store"
	"shipyard/pkg/api"
)

// Options configure the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Queue is a store.Queue on a single Redis list.
type Queue struct {
	client *goredis.Client
	key    string
	logger *slog.Logger
}

var _ store.Queue = (*Queue)(nil)

// New connects and pings the server.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Queue, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.Key, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, key string, logger *slog.Logger) *Queue {
	if key == "" {
		key = "shipyard:jobs"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{client: client, key: key, logger: logger}
}

// Enqueue RPUSHes the JSON encoded message.
func (q *Queue) Enqueue(ctx context.Context, msg api.JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", msg.JobID, err)
	}
	return nil
}

// Dequeue BLPOPs with a bounded wait. Undecodable messages are logged and dropped.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*api.JobMessage, error) {
	result, err := q.client.BLPop(ctx, wait, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid queue result: %v", result)
	}

	var msg api.JobMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		q.logger.Error("dropping undecodable queue message", "key", q.key, "payload", result[1], "err", err)
		return nil, nil
	}
	return &msg, nil
}

// Len returns LLEN of the list.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// Ping checks the connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

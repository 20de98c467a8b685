// Package queue implements the Redis-backed submission queue, the worker
// registry, and the completion channel that bridges worker commits to
// wait-mode callers in the API process.
//
// The queue list is the only synchronization point between the API process
// and the workers; no in-process channel is used for dispatch, so pending
// work survives restarts of either side.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Dequeue when no job arrives within the timeout.
var ErrEmpty = errors.New("queue empty")

// WorkerState is the registry state of one worker slot.
type WorkerState string

const (
	WorkerIdle WorkerState = "idle"
	WorkerBusy WorkerState = "busy"
)

// WorkerInfo is a registry entry.
type WorkerInfo struct {
	Name  string      `json:"name"`
	State WorkerState `json:"state"`
}

// Queue is a persistent FIFO of submission ids plus worker bookkeeping.
type Queue struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and returns a queue bound to the given key prefix.
func New(addr, prefix string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &Queue{client: client, prefix: prefix}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, prefix string) *Queue {
	return &Queue{client: client, prefix: prefix}
}

// Name returns the Redis list key holding pending submission ids.
func (q *Queue) Name() string {
	return q.prefix + "_submission_queue"
}

func (q *Queue) failedKey() string {
	return q.Name() + ":failed"
}

func (q *Queue) workersKey() string {
	return q.prefix + "_workers"
}

func (q *Queue) doneChannel() string {
	return q.prefix + "_submission_done"
}

// Enqueue appends a submission id to the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, id uuid.UUID) error {
	return q.client.LPush(ctx, q.Name(), id.String()).Err()
}

// Dequeue pops the oldest submission id, blocking up to timeout. Returns
// ErrEmpty when the wait expires, which is the worker's periodic wake-up
// for graceful shutdown.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, error) {
	vals, err := q.client.BRPop(ctx, timeout, q.Name()).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrEmpty
	}
	if err != nil {
		return uuid.Nil, err
	}
	// BRPOP returns [key, value].
	id, err := uuid.Parse(vals[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed id on queue: %w", err)
	}
	return id, nil
}

// Size returns the number of queued submission ids.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.Name()).Result()
}

// RecordFailure appends a submission id to the failed-job list. Jobs land
// here only when a worker crashes mid-processing; they are not retried.
func (q *Queue) RecordFailure(ctx context.Context, id uuid.UUID, reason string) error {
	entry := fmt.Sprintf("%s|%s|%s", id, time.Now().UTC().Format(time.RFC3339), reason)
	return q.client.LPush(ctx, q.failedKey(), entry).Err()
}

// FailedCount returns the length of the failed-job list.
func (q *Queue) FailedCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.failedKey()).Result()
}

// RegisterWorker adds a worker to the registry in idle state.
func (q *Queue) RegisterWorker(ctx context.Context, name string) error {
	return q.client.HSet(ctx, q.workersKey(), name, string(WorkerIdle)).Err()
}

// UnregisterWorker removes a worker from the registry.
func (q *Queue) UnregisterWorker(ctx context.Context, name string) error {
	return q.client.HDel(ctx, q.workersKey(), name).Err()
}

// SetWorkerState records a worker's idle/busy transition.
func (q *Queue) SetWorkerState(ctx context.Context, name string, state WorkerState) error {
	return q.client.HSet(ctx, q.workersKey(), name, string(state)).Err()
}

// ListWorkers returns all registered workers sorted by name.
func (q *Queue) ListWorkers(ctx context.Context) ([]WorkerInfo, error) {
	m, err := q.client.HGetAll(ctx, q.workersKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]WorkerInfo, 0, len(m))
	for name, state := range m {
		out = append(out, WorkerInfo{Name: name, State: WorkerState(state)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PublishCompletion announces that a submission reached a terminal state.
// Fire-and-forget: nobody may be listening.
func (q *Queue) PublishCompletion(ctx context.Context, id uuid.UUID) error {
	return q.client.Publish(ctx, q.doneChannel(), id.String()).Err()
}

// SubscribeCompletions streams completed submission ids until ctx is done.
func (q *Queue) SubscribeCompletions(ctx context.Context) (<-chan uuid.UUID, error) {
	sub := q.client.Subscribe(ctx, q.doneChannel())
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan uuid.UUID)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				id, err := uuid.Parse(msg.Payload)
				if err != nil {
					continue
				}
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping verifies Redis connectivity and reports the round-trip time.
func (q *Queue) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := q.client.Ping(ctx).Err()
	return time.Since(start), err
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

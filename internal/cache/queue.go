package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SyncJob asks a worker to archive the listings of one broadcast date.
// An empty ChannelIDs means every channel.
type SyncJob struct {
	Date       string   `json:"date"` // YYYY-MM-DD
	ChannelIDs []string `json:"channel_ids,omitempty"`
}

// DefaultQueue is the Redis list key used for sync jobs.
const DefaultQueue = keyPrefix + "jobs:sync"

// Enqueue pushes a job onto the left side of a Redis list.
func Enqueue(ctx context.Context, r *Redis, queue string, job SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	if err := r.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available on the right side of the list
// or the timeout expires. (nil, nil) is returned on timeout and on
// shutdown so the caller can loop and check ctx.
func Dequeue(ctx context.Context, r *Redis, queue string, timeout time.Duration) (*SyncJob, error) {
	result, err := r.client.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	return decodeJob(result[1])
}

func decodeJob(raw string) (*SyncJob, error) {
	var job SyncJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("queue unmarshal: %w", err)
	}
	if job.Date == "" {
		return nil, fmt.Errorf("queue unmarshal: job without date: %s", raw)
	}
	return &job, nil
}

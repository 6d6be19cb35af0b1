package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/svtfetch/backend/internal/logger"
)

const (
	// Redis keys
	keyJobOrder  = "svtfetch:jobs"
	keyJobPrefix = "svtfetch:job:"

	mirrorWriteTimeout = 2 * time.Second
)

// Mirror persists published jobs to Redis so the registry survives restarts
type Mirror struct {
	client *redis.Client
	log    *logger.Logger
}

// NewMirror connects to Redis at the given URL
func NewMirror(redisURL string) (*Mirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewMirrorFromClient(client), nil
}

// NewMirrorFromClient wraps an existing Redis client
func NewMirrorFromClient(client *redis.Client) *Mirror {
	return &Mirror{
		client: client,
		log:    logger.Default().WithComponent("mirror"),
	}
}

// Client returns the underlying Redis client
func (m *Mirror) Client() *redis.Client {
	return m.client
}

// Close closes the Redis connection
func (m *Mirror) Close() error {
	return m.client.Close()
}

// Observe is a store observer writing each published job to Redis.
// Write failures are logged; the in-memory store stays authoritative.
func (m *Mirror) Observe(job *Job, created bool) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
	defer cancel()

	if err := m.Save(ctx, job, created); err != nil {
		m.log.Error(ctx, "failed to mirror job", err, map[string]interface{}{"job_id": job.ID})
	}
}

// Save writes the job and, for a new job, appends its id to the order list
func (m *Mirror) Save(ctx context.Context, job *Job, created bool) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, keyJobPrefix+job.ID, data, 0)
	if created {
		pipe.RPush(ctx, keyJobOrder, job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Load reads every persisted job in insertion order. Ids whose record is
// missing or unreadable are skipped.
func (m *Mirror) Load(ctx context.Context) ([]*Job, error) {
	ids, err := m.client.LRange(ctx, keyJobOrder, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job order: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyJobPrefix + id
	}

	values, err := m.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			m.log.Warn(ctx, "skipping unreadable job", map[string]interface{}{"job_id": ids[i], "error": err.Error()})
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"videoOverlay/store"
)

const (
	statusKeyPrefix = "job:status:"
	statusTTL       = 10 * time.Minute
)

// Snapshot is the polled view of a job kept in redis so status reads do not
// hit the job table on every poll.
type Snapshot struct {
	State    store.JobState   `json:"state"`
	Progress int              `json:"progress"`
	Error    string           `json:"error,omitempty"`
	Result   *store.JobResult `json:"result,omitempty"`
}

type StatusCache struct {
	client *redis.Client
}

func Connect(addr string) (*StatusCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &StatusCache{client: client}, nil
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func (c *StatusCache) Get(ctx context.Context, jobID string) (*Snapshot, error) {
	data, err := c.client.Get(ctx, statusKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *StatusCache) Set(ctx context.Context, jobID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKeyPrefix+jobID, data, statusTTL).Err()
}

func (c *StatusCache) Delete(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, statusKeyPrefix+jobID).Err()
}

func (c *StatusCache) Close() error {
	return c.client.Close()
}

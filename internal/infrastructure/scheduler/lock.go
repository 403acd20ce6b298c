package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// JobLock grants one process at a time the right to run a job.
type JobLock interface {
	// TryLock returns ok=false without error when another holder has the key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// RedisJobLock implements JobLock with redislock. The lock expires after ttl
// if its holder dies.
type RedisJobLock struct {
	client *redislock.Client
	prefix string
}

// NewRedisJobLock creates a job lock on rdb.
func NewRedisJobLock(rdb redis.UniversalClient) *RedisJobLock {
	return &RedisJobLock{client: redislock.New(rdb), prefix: "boigordo:job:"}
}

func (l *RedisJobLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lock, err := l.client.Obtain(ctx, l.prefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain job lock %s: %w", key, err)
	}
	release := func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}
	return release, true, nil
}

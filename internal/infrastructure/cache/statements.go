package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"boigordo/internal/core/types"
	"boigordo/internal/domain/scope"
	"boigordo/internal/domain/statement"
)

const keyPrefix = "boigordo:dre:"

// redisClient is the subset of go-redis the statement cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// StatementCache keeps generated statements in Redis. Each month has an index
// set of its keys so a change to the month drops every scope at once.
type StatementCache struct {
	rdb redisClient
	ttl time.Duration
}

var _ statement.Cache = (*StatementCache)(nil)

// NewStatementCache creates a statement cache. A non-positive ttl means one hour.
func NewStatementCache(rdb redisClient, ttl time.Duration) *StatementCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StatementCache{rdb: rdb, ttl: ttl}
}

func statementKey(month types.Month, sc scope.Scope) string {
	return keyPrefix + month.String() + ":" + sc.String()
}

func monthIndexKey(month types.Month) string {
	return keyPrefix + "idx:" + month.String()
}

// Get returns the cached statement of (month, scope), if any.
func (c *StatementCache) Get(ctx context.Context, month types.Month, sc scope.Scope) (*statement.Statement, bool, error) {
	raw, err := c.rdb.Get(ctx, statementKey(month, sc)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var st statement.Statement
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, false, fmt.Errorf("decode cached statement: %w", err)
	}
	return &st, true, nil
}

// Set stores st and indexes it under its month.
func (c *StatementCache) Set(ctx context.Context, st *statement.Statement) error {
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode statement: %w", err)
	}
	key := statementKey(st.Month(), st.Scope())
	idx := monthIndexKey(st.Month())
	if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	if err := c.rdb.SAdd(ctx, idx, key).Err(); err != nil {
		return fmt.Errorf("cache index: %w", err)
	}
	return c.rdb.Expire(ctx, idx, c.ttl).Err()
}

// InvalidateMonths drops every cached scope of the months.
func (c *StatementCache) InvalidateMonths(ctx context.Context, months ...types.Month) error {
	for _, m := range months {
		idx := monthIndexKey(m)
		keys, err := c.rdb.SMembers(ctx, idx).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("cache index %s: %w", m, err)
		}
		if err := c.rdb.Del(ctx, append(keys, idx)...).Err(); err != nil {
			return fmt.Errorf("cache invalidate %s: %w", m, err)
		}
	}
	return nil
}

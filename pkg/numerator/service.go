// Package numerator issues sequential document numbers such as DSP-2026-00042.
// Counters live in sys_sequences, one row per prefix and year.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict bumps the counter for every number. Called inside a
	// transaction, a rollback returns the number, so there are no gaps.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges of numbers in memory. A restart leaves gaps.
	StrategyCached
)

const defaultRangeSize = 50

// Querier is the part of a pool or transaction the numerator needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierSource returns the querier bound to ctx: the open transaction or the pool.
type QuerierSource func(ctx context.Context) Querier

// Config holds numbering configuration.
type Config struct {
	Strategy Strategy
	// RangeSize is the reservation size of StrategyCached.
	RangeSize int64
	// PadWidth is the minimum width of the counter (default 5).
	PadWidth int
}

type cachedRange struct {
	current int64
	max     int64
}

// Service issues numbers. It is safe for concurrent use.
type Service struct {
	source QuerierSource
	cfg    Config

	mu     sync.Mutex
	ranges map[string]*cachedRange
}

// New creates a numerator.
func New(source QuerierSource, cfg Config) *Service {
	if cfg.PadWidth <= 0 {
		cfg.PadWidth = 5
	}
	if cfg.RangeSize <= 0 {
		cfg.RangeSize = defaultRangeSize
	}
	return &Service{source: source, cfg: cfg, ranges: make(map[string]*cachedRange)}
}

// Next returns the next number of prefix for the year of at.
func (s *Service) Next(ctx context.Context, prefix string, at time.Time) (string, error) {
	key := Key(prefix, at)

	var (
		num int64
		err error
	)
	switch s.cfg.Strategy {
	case StrategyCached:
		num, err = s.nextCached(ctx, key)
	default:
		num, err = s.reserve(ctx, key, 1)
	}
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", prefix, err)
	}
	return Format(prefix, at, num, s.cfg.PadWidth), nil
}

// reserve bumps the counter of key by n and returns its new value.
func (s *Service) reserve(ctx context.Context, key string, n int64) (int64, error) {
	var last int64
	err := s.source(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
		RETURNING current_val
	`, key, n).Scan(&last)
	if err != nil {
		return 0, err
	}
	return last, nil
}

func (s *Service) nextCached(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rng, ok := s.ranges[key]
	if !ok {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}
	if rng.current >= rng.max {
		last, err := s.reserve(ctx, key, s.cfg.RangeSize)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}
		// The reserved range is (last-size, last].
		rng.current, rng.max = last-s.cfg.RangeSize, last
	}
	rng.current++
	return rng.current, nil
}

// Reset sets the counter of prefix for the year of at, so the next number is value+1.
func (s *Service) Reset(ctx context.Context, prefix string, at time.Time, value int64) error {
	key := Key(prefix, at)
	var stored int64
	err := s.source(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, key, value).Scan(&stored)

	s.mu.Lock()
	delete(s.ranges, key)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}

// Key is the sys_sequences key of prefix in the year of at.
func Key(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, at.UTC().Format("2006"))
}

// Format renders PREFIX-YEAR-NNNNN.
func Format(prefix string, at time.Time, num int64, padWidth int) string {
	return fmt.Sprintf("%s-%s-%0*d", prefix, at.UTC().Format("2006"), padWidth, num)
}

// ParseNumber extracts the counter from a formatted number. It returns -1 when
// the input does not match.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return num
}

package coordcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/agrimap/parcel-onboarding/internal/cadastral/region"
	"github.com/agrimap/parcel-onboarding/internal/core/observability"
)

const (
	// CoordTTL bounds how stale a cached coordinate lookup may get.
	CoordTTL = 24 * time.Hour
	// RefTTL covers per-reference geometry; boundaries change far less
	// often than ownership attributes.
	RefTTL = 7 * 24 * time.Hour

	frontTTL  = time.Minute
	frontSize = 4096
)

type Option func(*Store)

func WithFrontSize(n int) Option {
	return func(s *Store) { s.frontSize = n }
}

func WithFrontTTL(d time.Duration) Option {
	return func(s *Store) { s.frontTTL = d }
}

func WithRefTTL(d time.Duration) Option {
	return func(s *Store) { s.refTTL = d }
}

// Store is the two-level lookup cache: an in-process expirable LRU in
// front of Redis. The front level absorbs click bursts on one parcel;
// Redis shares results across instances and survives restarts.
type Store struct {
	logger    *slog.Logger
	rdb       *redis.Client
	front     *expirable.LRU[string, []byte]
	frontSize int
	frontTTL  time.Duration
	refTTL    time.Duration
}

func New(ctx context.Context, logger *slog.Logger, addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{logger: logger, frontSize: frontSize, frontTTL: frontTTL, refTTL: RefTTL}
	for _, f := range opts {
		f(s)
	}
	s.front = expirable.NewLRU[string, []byte](s.frontSize, nil, s.frontTTL)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s.rdb = rdb
	return s, nil
}

// Ping checks the Redis connection, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get returns the cached payload for the key, if present at either
// level. Front hits refresh nothing; Redis hits repopulate the front.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := s.front.Get(key); ok {
		observability.AddCacheHits(1)
		return v, true, nil
	}

	start := time.Now()
	v, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
		observability.AddCacheMisses(1)
		return nil, false, nil
	case err != nil:
		observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
		return nil, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
	observability.AddCacheHits(1)
	s.front.Add(key, v)
	return v, true, nil
}

// SetCoord stores a coordinate lookup result and registers the key in
// its coarse-cell index set so invalidation can find it later.
func (s *Store) SetCoord(ctx context.Context, reg region.Region, cell string, payload []byte, ttl time.Duration) error {
	key := CoordKey(reg, cell)
	coarse, err := ParentCell(cell, IndexRes)
	if err != nil {
		return err
	}
	idx := IndexKey(reg, coarse)

	start := time.Now()
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, payload, ttl)
		p.SAdd(ctx, idx, key)
		// index lives slightly longer than its members so late
		// invalidations still find them
		p.Expire(ctx, idx, ttl+time.Hour)
		return nil
	})
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	s.front.Add(key, payload)
	return nil
}

// SetRef stores parcel geometry under its cadastral reference.
func (s *Store) SetRef(ctx context.Context, reg region.Region, ref string, payload []byte) error {
	key := RefKey(reg, ref)
	start := time.Now()
	err := s.rdb.Set(ctx, key, payload, s.refTTL).Err()
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	s.front.Add(key, payload)
	return nil
}

// InvalidateCoarseCells drops every coordinate key indexed under the
// given coarse cells, plus the index sets themselves. It returns how
// many coordinate keys were dropped.
func (s *Store) InvalidateCoarseCells(ctx context.Context, reg region.Region, coarseCells []string) (int, error) {
	dropped := 0
	for _, cc := range coarseCells {
		idx := IndexKey(reg, cc)

		start := time.Now()
		members, err := s.rdb.SMembers(ctx, idx).Result()
		observability.ObserveCacheOp("smembers", err, time.Since(start).Seconds())
		if err != nil {
			return dropped, fmt.Errorf("redis SMEMBERS %q: %w", idx, err)
		}
		if len(members) == 0 {
			continue
		}

		start = time.Now()
		err = s.rdb.Del(ctx, append(members, idx)...).Err()
		observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
		if err != nil {
			return dropped, fmt.Errorf("redis DEL %d keys: %w", len(members)+1, err)
		}
		for _, m := range members {
			s.front.Remove(m)
		}
		dropped += len(members)
	}
	return dropped, nil
}

// InvalidateRef drops the geometry cached for one cadastral reference.
func (s *Store) InvalidateRef(ctx context.Context, reg region.Region, ref string) error {
	key := RefKey(reg, ref)
	start := time.Now()
	err := s.rdb.Del(ctx, key).Err()
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %q: %w", key, err)
	}
	s.front.Remove(key)
	return nil
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// Package redisstore keeps quota counters in Redis. Each counter is a hash;
// a sorted set scored by window start indexes them for garbage collection.
//
// Scripts touch the counter hash and the shared index together, so the store
// targets standalone or sentinel deployments rather than Redis Cluster.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quotaward/quotaward/internal/config"
	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
)

const (
	DefaultPrefix = "quota:"

	indexSuffix = "index"
)

// checkScript returns {allowed, count, window_start}. A stored window older
// than ARGV[1] is replaced by a fresh window with count 1; a newer one is
// counted against as is, so the window start never moves backward.
var checkScript = redis.NewScript(`
local window_start = tonumber(ARGV[1])
local requests = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local current = redis.call('HMGET', KEYS[1], 'window_start', 'count')
local stored = tonumber(current[1])

if stored == nil or stored < window_start then
  redis.call('HSET', KEYS[1],
    'identity', ARGV[4], 'scope', ARGV[5],
    'window_start', window_start, 'count', 1, 'last_request_at', now)
  redis.call('ZADD', KEYS[2], window_start, KEYS[1])
  return {1, 1, window_start}
end

local count = tonumber(current[2]) or 0
if count >= requests then
  return {0, count, stored}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'last_request_at', now)
return {1, count, stored}
`)

// cleanupScript deletes up to ARGV[2] counters whose window starts before
// ARGV[1], re-reading each hash so a counter that rolled into a new window
// after being indexed survives.
var cleanupScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1])
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local deleted = 0

for _, key in ipairs(members) do
  local window_start = tonumber(redis.call('HGET', key, 'window_start'))
  if window_start == nil then
    redis.call('ZREM', KEYS[1], key)
  elseif window_start < cutoff then
    redis.call('DEL', key)
    redis.call('ZREM', KEYS[1], key)
    deleted = deleted + 1
  else
    redis.call('ZADD', KEYS[1], window_start, key)
  end
end

return deleted
`)

// Store implements engine.CounterStore and engine.CounterReader on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New wraps an existing client. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open connects using cfg and verifies the server answers.
func Open(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis store: %w", err)
	}
	return New(client, cfg.Prefix), nil
}

func clientOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opts, nil
	}

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr or url is required")
	}
	return &redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reports whether the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) counterKey(key core.CounterKey) string {
	return s.prefix + "c:" + key.String()
}

func (s *Store) indexKey() string {
	return s.prefix + indexSuffix
}

// CheckAndIncrement implements engine.CounterStore.
func (s *Store) CheckAndIncrement(ctx context.Context, key core.CounterKey, limit core.Limit, now time.Time) (core.Decision, error) {
	windowStart := core.WindowStart(now, limit.WindowSeconds)

	values, err := checkScript.Run(ctx, s.client,
		[]string{s.counterKey(key), s.indexKey()},
		windowStart, limit.Requests, now.Unix(), key.Identity, key.Scope.String(),
	).Int64Slice()
	if err != nil {
		return core.Decision{}, core.NewStorageError("check", fmt.Errorf("run check script: %w", err))
	}
	if len(values) != 3 {
		return core.Decision{}, core.NewStorageError("check", fmt.Errorf("unexpected check script result length %d", len(values)))
	}

	decision := core.Decision{
		Allowed: values[0] == 1,
		Count:   int(values[1]),
		ResetAt: values[2] + limit.WindowSeconds,
		Limit:   limit.Requests,
	}
	if decision.Allowed {
		decision.Remaining = limit.Requests - decision.Count
	}
	return decision, nil
}

// DeleteOlderThan implements engine.CounterStore.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff int64, batch int) (int, error) {
	if batch <= 0 {
		batch = engine.MaxBatchSize
	}

	deleted, err := cleanupScript.Run(ctx, s.client, []string{s.indexKey()}, cutoff, batch).Int()
	if err != nil {
		return 0, core.NewStorageError("delete", fmt.Errorf("run cleanup script: %w", err))
	}
	return deleted, nil
}

// GetCounter implements engine.CounterReader.
func (s *Store) GetCounter(ctx context.Context, key core.CounterKey) (*core.CounterRecord, error) {
	values, err := s.client.HMGet(ctx, s.counterKey(key), "window_start", "count", "last_request_at").Result()
	if err != nil {
		return nil, core.NewStorageError("get", fmt.Errorf("read counter: %w", err))
	}
	if len(values) != 3 || values[0] == nil {
		return nil, nil
	}

	rec := &core.CounterRecord{Identity: key.Identity, Scope: key.Scope.String()}
	if rec.WindowStart, err = parseInt(values[0]); err != nil {
		return nil, core.NewStorageError("get", err)
	}
	count, err := parseInt(values[1])
	if err != nil {
		return nil, core.NewStorageError("get", err)
	}
	rec.Count = int(count)
	if rec.LastRequestAt, err = parseInt(values[2]); err != nil {
		return nil, core.NewStorageError("get", err)
	}
	return rec, nil
}

func parseInt(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse counter field %q: %w", v, err)
		}
		return n, nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected counter field type %T", value)
	}
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"

	"kasirinaja/stockledger/internal/domain"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisReportCache writes each report to its own key with its own TTL. Keys
// carry the organization's generation counter; invalidation is an INCR.
type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(client *redis.Client) *RedisReportCache {
	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func reportGenerationKey(orgID string) string {
	return fmt.Sprintf("stockledger:report:%s:gen", orgID)
}

func reportKey(orgID string, generation int64, key string) string {
	return fmt.Sprintf("stockledger:report:%s:g%d:%s", orgID, generation, key)
}

func (c *RedisReportCache) Generation(ctx context.Context, orgID string) (int64, error) {
	gen, err := c.client.Get(ctx, reportGenerationKey(orgID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisReportCache) Get(ctx context.Context, orgID string, generation int64, key string) (*domain.StockReport, bool, error) {
	val, err := c.client.Get(ctx, reportKey(orgID, generation, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.StockReport
	if err := json.Unmarshal(val, &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, orgID string, generation int64, key string, value *domain.StockReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, reportKey(orgID, generation, key), payload, ttl).Err()
}

func (c *RedisReportCache) InvalidateOrg(ctx context.Context, orgID string) error {
	return c.client.Incr(ctx, reportGenerationKey(orgID)).Err()
}

type RedisLocker struct {
	locker  *redislock.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, retries int) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLocker{
		locker:  redislock.New(client),
		ttl:     ttl,
		retries: retries,
		backoff: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	}
	lock, err := l.locker.Obtain(ctx, "stockledger:lock:"+key, l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockBusy
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// The lock may already have expired; the TTL bounds how long it can
		// outlive a crashed request either way.
		_ = lock.Release(context.Background())
	}, nil
}

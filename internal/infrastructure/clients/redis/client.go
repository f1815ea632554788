package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/RadiologyOrderIntake/backend/pkg/config"
	"github.com/zatekoja/RadiologyOrderIntake/backend/pkg/retry"
)

// Client wraps the go-redis connection shared by the reference cache and the
// order event bus
type Client struct {
	client *redis.Client
}

// NewClient connects and pings with a short backoff. Callers treat an error
// as "run without Redis".
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	policy := retry.Config{
		MaxAttempts:   cfg.ConnectAttempts,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2,
	}
	err := retry.DoWithLog(ctx, policy, "Redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, func(attempt int, err error, next time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Str("addr", cfg.RedisAddr()).Msg("Redis ping failed")
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr(), err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing connection
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{client: rdb}
}

func (c *Client) Client() *redis.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Ping is the /health probe
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the subset of go-redis options the record store needs.
// Zero values fall back to the defaults in options.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// IOTimeout bounds dial, read and write individually.
	IOTimeout   time.Duration
	PoolSize    int
	IdleTimeout time.Duration
	PingTimeout time.Duration
}

func (c RedisConfig) options() *redis.Options {
	io := c.IOTimeout
	if io <= 0 {
		io = 2 * time.Second
	}
	pool := c.PoolSize
	if pool <= 0 {
		pool = 20
	}
	idle := c.IdleTimeout
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	return &redis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		DialTimeout:     io,
		ReadTimeout:     io,
		WriteTimeout:    io,
		PoolSize:        pool,
		PoolTimeout:     2 * io,
		ConnMaxIdleTime: idle,
	}
}

// OpenRedis returns a client for calls.RedisStore once a PING succeeds.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	rdb := redis.NewClient(cfg.options())

	wait := cfg.PingTimeout
	if wait <= 0 {
		wait = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

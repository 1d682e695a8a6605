// Package redisclient wraps the go-redis client shared by the event bridge
// and the readiness checks.
package redisclient

import (
	"context"
	"time"

	"github.com/geocoder89/civichub/internal/config"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int

	// pub/sub channel for issue events
	Channel string
}

// ConfigFrom returns ok=false when no REDIS_ADDR is configured.
func ConfigFrom(cfg config.Config) (Config, bool) {
	if cfg.RedisAddr == "" {
		return Config{}, false
	}
	return Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.RedisChannel,
	}, true
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	return &Client{redisdb: redisdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// Raw exposes the underlying client for pub/sub.
func (c *Client) Raw() *redis.Client {
	return c.redisdb
}

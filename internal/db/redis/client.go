// Package redis provides Redis database connectivity and operations.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"norelock.dev/nowplaying/bot/internal/config"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// Client wraps the Redis client with app-specific functionality
type Client struct {
	client *redis.Client
	logger *utils.Logger
}

// NewClient creates a new Redis client
func NewClient(cfg *config.Config, logger *utils.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Database.Redis.Address,
		Username:     cfg.Database.Redis.Username,
		Password:     cfg.Database.Redis.Password,
		DB:           cfg.Database.Redis.Database,
		DialTimeout:  cfg.Database.Redis.DialTimeout,
		ReadTimeout:  cfg.Database.Redis.ReadTimeout,
		WriteTimeout: cfg.Database.Redis.WriteTimeout,
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", err, "addr", opts.Addr)
		return nil, err
	}

	logger.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	err := c.client.Close()
	if err != nil {
		c.logger.Error("Failed to close Redis connection", err)
		return err
	}
	c.logger.Info("Closed Redis connection")
	return nil
}

// Ping pings the Redis server
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Error("Failed to ping Redis", err)
		return err
	}
	return nil
}

// GetObject gets an object from Redis and unmarshals it. Returns redis.Nil
// when the key does not exist.
func (c *Client) GetObject(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error("Failed to get value from Redis", err, "key", key)
		}
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

// SetObject sets an object in Redis by marshaling it to JSON
func (c *Client) SetObject(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Failed to marshal object for Redis", err, "key", key)
		return err
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		c.logger.Error("Failed to set value in Redis", err, "key", key)
		return err
	}
	return nil
}

// Del deletes a key from Redis
func (c *Client) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Failed to delete key from Redis", err, "key", key)
		return err
	}
	return nil
}

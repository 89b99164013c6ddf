package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mtiwari1/pdfhost/internal/repository"
)

const (
	keyPrefix = "pdf:record:"

	// tombstone marks a deleted id so a fill racing the delete cannot
	// reinsert it. It must outlive any in-flight store read.
	tombstone    = "deleted"
	tombstoneTTL = time.Minute
)

// Redis implements Cache with JSON values under a fixed TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to address and verifies it with a PING.
func NewRedis(ctx context.Context, address string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        address,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

// Close closes the Redis client.
func (c *Redis) Close() error {
	return c.client.Close()
}

// Get returns the cached record or ErrMiss.
func (c *Redis) Get(ctx context.Context, id string) (*repository.Record, error) {
	data, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if string(data) == tombstone {
		return nil, ErrMiss
	}

	var rec repository.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &rec, nil
}

// Set stores rec under its id unless the key already holds a value,
// including a tombstone left by Delete.
func (c *Redis) Set(ctx context.Context, rec *repository.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.SetNX(ctx, keyPrefix+rec.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete replaces the entry for id with a short-lived tombstone.
func (c *Redis) Delete(ctx context.Context, id string) error {
	if err := c.client.Set(ctx, keyPrefix+id, tombstone, tombstoneTTL).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

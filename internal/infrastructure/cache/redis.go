package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/device-server/internal/infrastructure/config"
)

// KeyPrefix namespaces reading keys.
const KeyPrefix = "deviceserver:reading:"

const (
	defaultTTL     = time.Hour
	defaultTimeout = 3 * time.Second
	pingTimeout    = 5 * time.Second
)

var (
	// ErrDisabled indicates the Redis cache is disabled in config.
	ErrDisabled = errors.New("cache: disabled in configuration")

	// ErrMiss indicates no reading is cached for the device.
	ErrMiss = errors.New("cache: miss")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("cache: connection failed")
)

// Cache stores the latest reading payload per device.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// Connect opens a Redis client and verifies it with PING.
//
// Returns:
//   - *Cache: connected cache
//   - error: ErrDisabled when the cache is off, ErrConnectionFailed when Redis is unreachable
func Connect(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  defaultTimeout,
		ReadTimeout:  defaultTimeout,
		WriteTimeout: defaultTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	ttl := time.Duration(cfg.TTL) * time.Second
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// Key returns the Redis key for a device's latest reading.
func Key(deviceID int) string {
	return KeyPrefix + strconv.Itoa(deviceID)
}

// SetLatest replaces the cached reading for deviceID.
func (c *Cache) SetLatest(ctx context.Context, deviceID int, payload []byte) error {
	if err := c.rdb.Set(ctx, Key(deviceID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", Key(deviceID), err)
	}
	return nil
}

// GetLatest returns the cached reading for deviceID, or ErrMiss.
func (c *Cache) GetLatest(ctx context.Context, deviceID int) ([]byte, error) {
	val, err := c.rdb.Get(ctx, Key(deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache: get %s: %w", Key(deviceID), err)
	}
	return val, nil
}

// HealthCheck pings Redis.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// TTL returns the expiry applied to cached readings.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	telemetry "watertap/internal/telemetry/domain"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second

	DefaultLiveKey = "watertap:telemetry:live"
)

// NewClient returns a go-redis client and validates the connection with PING.
func NewClient(addr, password string, db int) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// LiveCache stores the live feed snapshot under one key.
type LiveCache struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

// NewLiveCache returns a redis-backed live cache.
func NewLiveCache(client *goredis.Client, key string, ttl time.Duration) (*LiveCache, error) {
	if client == nil {
		return nil, errors.New("redis live cache: nil client")
	}
	if key == "" {
		key = DefaultLiveKey
	}
	return &LiveCache{client: client, key: key, ttl: ttl}, nil
}

// Store caches the snapshot.
func (c *LiveCache) Store(ctx context.Context, points []telemetry.TelemetryPoint) error {
	data, err := json.Marshal(points)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}

// Load returns the cached snapshot; ok is false when the key is missing.
func (c *LiveCache) Load(ctx context.Context) ([]telemetry.TelemetryPoint, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var points []telemetry.TelemetryPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, false, err
	}
	return points, true, nil
}

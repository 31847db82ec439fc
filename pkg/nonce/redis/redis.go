package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/nonce"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefix for namespacing in Redis
const keyPrefixNonce = "fireblocks:nonce:"

// RedisStore is a nonce.Store shared by every verifier connected to the same
// Redis. SET NX with an expiry makes check-and-insert atomic server side.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	now       func() time.Time
	mu        sync.RWMutex
	closed    bool
}

var _ nonce.Store = (*RedisStore)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "tenant-a:" yields
	// "tenant-a:fireblocks:nonce:<nonce>".
	KeyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	logger.Sugar().Infow("Redis nonce store initialized", "address", cfg.Address, "db", cfg.DB)

	return &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
		now:       time.Now,
	}, nil
}

func (r *RedisStore) key(value string) string {
	return r.keyPrefix + keyPrefixNonce + value
}

// Remember implements nonce.Store
func (r *RedisStore) Remember(ctx context.Context, value string, expiresAt time.Time) (bool, error) {
	if value == "" {
		return false, fmt.Errorf("nonce cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, nonce.ErrStoreClosed
	}

	ttl := nonce.TTL(r.now(), expiresAt)
	fresh, err := r.client.SetNX(ctx, r.key(value), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record nonce: %w", err)
	}
	if !fresh {
		r.logger.Sugar().Debugw("Nonce already recorded", "nonce", value)
	}
	return fresh, nil
}

// Close implements nonce.Store
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

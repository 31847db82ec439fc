package callback

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MemoryTxIDStore keeps registered transaction IDs in process
type MemoryTxIDStore struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

var _ TxIDStore = (*MemoryTxIDStore)(nil)

func NewMemoryTxIDStore(ids ...string) *MemoryTxIDStore {
	s := &MemoryTxIDStore{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *MemoryTxIDStore) Add(_ context.Context, txID string) error {
	if txID == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[txID] = struct{}{}
	return nil
}

func (s *MemoryTxIDStore) Contains(_ context.Context, txID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[txID]
	return ok, nil
}

// DefaultTxIDSetKey is the Redis set holding approved transaction IDs
const DefaultTxIDSetKey = "fireblocks:callback:txids"

// RedisTxIDConfig holds the configuration for a Redis backed TxIDStore
type RedisTxIDConfig struct {
	Address  string
	Password string
	DB       int
	SetKey   string
}

// RedisTxIDStore reads approved transaction IDs from a Redis set, typically
// filled by the system that creates the transactions.
type RedisTxIDStore struct {
	client *redis.Client
	setKey string
	logger *zap.Logger
}

var _ TxIDStore = (*RedisTxIDStore)(nil)

func NewRedisTxIDStore(cfg *RedisTxIDConfig, logger *zap.Logger) (*RedisTxIDStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	setKey := cfg.SetKey
	if setKey == "" {
		setKey = DefaultTxIDSetKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	logger.Sugar().Infow("Connected to redis transaction ID store", "address", cfg.Address, "set", setKey)
	return &RedisTxIDStore{client: client, setKey: setKey, logger: logger}, nil
}

func (s *RedisTxIDStore) Add(ctx context.Context, txID string) error {
	if txID == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if err := s.client.SAdd(ctx, s.setKey, txID).Err(); err != nil {
		return fmt.Errorf("failed to add transaction ID: %w", err)
	}
	return nil
}

func (s *RedisTxIDStore) Contains(ctx context.Context, txID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.setKey, txID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query transaction ID: %w", err)
	}
	return ok, nil
}

func (s *RedisTxIDStore) Close() error {
	return s.client.Close()
}

package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/nonce"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

const keyPrefixNonce = "nonce:"

// BadgerStore is a disk-backed nonce.Store for a single verifier that must
// keep its replay window across restarts. Entries carry a badger TTL so they
// disappear on their own; a background goroutine runs value-log GC.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	now      func() time.Time
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ nonce.Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a badger database at dataPath.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newStoreLog(logger, absPath)
	opts.SyncWrites = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger nonce store initialized", "path", absPath)
	return bs, nil
}

func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				if err := b.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}

// Remember implements nonce.Store
func (b *BadgerStore) Remember(ctx context.Context, value string, expiresAt time.Time) (bool, error) {
	if value == "" {
		return false, fmt.Errorf("nonce cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, nonce.ErrStoreClosed
	}

	key := []byte(keyPrefixNonce + value)
	ttl := nonce.TTL(b.now(), expiresAt)

	fresh := false
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badgerdb.ErrKeyNotFound {
			return fmt.Errorf("failed to read nonce: %w", err)
		}
		fresh = true
		return txn.SetEntry(badgerdb.NewEntry(key, []byte{1}).WithTTL(ttl))
	})
	if err == badgerdb.ErrConflict {
		// a concurrent transaction inserted the same nonce first
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fresh, nil
}

// Close stops GC and closes the database
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	b.logger.Sugar().Info("Badger nonce store closed")
	return nil
}

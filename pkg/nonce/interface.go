package nonce

import (
	"context"
	"errors"
	"time"
)

// ErrStoreClosed is returned by every Store operation after Close.
var ErrStoreClosed = errors.New("nonce store is closed")

// Store records token nonces for as long as the token carrying them is valid,
// so a verifier can refuse a second presentation of the same token.
//
// Implementations must be safe for concurrent use: the check and the insert
// performed by Remember are a single atomic step.
type Store interface {
	// Remember records nonce until expiresAt. It reports true when the nonce
	// had not been seen before (or its previous record has lapsed) and false
	// when it is a replay. Errors are reserved for storage failures.
	Remember(ctx context.Context, nonce string, expiresAt time.Time) (bool, error)

	// Close releases the store. Idempotent.
	Close() error
}

// TTL returns how long a nonce expiring at expiresAt must be kept, measured
// from now. The result is never below one second so that a token presented in
// its final second is still protected.
func TTL(now, expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(now) + time.Second
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

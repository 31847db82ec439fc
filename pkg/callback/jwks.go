package callback

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// DefaultJWKSRefresh is how often a registered key set URL is re-fetched
const DefaultJWKSRefresh = 15 * time.Minute

// NewJWKSKeySet returns a key set backed by a cache that keeps jwksURL fresh
// in the background. The first fetch happens before returning so a bad URL
// fails at startup.
func NewJWKSKeySet(ctx context.Context, jwksURL string, refreshInterval time.Duration) (jwk.Set, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("JWKS URL is required")
	}
	if refreshInterval <= 0 {
		refreshInterval = DefaultJWKSRefresh
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create jwk cache: %w", err)
	}

	if err := cache.Register(ctx, jwksURL, jwk.WithConstantInterval(refreshInterval)); err != nil {
		return nil, fmt.Errorf("failed to register jwk location: %w", err)
	}

	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch on startup: %w", err)
	}

	return cache.CachedSet(jwksURL)
}

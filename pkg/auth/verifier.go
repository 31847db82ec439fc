package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/nonce"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"
)

// VerifyRequest describes the request a token was presented with, as the
// receiving side observed it.
type VerifyRequest struct {
	// Path is the request URI (path plus query) exactly as received.
	Path string
	// Body is the raw request body. nil for bodyless requests.
	Body []byte
	// APIKey is the X-API-Key header. When empty the sub claim is not checked.
	APIKey string
}

// Verifier checks request tokens: signature, path and body binding, the
// [iat, exp] window and single use of the nonce.
type Verifier struct {
	publicKey *rsa.PublicKey
	nonces    nonce.Store
	now       func() time.Time
	logger    *zap.Logger
	maxBody   int64
}

// DefaultMaxBodyBytes caps the request body Middleware reads for hashing
const DefaultMaxBodyBytes int64 = 1 << 20

type VerifierOption func(*Verifier)

func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithVerifierLogger(logger *zap.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithVerifierMaxBody overrides DefaultMaxBodyBytes. Non-positive values are ignored.
func WithVerifierMaxBody(n int64) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.maxBody = n
		}
	}
}

// NewVerifier creates a Verifier for tokens signed by the private half of pub.
// Seen nonces are recorded in store.
func NewVerifier(pub *rsa.PublicKey, store nonce.Store, opts ...VerifierOption) (*Verifier, error) {
	if pub == nil {
		return nil, fmt.Errorf("public key is required")
	}
	if store == nil {
		return nil, fmt.Errorf("nonce store is required")
	}

	v := &Verifier{
		publicKey: pub,
		nonces:    store,
		now:       time.Now,
		logger:    zap.NewNop(),
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify returns the token's claims when it authorizes req. A refused token
// yields a *VerificationError; a nonce store failure is returned as is.
//
// now == exp is the last valid second; exp+1 is expired.
func (v *Verifier) Verify(ctx context.Context, token string, req VerifyRequest) (*Claims, error) {
	if token == "" {
		return nil, refuse(ErrMissingToken, "")
	}

	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.RS256(), v.publicKey),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, &VerificationError{Reason: ErrInvalidSignature, Err: err}
	}

	claimsJSON, err := json.Marshal(parsed)
	if err != nil {
		return nil, &VerificationError{Reason: ErrMalformedClaims, Err: err}
	}
	var c Claims
	if err := json.Unmarshal(claimsJSON, &c); err != nil {
		return nil, &VerificationError{Reason: ErrMalformedClaims, Err: err}
	}

	if c.URI != req.Path {
		return nil, refuse(ErrURIMismatch, fmt.Sprintf("token %q, request %q", c.URI, req.Path))
	}
	if req.APIKey != "" && c.Subject != req.APIKey {
		return nil, refuse(ErrSubjectMismatch, "")
	}
	if c.BodyHash != BodyHash(req.Body) {
		return nil, refuse(ErrBodyHashMismatch, "")
	}

	lifetime := c.Lifetime()
	if lifetime <= 0 || lifetime > TokenLifetime {
		return nil, refuse(ErrInvalidLifetime, fmt.Sprintf("exp-iat=%s", lifetime))
	}

	now := v.now().Unix()
	if now < c.IssuedAt {
		return nil, refuse(ErrTokenNotYetValid, fmt.Sprintf("iat=%d now=%d", c.IssuedAt, now))
	}
	if now > c.ExpiresAt {
		return nil, refuse(ErrTokenExpired, fmt.Sprintf("exp=%d now=%d", c.ExpiresAt, now))
	}

	if c.Nonce == "" {
		return nil, refuse(ErrMissingNonce, "")
	}
	fresh, err := v.nonces.Remember(ctx, c.Nonce, time.Unix(c.ExpiresAt, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to record nonce: %w", err)
	}
	if !fresh {
		v.logger.Sugar().Warnw("Replayed request token", "uri", c.URI, "nonce", c.Nonce, "sub", c.Subject)
		return nil, refuse(ErrNonceReplayed, "")
	}

	v.logger.Sugar().Debugw("Verified request token", "uri", c.URI, "sub", c.Subject, "iat", c.IssuedAt)
	return &c, nil
}

package callback

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"
)

var (
	ErrTokenExpired  = errors.New("token has expired")
	ErrInvalidToken  = errors.New("invalid token")
	ErrMalformedBody = errors.New("token could not be decoded")
)

// AuthenticatorConfig holds the keys used on both sides of the exchange
type AuthenticatorConfig struct {
	// Exactly one of CosignerPublicKey and CosignerKeySet verifies incoming
	// requests.
	CosignerPublicKey *rsa.PublicKey
	CosignerKeySet    jwk.Set

	// CallbackPrivateKey signs responses. The co-signer holds its public half.
	CallbackPrivateKey *rsa.PrivateKey

	// ClockSkew is tolerated when checking exp. Zero means none.
	ClockSkew time.Duration
	Now       func() time.Time
	Logger    *zap.Logger
}

// Authenticator verifies co-signer requests and signs responses
type Authenticator struct {
	verifyOption jws.VerifyOption
	responseKey  *rsa.PrivateKey
	clockSkew    time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

func NewAuthenticator(cfg *AuthenticatorConfig) (*Authenticator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.CallbackPrivateKey == nil {
		return nil, fmt.Errorf("callback private key is required")
	}

	var opt jws.VerifyOption
	switch {
	case cfg.CosignerPublicKey != nil && cfg.CosignerKeySet != nil:
		return nil, fmt.Errorf("set either a co-signer public key or a key set, not both")
	case cfg.CosignerPublicKey != nil:
		opt = jws.WithKey(jwa.RS256(), cfg.CosignerPublicKey)
	case cfg.CosignerKeySet != nil:
		// Published key sets often omit "alg"; infer it from the key type
		opt = jws.WithKeySet(cfg.CosignerKeySet, jws.WithInferAlgorithmFromKey(true))
	default:
		return nil, fmt.Errorf("co-signer public key or key set is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Authenticator{
		verifyOption: opt,
		responseKey:  cfg.CallbackPrivateKey,
		clockSkew:    cfg.ClockSkew,
		now:          now,
		logger:       cfg.Logger,
	}, nil
}

// Authenticate verifies the raw request body, a compact RS256 token, and
// decodes its payload into out. The returned error wraps ErrTokenExpired,
// ErrInvalidToken or ErrMalformedBody.
func (a *Authenticator) Authenticate(raw []byte, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidToken)
	}

	payload, err := jws.Verify(raw, a.verifyOption)
	if err != nil {
		a.logger.Sugar().Warnw("Co-signer token failed verification", "error", err)
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var times struct {
		ExpiresAt *int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &times); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if times.ExpiresAt != nil {
		exp := time.Unix(*times.ExpiresAt, 0).Add(a.clockSkew)
		if a.now().After(exp) {
			return ErrTokenExpired
		}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

// SignResponse encodes resp as a JWT signed with the callback private key
func (a *Authenticator) SignResponse(resp *Response) (string, error) {
	if err := resp.validate(); err != nil {
		return "", err
	}

	builder := jwt.NewBuilder().
		Claim("action", string(resp.Action)).
		Claim("requestId", resp.RequestID)
	if resp.RejectionReason != "" {
		builder = builder.Claim("rejectionReason", resp.RejectionReason)
	}
	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build response token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), a.responseKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign response token: %w", err)
	}
	return string(signed), nil
}

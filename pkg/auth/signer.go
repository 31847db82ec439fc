package auth

import (
	"crypto"
	"crypto/rsa"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Identity is the caller's API key together with the private key registered
// for it. The key never leaves this struct: String and the zap encoder only
// expose the API key.
type Identity struct {
	APIKey string
	Key    crypto.Signer
}

func (i Identity) String() string {
	return fmt.Sprintf("Identity{APIKey: %s, Key: [REDACTED]}", i.APIKey)
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (i Identity) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("api_key", i.APIKey)
	return nil
}

// LoadIdentity builds an Identity from an API key and a PEM private key file
func LoadIdentity(apiKey, privateKeyPath string) (Identity, error) {
	key, err := LoadRSAPrivateKeyFile(privateKeyPath)
	if err != nil {
		return Identity{}, err
	}
	return Identity{APIKey: apiKey, Key: key}, nil
}

// Signer produces one request token per call. It holds only read-only
// configuration and is safe for concurrent use.
type Signer struct {
	identity  Identity
	publicKey *rsa.PublicKey
	now       func() time.Time
	newNonce  func() string
	logger    *zap.Logger
}

type SignerOption func(*Signer)

// WithClock overrides the wall clock used for iat/exp
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNonceSource overrides nonce generation. Only tests should need this.
func WithNonceSource(newNonce func() string) SignerOption {
	return func(s *Signer) {
		if newNonce != nil {
			s.newNonce = newNonce
		}
	}
}

func WithLogger(logger *zap.Logger) SignerOption {
	return func(s *Signer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSigner validates identity and returns a Signer for it. The key must be
// RSA; it may be an *rsa.PrivateKey or any crypto.Signer backed by one (for
// example a KMS-held key).
func NewSigner(identity Identity, opts ...SignerOption) (*Signer, error) {
	if identity.APIKey == "" {
		return nil, &SigningError{Op: "configure signer", Err: fmt.Errorf("api key is required")}
	}
	pub, err := RSAPublicKey(identity.Key)
	if err != nil {
		return nil, &SigningError{Op: "configure signer", Err: err}
	}

	s := &Signer{
		identity:  identity,
		publicKey: pub,
		now:       time.Now,
		newNonce:  func() string { return uuid.New().String() },
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// APIKey returns the caller identity placed in the sub claim
func (s *Signer) APIKey() string {
	return s.identity.APIKey
}

// PublicKey returns the public half of the signing key
func (s *Signer) PublicKey() *rsa.PublicKey {
	return s.publicKey
}

// Claims builds the claim set for a request to path carrying body. Sign calls
// it; it is exported for tooling that wants to show what will be signed.
func (s *Signer) Claims(path string, body []byte) (*Claims, error) {
	if path == "" {
		return nil, &SigningError{Op: "build claims", Err: fmt.Errorf("path cannot be empty")}
	}
	if !strings.HasPrefix(path, "/") {
		return nil, &SigningError{Op: "build claims", Err: fmt.Errorf("path must start with '/': %q", path)}
	}

	now := s.now().Unix()
	return &Claims{
		URI:       path,
		Nonce:     s.newNonce(),
		IssuedAt:  now,
		ExpiresAt: now + int64(TokenLifetime/time.Second),
		Subject:   s.identity.APIKey,
		BodyHash:  BodyHash(body),
	}, nil
}

// Sign returns a compact RS256 token authorizing a single request to path
// with exactly body as its payload. body may be nil for bodyless requests.
func (s *Signer) Sign(path string, body []byte) (string, error) {
	c, err := s.Claims(path, body)
	if err != nil {
		return "", err
	}

	token, err := jwt.NewBuilder().
		Claim(ClaimURI, c.URI).
		Claim(ClaimNonce, c.Nonce).
		IssuedAt(time.Unix(c.IssuedAt, 0)).
		Expiration(time.Unix(c.ExpiresAt, 0)).
		Subject(c.Subject).
		Claim(ClaimBodyHash, c.BodyHash).
		Build()
	if err != nil {
		return "", &SigningError{Op: "build token", Err: err}
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), s.identity.Key))
	if err != nil {
		return "", &SigningError{Op: "sign token", Err: err}
	}

	s.logger.Debug("Signed request token",
		zap.String("uri", c.URI),
		zap.String("nonce", c.Nonce),
		zap.Int64("iat", c.IssuedAt),
		zap.Int("token_length", len(signed)),
	)
	return string(signed), nil
}

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jws"
)

// TokenLifetime is the fixed validity window of a request token. It is part
// of the wire contract with the API and is deliberately not configurable.
const TokenLifetime = 30 * time.Second

// Claim names as the API expects them. Mixed case is required.
const (
	ClaimURI      = "uri"
	ClaimNonce    = "nonce"
	ClaimIssuedAt = "iat"
	ClaimExpires  = "exp"
	ClaimSubject  = "sub"
	ClaimBodyHash = "bodyHash"
)

// EmptyBodyHash is the SHA-256 of the empty byte sequence; bodyless requests
// carry it as their bodyHash.
const EmptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Claims is the payload of a request token.
type Claims struct {
	URI       string `json:"uri"`
	Nonce     string `json:"nonce"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Subject   string `json:"sub"`
	BodyHash  string `json:"bodyHash"`
}

// Lifetime returns exp - iat
func (c *Claims) Lifetime() time.Duration {
	return time.Duration(c.ExpiresAt-c.IssuedAt) * time.Second
}

// BodyHash returns the lowercase hex SHA-256 of body. A nil body hashes the
// same as an empty one.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// DecodeClaims reads the claims segment of a compact token WITHOUT checking
// its signature. Use a Verifier for anything security relevant.
func DecodeClaims(token string) (*Claims, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWS message: %w", err)
	}

	var c Claims
	if err := json.Unmarshal(msg.Payload(), &c); err != nil {
		return nil, fmt.Errorf("failed to decode token claims: %w", err)
	}
	return &c, nil
}

// Package keysource resolves the private key that signs API request tokens.
package keysource

import (
	"context"
	"crypto"
	"fmt"
	"os"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/auth"
)

// ISource yields the signing key. Implementations may reach out to remote
// key stores, so Load takes a context.
type ISource interface {
	Load(ctx context.Context) (crypto.Signer, error)
	Describe() string
}

// PEMFileSource reads an RSA private key from a PEM file
type PEMFileSource struct {
	path string
}

var _ ISource = (*PEMFileSource)(nil)

func NewPEMFileSource(path string) (*PEMFileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("private key path is required")
	}
	return &PEMFileSource{path: path}, nil
}

func (s *PEMFileSource) Load(_ context.Context) (crypto.Signer, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &auth.SigningError{Op: "read private key", Err: err}
	}
	return auth.ParseRSAPrivateKeyPEM(data)
}

func (s *PEMFileSource) Describe() string {
	return "pem-file:" + s.path
}

// PEMSource parses key material passed in directly, e.g. from an
// environment variable.
type PEMSource struct {
	pem []byte
}

var _ ISource = (*PEMSource)(nil)

func NewPEMSource(pem []byte) (*PEMSource, error) {
	if len(pem) == 0 {
		return nil, fmt.Errorf("private key material is empty")
	}
	return &PEMSource{pem: pem}, nil
}

func (s *PEMSource) Load(_ context.Context) (crypto.Signer, error) {
	return auth.ParseRSAPrivateKeyPEM(s.pem)
}

func (s *PEMSource) Describe() string {
	return "pem-inline"
}

// LoadIdentity resolves the key from src and pairs it with apiKey
func LoadIdentity(ctx context.Context, apiKey string, src ISource) (auth.Identity, error) {
	if src == nil {
		return auth.Identity{}, fmt.Errorf("key source is required")
	}
	key, err := src.Load(ctx)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("failed to load key from %s: %w", src.Describe(), err)
	}
	return auth.Identity{APIKey: apiKey, Key: key}, nil
}

package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// ParseRSAPrivateKeyPEM parses a PEM encoded RSA private key in PKCS#1 or
// PKCS#8 form.
func ParseRSAPrivateKeyPEM(privateKeyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, &SigningError{Op: "parse private key", Err: fmt.Errorf("failed to decode PEM block")}
	}

	privkey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return privkey, nil
	}

	// Try PKCS8 format
	privkeyInterface, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, &SigningError{Op: "parse private key", Err: err}
	}
	privkey, ok := privkeyInterface.(*rsa.PrivateKey)
	if !ok {
		return nil, &SigningError{Op: "parse private key", Err: fmt.Errorf("not an RSA private key: %T", privkeyInterface)}
	}
	return privkey, nil
}

// ParseRSAPublicKeyPEM parses a PEM encoded RSA public key in PKIX or PKCS#1
// form.
func ParseRSAPublicKeyPEM(publicKeyPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pubkey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		rsaPub, pkcs1Err := x509.ParsePKCS1PublicKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return rsaPub, nil
	}

	rsaPubKey, ok := pubkey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key: %T", pubkey)
	}
	return rsaPubKey, nil
}

// LoadRSAPrivateKeyFile reads and parses a PEM private key from disk
func LoadRSAPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SigningError{Op: "read private key", Err: err}
	}
	return ParseRSAPrivateKeyPEM(data)
}

// LoadRSAPublicKeyFile reads and parses a PEM public key from disk
func LoadRSAPublicKeyFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key %s: %w", path, err)
	}
	return ParseRSAPublicKeyPEM(data)
}

// RSAPublicKey returns the RSA public half of signer, or an error if the key
// is not RSA.
func RSAPublicKey(signer crypto.Signer) (*rsa.PublicKey, error) {
	if signer == nil {
		return nil, fmt.Errorf("key cannot be nil")
	}
	pub, ok := signer.Public().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA key: %T", signer.Public())
	}
	return pub, nil
}

// EncodeRSAPublicKeyPEM encodes pub as a PKIX "PUBLIC KEY" PEM block
func EncodeRSAPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	}), nil
}

// GenerateKeyPair generates a new RSA key pair, PEM encoded. The API issues
// 4096-bit keys; tests use smaller ones for speed.
func GenerateKeyPair(bits int) (privateKeyPEM, publicKeyPEM []byte, err error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	privKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	pubKeyPEM, err := EncodeRSAPublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	return privKeyPEM, pubKeyPEM, nil
}

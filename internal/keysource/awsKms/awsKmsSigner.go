package awsKms

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"
	"time"

	"github.com/Layr-Labs/fireblocks-api-go/internal/keysource"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultSignTimeout = 10 * time.Second

// KMSAPI is the subset of the KMS client used here
type KMSAPI interface {
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

var _ KMSAPI = (*kms.Client)(nil)

// KMSSigner is a crypto.Signer whose RSA private key never leaves AWS KMS.
// Only RSASSA-PKCS1-v1_5 with SHA-256 (RS256) is supported.
type KMSSigner struct {
	client      KMSAPI
	keyID       string
	publicKey   *rsa.PublicKey
	signTimeout time.Duration
	logger      *zap.Logger
}

var _ crypto.Signer = (*KMSSigner)(nil)

// NewKMSSigner fetches the public half of keyID and returns a signer for it
func NewKMSSigner(ctx context.Context, client KMSAPI, keyID string, logger *zap.Logger) (*KMSSigner, error) {
	if client == nil {
		return nil, fmt.Errorf("kms client is required")
	}
	if keyID == "" {
		return nil, fmt.Errorf("kms key ID is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pub, err := getRSAPublicKey(ctx, client, keyID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load public key for key %s", keyID)
	}

	logger.Sugar().Infow("Loaded KMS signing key", "key_id", keyID, "bits", pub.N.BitLen())
	return &KMSSigner{
		client:      client,
		keyID:       keyID,
		publicKey:   pub,
		signTimeout: defaultSignTimeout,
		logger:      logger,
	}, nil
}

func (s *KMSSigner) KeyID() string {
	return s.keyID
}

// Public implements crypto.Signer
func (s *KMSSigner) Public() crypto.PublicKey {
	return s.publicKey
}

// Sign implements crypto.Signer. digest must be a SHA-256 digest.
func (s *KMSSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if _, ok := opts.(*rsa.PSSOptions); ok {
		return nil, fmt.Errorf("RSA-PSS is not supported by this signer")
	}
	if opts.HashFunc() != crypto.SHA256 {
		return nil, fmt.Errorf("unsupported hash %v, only SHA-256 is supported", opts.HashFunc())
	}
	if len(digest) != crypto.SHA256.Size() {
		return nil, fmt.Errorf("digest must be exactly %d bytes, got %d", crypto.SHA256.Size(), len(digest))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.signTimeout)
	defer cancel()

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		s.logger.Sugar().Errorw("KMS sign failed", "key_id", s.keyID, "error", err)
		return nil, errors.Wrapf(err, "failed to sign with kms key %s", s.keyID)
	}

	// A signature that does not verify means the key ID points somewhere else
	if err := rsa.VerifyPKCS1v15(s.publicKey, crypto.SHA256, digest, out.Signature); err != nil {
		return nil, errors.Wrap(err, "kms returned a signature that does not match the public key")
	}
	return out.Signature, nil
}

// KMSSource loads a KMSSigner as a keysource.ISource
type KMSSource struct {
	client KMSAPI
	keyID  string
	logger *zap.Logger
}

var _ keysource.ISource = (*KMSSource)(nil)

func NewKMSSource(client KMSAPI, keyID string, logger *zap.Logger) *KMSSource {
	return &KMSSource{client: client, keyID: keyID, logger: logger}
}

func (k *KMSSource) Load(ctx context.Context) (crypto.Signer, error) {
	return NewKMSSigner(ctx, k.client, k.keyID, k.logger)
}

func (k *KMSSource) Describe() string {
	return "aws-kms:" + k.keyID
}

// CreateSigningKey provisions a new RSA-4096 sign/verify key, suitable for
// registering as an API user's key, and aliases it.
func CreateSigningKey(ctx context.Context, client KMSAPI, keyName, aliasName string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	res, err := client.CreateKey(ctx, &kms.CreateKeyInput{
		KeyUsage:    types.KeyUsageTypeSignVerify,
		KeySpec:     types.KeySpecRsa4096,
		Description: aws.String(fmt.Sprintf("RSA key for API request signing - %s", keyName)),
		Tags: []types.Tag{
			{TagKey: aws.String("Name"), TagValue: aws.String(keyName)},
			{TagKey: aws.String("Purpose"), TagValue: aws.String("api-request-signing")},
			{TagKey: aws.String("KeyType"), TagValue: aws.String("RSA")},
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to create KMS key %s", keyName)
	}
	if res.KeyMetadata == nil || res.KeyMetadata.KeyId == nil {
		return "", fmt.Errorf("kms did not return a key ID for %s", keyName)
	}
	keyID := *res.KeyMetadata.KeyId

	if aliasName != "" {
		_, err = client.CreateAlias(ctx, &kms.CreateAliasInput{
			AliasName:   aws.String(fmt.Sprintf("alias/%s", aliasName)),
			TargetKeyId: aws.String(keyID),
		})
		if err != nil {
			return "", errors.Wrapf(err, "failed to create alias %s for key %s", aliasName, keyID)
		}
	}

	logger.Sugar().Infow("Created KMS signing key", "key_id", keyID, "alias", aliasName)
	return keyID, nil
}

func getRSAPublicKey(ctx context.Context, client KMSAPI, keyID string) (*rsa.PublicKey, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("kms key %s is not an RSA key: %T", keyID, pub)
	}
	return rsaPub, nil
}

package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	internalAws "github.com/Layr-Labs/fireblocks-api-go/internal/aws"
	"github.com/Layr-Labs/fireblocks-api-go/internal/keysource"
	"github.com/Layr-Labs/fireblocks-api-go/internal/keysource/awsKms"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/auth"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/client"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/config"
)

// KeySource picks where the API user's private key lives: AWS KMS, a PEM
// file, or inline PEM.
func KeySource(ctx context.Context, cfg *config.ClientConfig, l *zap.Logger) (keysource.ISource, error) {
	switch {
	case cfg.KMSKeyID != "":
		awsCfg, err := internalAws.LoadConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return awsKms.NewKMSSource(kms.NewFromConfig(awsCfg), cfg.KMSKeyID, l), nil
	case cfg.PrivateKeyPath != "":
		return keysource.NewPEMFileSource(cfg.PrivateKeyPath)
	default:
		return keysource.NewPEMSource([]byte(cfg.PrivateKeyPEM))
	}
}

// NewSigner validates cfg and loads the API identity it names
func NewSigner(ctx context.Context, cfg *config.ClientConfig, l *zap.Logger) (*auth.Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	src, err := KeySource(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key source: %w", err)
	}
	identity, err := keysource.LoadIdentity(ctx, cfg.APIKey, src)
	if err != nil {
		return nil, err
	}

	signer, err := auth.NewSigner(identity, auth.WithLogger(l))
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	l.Sugar().Debugw("Loaded API identity", "identity", identity, "key_source", src.Describe())
	return signer, nil
}

// New builds a signing API client from cfg
func New(ctx context.Context, cfg *config.ClientConfig, l *zap.Logger) (*client.Client, error) {
	signer, err := NewSigner(ctx, cfg, l)
	if err != nil {
		return nil, err
	}

	baseURL, err := cfg.ResolveBaseURL()
	if err != nil {
		return nil, err
	}

	cl, err := client.NewClient(&client.ClientConfig{
		BaseURL:    baseURL,
		Signer:     signer,
		APIKey:     cfg.APIKey,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Logger:     l,
		RateLimit:  rate.Limit(cfg.RateLimit),
		RateBurst:  cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return cl, nil
}

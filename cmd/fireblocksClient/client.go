package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/fireblocks-api-go/internal/apiclient"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/auth"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/client"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/config"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/logger"
)

func parseClientConfig(c *cli.Context) *config.ClientConfig {
	return &config.ClientConfig{
		APIKey:         c.String("api-key"),
		PrivateKeyPath: c.String("private-key-path"),
		PrivateKeyPEM:  c.String("private-key"),
		KMSKeyID:       c.String("kms-key-id"),
		AWSRegion:      c.String("aws-region"),
		BaseURL:        c.String("base-url"),
		Environment:    config.Environment(c.String("environment")),
		Timeout:        c.Duration("timeout"),
		RateLimit:      c.Float64("rate-limit"),
		RateBurst:      c.Int("rate-burst"),
		Debug:          c.Bool("verbose"),
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

func createSigner(c *cli.Context, l *zap.Logger) (*auth.Signer, error) {
	return apiclient.NewSigner(c.Context, parseClientConfig(c), l)
}

// createClient builds an API client from CLI flags and environment
func createClient(c *cli.Context) (*client.Client, error) {
	l, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	return apiclient.New(c.Context, parseClientConfig(c), l)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

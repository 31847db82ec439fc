package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "fireblocks-client",
		Usage: "Signed client for the Fireblocks REST API",
		Description: `A command line client that signs every request with the API user's RSA key.

This client can:
- List and inspect vault accounts, vault assets, deposit addresses and UTXOs
- Create vault accounts and transactions, refresh balances, read transactions
- Generate RSA key pairs or AWS KMS signing keys for API users
- Mint and verify request tokens for debugging`,
		Version: "1.0.0",
		Flags:   clientFlags(),
		Commands: []*cli.Command{
			vaultCommand(),
			{
				Name:  "supported-assets",
				Usage: "List the assets supported by the workspace",
				Action: func(c *cli.Context) error {
					cl, err := createClient(c)
					if err != nil {
						return err
					}
					assets, err := cl.GetSupportedAssets(c.Context)
					if err != nil {
						return fmt.Errorf("failed to get supported assets: %w", err)
					}
					return printJSON(assets)
				},
			},
			transactionCommand(),
			tokenCommand(),
			keysCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API user key sent as X-API-Key and used as the token subject",
			EnvVars: []string{config.EnvAPIKey},
		},
		&cli.StringFlag{
			Name:    "private-key-path",
			Aliases: []string{"key"},
			Usage:   "Path to the API user's RSA private key (PEM)",
			EnvVars: []string{config.EnvAPIPrivateKeyPath},
		},
		&cli.StringFlag{
			Name:    "private-key",
			Usage:   "API user's RSA private key as inline PEM",
			EnvVars: []string{config.EnvAPIPrivateKey},
		},
		&cli.StringFlag{
			Name:    "kms-key-id",
			Usage:   "AWS KMS key ID or alias holding the API user's RSA key",
			EnvVars: []string{config.EnvKMSKeyID},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region for KMS",
			EnvVars: []string{config.EnvAWSRegion},
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "API base URL, overrides --environment",
			EnvVars: []string{config.EnvBaseURL},
		},
		&cli.StringFlag{
			Name:    "environment",
			Aliases: []string{"env"},
			Usage:   fmt.Sprintf("API environment: %s", config.GetSupportedEnvironmentsString()),
			Value:   string(config.DefaultEnvironment),
			EnvVars: []string{config.EnvEnvironment},
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "HTTP timeout per request",
			Value:   config.DefaultTimeout,
			EnvVars: []string{config.EnvTimeout},
		},
		&cli.Float64Flag{
			Name:    "rate-limit",
			Usage:   "Maximum requests per second, 0 disables pacing",
			EnvVars: []string{config.EnvRateLimit},
		},
		&cli.IntFlag{
			Name:    "rate-burst",
			Usage:   "Burst size for --rate-limit",
			EnvVars: []string{config.EnvRateBurst},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvDebug},
		},
	}
}

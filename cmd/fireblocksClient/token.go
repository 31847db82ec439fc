package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/auth"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/config"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/nonce"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/nonce/badger"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/nonce/memory"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/nonce/redis"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint or check request tokens",
		Subcommands: []*cli.Command{
			{
				Name:  "sign",
				Usage: "Print the bearer token for one request",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Request path including query, e.g. /v1/vault/accounts_paged?limit=5", Required: true},
					&cli.StringFlag{Name: "body", Usage: "Exact request body"},
					&cli.BoolFlag{Name: "claims", Usage: "Print the claims instead of the token"},
				},
				Action: signTokenCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify a bearer token against a public key and request",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "Bearer token", Required: true},
					&cli.StringFlag{Name: "public-key-path", Usage: "API user's RSA public key (PEM)", Required: true},
					&cli.StringFlag{Name: "path", Usage: "Request path including query", Required: true},
					&cli.StringFlag{Name: "body", Usage: "Exact request body"},
					&cli.StringFlag{Name: "nonce-store", Usage: "memory, redis or badger", Value: config.NonceStoreMemory, EnvVars: []string{config.EnvNonceStore}},
					&cli.StringFlag{Name: "redis-address", Usage: "Redis address for the redis nonce store", Value: config.DefaultRedisAddress, EnvVars: []string{config.EnvRedisAddress}},
					&cli.StringFlag{Name: "redis-password", Usage: "Redis password", EnvVars: []string{config.EnvRedisPassword}},
					&cli.IntFlag{Name: "redis-db", Usage: "Redis database", EnvVars: []string{config.EnvRedisDB}},
					&cli.StringFlag{Name: "badger-path", Usage: "Data directory for the badger nonce store", Value: config.DefaultNonceBadgerPath, EnvVars: []string{config.EnvNonceBadgerPath}},
				},
				Action: verifyTokenCommand,
			},
		},
	}
}

func signTokenCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	signer, err := createSigner(c, l)
	if err != nil {
		return err
	}

	path := c.String("path")
	body := []byte(c.String("body"))

	if c.Bool("claims") {
		claims, err := signer.Claims(path, body)
		if err != nil {
			return err
		}
		return printJSON(claims)
	}

	token, err := signer.Sign(path, body)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// newNonceStore opens the replay store selected by cfg
func newNonceStore(cfg *config.NonceStoreConfig, l *zap.Logger) (nonce.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid nonce store configuration: %w", err)
	}
	switch cfg.Type {
	case config.NonceStoreRedis:
		return redis.NewRedisStore(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.KeyPrefix,
		}, l)
	case config.NonceStoreBadger:
		return badger.NewBadgerStore(cfg.BadgerPath, l)
	default:
		return memory.NewMemoryStore(), nil
	}
}

func verifyTokenCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}

	pub, err := auth.LoadRSAPublicKeyFile(c.String("public-key-path"))
	if err != nil {
		return err
	}

	store, err := newNonceStore(&config.NonceStoreConfig{
		Type: c.String("nonce-store"),
		Redis: config.RedisConfig{
			Address:  c.String("redis-address"),
			Password: c.String("redis-password"),
			DB:       c.Int("redis-db"),
		},
		BadgerPath: c.String("badger-path"),
	}, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	verifier, err := auth.NewVerifier(pub, store, auth.WithVerifierLogger(l))
	if err != nil {
		return err
	}

	claims, err := verifier.Verify(c.Context, c.String("token"), auth.VerifyRequest{
		Path:   c.String("path"),
		Body:   []byte(c.String("body")),
		APIKey: c.String("api-key"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Token rejected: %v\n", err)
		return cli.Exit("", 1)
	}

	fmt.Printf("✅ Token valid, expires in %s\n", time.Until(time.Unix(claims.ExpiresAt, 0)).Round(time.Second))
	return printJSON(claims)
}

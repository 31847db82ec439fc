package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/fireblocks-api-go/internal/apiclient"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/auth"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/callback"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/config"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/logger"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/txpolicy"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "callback-server",
		Usage: "Co-signer callback handler",
		Description: `An HTTP server answering the API co-signer's approval callbacks.

Every request is a JWT signed by the co-signer. The configured plugins decide
whether to APPROVE or REJECT; with no plugins the answer is IGNORE. Responses
are JWTs signed with the callback private key.

Plugins (comma separated in --plugins):
- extra_signature: checks an RSA signature carried in the transaction's extra parameters
- txid_validation: approves only transaction IDs present in the configured store
- tx_policy_validation: evaluates transfers against the workspace's active
  transaction policy, fetched once at startup with the --api-* credentials`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultCallbackPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvCallbackPort},
			},
			&cli.StringFlag{
				Name:    "cosigner-public-key-path",
				Usage:   "Co-signer RSA public key (PEM)",
				EnvVars: []string{config.EnvCosignerPublicKeyPath},
			},
			&cli.StringFlag{
				Name:    "cosigner-jwks-url",
				Usage:   "URL of a JWKS holding the co-signer keys",
				EnvVars: []string{config.EnvCosignerJWKSURL},
			},
			&cli.DurationFlag{
				Name:    "jwks-refresh-interval",
				Value:   config.DefaultJWKSRefreshInterval,
				Usage:   "How often the JWKS is re-fetched",
				EnvVars: []string{config.EnvJWKSRefreshInterval},
			},
			&cli.StringFlag{
				Name:    "callback-private-key-path",
				Usage:   "RSA private key (PEM) signing the responses",
				EnvVars: []string{config.EnvCallbackPrivateKeyPath},
			},
			&cli.StringFlag{
				Name:    "extra-signature-public-key-path",
				Usage:   "RSA public key (PEM) checking extra signatures",
				EnvVars: []string{config.EnvExtraSignaturePublicKeyPath},
			},
			&cli.StringFlag{
				Name:    "plugins",
				Usage:   "Comma separated plugin names",
				EnvVars: []string{config.EnvPlugins},
			},
			&cli.StringFlag{
				Name:    "txid-store",
				Usage:   fmt.Sprintf("Transaction ID store: %s or %s", config.TxIDStoreMemory, config.TxIDStoreRedis),
				EnvVars: []string{config.EnvTxIDStore},
			},
			&cli.StringFlag{
				Name:    "txid-allowlist",
				Usage:   "Comma separated transaction IDs preloaded into the memory store",
				EnvVars: []string{config.EnvTxIDAllowlist},
			},
			&cli.StringFlag{
				Name:    "txid-redis-set",
				Usage:   "Redis set holding approved transaction IDs",
				Value:   callback.DefaultTxIDSetKey,
				EnvVars: []string{config.EnvTxIDRedisSet},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Value:   config.DefaultRedisAddress,
				Usage:   "Redis address",
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvRedisDB},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key read by tx_policy_validation",
				EnvVars: []string{config.EnvAPIKey},
			},
			&cli.StringFlag{
				Name:    "api-private-key-path",
				Usage:   "API user's RSA private key (PEM)",
				EnvVars: []string{config.EnvAPIPrivateKeyPath},
			},
			&cli.StringFlag{
				Name:    "api-private-key",
				Usage:   "API user's RSA private key as inline PEM",
				EnvVars: []string{config.EnvAPIPrivateKey},
			},
			&cli.StringFlag{
				Name:    "api-kms-key-id",
				Usage:   "AWS KMS key holding the API user's private key",
				EnvVars: []string{config.EnvKMSKeyID},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region of the KMS key",
				EnvVars: []string{config.EnvAWSRegion},
			},
			&cli.StringFlag{
				Name:    "api-base-url",
				Usage:   "API base URL, overrides --api-environment",
				EnvVars: []string{config.EnvBaseURL},
			},
			&cli.StringFlag{
				Name:    "api-environment",
				Usage:   "API environment: production or sandbox",
				Value:   string(config.DefaultEnvironment),
				EnvVars: []string{config.EnvEnvironment},
			},
			&cli.DurationFlag{
				Name:    "api-timeout",
				Usage:   "API request timeout",
				Value:   config.DefaultTimeout,
				EnvVars: []string{config.EnvTimeout},
			},
			&cli.StringFlag{
				Name:    "exchange-rate-url",
				Usage:   "USD based rate endpoint used for EUR denominated policy rules",
				Value:   txpolicy.DefaultExchangeRateURL,
				EnvVars: []string{config.EnvExchangeRateURL},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Action: runCallbackServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func parseCallbackConfig(c *cli.Context) *config.CallbackConfig {
	cfg := &config.CallbackConfig{
		Port:                        c.Int("port"),
		CosignerPublicKeyPath:       c.String("cosigner-public-key-path"),
		CosignerJWKSURL:             c.String("cosigner-jwks-url"),
		JWKSRefreshInterval:         c.Duration("jwks-refresh-interval"),
		CallbackPrivateKeyPath:      c.String("callback-private-key-path"),
		ExtraSignaturePublicKeyPath: c.String("extra-signature-public-key-path"),
		Plugins:                     config.SplitList(c.String("plugins")),
		TxIDStore:                   strings.ToLower(c.String("txid-store")),
		TxIDAllowlist:               config.SplitList(c.String("txid-allowlist")),
		TxIDRedisSet:                c.String("txid-redis-set"),
		Redis: config.RedisConfig{
			Address:  c.String("redis-address"),
			Password: c.String("redis-password"),
			DB:       c.Int("redis-db"),
		},
		API: config.ClientConfig{
			APIKey:         c.String("api-key"),
			PrivateKeyPath: c.String("api-private-key-path"),
			PrivateKeyPEM:  c.String("api-private-key"),
			KMSKeyID:       c.String("api-kms-key-id"),
			AWSRegion:      c.String("aws-region"),
			BaseURL:        c.String("api-base-url"),
			Environment:    config.Environment(c.String("api-environment")),
			Timeout:        c.Duration("api-timeout"),
		},
		ExchangeRateURL: c.String("exchange-rate-url"),
		Debug:           c.Bool("verbose"),
	}
	if cfg.TxIDStore == "" && cfg.HasPlugin(callback.PluginTxIDValidation) {
		cfg.TxIDStore = config.TxIDStoreMemory
	}
	return cfg
}

func runCallbackServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseCallbackConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	authenticator, err := buildAuthenticator(ctx, cfg, l)
	if err != nil {
		return err
	}

	deps, closeDeps, err := buildPluginDeps(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer closeDeps()

	plugins, err := callback.BuildPlugins(cfg.Plugins, deps)
	if err != nil {
		return err
	}

	server, err := callback.NewServer(&callback.ServerConfig{
		Port:          cfg.Port,
		Authenticator: authenticator,
		Manager:       callback.NewManager(l, plugins...),
		Logger:        l,
	})
	if err != nil {
		return fmt.Errorf("failed to create callback server: %w", err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	l.Sugar().Infow("Callback server running",
		"port", cfg.Port,
		"plugins", cfg.Plugins,
		"tx_sign", "POST "+callback.PathTxSignRequest,
		"config_change", "POST "+callback.PathConfigChangeSignRequest)

	select {
	case <-ctx.Done():
	case err, ok := <-server.Errors():
		if ok {
			return fmt.Errorf("callback server stopped: %w", err)
		}
	}
	l.Sugar().Info("Shutting down callback server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func buildAuthenticator(ctx context.Context, cfg *config.CallbackConfig, l *zap.Logger) (*callback.Authenticator, error) {
	callbackKey, err := auth.LoadRSAPrivateKeyFile(cfg.CallbackPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load callback private key: %w", err)
	}

	authCfg := &callback.AuthenticatorConfig{
		CallbackPrivateKey: callbackKey,
		Logger:             l,
	}

	if cfg.CosignerJWKSURL != "" {
		var set jwk.Set
		set, err = callback.NewJWKSKeySet(ctx, cfg.CosignerJWKSURL, cfg.JWKSRefreshInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to load co-signer key set: %w", err)
		}
		authCfg.CosignerKeySet = set
	} else {
		authCfg.CosignerPublicKey, err = auth.LoadRSAPublicKeyFile(cfg.CosignerPublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load co-signer public key: %w", err)
		}
	}

	return callback.NewAuthenticator(authCfg)
}

// buildPluginDeps loads only what the configured plugins need. The returned
// func releases any opened stores.
func buildPluginDeps(ctx context.Context, cfg *config.CallbackConfig, l *zap.Logger) (callback.PluginDeps, func(), error) {
	deps := callback.PluginDeps{Logger: l}
	closeFn := func() {}

	if cfg.HasPlugin(callback.PluginExtraSignature) {
		key, err := auth.LoadRSAPublicKeyFile(cfg.ExtraSignaturePublicKeyPath)
		if err != nil {
			return deps, closeFn, fmt.Errorf("failed to load extra signature public key: %w", err)
		}
		deps.ExtraSignatureKey = key
	}

	if cfg.HasPlugin(callback.PluginTxIDValidation) {
		switch cfg.TxIDStore {
		case config.TxIDStoreRedis:
			store, err := callback.NewRedisTxIDStore(&callback.RedisTxIDConfig{
				Address:  cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				SetKey:   cfg.TxIDRedisSet,
			}, l)
			if err != nil {
				return deps, closeFn, err
			}
			deps.TxIDStore = store
			closeFn = func() { _ = store.Close() }
		default:
			deps.TxIDStore = callback.NewMemoryTxIDStore(cfg.TxIDAllowlist...)
			l.Sugar().Infow("Using in-memory transaction ID store", "preloaded", len(cfg.TxIDAllowlist))
		}
	}

	if cfg.HasPlugin(callback.PluginTxPolicyValidation) {
		cl, err := apiclient.New(ctx, &cfg.API, l)
		if err != nil {
			return deps, closeFn, err
		}
		rates, err := txpolicy.NewExchangeRateAPI(&txpolicy.ExchangeRateConfig{
			URL:    cfg.ExchangeRateURL,
			Logger: l,
		})
		if err != nil {
			return deps, closeFn, err
		}
		engine, err := txpolicy.Load(ctx, cl, rates, l)
		if err != nil {
			return deps, closeFn, err
		}
		deps.TxPolicyEngine = engine
	}

	return deps, closeFn, nil
}

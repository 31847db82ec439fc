package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientConfigFromEnv builds a ClientConfig from the process environment.
// The result is not validated.
func ClientConfigFromEnv() (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIKey:         os.Getenv(EnvAPIKey),
		PrivateKeyPath: os.Getenv(EnvAPIPrivateKeyPath),
		PrivateKeyPEM:  os.Getenv(EnvAPIPrivateKey),
		KMSKeyID:       os.Getenv(EnvKMSKeyID),
		AWSRegion:      os.Getenv(EnvAWSRegion),
		BaseURL:        os.Getenv(EnvBaseURL),
		Environment:    Environment(os.Getenv(EnvEnvironment)),
	}

	var err error
	if cfg.Timeout, err = durationFromEnv(EnvTimeout, DefaultTimeout); err != nil {
		return nil, err
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		if cfg.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", EnvRateLimit, err)
		}
	}
	if cfg.RateBurst, err = intFromEnv(EnvRateBurst, 0); err != nil {
		return nil, err
	}
	if cfg.Debug, err = boolFromEnv(EnvDebug); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CallbackConfigFromEnv builds a CallbackConfig from the process environment.
// The result is not validated.
func CallbackConfigFromEnv() (*CallbackConfig, error) {
	cfg := &CallbackConfig{
		CosignerPublicKeyPath:       os.Getenv(EnvCosignerPublicKeyPath),
		CosignerJWKSURL:             os.Getenv(EnvCosignerJWKSURL),
		CallbackPrivateKeyPath:      os.Getenv(EnvCallbackPrivateKeyPath),
		ExtraSignaturePublicKeyPath: os.Getenv(EnvExtraSignaturePublicKeyPath),
		Plugins:                     SplitList(os.Getenv(EnvPlugins)),
		TxIDStore:                   strings.ToLower(os.Getenv(EnvTxIDStore)),
		TxIDAllowlist:               SplitList(os.Getenv(EnvTxIDAllowlist)),
		TxIDRedisSet:                os.Getenv(EnvTxIDRedisSet),
		ExchangeRateURL:             os.Getenv(EnvExchangeRateURL),
	}

	var err error
	if cfg.Port, err = intFromEnv(EnvCallbackPort, DefaultCallbackPort); err != nil {
		return nil, err
	}
	if cfg.JWKSRefreshInterval, err = durationFromEnv(EnvJWKSRefreshInterval, DefaultJWKSRefreshInterval); err != nil {
		return nil, err
	}
	if cfg.Redis, err = redisFromEnv(); err != nil {
		return nil, err
	}
	api, err := ClientConfigFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.API = *api
	if cfg.TxIDStore == "" && cfg.HasPlugin(pluginTxIDValidation) {
		cfg.TxIDStore = TxIDStoreMemory
	}
	return cfg, nil
}

// NonceStoreConfigFromEnv builds a NonceStoreConfig from the process
// environment, defaulting to the in-memory store.
func NonceStoreConfigFromEnv() (*NonceStoreConfig, error) {
	cfg := &NonceStoreConfig{
		Type:       strings.ToLower(os.Getenv(EnvNonceStore)),
		BadgerPath: os.Getenv(EnvNonceBadgerPath),
	}
	if cfg.Type == "" {
		cfg.Type = NonceStoreMemory
	}
	if cfg.BadgerPath == "" {
		cfg.BadgerPath = DefaultNonceBadgerPath
	}
	var err error
	if cfg.Redis, err = redisFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func redisFromEnv() (RedisConfig, error) {
	rc := RedisConfig{
		Address:  os.Getenv(EnvRedisAddress),
		Password: os.Getenv(EnvRedisPassword),
	}
	if rc.Address == "" {
		rc.Address = DefaultRedisAddress
	}
	db, err := intFromEnv(EnvRedisDB, 0)
	if err != nil {
		return RedisConfig{}, err
	}
	rc.DB = db
	return rc, nil
}

func intFromEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return n, nil
}

func durationFromEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return d, nil
}

func boolFromEnv(name string) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return b, nil
}

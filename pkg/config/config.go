package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the API client
const (
	EnvAPIKey            = "FIREBLOCKS_API_KEY"
	EnvAPIPrivateKeyPath = "FIREBLOCKS_API_PRIVATE_KEY_PATH"
	EnvAPIPrivateKey     = "FIREBLOCKS_API_PRIVATE_KEY"
	EnvBaseURL           = "FIREBLOCKS_BASE_URL"
	EnvEnvironment       = "FIREBLOCKS_ENVIRONMENT"
	EnvKMSKeyID          = "FIREBLOCKS_KMS_KEY_ID"
	EnvAWSRegion         = "AWS_REGION"
	EnvTimeout           = "FIREBLOCKS_TIMEOUT"
	EnvRateLimit         = "FIREBLOCKS_RATE_LIMIT"
	EnvRateBurst         = "FIREBLOCKS_RATE_BURST"
	EnvDebug             = "FIREBLOCKS_DEBUG"
)

// Environment variable names for the co-signer callback handler
const (
	EnvCallbackPort                = "APP_LISTENING_PORT"
	EnvCosignerPublicKeyPath       = "COSIGNER_PUBLIC_KEY_PATH"
	EnvCosignerJWKSURL             = "COSIGNER_JWKS_URL"
	EnvJWKSRefreshInterval         = "COSIGNER_JWKS_REFRESH_INTERVAL"
	EnvCallbackPrivateKeyPath      = "CALLBACK_PRIVATE_KEY_PATH"
	EnvExtraSignaturePublicKeyPath = "EXTRA_SIGNATURE_PUBLIC_KEY_PATH"
	EnvPlugins                     = "PLUGINS"
	EnvTxIDStore                   = "TXID_STORE"
	EnvTxIDAllowlist               = "TXID_ALLOWLIST"
	EnvTxIDRedisSet                = "TXID_REDIS_SET"
	EnvRedisAddress                = "REDIS_ADDRESS"
	EnvRedisPassword               = "REDIS_PASSWORD"
	EnvRedisDB                     = "REDIS_DB"
	EnvNonceStore                  = "NONCE_STORE"
	EnvNonceBadgerPath             = "NONCE_BADGER_PATH"
	EnvExchangeRateURL             = "EXCHANGE_RATE_URL"
)

const (
	DefaultCallbackPort        = 8000
	DefaultJWKSRefreshInterval = 15 * time.Minute
	DefaultTimeout             = 30 * time.Second
	DefaultRedisAddress        = "localhost:6379"
	DefaultNonceBadgerPath     = "./data/nonces"
)

// Environment selects which API deployment to talk to
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

const DefaultEnvironment = EnvironmentProduction

var EnvironmentToBaseURL = map[Environment]string{
	EnvironmentProduction: "https://api.fireblocks.io",
	EnvironmentSandbox:    "https://sandbox-api.fireblocks.io",
}

func (e Environment) String() string {
	return string(e)
}

// BaseURL returns the base URL of the environment
func (e Environment) BaseURL() (string, error) {
	u, ok := EnvironmentToBaseURL[e]
	if !ok {
		return "", fmt.Errorf("unsupported environment %q. Supported: %s", string(e), GetSupportedEnvironmentsString())
	}
	return u, nil
}

// GetSupportedEnvironmentsString returns supported environments for CLI help
func GetSupportedEnvironmentsString() string {
	return fmt.Sprintf("%s, %s", EnvironmentProduction, EnvironmentSandbox)
}

// LoadDotEnv loads variables from the given .env files without overriding
// ones already set. With no arguments ".env" is tried; a missing default
// file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env files %v: %w", paths, err)
	}
	return nil
}

// ClientConfig is the process configuration of an API client
type ClientConfig struct {
	APIKey string `json:"api_key"`

	// Exactly one key source: a PEM file, inline PEM, or an AWS KMS key
	PrivateKeyPath string `json:"private_key_path"`
	PrivateKeyPEM  string `json:"-"`
	KMSKeyID       string `json:"kms_key_id"`
	AWSRegion      string `json:"aws_region"`

	BaseURL     string      `json:"base_url"`
	Environment Environment `json:"environment"`

	Timeout   time.Duration `json:"timeout"`
	RateLimit float64       `json:"rate_limit"`
	RateBurst int           `json:"rate_burst"`

	Debug bool `json:"debug"`
}

// ResolveBaseURL returns BaseURL without trailing slashes, falling back to
// the environment's URL.
func (c *ClientConfig) ResolveBaseURL() (string, error) {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/"), nil
	}
	env := c.Environment
	if env == "" {
		env = DefaultEnvironment
	}
	return env.BaseURL()
}

// Validate validates the client configuration
func (c *ClientConfig) Validate() error {
	var allErrors field.ErrorList

	if c.APIKey == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("apiKey"), "API key is required"))
	}

	sources := 0
	for _, v := range []string{c.PrivateKeyPath, c.PrivateKeyPEM, c.KMSKeyID} {
		if v != "" {
			sources++
		}
	}
	switch {
	case sources == 0:
		allErrors = append(allErrors, field.Required(field.NewPath("privateKeyPath"), "one of privateKeyPath, privateKeyPEM or kmsKeyId is required"))
	case sources > 1:
		allErrors = append(allErrors, field.Invalid(field.NewPath("privateKeyPath"), c.PrivateKeyPath, "only one of privateKeyPath, privateKeyPEM or kmsKeyId may be set"))
	}

	if c.BaseURL != "" {
		if err := validateHTTPURL(c.BaseURL); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("baseUrl"), c.BaseURL, err.Error()))
		}
	} else if c.Environment != "" {
		if _, err := c.Environment.BaseURL(); err != nil {
			allErrors = append(allErrors, field.NotSupported(field.NewPath("environment"), c.Environment, []string{string(EnvironmentProduction), string(EnvironmentSandbox)}))
		}
	}

	if c.Timeout < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("timeout"), c.Timeout.String(), "must not be negative"))
	}
	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must not be negative"))
	}
	if c.RateBurst < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must not be negative"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// TxID store backends
const (
	TxIDStoreMemory = "memory"
	TxIDStoreRedis  = "redis"
)

// Plugin names, mirrored from the callback package to keep config free of
// server dependencies.
const (
	pluginExtraSignature     = "extra_signature"
	pluginTxIDValidation     = "txid_validation"
	pluginTxPolicyValidation = "tx_policy_validation"
)

var supportedPlugins = []string{pluginExtraSignature, pluginTxIDValidation, pluginTxPolicyValidation}

// RedisConfig is shared by every Redis backed component
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// CallbackConfig is the process configuration of the co-signer callback
// handler.
type CallbackConfig struct {
	Port int `json:"port"`

	CosignerPublicKeyPath string        `json:"cosigner_public_key_path"`
	CosignerJWKSURL       string        `json:"cosigner_jwks_url"`
	JWKSRefreshInterval   time.Duration `json:"jwks_refresh_interval"`

	CallbackPrivateKeyPath      string `json:"callback_private_key_path"`
	ExtraSignaturePublicKeyPath string `json:"extra_signature_public_key_path"`

	Plugins       []string    `json:"plugins"`
	TxIDStore     string      `json:"txid_store"`
	TxIDAllowlist []string    `json:"txid_allowlist"`
	TxIDRedisSet  string      `json:"txid_redis_set"`
	Redis         RedisConfig `json:"redis"`

	// API is the workspace API user the tx_policy_validation plugin reads
	// the active policy and user groups with.
	API             ClientConfig `json:"api"`
	ExchangeRateURL string       `json:"exchange_rate_url"`

	Debug bool `json:"debug"`
}

func (c *CallbackConfig) HasPlugin(name string) bool {
	for _, p := range c.Plugins {
		if p == name {
			return true
		}
	}
	return false
}

// Validate validates the callback handler configuration
func (c *CallbackConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}

	switch {
	case c.CosignerPublicKeyPath == "" && c.CosignerJWKSURL == "":
		allErrors = append(allErrors, field.Required(field.NewPath("cosignerPublicKeyPath"), "co-signer public key path or JWKS URL is required"))
	case c.CosignerPublicKeyPath != "" && c.CosignerJWKSURL != "":
		allErrors = append(allErrors, field.Invalid(field.NewPath("cosignerJwksUrl"), c.CosignerJWKSURL, "set either a co-signer public key path or a JWKS URL, not both"))
	case c.CosignerJWKSURL != "":
		if err := validateHTTPURL(c.CosignerJWKSURL); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("cosignerJwksUrl"), c.CosignerJWKSURL, err.Error()))
		}
	}

	if c.CallbackPrivateKeyPath == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("callbackPrivateKeyPath"), "callback private key path is required"))
	}

	pluginsPath := field.NewPath("plugins")
	for i, p := range c.Plugins {
		if !slices.Contains(supportedPlugins, p) {
			allErrors = append(allErrors, field.NotSupported(pluginsPath.Index(i), p, supportedPlugins))
		}
	}

	if c.HasPlugin(pluginExtraSignature) && c.ExtraSignaturePublicKeyPath == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("extraSignaturePublicKeyPath"), "Extra Signature plugin is configured but no validation key was set"))
	}

	if c.HasPlugin(pluginTxIDValidation) {
		switch c.TxIDStore {
		case TxIDStoreMemory:
		case TxIDStoreRedis:
			if c.Redis.Address == "" {
				allErrors = append(allErrors, field.Required(field.NewPath("redis", "address"), "redis address is required for the redis txid store"))
			}
		case "":
			allErrors = append(allErrors, field.Required(field.NewPath("txidStore"), "txid_validation plugin requires a txid store"))
		default:
			allErrors = append(allErrors, field.NotSupported(field.NewPath("txidStore"), c.TxIDStore, []string{TxIDStoreMemory, TxIDStoreRedis}))
		}
	}

	if c.HasPlugin(pluginTxPolicyValidation) {
		apiPath := field.NewPath("api")
		if c.API.APIKey == "" || (c.API.PrivateKeyPath == "" && c.API.PrivateKeyPEM == "" && c.API.KMSKeyID == "") {
			allErrors = append(allErrors, field.Required(apiPath, "Transaction Policy plugin is configured but no fireblocks api key or secret was found"))
		} else if err := c.API.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(apiPath, c.API.APIKey, err.Error()))
		}
		if c.ExchangeRateURL != "" {
			if err := validateHTTPURL(c.ExchangeRateURL); err != nil {
				allErrors = append(allErrors, field.Invalid(field.NewPath("exchangeRateUrl"), c.ExchangeRateURL, err.Error()))
			}
		}
	}

	if c.JWKSRefreshInterval < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("jwksRefreshInterval"), c.JWKSRefreshInterval.String(), "must not be negative"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// Nonce store backends for token verification
const (
	NonceStoreMemory = "memory"
	NonceStoreRedis  = "redis"
	NonceStoreBadger = "badger"
)

// NonceStoreConfig selects where seen request token nonces are recorded
type NonceStoreConfig struct {
	Type       string      `json:"type"`
	Redis      RedisConfig `json:"redis"`
	KeyPrefix  string      `json:"key_prefix"`
	BadgerPath string      `json:"badger_path"`
}

// Validate validates the nonce store configuration
func (c *NonceStoreConfig) Validate() error {
	var allErrors field.ErrorList

	switch c.Type {
	case NonceStoreMemory:
	case NonceStoreRedis:
		if c.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redis", "address"), "redis address is required"))
		}
	case NonceStoreBadger:
		if c.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("badgerPath"), "badger path is required"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("type"), c.Type, []string{NonceStoreMemory, NonceStoreRedis, NonceStoreBadger}))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// SplitList splits a comma separated value, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

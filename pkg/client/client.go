package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/auth"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.fireblocks.io"
	SandboxBaseURL = "https://sandbox-api.fireblocks.io"

	defaultTimeout = 30 * time.Second
)

// TokenSigner produces a fresh request token for one call
type TokenSigner interface {
	Sign(path string, body []byte) (string, error)
}

var _ TokenSigner = (*auth.Signer)(nil)

// ClientConfig holds the configuration for the API client
type ClientConfig struct {
	BaseURL    string
	Signer     TokenSigner
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger

	// RateLimit paces outgoing requests when positive. Requests wait for a
	// slot; nothing is retried.
	RateLimit rate.Limit
	RateBurst int
}

// Client issues signed requests against the API. It holds only read-only
// configuration and may be used from many goroutines.
type Client struct {
	baseURL    string
	signer     TokenSigner
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new API client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(config.RateLimit, burst)
	}

	return &Client{
		baseURL:    baseURL,
		signer:     config.Signer,
		apiKey:     config.APIKey,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     config.Logger,
	}, nil
}

// BaseURL returns the normalized base URL requests are sent to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a signed bodyless GET and returns the raw response body
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post serializes body once and issues a signed POST carrying exactly those
// bytes. A []byte body is sent unchanged; nil sends an empty body.
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body for %s: %w", path, err)
		}
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: method, Path: path, Err: err}
		}
	}

	// Signed as late as possible so the freshness window covers the send.
	token, err := c.signer.Sign(path, body)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	req.Header.Set(auth.HeaderAuthorization, auth.BearerPrefix+token)
	req.Header.Set(auth.HeaderAPIKey, c.apiKey)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Sugar().Warnw("Request failed", "method", method, "path", path, "error", err)
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Sugar().Debugw("Request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Sugar().Infow("API returned error status",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return nil, &RequestFailure{Method: method, Path: path, StatusCode: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

// DecodeJSON decodes body into T. A literal null, malformed JSON, or a value
// whose types.Validator check fails is reported as a *DecodeError carrying
// the raw body.
func DecodeJSON[T any](body []byte) (T, error) {
	var zero T
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return zero, &DecodeError{Body: body, Err: fmt.Errorf("empty or null response body")}
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return zero, &DecodeError{Body: body, Err: err}
	}
	if v, ok := any(&out).(types.Validator); ok {
		if err := v.Validate(); err != nil {
			return zero, &DecodeError{Body: body, Err: err}
		}
	}
	return out, nil
}

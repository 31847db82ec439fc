package txpolicy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RateSource converts USD volume for EUR denominated rules
type RateSource interface {
	USDToEUR(ctx context.Context) decimal.Decimal
}

// FixedRate is a constant USD to EUR rate
type FixedRate decimal.Decimal

func (f FixedRate) USDToEUR(context.Context) decimal.Decimal {
	return decimal.Decimal(f)
}

const (
	DefaultExchangeRateURL = "https://api.exchangerate-api.com/v4/latest/USD"
	DefaultExchangeRateTTL = time.Hour

	eurKey = "EUR"
)

// ExchangeRateConfig holds the configuration for ExchangeRateAPI
type ExchangeRateConfig struct {
	// URL returns {"rates": {"EUR": <number>}} for a USD base
	URL        string
	HTTPClient *http.Client
	// TTL is how long a fetched rate, or the fallback, is reused. Negative
	// keeps it for the life of the process.
	TTL    time.Duration
	Logger *zap.Logger
}

// ExchangeRateAPI fetches the USD to EUR rate over HTTP. Any failure yields
// a rate of 1 so EUR rules still evaluate, approximately.
type ExchangeRateAPI struct {
	url        string
	httpClient *http.Client
	cache      *gocache.Cache
	group      singleflight.Group
	logger     *zap.Logger
}

var _ RateSource = (*ExchangeRateAPI)(nil)

func NewExchangeRateAPI(cfg *ExchangeRateConfig) (*ExchangeRateAPI, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	url := cfg.URL
	if url == "" {
		url = DefaultExchangeRateURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.TTL
	switch {
	case ttl == 0:
		ttl = DefaultExchangeRateTTL
	case ttl < 0:
		ttl = gocache.NoExpiration
	}

	return &ExchangeRateAPI{
		url:        url,
		httpClient: httpClient,
		cache:      gocache.New(ttl, 10*time.Minute),
		logger:     cfg.Logger,
	}, nil
}

// USDToEUR returns the cached rate, fetching it once across concurrent
// callers when the cache is empty.
func (a *ExchangeRateAPI) USDToEUR(ctx context.Context) decimal.Decimal {
	if v, ok := a.cache.Get(eurKey); ok {
		return v.(decimal.Decimal)
	}

	v, _, _ := a.group.Do(eurKey, func() (interface{}, error) {
		rate, err := a.fetch(ctx)
		if err != nil {
			a.logger.Sugar().Warnw("Failed to get USD/EUR rate, using 1", "url", a.url, "error", err)
			rate = decimal.NewFromInt(1)
		}
		a.cache.Set(eurKey, rate, gocache.DefaultExpiration)
		return rate, nil
	})
	return v.(decimal.Decimal)
}

func (a *ExchangeRateAPI) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to build rate request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("rate service returned status %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to decode rates: %w", err)
	}
	rate, ok := body.Rates[eurKey]
	if !ok || !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("response has no positive EUR rate")
	}
	a.logger.Sugar().Infow("Fetched USD/EUR rate", "rate", rate.String())
	return rate, nil
}

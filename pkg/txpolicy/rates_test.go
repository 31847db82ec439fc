package txpolicy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestExchangeRateAPI_FetchesOnce(t *testing.T) {
	srv, hits := newRateServer(t, http.StatusOK, `{"base":"USD","rates":{"EUR":0.92,"GBP":0.79}}`)
	api, err := NewExchangeRateAPI(&ExchangeRateConfig{URL: srv.URL, Logger: testLogger(t)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, decimal.RequireFromString("0.92").Equal(api.USDToEUR(context.Background())))
		}()
	}
	wg.Wait()

	assert.True(t, decimal.RequireFromString("0.92").Equal(api.USDToEUR(context.Background())))
	assert.LessOrEqual(t, hits.Load(), int32(8))
	before := hits.Load()
	api.USDToEUR(context.Background())
	assert.Equal(t, before, hits.Load(), "cached rate is reused")
}

func TestExchangeRateAPI_FallsBackToOne(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "not json", status: http.StatusOK, body: `<html>`},
		{name: "no eur rate", status: http.StatusOK, body: `{"rates":{"GBP":0.79}}`},
		{name: "zero eur rate", status: http.StatusOK, body: `{"rates":{"EUR":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := newRateServer(t, tt.status, tt.body)
			api, err := NewExchangeRateAPI(&ExchangeRateConfig{URL: srv.URL, Logger: testLogger(t)})
			require.NoError(t, err)

			assert.True(t, decimal.NewFromInt(1).Equal(api.USDToEUR(context.Background())))
			api.USDToEUR(context.Background())
			assert.Equal(t, int32(1), hits.Load(), "fallback is cached too")
		})
	}
}

func TestNewExchangeRateAPI_Validation(t *testing.T) {
	_, err := NewExchangeRateAPI(nil)
	require.Error(t, err)
	_, err = NewExchangeRateAPI(&ExchangeRateConfig{})
	require.ErrorContains(t, err, "logger is required")

	api, err := NewExchangeRateAPI(&ExchangeRateConfig{Logger: testLogger(t)})
	require.NoError(t, err)
	assert.Equal(t, DefaultExchangeRateURL, api.url)
}

func TestEngine_UsesRateSourceOnlyForEURRules(t *testing.T) {
	srv, hits := newRateServer(t, http.StatusOK, `{"rates":{"EUR":2}}`)
	api, err := NewExchangeRateAPI(&ExchangeRateConfig{URL: srv.URL, Logger: testLogger(t)})
	require.NoError(t, err)

	usd := newTestEngine(t, []string{ruleJSON(t, nil)}, nil, api)
	_, err = usd.Check(context.Background(), transferTx(0))
	require.NoError(t, err)
	assert.Zero(t, hits.Load())

	// 18.74 USD is 37.49 EUR at this rate
	eur := newTestEngine(t, []string{
		ruleJSON(t, map[string]any{"amountCurrency": "EUR", "amount": 30, "action": "BLOCK"}),
		ruleJSON(t, nil),
	}, nil, api)
	res, err := eur.Check(context.Background(), transferTx(0))
	require.NoError(t, err)
	assert.False(t, res.Allow)
	assert.Equal(t, int32(1), hits.Load())
}

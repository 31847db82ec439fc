package callback

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/logger"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/txpolicy"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/types"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type callbackFixture struct {
	cosignerKey *rsa.PrivateKey
	callbackKey *rsa.PrivateKey
	logger      *zap.Logger
}

func newCallbackFixture(t *testing.T) *callbackFixture {
	t.Helper()
	cosignerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	callbackKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	testLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	return &callbackFixture{cosignerKey: cosignerKey, callbackKey: callbackKey, logger: testLogger}
}

func (f *callbackFixture) server(t *testing.T, now func() time.Time, plugins ...Plugin) http.Handler {
	t.Helper()
	a, err := NewAuthenticator(&AuthenticatorConfig{
		CosignerPublicKey:  &f.cosignerKey.PublicKey,
		CallbackPrivateKey: f.callbackKey,
		Now:                now,
		Logger:             f.logger,
	})
	require.NoError(t, err)

	s, err := NewServer(&ServerConfig{
		Port:          0,
		Authenticator: a,
		Manager:       NewManager(f.logger, plugins...),
		Logger:        f.logger,
	})
	require.NoError(t, err)
	return s.GetHandler()
}

// cosignerToken signs claims the way the co-signer does
func cosignerToken(t *testing.T, key any, claims map[string]any, exp time.Time) []byte {
	t.Helper()
	b := jwt.NewBuilder().IssuedAt(exp.Add(-time.Minute)).Expiration(exp)
	for k, v := range claims {
		b = b.Claim(k, v)
	}
	tok, err := b.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256(), key))
	require.NoError(t, err)
	return signed
}

func (f *callbackFixture) post(t *testing.T, h http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (f *callbackFixture) decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	payload, err := jws.Verify(rec.Body.Bytes(), jws.WithKey(jwa.RS256(), &f.callbackKey.PublicKey))
	require.NoError(t, err, "response must be signed with the callback key")

	var resp Response
	require.NoError(t, json.Unmarshal(payload, &resp))
	return resp
}

func txClaims(txID string) map[string]any {
	return map[string]any{
		"requestId": "req-" + txID,
		"txId":      txID,
		"operation": "TRANSFER",
		"asset":     "ETH",
		"amountStr": "1.5",
	}
}

func TestServer_NoPluginsIgnores(t *testing.T) {
	f := newCallbackFixture(t)
	h := f.server(t, nil)

	body := cosignerToken(t, f.cosignerKey, txClaims("tx-1"), time.Now().Add(time.Minute))
	resp := f.decodeResponse(t, f.post(t, h, PathTxSignRequest, body))

	assert.Equal(t, ActionIgnore, resp.Action)
	assert.Equal(t, "req-tx-1", resp.RequestID)
	assert.Empty(t, resp.RejectionReason)
}

func TestServer_TxIDPlugin(t *testing.T) {
	f := newCallbackFixture(t)
	store := NewMemoryTxIDStore("tx-known")
	plugin, err := NewTxIDPlugin(store, f.logger)
	require.NoError(t, err)
	h := f.server(t, nil, plugin)

	exp := time.Now().Add(time.Minute)

	resp := f.decodeResponse(t, f.post(t, h, PathTxSignRequest, cosignerToken(t, f.cosignerKey, txClaims("tx-known"), exp)))
	assert.Equal(t, ActionApprove, resp.Action)
	assert.Empty(t, resp.RejectionReason)

	resp = f.decodeResponse(t, f.post(t, h, PathTxSignRequest, cosignerToken(t, f.cosignerKey, txClaims("tx-unknown"), exp)))
	assert.Equal(t, ActionReject, resp.Action)
	assert.Equal(t, DefaultRejectionReason, resp.RejectionReason)

	claims := txClaims("")
	delete(claims, "txId")
	rec := f.post(t, h, PathTxSignRequest, cosignerToken(t, f.cosignerKey, claims, exp))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ExtraSignaturePlugin(t *testing.T) {
	f := newCallbackFixture(t)
	sigKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	plugin, err := NewExtraSignaturePlugin(&sigKey.PublicKey, f.logger)
	require.NoError(t, err)
	h := f.server(t, nil, plugin)
	exp := time.Now().Add(time.Minute)

	message := "approve transfer of 1.5 ETH to treasury"
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, sigKey, crypto.SHA256, digest[:])
	require.NoError(t, err)

	claims := txClaims("tx-sig")
	claims["extraParameters"] = map[string]any{
		"message":        message,
		"extraSignature": base64.StdEncoding.EncodeToString(sig),
	}
	resp := f.decodeResponse(t, f.post(t, h, PathTxSignRequest, cosignerToken(t, f.cosignerKey, claims, exp)))
	assert.Equal(t, ActionApprove, resp.Action)

	claims["extraParameters"] = map[string]any{
		"message":        message + " and everything else",
		"extraSignature": base64.StdEncoding.EncodeToString(sig),
	}
	rec := f.post(t, h, PathTxSignRequest, cosignerToken(t, f.cosignerKey, claims, exp))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = f.post(t, h, PathTxSignRequest, cosignerToken(t, f.cosignerKey, txClaims("tx-nosig"), exp))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_AuthenticationFailures(t *testing.T) {
	f := newCallbackFixture(t)
	now := time.Unix(1700000000, 0)
	h := f.server(t, func() time.Time { return now })

	t.Run("expired", func(t *testing.T) {
		body := cosignerToken(t, f.cosignerKey, txClaims("tx-1"), now.Add(-time.Second))
		rec := f.post(t, h, PathTxSignRequest, body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("exp boundary is still valid", func(t *testing.T) {
		body := cosignerToken(t, f.cosignerKey, txClaims("tx-1"), now)
		rec := f.post(t, h, PathTxSignRequest, body)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		body := cosignerToken(t, other, txClaims("tx-1"), now.Add(time.Minute))
		rec := f.post(t, h, PathTxSignRequest, body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("not a token", func(t *testing.T) {
		rec := f.post(t, h, PathTxSignRequest, []byte(`{"requestId":"x"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		rec := f.post(t, h, PathTxSignRequest, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, PathTxSignRequest, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer_ConfigChangeIsIgnored(t *testing.T) {
	f := newCallbackFixture(t)
	plugin, err := NewTxIDPlugin(NewMemoryTxIDStore(), f.logger)
	require.NoError(t, err)
	h := f.server(t, nil, plugin)

	body := cosignerToken(t, f.cosignerKey, map[string]any{"requestId": "cfg-1", "type": "ADD_USER"}, time.Now().Add(time.Minute))
	resp := f.decodeResponse(t, f.post(t, h, PathConfigChangeSignRequest, body))
	assert.Equal(t, ActionIgnore, resp.Action)
	assert.Equal(t, "cfg-1", resp.RequestID)
}

func TestAuthenticator_JWKS(t *testing.T) {
	f := newCallbackFixture(t)
	const keyID = "cosigner-key-1"

	publicKey, err := jwk.Import(&f.cosignerKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, publicKey.Set(jwk.KeyIDKey, keyID))
	require.NoError(t, publicKey.Set(jwk.AlgorithmKey, jwa.RS256()))
	require.NoError(t, publicKey.Set(jwk.KeyUsageKey, "sig"))
	publicSet := jwk.NewSet()
	require.NoError(t, publicSet.AddKey(publicKey))

	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(publicSet)
	}))
	defer jwksServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keySet, err := NewJWKSKeySet(ctx, jwksServer.URL, time.Hour)
	require.NoError(t, err)

	a, err := NewAuthenticator(&AuthenticatorConfig{
		CosignerKeySet:     keySet,
		CallbackPrivateKey: f.callbackKey,
		Logger:             f.logger,
	})
	require.NoError(t, err)

	signingKey, err := jwk.Import(f.cosignerKey)
	require.NoError(t, err)
	require.NoError(t, signingKey.Set(jwk.KeyIDKey, keyID))
	require.NoError(t, signingKey.Set(jwk.AlgorithmKey, jwa.RS256()))

	var req TxSignRequest
	body := cosignerToken(t, signingKey, txClaims("tx-jwks"), time.Now().Add(time.Minute))
	require.NoError(t, a.Authenticate(body, &req))
	assert.Equal(t, "tx-jwks", req.TxID)
	assert.Equal(t, "1.5", req.AmountStr)
}

func TestAuthenticator_KeySetWithoutAlgorithm(t *testing.T) {
	f := newCallbackFixture(t)
	const keyID = "cosigner-no-alg"

	publicKey, err := jwk.Import(&f.cosignerKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, publicKey.Set(jwk.KeyIDKey, keyID))
	_, hasAlg := publicKey.Algorithm()
	require.False(t, hasAlg)
	keySet := jwk.NewSet()
	require.NoError(t, keySet.AddKey(publicKey))

	a, err := NewAuthenticator(&AuthenticatorConfig{
		CosignerKeySet:     keySet,
		CallbackPrivateKey: f.callbackKey,
		Logger:             f.logger,
	})
	require.NoError(t, err)

	signingKey, err := jwk.Import(f.cosignerKey)
	require.NoError(t, err)
	require.NoError(t, signingKey.Set(jwk.KeyIDKey, keyID))

	var req TxSignRequest
	body := cosignerToken(t, signingKey, txClaims("tx-no-alg"), time.Now().Add(time.Minute))
	require.NoError(t, a.Authenticate(body, &req))
	assert.Equal(t, "tx-no-alg", req.TxID)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := cosignerToken(t, otherKey, txClaims("tx-forged"), time.Now().Add(time.Minute))
	require.ErrorIs(t, a.Authenticate(forged, &req), ErrInvalidToken)
}

func TestNewAuthenticator_Validation(t *testing.T) {
	f := newCallbackFixture(t)

	_, err := NewAuthenticator(nil)
	require.Error(t, err)

	_, err = NewAuthenticator(&AuthenticatorConfig{CallbackPrivateKey: f.callbackKey, Logger: f.logger})
	require.ErrorContains(t, err, "co-signer public key or key set is required")

	_, err = NewAuthenticator(&AuthenticatorConfig{CosignerPublicKey: &f.cosignerKey.PublicKey, Logger: f.logger})
	require.ErrorContains(t, err, "callback private key is required")

	_, err = NewAuthenticator(&AuthenticatorConfig{
		CosignerPublicKey:  &f.cosignerKey.PublicKey,
		CosignerKeySet:     jwk.NewSet(),
		CallbackPrivateKey: f.callbackKey,
		Logger:             f.logger,
	})
	require.Error(t, err)
}

func TestBuildPlugins(t *testing.T) {
	f := newCallbackFixture(t)

	plugins, err := BuildPlugins([]string{PluginTxIDValidation, PluginExtraSignature}, PluginDeps{
		ExtraSignatureKey: &f.cosignerKey.PublicKey,
		TxIDStore:         NewMemoryTxIDStore(),
		Logger:            f.logger,
	})
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, []string{PluginTxIDValidation, PluginExtraSignature}, NewManager(f.logger, plugins...).Plugins())

	_, err = BuildPlugins([]string{"tx_policy"}, PluginDeps{})
	require.ErrorContains(t, err, "unknown plugin")

	_, err = BuildPlugins([]string{PluginTxPolicyValidation}, PluginDeps{})
	require.ErrorContains(t, err, "requires a policy engine")

	plugins, err = BuildPlugins([]string{PluginTxPolicyValidation}, PluginDeps{
		TxPolicyEngine: newPolicyEngine(t, f.logger, `{"policy":{"rules":[]}}`),
		Logger:         f.logger,
	})
	require.NoError(t, err)
	assert.Equal(t, PluginTxPolicyValidation, plugins[0].Name())

	_, err = BuildPlugins([]string{PluginTxIDValidation}, PluginDeps{})
	require.ErrorContains(t, err, "requires a transaction ID store")
}

func TestMemoryTxIDStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTxIDStore()

	ok, err := s.Contains(ctx, "tx-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, "tx-1"))
	ok, err = s.Contains(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Error(t, s.Add(ctx, ""))
}

func TestServer_StartReportsBusyPort(t *testing.T) {
	f := newCallbackFixture(t)
	a, err := NewAuthenticator(&AuthenticatorConfig{
		CosignerPublicKey:  &f.cosignerKey.PublicKey,
		CallbackPrivateKey: f.callbackKey,
		Logger:             f.logger,
	})
	require.NoError(t, err)

	first, err := NewServer(&ServerConfig{Port: 0, Authenticator: a, Logger: f.logger})
	require.NoError(t, err)
	require.NoError(t, first.Start())
	port := first.Addr().(*net.TCPAddr).Port

	second, err := NewServer(&ServerConfig{Port: port, Authenticator: a, Logger: f.logger})
	require.NoError(t, err)
	err = second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.Nil(t, second.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, first.Stop(ctx))

	select {
	case err, ok := <-first.Errors():
		assert.False(t, ok, "graceful stop reports no error, got %v", err)
	case <-ctx.Done():
		t.Fatal("errors channel was not closed after Stop")
	}
}

func newPolicyEngine(t *testing.T, l *zap.Logger, policyJSON string) *txpolicy.Engine {
	t.Helper()
	var policy types.ActivePolicy
	require.NoError(t, json.Unmarshal([]byte(policyJSON), &policy))
	e, err := txpolicy.NewEngine(&txpolicy.EngineConfig{Policy: &policy, Logger: l})
	require.NoError(t, err)
	return e
}

// policyTxClaims is a co-signer transfer request priced at 18.74 USD
func policyTxClaims(txID string) map[string]any {
	return map[string]any{
		"requestId":       txID,
		"txId":            txID,
		"operation":       "TRANSFER",
		"sourceType":      "VAULT",
		"sourceId":        "0",
		"destType":        "VAULT",
		"destId":          "1",
		"asset":           "ETH",
		"amount":          0.01,
		"amountStr":       "0.010000000000000000",
		"destAddressType": "WHITELISTED",
		"destAddress":     "0x5dC69B1Fbb13Bafd09af88a782F0F285772Ad5f8",
		"destinations": []map[string]any{{
			"amountNative":      0.01,
			"amountUSD":         18.74292937,
			"dstAddressType":    "WHITELISTED",
			"dstId":             "1",
			"dstSubType":        "",
			"dstType":           "VAULT",
			"displayDstAddress": "0x5dC69B1Fbb13Bafd09af88a782F0F285772Ad5f8",
		}},
	}
}

func TestServer_TxPolicyPlugin(t *testing.T) {
	f := newCallbackFixture(t)
	engine := newPolicyEngine(t, f.logger, `{"policy":{"rules":[
		{"transactionType":"TRANSFER","asset":"*","amount":20,"action":"BLOCK","src":{"ids":[["*"]]},"dst":{"ids":[["*"]]},
		 "dstAddressType":"*","amountCurrency":"USD","amountScope":"TIMEFRAME","periodSec":3600,
		 "amountAggregation":{"operators":"ACROSS_ALL_MATCHES","dstTransferPeers":"PER_SINGLE_MATCH","srcTransferPeers":"ACROSS_ALL_MATCHES"}},
		{"transactionType":"TRANSFER","asset":"*","amount":0,"action":"ALLOW","src":{"ids":[["*"]]},"dst":{"ids":[["*"]]},
		 "dstAddressType":"*","amountCurrency":"USD","amountScope":"SINGLE_TX","periodSec":0}
	]}}`)
	plugin, err := NewTxPolicyPlugin(engine, f.logger)
	require.NoError(t, err)
	h := f.server(t, nil, plugin)
	exp := time.Now().Add(time.Minute)

	resp := f.decodeResponse(t, f.post(t, h, PathTxSignRequest, cosignerToken(t, f.cosignerKey, policyTxClaims("tx-1"), exp)))
	assert.Equal(t, ActionApprove, resp.Action)

	resp = f.decodeResponse(t, f.post(t, h, PathTxSignRequest, cosignerToken(t, f.cosignerKey, policyTxClaims("tx-2"), exp)))
	assert.Equal(t, ActionReject, resp.Action)
	assert.Equal(t, DefaultRejectionReason, resp.RejectionReason)

	claims := policyTxClaims("tx-3")
	claims["operation"] = "TELEPORT"
	rec := f.post(t, h, PathTxSignRequest, cosignerToken(t, f.cosignerKey, claims, exp))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPolicyTransaction(t *testing.T) {
	now := time.Unix(1700000000, 0)
	req := &TxSignRequest{
		TxID:        "tx-1",
		Operation:   "TRANSFER",
		SourceType:  "VAULT",
		SourceID:    "0",
		DestType:    "EXCHANGE",
		DestID:      "ex-1",
		DestAddress: "addr-b",
		Asset:       "USDC",
		AmountStr:   "250.5",
		Destinations: []TxDestination{
			{AmountUSD: decimal.RequireFromString("100.25"), DisplayDstAddress: "addr-a", DstSubType: "BINANCE_US"},
			{AmountUSD: decimal.RequireFromString("150.25"), DisplayDstAddress: "addr-b", DstSubType: "BINANCE"},
		},
	}

	tx, err := policyTransaction(req, now)
	require.NoError(t, err)
	assert.Equal(t, "250.5", tx.Amount.String())
	assert.Equal(t, "250.5", tx.Volume.String())
	assert.Equal(t, "BINANCE", tx.DstSubType)
	assert.Equal(t, now, tx.Timestamp)

	req.AmountStr = ""
	_, err = policyTransaction(req, now)
	require.ErrorContains(t, err, "invalid amountStr")

	req.AmountStr = "1"
	req.Operation = "SWAP"
	_, err = policyTransaction(req, now)
	require.ErrorContains(t, err, "not supported")
}

package client

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/auth"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/logger"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/nonce/memory"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key"

// fakeAPI is an httptest server that verifies every request the way the
// real API does before routing it.
type fakeAPI struct {
	server *httptest.Server
	mux    *http.ServeMux

	mu     sync.Mutex
	tokens []string
}

func newFakeAPI(t *testing.T, key *rsa.PrivateKey) *fakeAPI {
	t.Helper()
	testLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(&key.PublicKey, memory.NewMemoryStore(), auth.WithVerifierLogger(testLogger))
	require.NoError(t, err)

	api := &fakeAPI{mux: http.NewServeMux()}
	record := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			api.mu.Lock()
			api.tokens = append(api.tokens, r.Header.Get(auth.HeaderAuthorization))
			api.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
	api.server = httptest.NewServer(record(verifier.Middleware(api.mux)))
	t.Cleanup(api.server.Close)
	return api
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := auth.NewSigner(auth.Identity{APIKey: testAPIKey, Key: key})
	require.NoError(t, err)

	api := newFakeAPI(t, key)
	testLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	c, err := NewClient(&ClientConfig{
		BaseURL: api.server.URL + "/",
		Signer:  signer,
		APIKey:  testAPIKey,
		Logger:  testLogger,
	})
	require.NoError(t, err)
	return c, api
}

func TestNewClient_Validation(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	signer := signerFunc(func(string, []byte) (string, error) { return "t", nil })

	tests := []struct {
		name    string
		config  *ClientConfig
		wantErr string
	}{
		{name: "nil config", config: nil, wantErr: "config cannot be nil"},
		{name: "missing signer", config: &ClientConfig{APIKey: "k", Logger: testLogger}, wantErr: "signer is required"},
		{name: "missing api key", config: &ClientConfig{Signer: signer, Logger: testLogger}, wantErr: "API key is required"},
		{name: "missing logger", config: &ClientConfig{Signer: signer, APIKey: "k"}, wantErr: "logger is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	c, err := NewClient(&ClientConfig{Signer: signer, APIKey: "k", Logger: testLogger})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())

	c, err = NewClient(&ClientConfig{BaseURL: SandboxBaseURL + "//", Signer: signer, APIKey: "k", Logger: testLogger})
	require.NoError(t, err)
	assert.Equal(t, SandboxBaseURL, c.BaseURL())
}

type signerFunc func(path string, body []byte) (string, error)

func (f signerFunc) Sign(path string, body []byte) (string, error) { return f(path, body) }

func TestClient_GetVaultAccountsPaged(t *testing.T) {
	c, api := newTestClient(t)

	api.mux.HandleFunc("/v1/vault/accounts_paged", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, testAPIKey, r.Header.Get(auth.HeaderAPIKey))
		assert.Empty(t, r.Header.Get("Content-Type"))
		assert.Equal(t, "limit=2&namePrefix=ops&orderBy=ASC", r.URL.RawQuery)

		writeJSON(w, http.StatusOK, `{
			"accounts": [
				{"id": "0", "name": "ops-main", "hiddenOnUI": false, "assets": [{"id": "BTC", "total": "1.5"}], "autoFuel": true}
			],
			"paging": {"after": "cursor-1"},
			"nextUrl": "https://api.fireblocks.io/v1/vault/accounts_paged?after=cursor-1"
		}`)
	})

	resp, err := c.GetVaultAccountsPaged(context.Background(), &VaultAccountsFilter{
		NamePrefix: "ops",
		OrderBy:    OrderAsc,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, resp.Accounts, 1)
	assert.Equal(t, "ops-main", resp.Accounts[0].Name)
	assert.True(t, resp.Accounts[0].AutoFuel)
	assert.Equal(t, "1.5", resp.Accounts[0].Assets[0].Total)
	require.NotNil(t, resp.Paging)
	assert.Equal(t, "cursor-1", *resp.Paging.After)
}

func TestClient_GetVaultAccount_NotFound(t *testing.T) {
	c, api := newTestClient(t)

	api.mux.HandleFunc("/v1/vault/accounts/999999", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message":"Vault account not found","code":1003}`)
	})

	_, err := c.GetVaultAccount(context.Background(), "999999")
	require.Error(t, err)

	var failure *RequestFailure
	require.True(t, errors.As(err, &failure), "got %T: %v", err, err)
	assert.Equal(t, http.StatusNotFound, failure.StatusCode)
	assert.Equal(t, "/v1/vault/accounts/999999", failure.Path)
	assert.Equal(t, http.MethodGet, failure.Method)
	assert.Contains(t, string(failure.Body), "Vault account not found")
}

func TestClient_CreateTransaction_SignsExactBody(t *testing.T) {
	c, api := newTestClient(t)

	var received []byte
	api.mux.HandleFunc("/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var err error
		received, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		claims, ok := auth.ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, auth.BodyHash(received), claims.BodyHash)
		assert.Equal(t, testAPIKey, claims.Subject)

		writeJSON(w, http.StatusOK, `{"id":"b70701f4-d7b1-4795-a8ee-b09cdb5b850d","status":"SUBMITTED"}`)
	})

	args := &types.TransactionArguments{
		AssetID:     "ETH_TEST5",
		Operation:   types.OperationTransfer,
		Source:      types.TransferPeerPath{Type: types.PeerVaultAccount, ID: "0"},
		Destination: &types.DestinationTransferPeerPath{Type: types.PeerVaultAccount, ID: "1"},
		Amount:      "1.0",
		Note:        "Sample transaction",
	}
	resp, err := c.CreateTransaction(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, "b70701f4-d7b1-4795-a8ee-b09cdb5b850d", resp.ID)
	assert.Equal(t, types.StatusSubmitted, resp.Status)

	expected, err := json.Marshal(args)
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(received))
}

func TestClient_CreateTransaction_RejectsInvalidOperation(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.CreateTransaction(context.Background(), &types.TransactionArguments{Operation: "SEND"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transaction operation")
}

func TestClient_RefreshVaultAssetBalance(t *testing.T) {
	c, api := newTestClient(t)

	var bodies []string
	api.mux.HandleFunc("/v1/vault/accounts/0/ETH/balance", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		writeJSON(w, http.StatusOK, `{"id":"ETH","total":"3.25","available":"3.25"}`)
	})

	asset, err := c.RefreshVaultAssetBalance(context.Background(), "0", "ETH", nil)
	require.NoError(t, err)
	assert.Equal(t, "3.25", asset.Total)

	key := "refresh-1"
	_, err = c.RefreshVaultAssetBalance(context.Background(), "0", "ETH", &types.RequestOptions{IdempotencyKey: &key})
	require.NoError(t, err)

	assert.Equal(t, []string{`{}`, `{"idempotencyKey":"refresh-1"}`}, bodies)
}

func TestClient_VaultAssetEndpoints(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	api.mux.HandleFunc("/v1/vault/accounts/0/BTC", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"BTC","total":"0.1","lockedAmount":"0"}`)
	})
	api.mux.HandleFunc("/v1/vault/accounts/0/BTC/addresses", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"assetId":"BTC","address":"bc1qxyz","type":"Permanent","addressFormat":"SEGWIT"}]`)
	})
	api.mux.HandleFunc("/v1/vault/accounts/0/BTC/unspent_inputs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"address":"bc1qxyz","input":{"txHash":"abcd","number":1},"amount":"0.1","confirmations":"6","status":"AVAILABLE"}]`)
	})

	asset, err := c.GetVaultAsset(ctx, "0", "BTC")
	require.NoError(t, err)
	assert.Equal(t, "0.1", asset.Total)

	addrs, err := c.GetDepositAddresses(ctx, "0", "BTC")
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "bc1qxyz", addrs[0].Address)

	utxos, err := c.GetUnspentInputs(ctx, "0", "BTC")
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	assert.Equal(t, int64(1), utxos[0].Input.Number)

	_, err = c.GetVaultAsset(ctx, "", "BTC")
	require.Error(t, err)
	_, err = c.GetDepositAddresses(ctx, "0", "")
	require.Error(t, err)
}

func TestClient_EscapesPathSegments(t *testing.T) {
	c, api := newTestClient(t)

	var seen string
	api.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.RequestURI()
		writeJSON(w, http.StatusOK, `{"id":"a b","name":"x","hiddenOnUI":false,"assets":[],"autoFuel":false}`)
	})

	_, err := c.GetVaultAccount(context.Background(), "a b")
	require.NoError(t, err)
	assert.Equal(t, "/v1/vault/accounts/a%20b", seen)
}

func TestClient_SupportedAssetsAndAssetWallets(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	api.mux.HandleFunc("/v1/supported_assets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"id":"ETH","name":"Ether","type":"BASE_ASSET","contractAddress":"","nativeAsset":"ETH","decimals":18}]`)
	})
	api.mux.HandleFunc("/v1/vault/asset_wallets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "assetId=ETH", r.URL.RawQuery)
		writeJSON(w, http.StatusOK, `{"assetWallets":[{"vaultId":"0","assetId":"ETH","total":"1","available":"1","pending":"0","staked":"0","frozen":"0","lockedAmount":"0","blockHeight":"100","blockHash":"0xabc","creationTime":"1700000000"}],"paging":{}}`)
	})

	assets, err := c.GetSupportedAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.NotNil(t, assets[0].Decimals)
	assert.Equal(t, int64(18), *assets[0].Decimals)

	wallets, err := c.GetAssetWallets(ctx, &AssetWalletsFilter{AssetID: "ETH"})
	require.NoError(t, err)
	require.Len(t, wallets.AssetWallets, 1)
	assert.Equal(t, "100", wallets.AssetWallets[0].BlockHeight)
}

func TestClient_GetTransaction_DecodeErrors(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	api.mux.HandleFunc("/v1/transactions/unknown-status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"t1","assetId":"ETH","txHash":"","status":"TELEPORTED","subStatus":"","signedMessages":[]}`)
	})
	api.mux.HandleFunc("/v1/transactions/garbage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `<html>oops</html>`)
	})
	api.mux.HandleFunc("/v1/transactions/ok", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"ok","assetId":"ETH","txHash":"0x1","status":"COMPLETED","subStatus":"CONFIRMED","signedMessages":[{"content":"aa","algorithm":"MPC_ECDSA_SECP256K1","derivationPath":[44,60,0,0,0],"signature":{"fullSig":"ff","r":"1","s":"2","v":0},"publicKey":"02ab"}]}`)
	})

	for _, id := range []string{"unknown-status", "garbage"} {
		_, err := c.GetTransaction(ctx, id)
		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr), "id %s: got %T: %v", id, err, err)
		assert.NotEmpty(t, decodeErr.Body)
	}

	tx, err := c.GetTransaction(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, tx.Status)
	assert.Equal(t, []uint32{44, 60, 0, 0, 0}, tx.SignedMessages[0].DerivationPath)
}

func TestClient_GetTransaction_RejectsIncompleteBodies(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	bodies := map[string]string{
		"missing-status": `{"id":"tx-1"}`,
		"null-body":      `null`,
		"missing-id":     `{"status":"COMPLETED"}`,
		"empty-object":   `{}`,
	}
	for id, body := range bodies {
		body := body
		api.mux.HandleFunc("/v1/transactions/"+id, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, body)
		})
	}

	for id, body := range bodies {
		t.Run(id, func(t *testing.T) {
			tx, err := c.GetTransaction(ctx, id)
			require.Error(t, err)
			assert.Nil(t, tx)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %T: %v", err, err)
			assert.Equal(t, body, string(decodeErr.Body))
		})
	}
}

func TestClient_FreshTokenPerRequest(t *testing.T) {
	c, api := newTestClient(t)
	api.mux.HandleFunc("/v1/supported_assets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetSupportedAssets(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.tokens, 10)
	unique := make(map[string]struct{})
	for _, tok := range api.tokens {
		unique[tok] = struct{}{}
	}
	assert.Len(t, unique, 10)
}

func TestClient_TransportError(t *testing.T) {
	c, api := newTestClient(t)
	api.server.Close()

	_, err := c.GetSupportedAssets(context.Background())
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr), "got %T: %v", err, err)
	assert.Equal(t, "/v1/supported_assets", transportErr.Path)
}

func TestClient_SigningErrorIsReturnedUnchanged(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	signErr := &auth.SigningError{Op: "sign token", Err: errors.New("bad key")}

	c, err := NewClient(&ClientConfig{
		BaseURL: "http://127.0.0.1:1",
		Signer:  signerFunc(func(string, []byte) (string, error) { return "", signErr }),
		APIKey:  testAPIKey,
		Logger:  testLogger,
	})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/v1/vault/accounts")
	var got *auth.SigningError
	require.True(t, errors.As(err, &got))
	assert.Same(t, signErr, got)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	var calls int
	c, err := NewClient(&ClientConfig{
		BaseURL: "http://127.0.0.1:1",
		Signer: signerFunc(func(string, []byte) (string, error) {
			calls++
			return "t", nil
		}),
		APIKey:    testAPIKey,
		Logger:    testLogger,
		RateLimit: 0.001,
		RateBurst: 1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Get(ctx, "/v1/vault/accounts")
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Zero(t, calls, "nothing is signed while waiting for a slot")
}

func TestDecodeJSON(t *testing.T) {
	v, err := DecodeJSON[types.CreateTransactionResponse]([]byte(`{"id":"1","status":"QUEUED"}`))
	require.NoError(t, err)
	assert.Equal(t, types.StatusQueued, v.Status)

	_, err = DecodeJSON[types.CreateTransactionResponse]([]byte(`{"id":`))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, `{"id":`, string(decodeErr.Body))

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "null", body: "null", wantErr: "empty or null"},
		{name: "padded null", body: " null\n", wantErr: "empty or null"},
		{name: "empty", body: "", wantErr: "empty or null"},
		{name: "missing status", body: `{"id":"1"}`, wantErr: "invalid transaction status"},
		{name: "missing id", body: `{"status":"QUEUED"}`, wantErr: "transaction id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON[types.CreateTransactionResponse]([]byte(tt.body))
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %T: %v", err, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	// Slices and types without required fields decode as before
	assets, err := DecodeJSON[[]types.AssetType]([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, assets)

	_, err = DecodeJSON[types.PagedVaultAccountsResponse]([]byte(`{"accounts":[{"name":"no-id"}]}`))
	require.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, err.Error(), "vault account id is required")
}

func TestClient_PolicyEndpoints(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	api.mux.HandleFunc("/v1/tap/active_policy", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(w, http.StatusOK, `{
			"policy": {"rules": [
				{"type":"TRANSFER","transactionType":"TRANSFER","asset":"*","amount":"250.5","operators":{"wildcard":"*"},
				 "action":"BLOCK","src":{"ids":[["0","VAULT"]]},"dst":{"ids":[["*"]]},"dstAddressType":"*",
				 "amountCurrency":"USD","amountScope":"TIMEFRAME","periodSec":3600,
				 "amountAggregation":{"operators":"ACROSS_ALL_MATCHES","srcTransferPeers":"PER_SINGLE_MATCH","dstTransferPeers":"ACROSS_ALL_MATCHES"}}
			]},
			"checksum": "abc",
			"lastUpdate": 1700000000
		}`)
	})
	api.mux.HandleFunc("/v1/management/user_groups", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[
			{"id":"g1","name":"treasury","status":"ACTIVE","memberIds":["u1","u2"]},
			{"id":"g2","name":"legacy","status":"PENDING_APPROVAL","memberIds":["u3"]}
		]`)
	})

	policy, err := c.GetActivePolicy(ctx)
	require.NoError(t, err)
	require.Len(t, policy.Policy.Rules, 1)
	rule := policy.Policy.Rules[0]
	assert.Equal(t, "250.5", rule.Amount.String())
	assert.Equal(t, int64(3600), rule.PeriodSec)
	assert.Equal(t, [][]string{{"0", "VAULT"}}, rule.Src.IDs)
	require.NotNil(t, rule.AmountAggregation)
	assert.Equal(t, "PER_SINGLE_MATCH", rule.AmountAggregation.SrcTransferPeers)

	groups, err := c.GetUserGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, map[string][]string{"g1": {"u1", "u2"}}, types.ActiveGroupMembers(groups))
}

func TestClient_PolicyEndpoints_DecodeErrors(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	api.mux.HandleFunc("/v1/tap/active_policy", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"checksum":"abc"}`)
	})
	api.mux.HandleFunc("/v1/management/user_groups", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"name":"no-id","status":"ACTIVE"}]`)
	})

	var decodeErr *DecodeError
	_, err := c.GetActivePolicy(ctx)
	require.True(t, errors.As(err, &decodeErr), "got %T: %v", err, err)
	_, err = c.GetUserGroups(ctx)
	require.True(t, errors.As(err, &decodeErr), "got %T: %v", err, err)
	assert.Contains(t, err.Error(), "user group id is required")
}

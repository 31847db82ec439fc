package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/types"
)

const (
	pathVaultAccounts      = "/v1/vault/accounts"
	pathVaultAccountsPaged = "/v1/vault/accounts_paged"
	pathAssetWallets       = "/v1/vault/asset_wallets"
	pathSupportedAssets    = "/v1/supported_assets"
	pathTransactions       = "/v1/transactions"
	pathActivePolicy       = "/v1/tap/active_policy"
	pathUserGroups         = "/v1/management/user_groups"
)

// getJSON fetches path and decodes the response into T
func getJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	body, err := c.Get(ctx, path)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeJSON[T](body)
}

func postJSON[T any](ctx context.Context, c *Client, path string, payload any) (T, error) {
	body, err := c.Post(ctx, path, payload)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeJSON[T](body)
}

// vaultAssetPath builds /v1/vault/accounts/{vaultID}/{assetID} with both
// segments escaped.
func vaultAssetPath(vaultID, assetID string) (string, error) {
	if vaultID == "" {
		return "", fmt.Errorf("vault ID is required")
	}
	if assetID == "" {
		return "", fmt.Errorf("asset ID is required")
	}
	return fmt.Sprintf("%s/%s/%s", pathVaultAccounts, url.PathEscape(vaultID), url.PathEscape(assetID)), nil
}

// GetVaultAccountsPaged lists vault accounts one page at a time
func (c *Client) GetVaultAccountsPaged(ctx context.Context, filter *VaultAccountsFilter) (*types.PagedVaultAccountsResponse, error) {
	resp, err := getJSON[types.PagedVaultAccountsResponse](ctx, c, withQuery(pathVaultAccountsPaged, filter.query()))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetVaultAccount fetches a single vault account
func (c *Client) GetVaultAccount(ctx context.Context, vaultID string) (*types.VaultAccount, error) {
	if vaultID == "" {
		return nil, fmt.Errorf("vault ID is required")
	}
	resp, err := getJSON[types.VaultAccount](ctx, c, pathVaultAccounts+"/"+url.PathEscape(vaultID))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetVaultAsset fetches the balance of one asset in a vault account
func (c *Client) GetVaultAsset(ctx context.Context, vaultID, assetID string) (*types.VaultAsset, error) {
	path, err := vaultAssetPath(vaultID, assetID)
	if err != nil {
		return nil, err
	}
	resp, err := getJSON[types.VaultAsset](ctx, c, path)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetDepositAddresses(ctx context.Context, vaultID, assetID string) ([]types.DepositAddress, error) {
	path, err := vaultAssetPath(vaultID, assetID)
	if err != nil {
		return nil, err
	}
	return getJSON[[]types.DepositAddress](ctx, c, path+"/addresses")
}

// GetUnspentInputs lists the UTXOs of a vault asset. Only meaningful for
// UTXO based assets.
func (c *Client) GetUnspentInputs(ctx context.Context, vaultID, assetID string) ([]types.UnspentInput, error) {
	path, err := vaultAssetPath(vaultID, assetID)
	if err != nil {
		return nil, err
	}
	return getJSON[[]types.UnspentInput](ctx, c, path+"/unspent_inputs")
}

func (c *Client) GetSupportedAssets(ctx context.Context) ([]types.AssetType, error) {
	return getJSON[[]types.AssetType](ctx, c, pathSupportedAssets)
}

// GetAssetWallets lists (vault, asset) balances across the workspace
func (c *Client) GetAssetWallets(ctx context.Context, filter *AssetWalletsFilter) (*types.AssetWalletsResponse, error) {
	resp, err := getJSON[types.AssetWalletsResponse](ctx, c, withQuery(pathAssetWallets, filter.query()))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshVaultAssetBalance asks the API to re-read a vault asset balance from
// chain. opts is sent as the request body; nil sends "{}".
func (c *Client) RefreshVaultAssetBalance(ctx context.Context, vaultID, assetID string, opts *types.RequestOptions) (*types.VaultAsset, error) {
	path, err := vaultAssetPath(vaultID, assetID)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &types.RequestOptions{}
	}
	resp, err := postJSON[types.VaultAsset](ctx, c, path+"/balance", opts)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateVaultAccount(ctx context.Context, req *types.CreateVaultRequest) (*types.VaultAccount, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if req.Name == "" {
		return nil, fmt.Errorf("vault name is required")
	}

	c.logger.Sugar().Infow("Creating vault account", "name", req.Name)
	resp, err := postJSON[types.VaultAccount](ctx, c, pathVaultAccounts, req)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateTransaction submits a new transaction
func (c *Client) CreateTransaction(ctx context.Context, args *types.TransactionArguments) (*types.CreateTransactionResponse, error) {
	if args == nil {
		return nil, fmt.Errorf("transaction arguments cannot be nil")
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	c.logger.Sugar().Infow("Creating transaction",
		"asset_id", args.AssetID,
		"operation", args.Operation,
		"source_type", args.Source.Type,
		"source_id", args.Source.ID,
	)
	resp, err := postJSON[types.CreateTransactionResponse](ctx, c, pathTransactions, args)
	if err != nil {
		return nil, err
	}
	c.logger.Sugar().Infow("Transaction submitted", "tx_id", resp.ID, "status", resp.Status)
	return &resp, nil
}

func (c *Client) GetTransaction(ctx context.Context, txID string) (*types.TransactionDetails, error) {
	if txID == "" {
		return nil, fmt.Errorf("transaction ID is required")
	}
	resp, err := getJSON[types.TransactionDetails](ctx, c, pathTransactions+"/"+url.PathEscape(txID))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetActivePolicy fetches the workspace's active transaction authorization
// policy.
func (c *Client) GetActivePolicy(ctx context.Context) (*types.ActivePolicy, error) {
	resp, err := getJSON[types.ActivePolicy](ctx, c, pathActivePolicy)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetUserGroups(ctx context.Context) ([]types.UserGroup, error) {
	groups, err := getJSON[types.UserGroups](ctx, c, pathUserGroups)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

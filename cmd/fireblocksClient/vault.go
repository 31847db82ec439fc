package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/client"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/types"
)

func vaultIDFlag() cli.Flag {
	return &cli.StringFlag{Name: "vault-id", Usage: "Vault account ID", Required: true}
}

func assetIDFlag() cli.Flag {
	return &cli.StringFlag{Name: "asset-id", Usage: "Asset ID, e.g. BTC or ETH", Required: true}
}

func pagingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "order-by", Usage: "ASC or DESC"},
		&cli.StringFlag{Name: "before", Usage: "Cursor of the previous page"},
		&cli.StringFlag{Name: "after", Usage: "Cursor of the next page"},
		&cli.IntFlag{Name: "limit", Usage: "Page size"},
	}
}

func vaultCommand() *cli.Command {
	return &cli.Command{
		Name:  "vault",
		Usage: "Vault accounts and their assets",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List vault accounts page by page",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "name-prefix", Usage: "Only accounts whose name starts with this"},
					&cli.StringFlag{Name: "name-suffix", Usage: "Only accounts whose name ends with this"},
					&cli.Float64Flag{Name: "min-amount", Usage: "Only accounts holding at least this amount"},
					&cli.StringFlag{Name: "asset-id", Usage: "Only accounts holding this asset"},
				}, pagingFlags()...),
				Action: listVaultAccountsCommand,
			},
			{
				Name:  "get",
				Usage: "Get a vault account",
				Flags: []cli.Flag{vaultIDFlag()},
				Action: func(c *cli.Context) error {
					cl, err := createClient(c)
					if err != nil {
						return err
					}
					account, err := cl.GetVaultAccount(c.Context, c.String("vault-id"))
					if err != nil {
						return fmt.Errorf("failed to get vault account: %w", err)
					}
					return printJSON(account)
				},
			},
			{
				Name:  "create",
				Usage: "Create a vault account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Account name", Required: true},
					&cli.BoolFlag{Name: "hidden", Usage: "Hide the account in the console"},
					&cli.StringFlag{Name: "customer-ref-id", Usage: "Customer reference ID for AML providers"},
					&cli.BoolFlag{Name: "auto-fuel", Usage: "Enable gas station auto fuel"},
				},
				Action: createVaultAccountCommand,
			},
			{
				Name:   "asset",
				Usage:  "Get the balance of one asset in a vault account",
				Flags:  []cli.Flag{vaultIDFlag(), assetIDFlag()},
				Action: vaultAssetAction(getVaultAsset),
			},
			{
				Name:   "refresh-balance",
				Usage:  "Refresh the balance of one asset in a vault account",
				Flags:  []cli.Flag{vaultIDFlag(), assetIDFlag(), &cli.StringFlag{Name: "idempotency-key", Usage: "Idempotency key for the request"}},
				Action: vaultAssetAction(refreshVaultAsset),
			},
			{
				Name:   "deposit-addresses",
				Usage:  "List deposit addresses of an asset in a vault account",
				Flags:  []cli.Flag{vaultIDFlag(), assetIDFlag()},
				Action: vaultAssetAction(getDepositAddresses),
			},
			{
				Name:   "unspent-inputs",
				Usage:  "List unspent inputs (UTXOs) of an asset in a vault account",
				Flags:  []cli.Flag{vaultIDFlag(), assetIDFlag()},
				Action: vaultAssetAction(getUnspentInputs),
			},
			{
				Name:  "asset-wallets",
				Usage: "List asset wallets across all vault accounts",
				Flags: append([]cli.Flag{
					&cli.Float64Flag{Name: "total-larger-than", Usage: "Only wallets holding more than this amount"},
					&cli.StringFlag{Name: "asset-id", Usage: "Only wallets of this asset"},
				}, pagingFlags()...),
				Action: listAssetWalletsCommand,
			},
		},
	}
}

type vaultAssetFunc func(c *cli.Context, cl *client.Client, vaultID, assetID string) (any, error)

func vaultAssetAction(fn vaultAssetFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		cl, err := createClient(c)
		if err != nil {
			return err
		}
		out, err := fn(c, cl, c.String("vault-id"), c.String("asset-id"))
		if err != nil {
			return err
		}
		return printJSON(out)
	}
}

func getVaultAsset(c *cli.Context, cl *client.Client, vaultID, assetID string) (any, error) {
	asset, err := cl.GetVaultAsset(c.Context, vaultID, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get vault asset: %w", err)
	}
	return asset, nil
}

func refreshVaultAsset(c *cli.Context, cl *client.Client, vaultID, assetID string) (any, error) {
	var opts *types.RequestOptions
	if key := c.String("idempotency-key"); key != "" {
		opts = &types.RequestOptions{IdempotencyKey: &key}
	}
	asset, err := cl.RefreshVaultAssetBalance(c.Context, vaultID, assetID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh vault asset balance: %w", err)
	}
	return asset, nil
}

func getDepositAddresses(c *cli.Context, cl *client.Client, vaultID, assetID string) (any, error) {
	addrs, err := cl.GetDepositAddresses(c.Context, vaultID, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit addresses: %w", err)
	}
	return addrs, nil
}

func getUnspentInputs(c *cli.Context, cl *client.Client, vaultID, assetID string) (any, error) {
	inputs, err := cl.GetUnspentInputs(c.Context, vaultID, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unspent inputs: %w", err)
	}
	return inputs, nil
}

func listVaultAccountsCommand(c *cli.Context) error {
	cl, err := createClient(c)
	if err != nil {
		return err
	}

	filter := &client.VaultAccountsFilter{
		NamePrefix: c.String("name-prefix"),
		NameSuffix: c.String("name-suffix"),
		AssetID:    c.String("asset-id"),
		OrderBy:    client.OrderBy(c.String("order-by")),
		Before:     c.String("before"),
		After:      c.String("after"),
		Limit:      c.Int("limit"),
	}
	if c.IsSet("min-amount") {
		v := c.Float64("min-amount")
		filter.MinAmountThreshold = &v
	}

	page, err := cl.GetVaultAccountsPaged(c.Context, filter)
	if err != nil {
		return fmt.Errorf("failed to list vault accounts: %w", err)
	}
	return printJSON(page)
}

func listAssetWalletsCommand(c *cli.Context) error {
	cl, err := createClient(c)
	if err != nil {
		return err
	}

	filter := &client.AssetWalletsFilter{
		AssetID: c.String("asset-id"),
		OrderBy: client.OrderBy(c.String("order-by")),
		Before:  c.String("before"),
		After:   c.String("after"),
		Limit:   c.Int("limit"),
	}
	if c.IsSet("total-larger-than") {
		v := c.Float64("total-larger-than")
		filter.TotalAmountLargerThan = &v
	}

	wallets, err := cl.GetAssetWallets(c.Context, filter)
	if err != nil {
		return fmt.Errorf("failed to list asset wallets: %w", err)
	}
	return printJSON(wallets)
}

func createVaultAccountCommand(c *cli.Context) error {
	cl, err := createClient(c)
	if err != nil {
		return err
	}

	req := &types.CreateVaultRequest{
		Name:       c.String("name"),
		HiddenOnUI: c.Bool("hidden"),
		AutoFuel:   c.Bool("auto-fuel"),
	}
	if ref := c.String("customer-ref-id"); ref != "" {
		req.CustomerRefID = &ref
	}

	account, err := cl.CreateVaultAccount(c.Context, req)
	if err != nil {
		return fmt.Errorf("failed to create vault account: %w", err)
	}
	fmt.Printf("✅ Created vault account %s\n", account.ID)
	return printJSON(account)
}

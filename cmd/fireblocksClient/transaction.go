package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/client"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/types"
)

func transactionCommand() *cli.Command {
	return &cli.Command{
		Name:    "transaction",
		Aliases: []string{"tx"},
		Usage:   "Create and inspect transactions",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Submit a transaction",
				Flags: []cli.Flag{
					assetIDFlag(),
					&cli.StringFlag{Name: "amount", Usage: "Amount as a decimal string", Required: true},
					&cli.StringFlag{Name: "operation", Usage: "Transaction operation", Value: string(types.OperationTransfer)},
					&cli.StringFlag{Name: "source-type", Usage: "Source peer type", Value: string(types.PeerVaultAccount)},
					&cli.StringFlag{Name: "source-id", Usage: "Source peer ID", Required: true},
					&cli.StringFlag{Name: "dest-type", Usage: "Destination peer type", Value: string(types.PeerVaultAccount)},
					&cli.StringFlag{Name: "dest-id", Usage: "Destination peer ID"},
					&cli.StringFlag{Name: "dest-address", Usage: "Destination address for ONE_TIME_ADDRESS"},
					&cli.StringFlag{Name: "dest-tag", Usage: "Destination tag or memo for ONE_TIME_ADDRESS"},
					&cli.StringFlag{Name: "note", Usage: "Free text note"},
					&cli.StringFlag{Name: "external-tx-id", Usage: "Caller supplied unique transaction ID"},
					&cli.BoolFlag{Name: "wait", Usage: "Poll until the transaction reaches a final status"},
					&cli.DurationFlag{Name: "poll-interval", Usage: "Interval between polls with --wait", Value: 5 * time.Second},
				},
				Action: createTransactionCommand,
			},
			{
				Name:  "get",
				Usage: "Get a transaction by ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tx-id", Usage: "Transaction ID", Required: true},
				},
				Action: func(c *cli.Context) error {
					cl, err := createClient(c)
					if err != nil {
						return err
					}
					tx, err := cl.GetTransaction(c.Context, c.String("tx-id"))
					if err != nil {
						return fmt.Errorf("failed to get transaction: %w", err)
					}
					return printJSON(tx)
				},
			},
		},
	}
}

func parseTransactionArguments(c *cli.Context) (*types.TransactionArguments, error) {
	args := &types.TransactionArguments{
		AssetID:   c.String("asset-id"),
		Operation: types.TransactionOperation(c.String("operation")),
		Source: types.TransferPeerPath{
			Type: types.PeerType(c.String("source-type")),
			ID:   c.String("source-id"),
		},
		Amount: c.String("amount"),
		Note:   c.String("note"),
	}

	dest := &types.DestinationTransferPeerPath{
		Type: types.PeerType(c.String("dest-type")),
		ID:   c.String("dest-id"),
	}
	if addr := c.String("dest-address"); addr != "" {
		dest.Type = types.PeerOneTimeAddress
		dest.ID = ""
		dest.OneTimeAddress = &types.OneTimeAddress{Address: addr}
		if tag := c.String("dest-tag"); tag != "" {
			dest.OneTimeAddress.Tag = &tag
		}
	}
	if dest.ID != "" || dest.OneTimeAddress != nil {
		args.Destination = dest
	}

	if ext := c.String("external-tx-id"); ext != "" {
		args.ExternalTxID = &ext
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	return args, nil
}

func createTransactionCommand(c *cli.Context) error {
	args, err := parseTransactionArguments(c)
	if err != nil {
		return err
	}

	cl, err := createClient(c)
	if err != nil {
		return err
	}

	res, err := cl.CreateTransaction(c.Context, args)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	fmt.Printf("✅ Submitted transaction %s (%s)\n", res.ID, res.Status)

	if !c.Bool("wait") {
		return printJSON(res)
	}

	tx, err := waitForFinalStatus(c, cl, res.ID, c.Duration("poll-interval"))
	if err != nil {
		return err
	}
	return printJSON(tx)
}

// waitForFinalStatus polls a transaction until its status is final or the
// command's context ends. Each poll is a freshly signed request.
func waitForFinalStatus(c *cli.Context, cl *client.Client, txID string, interval time.Duration) (*types.TransactionDetails, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		tx, err := cl.GetTransaction(c.Context, txID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll transaction %s: %w", txID, err)
		}
		if tx.Status.IsFinal() {
			return tx, nil
		}
		fmt.Printf("⏳ Transaction %s is %s\n", txID, tx.Status)

		select {
		case <-c.Context.Done():
			return nil, c.Context.Err()
		case <-ticker.C:
		}
	}
}

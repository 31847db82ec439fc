package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/urfave/cli/v2"

	internalAws "github.com/Layr-Labs/fireblocks-api-go/internal/aws"
	"github.com/Layr-Labs/fireblocks-api-go/internal/keysource/awsKms"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/auth"
)

const defaultKeyBits = 4096

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Create and inspect API user keys",
		Subcommands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Generate an RSA key pair on disk",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out-dir", Usage: "Directory for the key files", Value: "."},
					&cli.StringFlag{Name: "name", Usage: "File name prefix", Value: "fireblocks"},
					&cli.IntFlag{Name: "bits", Usage: "RSA modulus size", Value: defaultKeyBits},
				},
				Action: generateKeysCommand,
			},
			{
				Name:  "kms-create",
				Usage: "Create an RSA signing key in AWS KMS",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Key name tag", Required: true},
					&cli.StringFlag{Name: "alias", Usage: "Alias to attach, without the alias/ prefix"},
				},
				Action: createKMSKeyCommand,
			},
			{
				Name:  "kms-public-key",
				Usage: "Print the PEM public key of a KMS signing key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key-id", Usage: "KMS key ID or alias", Required: true},
				},
				Action: kmsPublicKeyCommand,
			},
			{
				Name:   "whoami",
				Usage:  "Show the AWS principal the loaded credentials resolve to",
				Action: whoamiCommand,
			},
		},
	}
}

func generateKeysCommand(c *cli.Context) error {
	privPEM, pubPEM, err := auth.GenerateKeyPair(c.Int("bits"))
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	outDir := c.String("out-dir")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	privPath := filepath.Join(outDir, c.String("name")+"_secret.key")
	pubPath := filepath.Join(outDir, c.String("name")+"_public.pem")
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	fmt.Printf("✅ Private key written to: %s\n", privPath)
	fmt.Printf("✅ Public key written to: %s\n", pubPath)
	return nil
}

func loadAWS(c *cli.Context) (aws.Config, error) {
	return internalAws.LoadConfig(c.Context, c.String("aws-region"))
}

func createKMSKeyCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	awsCfg, err := loadAWS(c)
	if err != nil {
		return err
	}

	keyID, err := awsKms.CreateSigningKey(c.Context, kms.NewFromConfig(awsCfg), c.String("name"), c.String("alias"), l)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Created KMS key: %s\n", keyID)
	return nil
}

func kmsPublicKeyCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	awsCfg, err := loadAWS(c)
	if err != nil {
		return err
	}

	signer, err := awsKms.NewKMSSigner(c.Context, kms.NewFromConfig(awsCfg), c.String("key-id"), l)
	if err != nil {
		return err
	}
	pub, err := auth.RSAPublicKey(signer)
	if err != nil {
		return err
	}
	pemBytes, err := auth.EncodeRSAPublicKeyPEM(pub)
	if err != nil {
		return err
	}
	fmt.Print(string(pemBytes))
	return nil
}

func whoamiCommand(c *cli.Context) error {
	awsCfg, err := loadAWS(c)
	if err != nil {
		return err
	}
	id, err := internalAws.WhoAmI(c.Context, awsCfg)
	if err != nil {
		return err
	}
	fmt.Print(id.String())
	return nil
}

package aws

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pkg/errors"
)

// Inside a pod the service account token drives IRSA credentials and no
// shared profile is consulted.
const serviceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// LoadConfig resolves the AWS configuration used to reach the KMS signing
// key. region overrides AWS_REGION when set.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	return loadConfig(ctx, region, fileExists(serviceAccountTokenPath), os.Getenv("AWS_PROFILE"))
}

func loadConfig(ctx context.Context, region string, inCluster bool, profile string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, loadOptions(region, inCluster, profile)...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "failed to load AWS config for KMS signing")
	}
	return cfg, nil
}

func loadOptions(region string, inCluster bool, profile string) []func(*config.LoadOptions) error {
	var opts []func(*config.LoadOptions) error
	if !inCluster {
		if profile == "" {
			profile = "default"
		}
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	return opts
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CallerIdentity is the AWS principal that will sign API requests through KMS
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
	Region  string
}

func (c *CallerIdentity) String() string {
	return fmt.Sprintf("Account: %s\nARN:     %s\nUser:    %s\nRegion:  %s\n", c.Account, c.ARN, c.UserID, c.Region)
}

// identityAPI is the slice of the STS client WhoAmI needs
type identityAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// WhoAmI asks STS which principal cfg's credentials resolve to
func WhoAmI(ctx context.Context, cfg aws.Config) (*CallerIdentity, error) {
	return whoAmI(ctx, sts.NewFromConfig(cfg), cfg.Region)
}

func whoAmI(ctx context.Context, api identityAPI, region string) (*CallerIdentity, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve the KMS signing principal")
	}
	return &CallerIdentity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
		Region:  region,
	}, nil
}

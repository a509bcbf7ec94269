package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the AWS client surface used by the provider
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads secrets from AWS Secrets Manager
type AWSProvider struct {
	client SecretsManagerAPI
	prefix string
}

// NewAWSProvider creates a Secrets Manager provider using the default AWS
// credential chain. prefix is prepended to every secret name.
func NewAWSProvider(ctx context.Context, region, prefix string) (*AWSProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSProvider{
		client: secretsmanager.NewFromConfig(cfg),
		prefix: prefix,
	}, nil
}

// NewAWSProviderWithClient creates a provider around an existing client.
// Used by tests.
func NewAWSProviderWithClient(client SecretsManagerAPI, prefix string) *AWSProvider {
	return &AWSProvider{client: client, prefix: prefix}
}

// GetSecret fetches a secret value. A missing secret is not an error; any
// other backend failure is.
func (p *AWSProvider) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.prefix + name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to fetch secret %q: %w", name, err)
	}
	return aws.ToString(out.SecretString), nil
}

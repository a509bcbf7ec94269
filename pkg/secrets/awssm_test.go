package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// fakeSecretsManager serves canned secrets keyed by full secret ID
type fakeSecretsManager struct {
	secrets map[string]string
	err     error
	lastID  string
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.lastID = aws.ToString(params.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.secrets[f.lastID]
	if !ok {
		return nil, &types.ResourceNotFoundException{}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value)}, nil
}

func TestAWSProviderGetSecret(t *testing.T) {
	fake := &fakeSecretsManager{secrets: map[string]string{
		"meridian/signing-key": "pem-data",
	}}
	p := NewAWSProviderWithClient(fake, "meridian/")

	got, err := p.GetSecret(context.Background(), "signing-key")
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if got != "pem-data" {
		t.Errorf("GetSecret() = %q", got)
	}
	if fake.lastID != "meridian/signing-key" {
		t.Errorf("secret ID = %q, prefix not applied", fake.lastID)
	}
}

func TestAWSProviderMissingSecret(t *testing.T) {
	p := NewAWSProviderWithClient(&fakeSecretsManager{}, "")

	got, err := p.GetSecret(context.Background(), "absent")
	if err != nil {
		t.Fatalf("GetSecret() error = %v, not-found must be an absence", err)
	}
	if got != "" {
		t.Errorf("GetSecret() = %q, want empty", got)
	}
}

func TestAWSProviderBackendFailure(t *testing.T) {
	backendErr := errors.New("throttled")
	p := NewAWSProviderWithClient(&fakeSecretsManager{err: backendErr}, "")

	_, err := p.GetSecret(context.Background(), "signing-key")
	if !errors.Is(err, backendErr) {
		t.Errorf("GetSecret() error = %v, want wrapped backend error", err)
	}
}

// Package secrets abstracts the managed secret backend the signing-key and
// exchange-validation layers read from. Not-found is an absence (empty value,
// no error); transient backend failures are returned as errors so the caller
// can decide whether they are fatal.
package secrets

import (
	"context"
	"os"
	"strings"
)

// Provider fetches named secrets from a backend.
// GetSecret returns ("", nil) when the secret does not exist.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// EnvProvider reads secrets from environment variables. The secret name is
// upper-cased and non-alphanumeric runes become underscores, so
// "meridian/signing-key" resolves from MERIDIAN_SIGNING_KEY.
type EnvProvider struct {
	Prefix string
}

// GetSecret reads the mapped environment variable
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	if p.Prefix != "" {
		key = p.Prefix + key
	}
	return os.Getenv(key), nil
}

// StaticProvider serves secrets from a fixed map. Test backend.
type StaticProvider struct {
	Secrets map[string]string
	// Err, when set, is returned for every lookup to simulate backend failure
	Err error
}

// GetSecret returns the mapped value, or "" when absent
func (p *StaticProvider) GetSecret(ctx context.Context, name string) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	return p.Secrets[name], nil
}

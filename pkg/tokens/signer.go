package tokens

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/secrets"
)

// ErrNoSigningKey is returned when no signing key could be resolved and the
// environment forbids an ephemeral fallback.
var ErrNoSigningKey = errors.New("no signing key available")

// SigningKey is a resolved asymmetric signing credential
type SigningKey struct {
	Private *rsa.PrivateKey
	KeyID   string
	// Ephemeral marks a key generated at startup. Tokens signed with it
	// become unverifiable across restarts; allowed outside production only.
	Ephemeral bool
}

// Public returns the verification half of the key
func (k *SigningKey) Public() *rsa.PublicKey {
	return &k.Private.PublicKey
}

// KeyProvider resolves the process signing key. Implementations cache the key
// for the process lifetime; rotation means swapping the provider.
type KeyProvider interface {
	SigningKey(ctx context.Context) (*SigningKey, error)
}

// KeyConfig controls signing-key resolution order:
// vault secret, inline PEM, PEM file path, ephemeral (development only).
type KeyConfig struct {
	VaultSecretName string
	InlinePEM       string
	PEMPath         string
	Production      bool
}

// ChainKeyProvider resolves the signing key through the configured source
// chain and caches the result for the process lifetime.
type ChainKeyProvider struct {
	cfg    KeyConfig
	vault  secrets.Provider
	logger *observability.Logger

	mu     sync.Mutex
	cached *SigningKey
	err    error
	done   bool
}

// NewChainKeyProvider creates a chain key provider. vault may be nil when no
// secret backend is configured.
func NewChainKeyProvider(cfg KeyConfig, vault secrets.Provider, logger *observability.Logger) *ChainKeyProvider {
	return &ChainKeyProvider{cfg: cfg, vault: vault, logger: logger}
}

// SigningKey resolves and caches the signing key. The first resolution error
// in production is sticky: a service that failed to load its key must not
// silently fall through to an ephemeral one on a later call.
func (p *ChainKeyProvider) SigningKey(ctx context.Context) (*SigningKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return p.cached, p.err
	}
	p.cached, p.err = p.resolve(ctx)
	p.done = true
	return p.cached, p.err
}

func (p *ChainKeyProvider) resolve(ctx context.Context) (*SigningKey, error) {
	if p.cfg.VaultSecretName != "" && p.vault != nil {
		pemData, err := p.vault.GetSecret(ctx, p.cfg.VaultSecretName)
		if err != nil {
			if p.cfg.Production {
				return nil, fmt.Errorf("failed to fetch signing key from vault: %w", err)
			}
			p.logger.WithError(err).Warn("vault signing-key fetch failed, trying next source")
		} else if pemData != "" {
			key, err := ParseRSAPrivateKeyPEM([]byte(pemData))
			if err != nil {
				return nil, fmt.Errorf("invalid signing key in vault secret %q: %w", p.cfg.VaultSecretName, err)
			}
			return newSigningKey(key, false), nil
		}
	}

	if p.cfg.InlinePEM != "" {
		key, err := ParseRSAPrivateKeyPEM([]byte(p.cfg.InlinePEM))
		if err != nil {
			return nil, fmt.Errorf("invalid inline signing key: %w", err)
		}
		return newSigningKey(key, false), nil
	}

	if p.cfg.PEMPath != "" {
		pemData, err := os.ReadFile(p.cfg.PEMPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key file: %w", err)
		}
		key, err := ParseRSAPrivateKeyPEM(pemData)
		if err != nil {
			return nil, fmt.Errorf("invalid signing key file %q: %w", p.cfg.PEMPath, err)
		}
		return newSigningKey(key, false), nil
	}

	if p.cfg.Production {
		return nil, fmt.Errorf("%w: production requires a vault secret, inline PEM, or key file", ErrNoSigningKey)
	}

	p.logger.Warn("no signing key configured, generating ephemeral development key")
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	return newSigningKey(key, true), nil
}

func newSigningKey(key *rsa.PrivateKey, ephemeral bool) *SigningKey {
	return &SigningKey{
		Private:   key,
		KeyID:     fingerprintKeyID(&key.PublicKey),
		Ephemeral: ephemeral,
	}
}

// fingerprintKeyID derives a stable kid from the public key bytes
func fingerprintKeyID(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8])
}

// ParseRSAPrivateKeyPEM parses a PKCS#1 or PKCS#8 RSA private key
func ParseRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

// ParseRSAPublicKeyPEM parses a PKIX or PKCS#1 RSA public key, accepting a
// certificate as well
func ParseRSAPublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, errors.New("certificate key is not RSA")
	}
	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}

// StaticKeyProvider wraps a fixed key. Used by tests and the organization
// switcher's issuing path when a key is already resolved.
type StaticKeyProvider struct {
	Key *SigningKey
}

// SigningKey returns the wrapped key
func (p *StaticKeyProvider) SigningKey(ctx context.Context) (*SigningKey, error) {
	if p.Key == nil {
		return nil, ErrNoSigningKey
	}
	return p.Key, nil
}

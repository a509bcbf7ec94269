package tokens

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// AccessTokenType is the default JWT header typ for first-party access tokens
	AccessTokenType = "at+jwt"
	// CompatTokenType is emitted instead of AccessTokenType when the caller
	// requested workload federation. The upstream federation broker's JWT
	// parser only accepts typ "JWT".
	CompatTokenType = "JWT"

	// ScopeWorkloadFederation marks a token destined for the workload
	// identity federation broker
	ScopeWorkloadFederation = "wif:federate"

	refreshTokenBytes = 64
)

// AccessClaims is the payload minted into a first-party access token
type AccessClaims struct {
	UserID         string
	OrganizationID string
	Email          string
	Role           string
	Permissions    []string
	ClientApp      string
	Scopes         []string
}

// TokenPair is the result of a mint: a signed access token and an opaque
// refresh token. Only RefreshTokenHash is ever persisted.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshTokenHash string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// ExpiresIn is the access token lifetime in whole seconds
func (p *TokenPair) ExpiresIn() int64 {
	return int64(p.ExpiresAt.Sub(p.IssuedAt) / time.Second)
}

// IssuerConfig controls token minting
type IssuerConfig struct {
	// Issuer is the iss claim. Normalized to carry a trailing slash so that
	// issued tokens and validation config cannot drift on a one-character
	// mismatch.
	Issuer   string
	Audience string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Issuer mints signed access tokens and opaque refresh tokens
type Issuer struct {
	cfg  IssuerConfig
	keys KeyProvider
	now  func() time.Time
}

// NewIssuer creates a token issuer
func NewIssuer(cfg IssuerConfig, keys KeyProvider) *Issuer {
	cfg.Issuer = NormalizeIssuer(cfg.Issuer)
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	return &Issuer{cfg: cfg, keys: keys, now: time.Now}
}

// NormalizeIssuer appends a trailing slash when missing
func NormalizeIssuer(issuer string) string {
	if issuer == "" || strings.HasSuffix(issuer, "/") {
		return issuer
	}
	return issuer + "/"
}

// Issuer returns the normalized iss value tokens are minted with
func (i *Issuer) Issuer() string {
	return i.cfg.Issuer
}

// GenerateTokenPair mints an access token for the given claims plus a fresh
// opaque refresh token. All time-based claims derive from a single timestamp
// captured at the start of the call.
func (i *Issuer) GenerateTokenPair(ctx context.Context, claims AccessClaims) (*TokenPair, error) {
	key, err := i.keys.SigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signing key: %w", err)
	}

	now := i.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(i.cfg.AccessTokenTTL)

	payload := jwt.MapClaims{
		"iss":    i.cfg.Issuer,
		"aud":    i.cfg.Audience,
		"sub":    claims.UserID,
		"org_id": claims.OrganizationID,
		"email":  claims.Email,
		"role":   claims.Role,
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
		"exp":    expiresAt.Unix(),
	}
	if len(claims.Permissions) > 0 {
		payload["permission"] = claims.Permissions
	}
	if claims.ClientApp != "" {
		payload["client_app"] = claims.ClientApp
	}
	if len(claims.Scopes) > 0 {
		payload["scope"] = strings.Join(claims.Scopes, " ")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, payload)
	// The typ shim is decided before signing. Re-signing or mutating the
	// header of an already signed token would invalidate the signature.
	token.Header["typ"] = headerType(claims.Scopes)
	if key.KeyID != "" {
		token.Header["kid"] = key.KeyID
	}

	signed, err := token.SignedString(key.Private)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, refreshHash, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      signed,
		RefreshToken:     refresh,
		RefreshTokenHash: refreshHash,
		IssuedAt:         now,
		ExpiresAt:        expiresAt,
		RefreshExpiresAt: now.Add(i.cfg.RefreshTokenTTL),
	}, nil
}

func headerType(scopes []string) string {
	for _, s := range scopes {
		if s == ScopeWorkloadFederation {
			return CompatTokenType
		}
	}
	return AccessTokenType
}

// GenerateRefreshToken creates an opaque refresh token and its storage hash.
// The raw token is returned to the caller exactly once; the store only ever
// sees the SHA-256 hex digest.
func GenerateRefreshToken() (raw string, hash string, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashRefreshToken(raw), nil
}

// HashRefreshToken computes the storage digest of a raw refresh token
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

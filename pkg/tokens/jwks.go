package tokens

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// SignatureVerifier checks a compact JWT signature and returns the payload.
// Satisfied by oidc.RemoteKeySet.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, jwt string) ([]byte, error)
}

// JWKSExchangeValidator verifies external assertions against the identity
// provider's published JWKS endpoint instead of a pinned key. Key rotation on
// the provider side needs no redeploy; the remote key set refreshes itself.
type JWKSExchangeValidator struct {
	cfg  ExchangeValidatorConfig
	keys SignatureVerifier
	now  func() time.Time
}

// NewJWKSExchangeValidator creates a validator backed by a remote JWKS
// endpoint. ctx governs background key refreshes for the validator lifetime.
func NewJWKSExchangeValidator(ctx context.Context, cfg ExchangeValidatorConfig, jwksURL string) *JWKSExchangeValidator {
	return &JWKSExchangeValidator{
		cfg:  ExchangeValidatorConfig{Issuer: NormalizeIssuer(cfg.Issuer), Audience: cfg.Audience},
		keys: oidc.NewRemoteKeySet(ctx, jwksURL),
		now:  time.Now,
	}
}

// Validate has the same contract as ExchangeValidator.Validate: nil claims
// plus a loggable reason on any failure.
func (v *JWKSExchangeValidator) Validate(ctx context.Context, raw string) (*ExchangeClaims, string) {
	payload, err := v.keys.VerifySignature(ctx, raw)
	if err != nil {
		return nil, "invalid signature"
	}

	var claims exchangeJWTClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, "malformed token"
	}

	now := v.now()
	if claims.Issuer != v.cfg.Issuer {
		return nil, "issuer mismatch"
	}
	if !audienceContains(claims.Audience, v.cfg.Audience) {
		return nil, "audience mismatch"
	}
	if claims.ExpiresAt == nil {
		return nil, "missing required claim"
	}
	if now.After(claims.ExpiresAt.Time.Add(ClockSkew)) {
		return nil, "token expired"
	}
	if claims.NotBefore != nil && now.Add(ClockSkew).Before(claims.NotBefore.Time) {
		return nil, "token not yet valid"
	}

	return &ExchangeClaims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		JTI:       claims.ID,
		Purpose:   claims.Purpose,
		ClientApp: claims.ClientApp,
		ExpiresAt: claims.ExpiresAt.Time,
	}, ""
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

package tokens

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PurposeTokenExchange is the purpose claim an external assertion must carry
const PurposeTokenExchange = "token_exchange"

// ClockSkew is the leeway applied to exp/nbf/iat checks on inbound tokens
const ClockSkew = 30 * time.Second

// ExchangeClaims are the claims extracted from a valid external assertion
type ExchangeClaims struct {
	Subject   string
	Email     string
	JTI       string
	Purpose   string
	ClientApp string
	ExpiresAt time.Time
}

type exchangeJWTClaims struct {
	Email     string `json:"email"`
	Purpose   string `json:"purpose"`
	ClientApp string `json:"client_app,omitempty"`
	jwt.RegisteredClaims
}

// ExchangeValidatorConfig pins the trust parameters for inbound assertions
type ExchangeValidatorConfig struct {
	Issuer   string
	Audience string
}

// ExchangeValidator verifies external assertions against a fixed public key.
// Validation failures never surface as errors to the exchange caller; the
// validator reports nil claims plus a reason string for the security log.
type ExchangeValidator struct {
	cfg    ExchangeValidatorConfig
	key    *rsa.PublicKey
	parser *jwt.Parser
	now    func() time.Time
}

// NewExchangeValidator creates a validator bound to one issuer, audience and
// verification key
func NewExchangeValidator(cfg ExchangeValidatorConfig, key *rsa.PublicKey) *ExchangeValidator {
	cfg.Issuer = NormalizeIssuer(cfg.Issuer)
	v := &ExchangeValidator{cfg: cfg, key: key, now: time.Now}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(ClockSkew),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	return v
}

// Validate checks signature, issuer, audience and lifetime. On failure the
// claims are nil and reason carries a short description safe to log; nothing
// about the failure is meant to reach the caller of the exchange endpoint.
func (v *ExchangeValidator) Validate(ctx context.Context, raw string) (*ExchangeClaims, string) {
	var claims exchangeJWTClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, validationReason(err)
	}

	out := &ExchangeClaims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		JTI:       claims.ID,
		Purpose:   claims.Purpose,
		ClientApp: claims.ClientApp,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, ""
}

func validationReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token not yet valid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer mismatch"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience mismatch"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing required claim"
	default:
		return "invalid token"
	}
}

// VerifiedAccessToken is the decoded payload of a first-party access token
type VerifiedAccessToken struct {
	UserID         string
	OrganizationID string
	Email          string
	Role           string
	Permissions    []string
	ClientApp      string
	ExpiresAt      time.Time
}

type accessJWTClaims struct {
	OrganizationID string   `json:"org_id"`
	Email          string   `json:"email"`
	Role           string   `json:"role"`
	Permissions    []string `json:"permission,omitempty"`
	ClientApp      string   `json:"client_app,omitempty"`
	Scope          string   `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks first-party access tokens minted by Issuer. Used by the
// API bearer middleware.
type Verifier struct {
	keys   KeyProvider
	parser *jwt.Parser
}

// NewVerifier creates a verifier bound to the service issuer and audience
func NewVerifier(cfg IssuerConfig, keys KeyProvider) *Verifier {
	return &Verifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithLeeway(ClockSkew),
			jwt.WithIssuer(NormalizeIssuer(cfg.Issuer)),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
		),
	}
}

// VerifyAccessToken validates a bearer token and returns its payload
func (v *Verifier) VerifyAccessToken(ctx context.Context, raw string) (*VerifiedAccessToken, error) {
	key, err := v.keys.SigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve verification key: %w", err)
	}

	var claims accessJWTClaims
	_, err = v.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return key.Public(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	out := &VerifiedAccessToken{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Email:          claims.Email,
		Role:           claims.Role,
		Permissions:    claims.Permissions,
		ClientApp:      claims.ClientApp,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

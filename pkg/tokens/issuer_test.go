package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testIssuer(t *testing.T) (*Issuer, *SigningKey) {
	t.Helper()
	key := newSigningKey(generateTestKey(t), false)
	issuer := NewIssuer(IssuerConfig{
		Issuer:          "https://identity.example.com",
		Audience:        "example-platform",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}, &StaticKeyProvider{Key: key})
	return issuer, key
}

func parseToken(t *testing.T, raw string, key *SigningKey) *jwt.Token {
	t.Helper()
	token, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
		return key.Public(), nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		t.Fatalf("failed to parse issued token: %v", err)
	}
	return token
}

func TestGenerateTokenPair(t *testing.T) {
	issuer, key := testIssuer(t)

	pair, err := issuer.GenerateTokenPair(context.Background(), AccessClaims{
		UserID:         "u1",
		OrganizationID: "o1",
		Email:          "alice@example.com",
		Role:           "owner",
		Permissions:    []string{"org:read", "org:update"},
		ClientApp:      "cli",
	})
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	token := parseToken(t, pair.AccessToken, key)
	claims := token.Claims.(jwt.MapClaims)

	if claims["iss"] != "https://identity.example.com/" {
		t.Errorf("iss = %v, want normalized issuer with trailing slash", claims["iss"])
	}
	if claims["aud"] != "example-platform" {
		t.Errorf("aud = %v", claims["aud"])
	}
	if claims["sub"] != "u1" || claims["org_id"] != "o1" || claims["role"] != "owner" {
		t.Errorf("identity claims = %v", claims)
	}
	if claims["client_app"] != "cli" {
		t.Errorf("client_app = %v", claims["client_app"])
	}

	// All time claims derive from one captured timestamp.
	iat := int64(claims["iat"].(float64))
	nbf := int64(claims["nbf"].(float64))
	exp := int64(claims["exp"].(float64))
	if iat != nbf {
		t.Errorf("iat = %d, nbf = %d, want equal", iat, nbf)
	}
	if exp-iat != int64(15*time.Minute/time.Second) {
		t.Errorf("exp - iat = %d, want 900", exp-iat)
	}

	if token.Header["typ"] != AccessTokenType {
		t.Errorf("typ = %v, want %s", token.Header["typ"], AccessTokenType)
	}
	if token.Header["kid"] != key.KeyID {
		t.Errorf("kid = %v, want %s", token.Header["kid"], key.KeyID)
	}

	if pair.ExpiresIn() != 900 {
		t.Errorf("ExpiresIn() = %d, want 900", pair.ExpiresIn())
	}
	if pair.RefreshToken == "" || pair.RefreshTokenHash != HashRefreshToken(pair.RefreshToken) {
		t.Error("refresh token hash does not match the raw token")
	}
	if !pair.RefreshExpiresAt.Equal(pair.IssuedAt.Add(24 * time.Hour)) {
		t.Errorf("refresh expiry = %v", pair.RefreshExpiresAt)
	}
}

func TestGenerateTokenPairFederationTypHeader(t *testing.T) {
	issuer, key := testIssuer(t)

	tests := []struct {
		name    string
		scopes  []string
		wantTyp string
	}{
		{name: "no scopes", scopes: nil, wantTyp: AccessTokenType},
		{name: "unrelated scope", scopes: []string{"offline_access"}, wantTyp: AccessTokenType},
		{name: "federation scope", scopes: []string{ScopeWorkloadFederation}, wantTyp: CompatTokenType},
		{name: "federation among others", scopes: []string{"offline_access", ScopeWorkloadFederation}, wantTyp: CompatTokenType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := issuer.GenerateTokenPair(context.Background(), AccessClaims{
				UserID: "u1", OrganizationID: "o1", Scopes: tt.scopes,
			})
			if err != nil {
				t.Fatalf("GenerateTokenPair() error = %v", err)
			}
			token := parseToken(t, pair.AccessToken, key)
			if token.Header["typ"] != tt.wantTyp {
				t.Errorf("typ = %v, want %s", token.Header["typ"], tt.wantTyp)
			}
		})
	}
}

func TestGenerateRefreshTokenUniqueness(t *testing.T) {
	raw1, hash1, err := GenerateRefreshToken()
	if err != nil {
		t.Fatal(err)
	}
	raw2, hash2, err := GenerateRefreshToken()
	if err != nil {
		t.Fatal(err)
	}
	if raw1 == raw2 || hash1 == hash2 {
		t.Error("consecutive refresh tokens collided")
	}
	if HashRefreshToken(raw1) != hash1 {
		t.Error("hash does not match raw token")
	}
}

func TestNormalizeIssuer(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://id.example.com", "https://id.example.com/"},
		{"https://id.example.com/", "https://id.example.com/"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeIssuer(tt.in); got != tt.want {
			t.Errorf("NormalizeIssuer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

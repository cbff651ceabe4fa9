package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/atelie-backend/pkg/config"
)

func testConfig() config.AdminConfig {
	return config.AdminConfig{
		Emails:    "ops@atelie.com.br",
		JWTSecret: "secret",
		JWTIssuer: "atelie-admin",
		TokenTTL:  30 * time.Minute,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		Subject: "op-1",
		Email:   "Ops@Atelie.com.br",
		Role:    RoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Subject != "op-1" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Email != "ops@atelie.com.br" {
		t.Fatalf("email not normalized: %s", claims.Email)
	}
	if claims.Issuer != cfg.JWTIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be generated")
	}
	if !IsAdmin(claims, cfg.Allowlist()) {
		t.Fatalf("expected allowlisted admin")
	}
}

func TestParseRejectsWrongIssuerAndExpiredTokens(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{Subject: "op-1", Email: "ops@atelie.com.br", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	other := cfg
	other.JWTIssuer = "someone-else"
	fresh, _ := MintAccessToken(other, time.Now(), AccessTokenPayload{Subject: "op-1", Email: "ops@atelie.com.br", Role: RoleAdmin})
	if _, err := ParseAccessToken(cfg, fresh); err == nil || !strings.Contains(err.Error(), "issuer") {
		t.Fatalf("expected issuer mismatch, got %v", err)
	}
}

func TestParseRejectsForeignAlgorithm(t *testing.T) {
	cfg := testConfig()
	claims := AccessTokenClaims{
		Email: "ops@atelie.com.br",
		Role:  RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWTIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatalf("expected HS512 token to be rejected")
	}
}

func TestIsAdminRequiresRoleAndAllowlist(t *testing.T) {
	allow := testConfig().Allowlist()
	if IsAdmin(&AccessTokenClaims{Email: "ops@atelie.com.br", Role: RoleCustomer}, allow) {
		t.Fatalf("customer role must not pass")
	}
	if IsAdmin(&AccessTokenClaims{Email: "intruder@example.com", Role: RoleAdmin}, allow) {
		t.Fatalf("email outside the allowlist must not pass")
	}
	if IsAdmin(nil, allow) {
		t.Fatalf("nil claims must not pass")
	}
}

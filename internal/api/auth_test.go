package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	now := time.Now()
	token, err := IssueToken(testSecret, "installer", time.Hour, now)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "installer" || claims.Scope != ScopeProvisioning || claims.Issuer != tokenIssuer {
		t.Errorf("claims = %+v", claims)
	}
}

func TestIssueToken_Invalid(t *testing.T) {
	if _, err := IssueToken("", "installer", time.Hour, time.Now()); err == nil {
		t.Error("IssueToken() with empty secret should fail")
	}
	if _, err := IssueToken(testSecret, "installer", 0, time.Now()); err == nil {
		t.Error("IssueToken() with zero ttl should fail")
	}
}

func TestParseToken_Rejects(t *testing.T) {
	now := time.Now()
	sign := func(c Claims, method jwt.SigningMethod) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, c).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("SignedString() error = %v", err)
		}
		return s
	}
	valid := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "installer",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"

	tests := map[string]string{
		"wrong scope":  sign(Claims{Scope: "read", RegisteredClaims: valid}, jwt.SigningMethodHS256),
		"no expiry":    sign(Claims{Scope: ScopeProvisioning, RegisteredClaims: noExpiry}, jwt.SigningMethodHS256),
		"other issuer": sign(Claims{Scope: ScopeProvisioning, RegisteredClaims: otherIssuer}, jwt.SigningMethodHS256),
		"HS512":        sign(Claims{Scope: ScopeProvisioning, RegisteredClaims: valid}, jwt.SigningMethodHS512),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseToken(testSecret, token); err == nil {
				t.Error("ParseToken() should fail")
			}
		})
	}
}

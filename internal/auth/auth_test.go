package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ========================================
// Claims.Scopes() / HasScope() Tests
// ========================================

func TestClaims_Scopes_StringForm(t *testing.T) {
	c := &Claims{Scope: json.RawMessage(`"mcp:tools:list mcp:tools:call"`)}
	got := c.Scopes()
	want := []string{"mcp:tools:list", "mcp:tools:call"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Scopes() = %v, want %v", got, want)
	}
}

func TestClaims_Scopes_ArrayForm(t *testing.T) {
	c := &Claims{Scope: json.RawMessage(`["mcp:tools:list","mcp:tools:call"]`)}
	got := c.Scopes()
	if len(got) != 2 || got[0] != "mcp:tools:list" {
		t.Fatalf("Scopes() = %v", got)
	}
}

func TestClaims_Scopes_Empty(t *testing.T) {
	c := &Claims{}
	if got := c.Scopes(); got != nil {
		t.Fatalf("Scopes() = %v, want nil", got)
	}
}

func TestClaims_HasScope(t *testing.T) {
	c := &Claims{Scope: json.RawMessage(`"mcp:access mcp:tools:call"`)}
	if !c.HasScope("mcp:tools:call") {
		t.Error("expected HasScope(mcp:tools:call) = true")
	}
	if c.HasScope("mcp:admin") {
		t.Error("expected HasScope(mcp:admin) = false")
	}
}

// ========================================
// Verifier tests, with a real signed JWT against an in-process JWKS server
// ========================================

func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return key, "test-key-1"
}

func startJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	eBytes := []byte{1, 0, 1} // 65537
	e := base64.RawURLEncoding.EncodeToString(eBytes)

	body, err := json.Marshal(map[string]any{
		"keys": []map[string]any{
			{"kty": "RSA", "use": "sig", "alg": "RS256", "kid": kid, "n": n, "e": e},
		},
	})
	if err != nil {
		t.Fatalf("marshal JWKS: %v", err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
}

func signTestToken(t *testing.T, key *rsa.PrivateKey, kid string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func TestVerifier_VerifyToken_Valid(t *testing.T) {
	key, kid := generateTestKeyPair(t)
	srv := startJWKSServer(t, key, kid)
	defer srv.Close()

	v := NewVerifier(srv.URL, "")
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scope: json.RawMessage(`"mcp:access mcp:tools:call"`),
	}
	signed := signTestToken(t, key, kid, claims)

	got, err := v.VerifyToken(signed)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if got.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", got.Subject)
	}
	if !got.HasScope("mcp:tools:call") {
		t.Error("expected mcp:tools:call scope")
	}
}

func TestVerifier_VerifyToken_Expired(t *testing.T) {
	key, kid := generateTestKeyPair(t)
	srv := startJWKSServer(t, key, kid)
	defer srv.Close()

	v := NewVerifier(srv.URL, "")
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	signed := signTestToken(t, key, kid, claims)

	if _, err := v.VerifyToken(signed); err == nil {
		t.Fatal("expected an error for an expired token")
	}
}

func TestVerifier_VerifyToken_WrongAudience(t *testing.T) {
	key, kid := generateTestKeyPair(t)
	srv := startJWKSServer(t, key, kid)
	defer srv.Close()

	v := NewVerifier(srv.URL, "expected-audience")
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"some-other-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed := signTestToken(t, key, kid, claims)

	if _, err := v.VerifyToken(signed); err == nil {
		t.Fatal("expected an audience mismatch error")
	}
}

func TestVerifier_VerifyToken_MissingSubject(t *testing.T) {
	key, kid := generateTestKeyPair(t)
	srv := startJWKSServer(t, key, kid)
	defer srv.Close()

	v := NewVerifier(srv.URL, "")
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed := signTestToken(t, key, kid, claims)

	if _, err := v.VerifyToken(signed); err == nil {
		t.Fatal("expected ErrMissingClaims for a token with no subject")
	}
}

func TestVerifier_VerifyToken_UnknownKeyID(t *testing.T) {
	key, kid := generateTestKeyPair(t)
	srv := startJWKSServer(t, key, kid)
	defer srv.Close()

	v := NewVerifier(srv.URL, "")
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed := signTestToken(t, key, "unknown-kid", claims)

	if _, err := v.VerifyToken(signed); err == nil {
		t.Fatal("expected an error for an unknown key ID")
	}
}

// ========================================
// Scope policy tests
// ========================================

func TestRequiredScope(t *testing.T) {
	tests := map[string]string{
		"tools/call":     "mcp:tools:call",
		"tools/list":     "mcp:tools:list",
		"resources/read": "mcp:resources:read",
		"unknown/method": BaselineScope,
	}
	for method, want := range tests {
		if got := RequiredScope(method); got != want {
			t.Errorf("RequiredScope(%q) = %q, want %q", method, got, want)
		}
	}
}

func TestToolScope(t *testing.T) {
	if got := ToolScope("research"); got != "mcp:tools:call:research" {
		t.Errorf("ToolScope(research) = %q", got)
	}
}

func TestSatisfiesScope(t *testing.T) {
	if !SatisfiesScope([]string{"mcp:tools:call"}, "mcp:tools:call") {
		t.Error("expected exact scope match to satisfy")
	}
	if !SatisfiesScope([]string{"*"}, "mcp:tools:call") {
		t.Error("expected wildcard scope to satisfy anything")
	}
	if !SatisfiesScope([]string{"mcp:tools:*"}, "mcp:tools:call") {
		t.Error("expected prefix wildcard to satisfy a matching scope")
	}
	if SatisfiesScope([]string{"mcp:resources:read"}, "mcp:tools:call") {
		t.Error("did not expect an unrelated scope to satisfy")
	}
}

// ========================================
// Context helper test
// ========================================

func TestContextClaims_RoundTrip(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	ctx := WithClaims(context.Background(), claims)
	got := ClaimsFromContext(ctx)
	if got == nil || got.Subject != "user-1" {
		t.Fatalf("ClaimsFromContext() = %+v", got)
	}
}

func TestContextClaims_AbsentReturnsNil(t *testing.T) {
	if got := ClaimsFromContext(context.Background()); got != nil {
		t.Fatalf("expected nil claims, got %+v", got)
	}
}

// Package auth verifies OAuth 2.1 bearer JWTs against a remote JWKS endpoint.
package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingClaims = errors.New("missing required claims")
	ErrAudience      = errors.New("token audience mismatch")
	ErrJWKSFetch     = errors.New("failed to fetch JWKS")
)

// Claims represents the claims expected on a bearer JWT minted by any
// OAuth 2.1-compliant authorization server, not a specific vendor's shape.
type Claims struct {
	jwt.RegisteredClaims
	// Scope carries the "scope" claim, which the spec allows to be either
	// a single space-separated string or a JSON array of strings.
	Scope json.RawMessage `json:"scope,omitempty"`
}

// Scopes returns the scope claim normalized to a slice, regardless of
// whether the authorization server encoded it as a string or an array.
func (c *Claims) Scopes() []string {
	if len(c.Scope) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(c.Scope, &asString); err == nil {
		return strings.Fields(asString)
	}
	var asSlice []string
	if err := json.Unmarshal(c.Scope, &asSlice); err == nil {
		return asSlice
	}
	return nil
}

// HasScope reports whether the claims grant the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier verifies bearer JWTs against a JWKS endpoint, caching the key
// set between refreshes.
type Verifier struct {
	jwksURL        string
	expectAudience string
	httpClient     *http.Client
	keyCache       *jwksCache
}

type jwksCache struct {
	mu        sync.RWMutex
	keys      map[string]interface{}
	expiresAt time.Time
}

// NewVerifier creates a JWT verifier backed by the given JWKS URL. If
// expectAudience is non-empty, every token's "aud" claim must contain it.
func NewVerifier(jwksURL, expectAudience string) *Verifier {
	return &Verifier{
		jwksURL:        jwksURL,
		expectAudience: expectAudience,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		keyCache:       &jwksCache{keys: make(map[string]interface{})},
	}
}

// VerifyToken verifies a bearer JWT and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("missing key ID in token header")
		}
		return v.getPublicKey(kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrMissingClaims
	}

	if v.expectAudience != "" && !claims.hasAudience(v.expectAudience) {
		return nil, ErrAudience
	}

	return claims, nil
}

func (c *Claims) hasAudience(want string) bool {
	for _, aud := range c.RegisteredClaims.Audience {
		if aud == want {
			return true
		}
	}
	return false
}

func (v *Verifier) getPublicKey(kid string) (interface{}, error) {
	v.keyCache.mu.RLock()
	if key, ok := v.keyCache.keys[kid]; ok && time.Now().Before(v.keyCache.expiresAt) {
		v.keyCache.mu.RUnlock()
		return key, nil
	}
	v.keyCache.mu.RUnlock()

	if err := v.refreshJWKS(); err != nil {
		return nil, err
	}

	v.keyCache.mu.RLock()
	defer v.keyCache.mu.RUnlock()
	key, ok := v.keyCache.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	return key, nil
}

func (v *Verifier) refreshJWKS() error {
	v.keyCache.mu.Lock()
	defer v.keyCache.mu.Unlock()

	if time.Now().Before(v.keyCache.expiresAt) {
		return nil
	}

	resp, err := v.httpClient.Get(v.jwksURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrJWKSFetch, resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Alg string `json:"alg"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}

	newKeys := make(map[string]interface{})
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || (key.Use != "" && key.Use != "sig") {
			continue
		}
		pubKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		newKeys[key.Kid] = pubKey
	}

	v.keyCache.keys = newKeys
	v.keyCache.expiresAt = time.Now().Add(1 * time.Hour)
	return nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)

	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, err
	}
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// Package mw contains HTTP middleware for the research broker.
package mw

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wheattoast11/deepresearch-mcp/internal/auth"
	"github.com/wheattoast11/deepresearch-mcp/internal/config"
)

// Identity carries what an authenticated (or anonymously permitted)
// request is allowed to do, independent of which auth mode produced it.
type Identity struct {
	Subject string
	Scopes  []string
	Mode    config.AuthMode
}

func (id *Identity) satisfies(scope string) bool {
	if id == nil {
		return false
	}
	return auth.SatisfiesScope(id.Scopes, scope)
}

// Authenticator resolves one of spec §4.9's four auth modes at startup and
// produces middleware enforcing it on every request.
type Authenticator struct {
	mode     config.AuthMode
	verifier *auth.Verifier
	apiKey   string
	logger   *slog.Logger
}

// NewAuthenticator builds an Authenticator from resolved configuration. If
// mode is AuthModeOpen, it logs a persistent security warning as required
// by spec §4.9 step 3.
func NewAuthenticator(cfg *config.Config, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.ResolveAuthMode()
	a := &Authenticator{mode: mode, apiKey: cfg.StaticAPIKey, logger: logger.With("component", "mw.auth")}
	if mode == config.AuthModeJWKS {
		a.verifier = auth.NewVerifier(cfg.JWKSURL, cfg.JWTAudience)
	}
	if mode == config.AuthModeOpen {
		a.logger.Warn("ALLOW_NO_API_KEY is set: all requests are accepted without authentication")
	}
	return a
}

// Authenticate returns middleware that resolves an Identity for the
// request and enforces the baseline scope on it. Per-method and per-tool
// scopes are not checked here: RequireScope enforces one fixed scope on
// the routes it wraps, and no middleware checks an MCP request's JSON-RPC
// method or tool name against its scope.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identify(r)
		if err != nil {
			writeUnauthorized(w, err.Error())
			return
		}
		if !id.satisfies(auth.BaselineScope) {
			writeInsufficientScope(w, auth.BaselineScope)
			return
		}
		ctx := withIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) identify(r *http.Request) (*Identity, error) {
	if a.mode == config.AuthModeDisabled || a.mode == config.AuthModeOpen {
		return a.identifyToken("")
	}
	return a.identifyToken(bearerToken(r))
}

// identifyToken resolves an Identity from a bearer token string alone,
// independent of any particular HTTP framework's request type — used by
// both the raw chi Authenticate middleware and HumaAuth.
func (a *Authenticator) identifyToken(token string) (*Identity, error) {
	switch a.mode {
	case config.AuthModeDisabled:
		return nil, fmt.Errorf("authentication is not configured")
	case config.AuthModeOpen:
		return &Identity{Mode: a.mode, Scopes: []string{"*"}}, nil
	}

	if token == "" {
		return nil, fmt.Errorf("missing bearer token")
	}

	switch a.mode {
	case config.AuthModeAPIKey:
		if token != a.apiKey {
			return nil, fmt.Errorf("invalid API key")
		}
		return &Identity{Mode: a.mode, Scopes: []string{"*"}}, nil
	case config.AuthModeJWKS:
		claims, err := a.verifier.VerifyToken(token)
		if err != nil {
			return nil, err
		}
		return &Identity{Subject: claims.Subject, Scopes: claims.Scopes(), Mode: a.mode}, nil
	default:
		return nil, fmt.Errorf("authentication is not configured")
	}
}

// bearerToken extracts a bearer token from the Authorization header, or,
// for WebSocket clients that cannot set headers, from the "token" query
// parameter named in spec §4.8.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// RequireScope returns middleware that enforces a specific scope on top
// of whatever identity Authenticate resolved. Insufficient scope yields
// 403 with the WWW-Authenticate challenge spec §4.9 requires.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if !id.satisfies(scope) {
				writeInsufficientScope(w, scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, fmt.Sprintf(`{"error":%q}`, reason), http.StatusUnauthorized)
}

func writeInsufficientScope(w http.ResponseWriter, scope string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`Bearer error="insufficient_scope", scope=%q, resource_metadata="/.well-known/oauth-protected-resource"`, scope))
	http.Error(w, fmt.Sprintf(`{"error":"insufficient_scope","scope":%q}`, scope), http.StatusForbidden)
}

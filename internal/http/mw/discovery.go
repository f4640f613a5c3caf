package mw

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
)

// DiscoveryConfig describes this server's identity for the RFC 9728-style
// protected-resource metadata and the MCP server discovery document.
type DiscoveryConfig struct {
	ResourceURL         string
	AuthorizationServer string // issuer base URL, typically the JWKS host
	ScopesSupported     []string
	Transports          []string
}

// ProtectedResourceMetadata serves /.well-known/oauth-protected-resource
// and /.well-known/oauth-protected-resource/mcp per spec §4.9.
func ProtectedResourceMetadata(cfg DiscoveryConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"resource":                cfg.ResourceURL,
			"authorization_servers":   nonEmptyServers(cfg.AuthorizationServer),
			"scopes_supported":        cfg.ScopesSupported,
			"bearer_methods_supported": []string{"header"},
			"resource_name":           "deepresearch-mcp",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

func nonEmptyServers(issuer string) []string {
	if issuer == "" {
		return []string{}
	}
	return []string{issuer}
}

// MCPServerMetadata serves /.well-known/mcp-server: server identity,
// supported protocol versions, and supported transports.
func MCPServerMetadata(cfg DiscoveryConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"name":                "deepresearch-mcp",
			"protocol_versions":   []string{mcpcore.ProtocolVersion},
			"transports":          cfg.Transports,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

// RequireHTTPS returns middleware enforcing spec §4.9's transport-security
// rule: reject requests whose inferred scheme (respecting
// X-Forwarded-Proto) is not https.
func RequireHTTPS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isHTTPS(r) {
				http.Error(w, `{"error":"HTTPS required"}`, http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	return strings.EqualFold(proto, "https")
}

package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// HumaAuthConfig holds the dependency HumaAuth needs to authenticate
// bearer-protected Huma operations.
type HumaAuthConfig struct {
	Authenticator *Authenticator
}

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

// OperationMetadataKey is the key for storing additional operation requirements.
type OperationMetadataKey string

// MetaKeyRequireScope is the operation metadata key holding the scope a
// protected operation requires beyond the baseline.
const MetaKeyRequireScope OperationMetadataKey = "requireScope"

// HumaAuth returns a Huma middleware that authenticates and authorizes
// operations registered with a bearerAuth security requirement, mirroring
// the raw-chi Authenticate/RequireScope pair for Huma-routed endpoints
// (health/about/healthz, §6; metrics and discovery are raw chi routes).
func HumaAuth(api huma.API, cfg HumaAuthConfig) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || !operationRequiresAuth(op) {
			next(ctx)
			return
		}

		stdCtx := ctx.Context()
		token := strings.TrimPrefix(ctx.Header("Authorization"), "Bearer ")

		id, err := cfg.Authenticator.identifyToken(token)
		if err != nil {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid token")
			return
		}

		if scope := requiredScope(op); scope != "" && !id.satisfies(scope) {
			huma.WriteErr(api, ctx, http.StatusForbidden, "insufficient_scope: "+scope)
			return
		}

		newCtx := withIdentity(stdCtx, id)
		next(huma.WithContext(ctx, newCtx))
	}
}

func operationRequiresAuth(op *huma.Operation) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[SecurityScheme]; ok {
			return true
		}
	}
	return false
}

func requiredScope(op *huma.Operation) string {
	if op.Metadata == nil {
		return ""
	}
	if val, ok := op.Metadata[string(MetaKeyRequireScope)]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// IdentityFromHumaContext retrieves the Identity HumaAuth attached, for
// handlers that need it directly rather than through context.Context.
func IdentityFromHumaContext(ctx context.Context) *Identity {
	return IdentityFromContext(ctx)
}

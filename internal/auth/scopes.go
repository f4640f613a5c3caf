package auth

import "strings"

// BaselineScope is required on every authenticated MCP request once auth
// is enabled, regardless of method.
const BaselineScope = "mcp:access"

// methodScopes maps JSON-RPC methods to their required scope, mirroring
// the method families enumerated in the MCP external interface.
var methodScopes = map[string]string{
	"initialize":               "mcp:access",
	"ping":                     "mcp:access",
	"tools/list":               "mcp:tools:list",
	"tools/call":               "mcp:tools:call",
	"prompts/list":             "mcp:prompts:list",
	"prompts/get":              "mcp:prompts:get",
	"resources/list":           "mcp:resources:list",
	"resources/read":           "mcp:resources:read",
	"resources/subscribe":      "mcp:resources:read",
	"completion/complete":      "mcp:completion",
	"logging/setLevel":         "mcp:admin",
	"notifications/cancelled":  "mcp:access",
	"notifications/progress":   "mcp:access",
	"notifications/initialized": "mcp:access",
}

// RequiredScope returns the scope an MCP method requires. Tool-specific
// calls may additionally require "mcp:tools:call:<toolName>" — callers
// check that separately since the tool name isn't known from the method
// string alone.
func RequiredScope(method string) string {
	if scope, ok := methodScopes[method]; ok {
		return scope
	}
	return BaselineScope
}

// ToolScope returns the optional per-tool scope a tools/call for the
// given tool name may additionally be gated on.
func ToolScope(toolName string) string {
	return "mcp:tools:call:" + toolName
}

// SatisfiesScope reports whether granted includes required, or a
// wildcard "*" / prefix wildcard like "mcp:tools:*" that covers it.
func SatisfiesScope(granted []string, required string) bool {
	for _, g := range granted {
		if g == required || g == "*" {
			return true
		}
		if strings.HasSuffix(g, ":*") && strings.HasPrefix(required, strings.TrimSuffix(g, "*")) {
			return true
		}
	}
	return false
}

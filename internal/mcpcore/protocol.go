// Package mcpcore is the MCP Core (C7): JSON-RPC 2.0 dispatch, the
// tool/prompt/resource registries, loose-argument normalization, session
// capability negotiation, and progress/logging plumbing sitting between
// the transports (C8) and the domain services (C3-C6) (§4.7).
package mcpcore

import "encoding/json"

// ProtocolVersion is the MCP protocol version this server negotiates.
const ProtocolVersion = "2025-06-18"

// Request is an inbound JSON-RPC 2.0 request or notification. ID is nil
// for notifications.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id (no response
// is expected).
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is an outbound JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Notification is an outbound server-initiated or progress message
// (no id, no response expected).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func newResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func newErrorResponse(id json.RawMessage, code int, message string, data map[string]any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func newNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: "2.0", Method: method, Params: params}
}

// Meta carries the MCP `_meta` envelope fields recognized by the core,
// notably the progress token used to correlate sendProgress calls back
// to the requester (§4.7 "Progress/logging").
type Meta struct {
	ProgressToken any `json:"progressToken,omitempty"`
}

// RequestEnvelope is the subset of an MCP request's params shape the core
// inspects directly, ahead of per-method unmarshaling.
type RequestEnvelope struct {
	Meta Meta `json:"_meta,omitempty"`
}

// InitializeParams is the payload of the `initialize` method.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      ClientInfo     `json:"clientInfo,omitempty"`
}

// ClientInfo identifies the connecting MCP client.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// ServerInfo identifies this server in the initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the response payload of `initialize`.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ServerCapabilities is the fixed capability set this server declares,
// per §4.7 "Capability negotiation".
func ServerCapabilities() map[string]any {
	return map[string]any{
		"tools":     map[string]any{"listChanged": false},
		"prompts":   map[string]any{"listChanged": false},
		"resources": map[string]any{"subscribe": true, "listChanged": false},
		"logging":   map[string]any{},
		"completions": map[string]any{},
	}
}

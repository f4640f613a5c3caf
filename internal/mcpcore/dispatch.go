package mcpcore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/logging"
)

// methodsAllowedBeforeInit may be called before `initialize` completes
// (§4.7: "Unknown methods before initialized ... return -32002").
var methodsAllowedBeforeInit = map[string]bool{
	"initialize": true,
	"ping":       true,
}

// Core is the MCP Core: protocol dispatch over a Registry, independent of
// any particular transport.
type Core struct {
	registry   *Registry
	mode       Mode
	serverInfo ServerInfo
	logger     *slog.Logger
}

// New builds a Core over a pre-populated Registry.
func New(registry *Registry, mode Mode, serverInfo ServerInfo, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{registry: registry, mode: mode, serverInfo: serverInfo, logger: logger.With("component", "mcpcore")}
}

// Dispatch handles a single JSON-RPC request or notification for a
// session, returning a Response (nil for notifications, which expect no
// reply).
func (c *Core) Dispatch(ctx context.Context, sess *Session, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		return errResp(req.ID, RPCInvalidRequest, "invalid jsonrpc version", nil)
	}

	if req.Method == "notifications/initialized" {
		return nil
	}
	if req.Method == "notifications/cancelled" {
		// Cancellation propagation into in-flight tool calls is the
		// transport's responsibility (it owns the per-request context); the
		// core has nothing further to do here.
		return nil
	}

	if !sess.Initialized() && !methodsAllowedBeforeInit[req.Method] {
		if req.IsNotification() {
			return nil
		}
		return errResp(req.ID, RPCPreInitialization, "server not initialized", nil)
	}

	var result any
	var err error
	switch req.Method {
	case "initialize":
		result, err = c.handleInitialize(sess, req.Params)
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = c.handleToolsList()
	case "tools/call":
		result, err = c.handleToolsCall(ctx, sess, req.Params)
	case "prompts/list":
		result = c.handlePromptsList()
	case "prompts/get":
		result, err = c.handlePromptsGet(ctx, req.Params)
	case "resources/list":
		result = c.handleResourcesList()
	case "resources/read":
		result, err = c.handleResourcesRead(ctx, req.Params)
	case "resources/subscribe":
		result = map[string]any{}
	case "completion/complete":
		result = c.handleCompletion(req.Params)
	case "logging/setLevel":
		result, err = c.handleSetLevel(sess, req.Params)
	default:
		if req.IsNotification() {
			return nil
		}
		return errResp(req.ID, RPCMethodNotFound, "method not found: "+req.Method, nil)
	}

	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return errResp(req.ID, rpcCodeForErr(err), err.Error(), errorData(err))
	}
	return newResponse(req.ID, result)
}

func errResp(id json.RawMessage, code int, msg string, data map[string]any) *Response {
	return newErrorResponse(id, code, msg, data)
}

func (c *Core) handleInitialize(sess *Session, raw json.RawMessage) (*InitializeResult, error) {
	var params InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "invalid initialize params")
		}
	}
	sess.markInitialized(params.ProtocolVersion)
	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities(),
		ServerInfo:      c.serverInfo,
	}, nil
}

func (c *Core) handleToolsList() map[string]any {
	var out []map[string]any
	for _, t := range c.registry.Tools() {
		if !toolVisible(t.Name, t.AlwaysOn, c.mode) {
			continue
		}
		out = append(out, toolJSON(t))
	}
	return map[string]any{"tools": out}
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Meta      Meta            `json:"_meta"`
}

func (c *Core) handleToolsCall(ctx context.Context, sess *Session, raw json.RawMessage) (*toolCallResult, error) {
	var params toolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "invalid tools/call params")
	}

	tool, ok := c.registry.Tool(params.Name)
	if !ok || !toolVisible(tool.Name, tool.AlwaysOn, c.mode) {
		return nil, apierr.New(apierr.CodeNotFound, "tool not found: "+params.Name).WithDetail("rpc_code", RPCToolNotFound)
	}

	args := map[string]any{}
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "invalid tool arguments")
		}
	}

	if err := validateArgs(tool.Schema, args); err != nil && tool.Normalize != nil {
		args = tool.Normalize(args)
	}
	if err := validateArgs(tool.Schema, args); err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "tool arguments failed schema validation")
	}

	progress := sess.progressFuncFor(params.Meta.ProgressToken)
	result, err := tool.Handler(ctx, args, progress)
	if err != nil {
		return renderToolError(err), nil
	}
	return renderToolResult(result), nil
}

func (c *Core) handlePromptsList() map[string]any {
	var out []map[string]any
	for _, p := range c.registry.Prompts() {
		out = append(out, map[string]any{
			"name":        p.Name,
			"description": p.Description,
			"arguments":   p.Arguments,
		})
	}
	return map[string]any{"prompts": out}
}

type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (c *Core) handlePromptsGet(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var params promptsGetParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "invalid prompts/get params")
	}
	prompt, ok := c.registry.Prompt(params.Name)
	if !ok {
		return nil, apierr.New(apierr.CodeNotFound, "prompt not found: "+params.Name)
	}
	text, err := prompt.Render(ctx, params.Arguments)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "prompt render failed")
	}
	return map[string]any{
		"description": prompt.Description,
		"messages": []map[string]any{
			{"role": "user", "content": map[string]any{"type": "text", "text": text}},
		},
	}, nil
}

func (c *Core) handleResourcesList() map[string]any {
	var out []map[string]any
	for _, r := range c.registry.Resources() {
		out = append(out, map[string]any{
			"uri":         r.URI,
			"name":        r.Name,
			"description": r.Description,
			"mimeType":    r.MIMEType,
		})
	}
	return map[string]any{"resources": out}
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (c *Core) handleResourcesRead(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var params resourcesReadParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "invalid resources/read params")
	}
	res, ok := c.registry.Resource(params.URI)
	if !ok {
		return nil, apierr.New(apierr.CodeNotFound, "resource not found: "+params.URI)
	}
	contents, mimeType, err := res.Read(ctx, params.URI)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = res.MIMEType
	}
	return map[string]any{
		"contents": []map[string]any{
			{"uri": params.URI, "mimeType": mimeType, "text": contents},
		},
	}, nil
}

// handleCompletion is a minimal `completion/complete` implementation: it
// offers tool-name completions, the only completable argument type this
// server's tool catalog exposes.
func (c *Core) handleCompletion(raw json.RawMessage) map[string]any {
	var params struct {
		Argument struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"argument"`
	}
	_ = json.Unmarshal(raw, &params)

	var matches []string
	for _, t := range c.registry.Tools() {
		if len(matches) >= 100 {
			break
		}
		if len(params.Argument.Value) == 0 || hasPrefix(t.Name, params.Argument.Value) {
			matches = append(matches, t.Name)
		}
	}
	return map[string]any{"completion": map[string]any{"values": matches, "total": len(matches), "hasMore": false}}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (c *Core) handleSetLevel(sess *Session, raw json.RawMessage) (map[string]any, error) {
	var params struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "invalid logging/setLevel params")
	}
	sess.SetLogLevel(params.Level)
	level := slog.LevelInfo
	switch params.Level {
	case "debug":
		level = slog.LevelDebug
	case "warning":
		level = slog.LevelWarn
	case "error", "critical", "alert", "emergency":
		level = slog.LevelError
	}
	logging.SetLevel(level)
	return map[string]any{}, nil
}

package mcpcore

import (
	"context"
	"encoding/json"
	"testing"
)

func testRegistry() *Registry {
	reg := NewRegistry()
	reg.RegisterTool(&Tool{
		Name:        "ping",
		Description: "liveness check",
		Schema:      objSchema(map[string]any{}),
		AlwaysOn:    true,
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			return map[string]any{"pong": true}, nil
		},
	})
	reg.RegisterTool(&Tool{
		Name:        "echo",
		Description: "echoes its message argument",
		Schema:      objSchema(map[string]any{"message": strProp("text to echo")}, "message"),
		Normalize: func(raw map[string]any) map[string]any {
			if _, ok := raw["message"]; ok {
				return raw
			}
			if s, ok := looseCarrier(raw); ok {
				return map[string]any{"message": s}
			}
			return raw
		},
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			return args["message"], nil
		},
	})
	return reg
}

func dispatchJSON(t *testing.T, c *Core, sess *Session, method string, params any) *Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = b
	}
	req := &Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: raw}
	return c.Dispatch(context.Background(), sess, req)
}

func TestDispatch_PreInitializationGating(t *testing.T) {
	c := New(testRegistry(), ModeAll, ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	sess := NewSession(nil)

	resp := dispatchJSON(t, c, sess, "tools/list", nil)
	if resp.Error == nil || resp.Error.Code != RPCPreInitialization {
		t.Fatalf("expected pre-initialization error, got %+v", resp)
	}
}

func TestDispatch_InitializeThenToolsList(t *testing.T) {
	c := New(testRegistry(), ModeAll, ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	sess := NewSession(nil)

	initResp := dispatchJSON(t, c, sess, "initialize", InitializeParams{ProtocolVersion: ProtocolVersion})
	if initResp.Error != nil {
		t.Fatalf("initialize error: %+v", initResp.Error)
	}
	if !sess.Initialized() {
		t.Fatal("expected session to be marked initialized")
	}

	listResp := dispatchJSON(t, c, sess, "tools/list", nil)
	if listResp.Error != nil {
		t.Fatalf("tools/list error: %+v", listResp.Error)
	}
	result, ok := listResp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result shape %T", listResp.Result)
	}
	tools, ok := result["tools"].([]map[string]any)
	if !ok || len(tools) != 2 {
		t.Fatalf("expected 2 visible tools, got %+v", result["tools"])
	}
}

func TestDispatch_ToolsCall_NormalizesLooseArgs(t *testing.T) {
	c := New(testRegistry(), ModeAll, ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	sess := NewSession(nil)
	dispatchJSON(t, c, sess, "initialize", InitializeParams{ProtocolVersion: ProtocolVersion})

	resp := dispatchJSON(t, c, sess, "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"random_string": "hello"},
	})
	if resp.Error != nil {
		t.Fatalf("tools/call error: %+v", resp.Error)
	}
	result, ok := resp.Result.(*toolCallResult)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hello" {
		t.Fatalf("expected echoed text, got %+v", result.Content)
	}
}

func TestDispatch_ToolsCall_UnknownToolReturnsToolNotFound(t *testing.T) {
	c := New(testRegistry(), ModeAll, ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	sess := NewSession(nil)
	dispatchJSON(t, c, sess, "initialize", InitializeParams{ProtocolVersion: ProtocolVersion})

	resp := dispatchJSON(t, c, sess, "tools/call", map[string]any{"name": "nonexistent"})
	if resp.Error == nil || resp.Error.Code != RPCToolNotFound {
		t.Fatalf("expected tool-not-found error, got %+v", resp)
	}
}

func TestDispatch_HandlerErrorBecomesIsErrorContent(t *testing.T) {
	reg := testRegistry()
	reg.RegisterTool(&Tool{
		Name:   "fail",
		Schema: objSchema(map[string]any{}),
		Handler: func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
			return nil, errBoom
		},
	})
	c := New(reg, ModeAll, ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	sess := NewSession(nil)
	dispatchJSON(t, c, sess, "initialize", InitializeParams{ProtocolVersion: ProtocolVersion})

	resp := dispatchJSON(t, c, sess, "tools/call", map[string]any{"name": "fail"})
	if resp.Error != nil {
		t.Fatalf("expected no JSON-RPC error, got %+v", resp.Error)
	}
	result, ok := resp.Result.(*toolCallResult)
	if !ok || !result.IsError {
		t.Fatalf("expected isError:true content result, got %+v", resp.Result)
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	c := New(testRegistry(), ModeAll, ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	sess := NewSession(nil)
	dispatchJSON(t, c, sess, "initialize", InitializeParams{ProtocolVersion: ProtocolVersion})

	resp := dispatchJSON(t, c, sess, "not/a/method", nil)
	if resp.Error == nil || resp.Error.Code != RPCMethodNotFound {
		t.Fatalf("expected method-not-found error, got %+v", resp)
	}
}

func TestDispatch_NotificationGetsNoResponse(t *testing.T) {
	c := New(testRegistry(), ModeAll, ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	sess := NewSession(nil)
	req := &Request{JSONRPC: "2.0", Method: "notifications/initialized"}
	if resp := c.Dispatch(context.Background(), sess, req); resp != nil {
		t.Fatalf("expected nil response for a notification, got %+v", resp)
	}
}

var errBoom = &boomErr{}

type boomErr struct{}

func (*boomErr) Error() string { return "boom" }

package mcpcore

import "encoding/json"

// contentBlock is a single MCP content block within a tool result.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolCallResult is the wire shape of a `tools/call` result (§4.7 step e):
// JSON results get a pretty-printed text block plus structuredContent;
// plain strings get a single text block; errors set isError.
type toolCallResult struct {
	Content           []contentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// renderToolResult wraps a handler's return value into MCP content blocks.
func renderToolResult(v any) *toolCallResult {
	if s, ok := v.(string); ok {
		return &toolCallResult{Content: []contentBlock{{Type: "text", Text: s}}}
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &toolCallResult{Content: []contentBlock{{Type: "text", Text: "unable to render result"}}, IsError: true}
	}
	return &toolCallResult{
		Content:           []contentBlock{{Type: "text", Text: string(pretty)}},
		StructuredContent: v,
	}
}

// renderToolError wraps a handler error into an isError:true result rather
// than a JSON-RPC error, per §4.7/§7: operation-level tool failures travel
// through the MCP content protocol, not the transport error channel.
func renderToolError(err error) *toolCallResult {
	return &toolCallResult{
		Content: []contentBlock{{Type: "text", Text: err.Error()}},
		IsError: true,
	}
}

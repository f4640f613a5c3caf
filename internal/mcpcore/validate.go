package mcpcore

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// validateArgs compiles a tool's JSON schema and validates args against
// it, mirroring the compile-then-validate shape used for tool payload
// validation in the pack's MCP registry service.
func validateArgs(schema map[string]any, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schema); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	// jsonschema validates against any, so round-trip args through JSON to
	// get plain map[string]any/[]any/float64 values rather than Go-typed
	// ones (e.g. []string), which the validator doesn't recognize.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}
	return compiled.Validate(doc)
}

package handlers

import (
	"context"

	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
	"github.com/wheattoast11/deepresearch-mcp/internal/version"
)

// AboutOutput is static server identity metadata per §6.
type AboutOutput struct {
	Body struct {
		Name            string `json:"name"`
		Version         string `json:"version"`
		ProtocolVersion string `json:"protocol_version"`
		GoVersion       string `json:"go_version"`
	}
}

// About returns static identity metadata about this server build.
func About(ctx context.Context, input *struct{}) (*AboutOutput, error) {
	v := version.Get()
	out := &AboutOutput{}
	out.Body.Name = "deepresearch-mcp"
	out.Body.Version = v.Version
	out.Body.ProtocolVersion = mcpcore.ProtocolVersion
	out.Body.GoVersion = v.GoVersion
	return out, nil
}

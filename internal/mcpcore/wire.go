package mcpcore

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/hybridindex"
	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// Build wires a Registry and Core over the service layer: the Job Engine
// (C5), the storage gateway's repositories (C1), the hybrid index (C4),
// and the LLM gateway (C3). Transports (C8) hold the returned *Core and
// call Dispatch per request; they never touch the Registry directly.
func Build(engine *jobengine.Engine, repos *repository.Repositories, index *hybridindex.Index, gateway llmgateway.Gateway, mode Mode, serverName, serverVersion string, started time.Time, logger *slog.Logger) *Core {
	reg := NewRegistry()
	deps := Dependencies{Engine: engine, Repos: repos, Index: index, Gateway: gateway, Started: started}
	RegisterDomainTools(reg, deps)
	registerJobResources(reg, repos)

	info := ServerInfo{Name: serverName, Version: serverVersion}
	return New(reg, mode, info, logger)
}

// registerJobResources exposes the `tools://job_status` and
// `tools://get_job_result` references named in the canonical job
// response (§6) as actual MCP resources, so a client that follows the
// pointer rather than re-invoking a tool still gets a usable read.
func registerJobResources(reg *Registry, repos *repository.Repositories) {
	reg.RegisterResource(&Resource{
		URI:         "tools://job_status",
		Name:        "Job status",
		Description: "Resolve to ?job_id=<id> for a job's current status.",
		MIMEType:    "application/json",
		Read: func(ctx context.Context, uri string) (string, string, error) {
			id := queryParam(uri, "job_id")
			if id == "" {
				return "", "", apierr.New(apierr.CodeInvalidParams, "tools://job_status requires a job_id query parameter")
			}
			job, err := repos.Job.GetJob(ctx, id)
			if err != nil {
				return "", "", err
			}
			if job == nil {
				return "", "", apierr.New(apierr.CodeNotFound, "job not found: "+id)
			}
			b, err := json.Marshal(map[string]any{"job_id": job.ID, "status": job.Status, "attempt": job.Attempt})
			if err != nil {
				return "", "", err
			}
			return string(b), "application/json", nil
		},
	})

	reg.RegisterResource(&Resource{
		URI:         "tools://get_job_result",
		Name:        "Job result",
		Description: "Resolve to ?job_id=<id> for a completed job's result payload.",
		MIMEType:    "application/json",
		Read: func(ctx context.Context, uri string) (string, string, error) {
			id := queryParam(uri, "job_id")
			if id == "" {
				return "", "", apierr.New(apierr.CodeInvalidParams, "tools://get_job_result requires a job_id query parameter")
			}
			job, err := repos.Job.GetJob(ctx, id)
			if err != nil {
				return "", "", err
			}
			if job == nil {
				return "", "", apierr.New(apierr.CodeNotFound, "job not found: "+id)
			}
			return job.ResultJSON, "application/json", nil
		},
	})
}

// queryParam extracts a single query parameter from a `scheme://host?k=v`
// style resource URI.
func queryParam(uri, key string) string {
	_, query, ok := strings.Cut(uri, "?")
	if !ok {
		return ""
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get(key)
}

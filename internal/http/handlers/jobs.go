package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/orchestrator"
)

// JobsHandler serves out-of-band job submission (POST /jobs, §6), the
// HTTP-native counterpart to the research/agent MCP tools: same Job
// Engine, same canonical submission and response shapes, reachable
// without an MCP client.
type JobsHandler struct {
	engine *jobengine.Engine
}

func NewJobsHandler(engine *jobengine.Engine) *JobsHandler {
	return &JobsHandler{engine: engine}
}

type submitJobRequest struct {
	Query          string   `json:"query"`
	CostPreference string   `json:"costPreference"`
	AudienceLevel  string   `json:"audienceLevel"`
	OutputFormat   string   `json:"outputFormat"`
	IncludeSources bool     `json:"includeSources"`
	TextDocuments  []string `json:"textDocuments"`
	StructuredData string   `json:"structuredData"`
	Notify         string   `json:"notify"`
	IdempotencyKey string   `json:"idempotency_key"`
	ForceNew       bool     `json:"force_new"`
}

func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJobsError(w, apierr.New(apierr.CodeInvalidParams, "invalid JSON body"))
		return
	}
	if req.Query == "" {
		writeJobsError(w, apierr.New(apierr.CodeInvalidParams, "query is required"))
		return
	}

	input := orchestrator.Input{
		Query:          req.Query,
		CostPreference: orchestrator.CostPreference(req.CostPreference),
		AudienceLevel:  req.AudienceLevel,
		OutputFormat:   orchestrator.OutputFormat(req.OutputFormat),
		IncludeSources: req.IncludeSources,
		TextDocuments:  req.TextDocuments,
		StructuredData: req.StructuredData,
	}

	res, err := h.engine.Submit(r.Context(), jobengine.SubmitRequest{
		Type:           models.JobTypeResearch,
		Params:         input,
		IdempotencyKey: req.IdempotencyKey,
		ForceNew:       req.ForceNew,
		WebhookURL:     req.Notify,
	})
	if err != nil {
		writeJobsError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(jobResponseBody(res))
}

// jobResponseBody renders the canonical job response shape from §6, the
// HTTP-surface twin of the research/agent MCP tools' response.
func jobResponseBody(res *jobengine.SubmitResult) map[string]any {
	out := map[string]any{
		"job_id": res.Job.ID,
		"status": res.Job.Status,
		"resources": map[string]any{
			"monitor": "/jobs/" + res.Job.ID + "/events",
			"status":  "tools://job_status",
			"result":  "tools://get_job_result",
		},
		"idempotency_key": res.Job.IdempotencyKey,
	}
	if res.ExistingJob {
		out["existing_job"] = true
	}
	if res.Cached {
		out["cached"] = true
		out["result"] = res.Job.ResultJSON
	}
	return out
}

func writeJobsError(w http.ResponseWriter, err error) {
	status := apierr.HTTPStatus(apierr.CodeOf(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

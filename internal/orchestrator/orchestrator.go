// Package orchestrator is the Research Orchestrator (C6): a three-stage
// plan -> ensemble research -> synthesize pipeline over the LLM Gateway
// (C3) and Hybrid Index (C4), with bounded concurrency, token budgeting,
// vision-model fallback, iterative refinement, and report persistence
// (C1) (§4.6).
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wheattoast11/deepresearch-mcp/internal/config"
	"github.com/wheattoast11/deepresearch-mcp/internal/embedding"
	"github.com/wheattoast11/deepresearch-mcp/internal/hybridindex"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// CostPreference selects the model tier a stage draws from.
type CostPreference string

const (
	CostHigh    CostPreference = "high"
	CostLow     CostPreference = "low"
	CostVeryLow CostPreference = "very_low"
)

// OutputFormat is a hint passed through to the synthesis prompt.
type OutputFormat string

const (
	OutputMarkdown OutputFormat = "markdown"
	OutputPlain    OutputFormat = "plain"
)

// ImageInput is an inline image attached to the research request.
type ImageInput struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// Input is the research request body, parsed from a job's params (§4.6
// "Inputs").
type Input struct {
	Query           string         `json:"query"`
	CostPreference  CostPreference `json:"cost_preference"`
	AudienceLevel   string         `json:"audience_level,omitempty"`
	OutputFormat    OutputFormat   `json:"output_format,omitempty"`
	IncludeSources  bool           `json:"include_sources"`
	Images          []ImageInput   `json:"images,omitempty"`
	TextDocuments   []string       `json:"text_documents,omitempty"`
	StructuredData  string         `json:"structured_data,omitempty"`
	MaxIterations   int            `json:"max_iterations,omitempty"`
	EnsembleSize    int            `json:"ensemble_size,omitempty"`
}

// Output is the pipeline's result, persisted as a models.Report and
// returned as the job's result JSON.
type Output struct {
	ReportID   int64    `json:"report_id"`
	Query      string   `json:"query"`
	OutputMD   string   `json:"output_markdown"`
	Sources    []string `json:"sources"`
	Iterations int      `json:"iterations"`
	Confidence float64  `json:"confidence"`
	FailedSubQueries []string `json:"failed_sub_queries,omitempty"`
}

// Orchestrator wires C3/C4/C1 into the plan/research/synthesize pipeline.
type Orchestrator struct {
	gateway  llmgateway.Gateway
	embedder embedding.Provider
	index    *hybridindex.Index
	reports  repository.ReportRepository
	usage    repository.UsageRepository

	parallelism     int
	defaultEnsemble int
	defaultMaxIter  int
	minMaxTokens    int
	visionAllowlist []string

	tokens *tokenCounter
	logger *slog.Logger
}

// New wires an Orchestrator from configuration.
func New(gateway llmgateway.Gateway, embedder embedding.Provider, index *hybridindex.Index, repos *repository.Repositories, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	parallelism := cfg.OrchestratorParallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	ensemble := cfg.EnsembleSize
	if ensemble <= 0 {
		ensemble = 2
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 2
	}
	return &Orchestrator{
		gateway:         gateway,
		embedder:        embedder,
		index:           index,
		reports:         repos.Report,
		usage:           repos.Usage,
		parallelism:     parallelism,
		defaultEnsemble: ensemble,
		defaultMaxIter:  maxIter,
		minMaxTokens:    cfg.MinMaxTokens,
		visionAllowlist: cfg.VisionModelAllowlist,
		tokens:          newTokenCounter(),
		logger:          logger.With("component", "orchestrator"),
	}
}

// subQueryResult captures one ensemble member's outcome for one sub-query.
type subQueryResult struct {
	SubQuery string
	Domain   string
	Model    string
	Text     string
	Usage    llmgateway.Usage
	Err      error
}

// recordUsage is a small helper shared by all three stages.
func (o *Orchestrator) recordUsage(ctx context.Context, model, jobID string, u llmgateway.Usage) {
	if o.usage == nil {
		return
	}
	counter := &models.UsageCounter{
		ID:               ulid.Make().String(),
		Model:            model,
		JobID:            jobID,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if err := o.usage.RecordUsage(ctx, counter); err != nil {
		o.logger.Warn("failed to record usage", "model", model, "error", err)
	}
}

// clampIterations resolves the effective max-iterations bound from the
// request, falling back to the configured default.
func (o *Orchestrator) clampIterations(requested int) int {
	if requested > 0 {
		return requested
	}
	return o.defaultMaxIter
}

func (o *Orchestrator) clampEnsemble(requested int) int {
	if requested > 0 {
		return requested
	}
	return o.defaultEnsemble
}

func sleepBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * 250 * time.Millisecond
}

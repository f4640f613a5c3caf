package orchestrator

import (
	"log/slog"

	"github.com/wheattoast11/deepresearch-mcp/internal/config"
	"github.com/wheattoast11/deepresearch-mcp/internal/embedding"
	"github.com/wheattoast11/deepresearch-mcp/internal/hybridindex"
	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// Handlers builds the Job Engine's job-type-to-Handler map with the
// Research Orchestrator registered for models.JobTypeResearch.
func Handlers(gateway llmgateway.Gateway, embedder embedding.Provider, index *hybridindex.Index, repos *repository.Repositories, cfg *config.Config, logger *slog.Logger) map[models.JobType]jobengine.Handler {
	return map[models.JobType]jobengine.Handler{
		models.JobTypeResearch: New(gateway, embedder, index, repos, cfg, logger),
	}
}

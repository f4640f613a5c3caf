package hybridindex

import (
	"log/slog"

	"github.com/wheattoast11/deepresearch-mcp/internal/config"
	"github.com/wheattoast11/deepresearch-mcp/internal/embedding"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// New wires a Hybrid Index from configuration.
func New(repo repository.IndexRepository, embedder embedding.Provider, llm llmgateway.Gateway, cfg *config.Config, log *slog.Logger) *Index {
	return newIndex(repo, embedder, llm, cfg.RerankModel, Config{
		K1:                 cfg.BM25K1,
		B:                  cfg.BM25B,
		FusionWeightBM25:   cfg.FusionWeightBM25,
		FusionWeightVector: cfg.FusionWeightVector,
		MaxDocBodyLen:      cfg.IndexMaxDocBodyLen,
		RerankEnabled:      cfg.RerankEnabled,
	}, log)
}

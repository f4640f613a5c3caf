// Package hybridindex is the Hybrid Index (C4): BM25 term scoring fused
// with vector cosine similarity over a content-addressed document store,
// with optional LLM rerank, grounded on the same
// "BM25 retrieval first, LLM rerank on top, fall back to BM25 on rerank
// failure" shape the pack's loom agent memory uses for its FTS5 search.
package hybridindex

import (
	"context"
	"log/slog"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/embedding"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// Scope narrows a search to documents of a given origin; empty means all.
type Scope struct {
	Origin models.DocOrigin
}

// ScoreBreakdown reports how a candidate's final score was assembled,
// per §4.4's "return the top k with score breakdown".
type ScoreBreakdown struct {
	BM25       float64 `json:"bm25"`
	Vector     float64 `json:"vector,omitempty"`
	Fused      float64 `json:"fused"`
	Reranked   bool    `json:"reranked,omitempty"`
	RerankRank int     `json:"rerank_rank,omitempty"`
}

// Result is a single ranked document from a Search call.
type Result struct {
	Document models.IndexDocument `json:"document"`
	Score    ScoreBreakdown       `json:"score"`
}

// SearchResult is the full outcome of a Search call, including the
// degrade annotation §4.4 requires when the vector path fails.
type SearchResult struct {
	Results   []Result `json:"results"`
	Degraded  bool     `json:"degraded,omitempty"`
	Reranked  bool     `json:"reranked,omitempty"`
}

// Config holds the tunables §4.4 requires to be configurable.
type Config struct {
	K1                 float64
	B                  float64
	FusionWeightBM25   float64
	FusionWeightVector float64
	MaxDocBodyLen      int
	RerankEnabled      bool
	Stopwords          map[string]bool
}

// Index is the Hybrid Index service: document ingestion plus fused
// BM25+vector search, with optional LLM rerank.
type Index struct {
	repo      repository.IndexRepository
	embedder  embedding.Provider
	llm       llmgateway.Gateway
	rerankModel string
	cfg       Config
	log       *slog.Logger
}

// newIndex wires a Hybrid Index over the given storage gateway, embedding
// provider, and (optional) LLM gateway for reranking.
func newIndex(repo repository.IndexRepository, embedder embedding.Provider, llm llmgateway.Gateway, rerankModel string, cfg Config, log *slog.Logger) *Index {
	if cfg.K1 == 0 {
		cfg.K1 = 1.2
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}
	if cfg.FusionWeightBM25 == 0 && cfg.FusionWeightVector == 0 {
		cfg.FusionWeightBM25, cfg.FusionWeightVector = 0.5, 0.5
	}
	if cfg.MaxDocBodyLen == 0 {
		cfg.MaxDocBodyLen = 20000
	}
	return &Index{repo: repo, embedder: embedder, llm: llm, rerankModel: rerankModel, cfg: cfg, log: log}
}

const truncationMarker = "\n... [truncated]"

// IndexDocuments tokenizes, updates inverted-index postings and length
// statistics, and computes an embedding per document if the embedder is
// ready (§4.4 ingestion).
func (idx *Index) IndexDocuments(ctx context.Context, docs []*models.IndexDocument) error {
	for _, doc := range docs {
		if len(doc.Body) > idx.cfg.MaxDocBodyLen {
			doc.Body = doc.Body[:idx.cfg.MaxDocBodyLen] + truncationMarker
		}
		tokens := tokenize(doc.Title+" "+doc.Body, idx.cfg.Stopwords)
		doc.TokenCount = len(tokens)
		terms := termFrequencies(tokens)

		if idx.embedder != nil && idx.embedder.Ready() {
			vec, err := idx.embedder.Embed(ctx, doc.Title+"\n"+doc.Body)
			if err != nil && idx.log != nil {
				idx.log.Warn("index document embedding failed, indexing without vector", "doc_id", doc.ID, "error", err)
			} else if err == nil {
				doc.Embedding = vec
			}
		}

		if err := idx.repo.IndexDocument(ctx, doc, terms); err != nil {
			return apierr.Wrap(apierr.CodeStorageUnavailable, err, "index document failed").WithDetail("doc_id", doc.ID)
		}
	}
	return nil
}

func (idx *Index) DeleteFromIndex(ctx context.Context, id string) error {
	return idx.repo.DeleteFromIndex(ctx, id)
}

package hybridindex

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/embedding"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

func seedDocs(t *testing.T, idx *Index, n int) {
	t.Helper()
	docs := make([]*models.IndexDocument, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, &models.IndexDocument{
			ID:     fmt.Sprintf("doc-%d", i),
			Origin: models.DocOriginText,
			Title:  fmt.Sprintf("Document %d", i),
			Body:   fmt.Sprintf("hybrid retrieval engine fusion ranking document number %d", i),
		})
	}
	if err := idx.IndexDocuments(context.Background(), docs); err != nil {
		t.Fatalf("IndexDocuments() error = %v", err)
	}
}

func TestSearch_BM25OnlyWhenEmbedderNotReady(t *testing.T) {
	repo := setupTestIndexRepo(t)
	idx := newIndex(repo, nil, nil, "", Config{}, nil)
	seedDocs(t, idx, 5)

	result, err := idx.Search(context.Background(), "hybrid retrieval", 3, Scope{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !result.Degraded {
		t.Error("expected Degraded=true with no embedder configured")
	}
	if len(result.Results) == 0 {
		t.Fatal("expected at least one result")
	}
	for _, r := range result.Results {
		if r.Score.Vector != 0 {
			t.Errorf("expected zero vector score in degraded mode, got %v", r.Score.Vector)
		}
	}
}

func TestSearch_FusesVectorWhenEmbedderReady(t *testing.T) {
	repo := setupTestIndexRepo(t)
	embedder := embedding.NewLocalProvider(32)
	idx := newIndex(repo, embedder, nil, "", Config{FusionWeightBM25: 0.5, FusionWeightVector: 0.5}, nil)
	seedDocs(t, idx, 5)

	result, err := idx.Search(context.Background(), "hybrid retrieval engine", 5, Scope{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Degraded {
		t.Error("expected Degraded=false with a ready embedder")
	}
}

func TestSearch_RespectsScope(t *testing.T) {
	repo := setupTestIndexRepo(t)
	idx := newIndex(repo, nil, nil, "", Config{}, nil)
	ctx := context.Background()

	if err := idx.IndexDocuments(ctx, []*models.IndexDocument{
		{ID: "a", Origin: models.DocOriginReport, Title: "t", Body: "unique keyword alpha"},
		{ID: "b", Origin: models.DocOriginURL, Title: "t", Body: "unique keyword alpha"},
	}); err != nil {
		t.Fatalf("IndexDocuments() error = %v", err)
	}

	result, err := idx.Search(ctx, "unique keyword", 10, Scope{Origin: models.DocOriginReport})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].Document.ID != "a" {
		t.Fatalf("expected only doc 'a' in scope, got %+v", result.Results)
	}
}

func TestSearch_TruncatesOverlongBody(t *testing.T) {
	repo := setupTestIndexRepo(t)
	idx := newIndex(repo, nil, nil, "", Config{MaxDocBodyLen: 10}, nil)
	ctx := context.Background()

	long := "this body is much longer than the configured maximum length"
	if err := idx.IndexDocuments(ctx, []*models.IndexDocument{
		{ID: "trunc", Origin: models.DocOriginText, Title: "t", Body: long},
	}); err != nil {
		t.Fatalf("IndexDocuments() error = %v", err)
	}
	got, err := repo.GetIndexDocument(ctx, "trunc")
	if err != nil {
		t.Fatalf("GetIndexDocument() error = %v", err)
	}
	if len(got.Body) <= 10 || got.Body[:10] != long[:10] {
		t.Fatalf("expected truncated body starting with original prefix, got %q", got.Body)
	}
}

func TestLessResult_TieBreakOrder(t *testing.T) {
	now := time.Now()
	a := Result{Score: ScoreBreakdown{Fused: 1, BM25: 1}, Document: models.IndexDocument{ID: "b", CreatedAt: now}}
	b := Result{Score: ScoreBreakdown{Fused: 1, BM25: 1}, Document: models.IndexDocument{ID: "a", CreatedAt: now}}
	// Equal fused and bm25 and created_at: smaller id ranks first, i.e. "a" > "b" is false so a should NOT be less.
	if lessResult(b, a) {
		t.Error("expected doc 'a' (smaller id) to rank above doc 'b' when all else is equal")
	}
}

type fakeGateway struct {
	text string
	err  error
}

func (f *fakeGateway) ChatCompletion(ctx context.Context, model string, messages []llmgateway.Message, opts llmgateway.Options, onDelta func(llmgateway.Delta)) (*llmgateway.ChatResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llmgateway.ChatResult{Text: f.text, Model: model}, nil
}

func (f *fakeGateway) ListModels(ctx context.Context, refresh bool) ([]llmgateway.ModelDescriptor, error) {
	return nil, nil
}

func (f *fakeGateway) SelectVisionModel(ctx context.Context, preferred []string) (string, error) {
	return "", nil
}

func TestSearch_RerankReordersAndFallsBackOnFailure(t *testing.T) {
	repo := setupTestIndexRepo(t)
	ctx := context.Background()

	gw := &fakeGateway{text: `[{"index": 1, "score": 9}, {"index": 0, "score": 2}]`}
	idx := newIndex(repo, nil, gw, "rerank-model", Config{RerankEnabled: true}, nil)
	seedDocs(t, idx, 2)

	result, err := idx.Search(ctx, "hybrid retrieval", 2, Scope{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !result.Reranked {
		t.Fatal("expected Reranked=true when the LLM rerank succeeds")
	}

	gw.err = fmt.Errorf("boom")
	result, err = idx.Search(ctx, "hybrid retrieval", 2, Scope{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Reranked {
		t.Error("expected Reranked=false when rerank fails, falling back to fused order")
	}
	if len(result.Results) == 0 {
		t.Fatal("expected fused results to still be returned on rerank failure")
	}
}

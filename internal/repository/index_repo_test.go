package repository

import (
	"context"
	"testing"

	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

func TestIndexRepository_IndexAndGetDocument(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	doc := &models.IndexDocument{
		ID:         "doc-1",
		Origin:     models.DocOriginText,
		Title:      "Hybrid retrieval",
		Body:       "bm25 and vector fusion",
		TokenCount: 4,
		Embedding:  []float32{0.1, 0.2, 0.3},
	}
	terms := map[string]int{"bm25": 1, "vector": 1, "fusion": 1}

	if err := repos.Index.IndexDocument(ctx, doc, terms); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	got, err := repos.Index.GetIndexDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetIndexDocument() error = %v", err)
	}
	if got.Title != doc.Title || got.TokenCount != doc.TokenCount {
		t.Errorf("got %+v, want %+v", got, doc)
	}

	postings, err := repos.Index.Postings(ctx, []string{"bm25", "nonexistent"})
	if err != nil {
		t.Fatalf("Postings() error = %v", err)
	}
	if postings["bm25"]["doc-1"] != 1 {
		t.Errorf("postings[bm25][doc-1] = %d, want 1", postings["bm25"]["doc-1"])
	}
	if _, ok := postings["nonexistent"]; ok {
		t.Error("expected no postings for nonexistent term")
	}

	count, err := repos.Index.DocumentCount(ctx)
	if err != nil {
		t.Fatalf("DocumentCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("DocumentCount() = %d, want 1", count)
	}

	avg, err := repos.Index.AverageDocLength(ctx)
	if err != nil {
		t.Fatalf("AverageDocLength() error = %v", err)
	}
	if avg != 4 {
		t.Errorf("AverageDocLength() = %v, want 4", avg)
	}
}

func TestIndexRepository_ReindexReplacesPostings(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	doc := &models.IndexDocument{ID: "doc-1", Origin: models.DocOriginURL, Body: "old content", TokenCount: 2}
	if err := repos.Index.IndexDocument(ctx, doc, map[string]int{"old": 1}); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	doc.Body = "new content"
	if err := repos.Index.IndexDocument(ctx, doc, map[string]int{"new": 1}); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	postings, err := repos.Index.Postings(ctx, []string{"old", "new"})
	if err != nil {
		t.Fatalf("Postings() error = %v", err)
	}
	if len(postings["old"]) != 0 {
		t.Error("expected stale posting to be replaced")
	}
	if postings["new"]["doc-1"] != 1 {
		t.Error("expected new posting to be present")
	}
}

func TestIndexRepository_DeleteFromIndex(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	doc := &models.IndexDocument{ID: "doc-1", Origin: models.DocOriginReport, Body: "x", TokenCount: 1}
	if err := repos.Index.IndexDocument(ctx, doc, map[string]int{"x": 1}); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if err := repos.Index.DeleteFromIndex(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteFromIndex() error = %v", err)
	}

	_, err := repos.Index.GetIndexDocument(ctx, "doc-1")
	if err == nil {
		t.Error("expected error getting deleted document")
	}
}

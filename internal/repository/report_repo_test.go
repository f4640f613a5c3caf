package repository

import (
	"context"
	"testing"

	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

func TestReportRepository_UpsertAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	rep := &models.Report{
		Query:     "what is hybrid retrieval",
		OutputMD:  "# Report\n\nhybrid retrieval combines BM25 and vector search.",
		Sources:   []string{"https://example.com/a"},
		Metadata:  models.ReportMetadata{Iterations: 1, Confidence: 0.8},
		Embedding: []float32{1, 0, 0},
	}

	id, err := repos.Report.UpsertReport(ctx, rep)
	if err != nil {
		t.Fatalf("UpsertReport() error = %v", err)
	}
	if id == 0 {
		t.Fatal("UpsertReport() did not assign an id")
	}

	got, err := repos.Report.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.Query != rep.Query {
		t.Errorf("Query = %s, want %s", got.Query, rep.Query)
	}
	if len(got.Sources) != 1 || got.Sources[0] != rep.Sources[0] {
		t.Errorf("Sources = %v, want %v", got.Sources, rep.Sources)
	}
	if got.Metadata.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", got.Metadata.Confidence)
	}
}

func TestReportRepository_FindBySimilarity(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	close_ := &models.Report{Query: "close", OutputMD: "x", Embedding: []float32{1, 0, 0}}
	far := &models.Report{Query: "far", OutputMD: "y", Embedding: []float32{0, 1, 0}}
	if _, err := repos.Report.UpsertReport(ctx, close_); err != nil {
		t.Fatalf("UpsertReport() error = %v", err)
	}
	if _, err := repos.Report.UpsertReport(ctx, far); err != nil {
		t.Fatalf("UpsertReport() error = %v", err)
	}

	results, err := repos.Report.FindReportsBySimilarity(ctx, []float32{1, 0, 0}, 5, 0.5)
	if err != nil {
		t.Fatalf("FindReportsBySimilarity() error = %v", err)
	}
	if len(results) != 1 || results[0].Query != "close" {
		t.Fatalf("expected only the close report, got %+v", results)
	}
}

func TestReportRepository_ListRecentReports(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repos.Report.UpsertReport(ctx, &models.Report{Query: "q", OutputMD: "x"}); err != nil {
			t.Fatalf("UpsertReport() error = %v", err)
		}
	}

	reports, err := repos.Report.ListRecentReports(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecentReports() error = %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
}

package repository

import (
	"context"
	"testing"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
)

func TestSQLGateway_ExecuteReadOnlySql(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	job := newTestJob()
	if err := repos.Job.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	rows, err := repos.SQL.ExecuteReadOnlySql(ctx, "SELECT id, status FROM jobs WHERE id = ?", []any{job.ID})
	if err != nil {
		t.Fatalf("ExecuteReadOnlySql() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != job.ID {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestSQLGateway_RejectsWriteStatements(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	_, err := repos.SQL.ExecuteReadOnlySql(ctx, "DELETE FROM jobs", nil)
	if apierr.CodeOf(err) != apierr.CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams rejecting a write statement, got %v", err)
	}
}

func TestSQLGateway_RejectsUnknownTable(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	_, err := repos.SQL.ExecuteReadOnlySql(ctx, "SELECT * FROM sqlite_master", nil)
	if apierr.CodeOf(err) != apierr.CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams for an unlisted table, got %v", err)
	}
}

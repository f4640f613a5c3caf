package mcpcore

import (
	"database/sql"
	"testing"

	_ "github.com/tursodatabase/go-libsql"
	"github.com/wheattoast11/deepresearch-mcp/internal/database/migrations"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewRepositories(db)
}

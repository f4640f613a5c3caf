package transport

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/wheattoast11/deepresearch-mcp/internal/config"
	"github.com/wheattoast11/deepresearch-mcp/internal/database/migrations"
	"github.com/wheattoast11/deepresearch-mcp/internal/hybridindex"
	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

type fakeGateway struct{}

func (fakeGateway) ChatCompletion(ctx context.Context, model string, messages []llmgateway.Message, opts llmgateway.Options, onDelta func(llmgateway.Delta)) (*llmgateway.ChatResult, error) {
	return &llmgateway.ChatResult{Text: "stub"}, nil
}

func (fakeGateway) ListModels(ctx context.Context, refresh bool) ([]llmgateway.ModelDescriptor, error) {
	return []llmgateway.ModelDescriptor{{ID: "stub-model"}}, nil
}

func (fakeGateway) SelectVisionModel(ctx context.Context, preferred []string) (string, error) {
	return "", nil
}

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

func testCore(t *testing.T) (*mcpcore.Core, *repository.Repositories) {
	t.Helper()
	repos := setupTestRepos(t)
	engine := jobengine.NewEngine(repos.Job, repos.JobEvent, time.Hour)
	index := hybridindex.New(repos.Index, nil, nil, &config.Config{}, nil)

	reg := mcpcore.NewRegistry()
	mcpcore.RegisterDomainTools(reg, mcpcore.Dependencies{
		Engine: engine, Repos: repos, Index: index, Gateway: fakeGateway{}, Started: time.Now(),
	})
	core := mcpcore.New(reg, mcpcore.ModeAll, mcpcore.ServerInfo{Name: "transport-test", Version: "0.0.0"}, nil)
	return core, repos
}

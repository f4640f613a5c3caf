package mcpcore

import (
	"context"
	"testing"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

func TestRegisterJobResources_ReadsLiveJobStatus(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	engine := jobengine.NewEngine(repos.Job, repos.JobEvent, time.Hour)

	submitted, err := engine.Submit(ctx, jobengine.SubmitRequest{
		Type:   models.JobTypeResearch,
		Params: map[string]any{"query": "test"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	reg := NewRegistry()
	registerJobResources(reg, repos)

	res, ok := reg.Resource("tools://job_status")
	if !ok {
		t.Fatal("expected tools://job_status to be registered")
	}
	contents, mimeType, err := res.Read(ctx, "tools://job_status?job_id="+submitted.Job.ID)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if mimeType != "application/json" {
		t.Errorf("mimeType = %q, want application/json", mimeType)
	}
	if contents == "" {
		t.Error("expected non-empty job status contents")
	}
}

func TestRegisterJobResources_MissingJobIDIsInvalidParams(t *testing.T) {
	repos := setupTestRepos(t)
	reg := NewRegistry()
	registerJobResources(reg, repos)

	res, ok := reg.Resource("tools://get_job_result")
	if !ok {
		t.Fatal("expected tools://get_job_result to be registered")
	}
	if _, _, err := res.Read(context.Background(), "tools://get_job_result"); err == nil {
		t.Fatal("expected error for missing job_id")
	}
}

func TestQueryParam(t *testing.T) {
	cases := []struct {
		uri  string
		key  string
		want string
	}{
		{"tools://job_status?job_id=abc", "job_id", "abc"},
		{"tools://job_status?job_id=abc&format=full", "format", "full"},
		{"tools://job_status", "job_id", ""},
	}
	for _, c := range cases {
		if got := queryParam(c.uri, c.key); got != c.want {
			t.Errorf("queryParam(%q, %q) = %q, want %q", c.uri, c.key, got, c.want)
		}
	}
}

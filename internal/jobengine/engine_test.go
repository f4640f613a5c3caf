package jobengine

import (
	"context"
	"testing"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

func TestEngine_Submit_NewJob(t *testing.T) {
	repos := setupTestRepos(t)
	engine := NewEngine(repos.Job, repos.JobEvent, time.Hour)
	ctx := context.Background()

	result, err := engine.Submit(ctx, SubmitRequest{
		Type:   models.JobTypeResearch,
		Params: map[string]any{"query": "what is bm25"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.ExistingJob || result.Cached {
		t.Error("expected a fresh job on first submission")
	}
	if result.Job.Status != models.JobStatusQueued {
		t.Errorf("got status %v, want queued", result.Job.Status)
	}

	events, err := repos.JobEvent.GetJobEvents(ctx, result.Job.ID, 0, 10)
	if err != nil {
		t.Fatalf("GetJobEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].Type != models.JobEventSubmitted {
		t.Errorf("expected a single submitted event, got %+v", events)
	}
}

func TestEngine_Submit_IdempotentMatchOnNonTerminal(t *testing.T) {
	repos := setupTestRepos(t)
	engine := NewEngine(repos.Job, repos.JobEvent, time.Hour)
	ctx := context.Background()

	params := map[string]any{"query": "same query"}
	first, err := engine.Submit(ctx, SubmitRequest{Type: models.JobTypeResearch, Params: params})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	second, err := engine.Submit(ctx, SubmitRequest{Type: models.JobTypeResearch, Params: params})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !second.ExistingJob {
		t.Error("expected ExistingJob=true for a duplicate submission of a non-terminal job")
	}
	if second.Job.ID != first.Job.ID {
		t.Errorf("expected the same job id, got %s vs %s", second.Job.ID, first.Job.ID)
	}
}

func TestEngine_Submit_ForceNewBypassesIdempotency(t *testing.T) {
	repos := setupTestRepos(t)
	engine := NewEngine(repos.Job, repos.JobEvent, time.Hour)
	ctx := context.Background()

	params := map[string]any{"query": "same query"}
	first, err := engine.Submit(ctx, SubmitRequest{Type: models.JobTypeResearch, Params: params})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := engine.Submit(ctx, SubmitRequest{Type: models.JobTypeResearch, Params: params, ForceNew: true})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if second.Job.ID == first.Job.ID {
		t.Error("expected force_new=true to create a distinct job")
	}
}

func TestEngine_Submit_RetryAfterFailure(t *testing.T) {
	repos := setupTestRepos(t)
	engine := NewEngine(repos.Job, repos.JobEvent, time.Hour)
	ctx := context.Background()

	params := map[string]any{"query": "retry me"}
	first, err := engine.Submit(ctx, SubmitRequest{Type: models.JobTypeResearch, Params: params})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := repos.Job.SetJobStatus(ctx, first.Job.ID, models.JobStatusFailed, "", "boom"); err != nil {
		t.Fatalf("SetJobStatus() error = %v", err)
	}

	second, err := engine.Submit(ctx, SubmitRequest{Type: models.JobTypeResearch, Params: params})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if second.Job.ID == first.Job.ID {
		t.Error("expected a new job after the prior attempt failed")
	}
	if second.Job.RetryOf != first.Job.ID {
		t.Errorf("expected RetryOf=%s, got %s", first.Job.ID, second.Job.RetryOf)
	}
}

func TestEngine_Submit_CachedOnSucceeded(t *testing.T) {
	repos := setupTestRepos(t)
	engine := NewEngine(repos.Job, repos.JobEvent, time.Hour)
	ctx := context.Background()

	params := map[string]any{"query": "cache me"}
	first, err := engine.Submit(ctx, SubmitRequest{Type: models.JobTypeResearch, Params: params})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := repos.Job.SetJobStatus(ctx, first.Job.ID, models.JobStatusSucceeded, `{"ok":true}`, ""); err != nil {
		t.Fatalf("SetJobStatus() error = %v", err)
	}

	second, err := engine.Submit(ctx, SubmitRequest{Type: models.JobTypeResearch, Params: params})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !second.Cached {
		t.Error("expected Cached=true when matching a succeeded job within TTL")
	}
	if second.Job.ID != first.Job.ID {
		t.Error("expected the cached result to reference the original job")
	}
}

func TestEngine_Cancel(t *testing.T) {
	repos := setupTestRepos(t)
	engine := NewEngine(repos.Job, repos.JobEvent, time.Hour)
	ctx := context.Background()

	result, err := engine.Submit(ctx, SubmitRequest{Type: models.JobTypeResearch, Params: map[string]any{"q": "x"}})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := engine.Cancel(ctx, result.Job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	job, err := repos.Job.GetJob(ctx, result.Job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Status != models.JobStatusCanceled {
		t.Errorf("got status %v, want canceled", job.Status)
	}
}

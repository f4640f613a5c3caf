package repository

import (
	"context"
	"testing"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

func newTestJob() *models.Job {
	return &models.Job{
		Type:       models.JobTypeResearch,
		Status:     models.JobStatusQueued,
		ParamsJSON: `{"query":"what is hybrid retrieval"}`,
	}
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	job := newTestJob()
	if err := repos.Job.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.ID == "" {
		t.Fatal("CreateJob() did not assign an ID")
	}

	got, err := repos.Job.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != models.JobStatusQueued {
		t.Errorf("Status = %s, want %s", got.Status, models.JobStatusQueued)
	}
	if got.ParamsJSON != job.ParamsJSON {
		t.Errorf("ParamsJSON = %s, want %s", got.ParamsJSON, job.ParamsJSON)
	}
}

func TestJobRepository_GetJob_NotFound(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	_, err := repos.Job.GetJob(ctx, "nonexistent")
	if apierr.CodeOf(err) != apierr.CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}

func TestJobRepository_ClaimNextJob_FIFO(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	first := newTestJob()
	if err := repos.Job.CreateJob(ctx, first); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second := newTestJob()
	if err := repos.Job.CreateJob(ctx, second); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	claimed, err := repos.Job.ClaimNextJob(ctx, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextJob() error = %v", err)
	}
	if claimed == nil {
		t.Fatal("ClaimNextJob() returned nil, want the oldest queued job")
	}
	if claimed.ID != first.ID {
		t.Errorf("claimed ID = %s, want oldest job %s", claimed.ID, first.ID)
	}
	if claimed.Status != models.JobStatusRunning {
		t.Errorf("Status = %s, want running", claimed.Status)
	}
	if claimed.LeaseOwner != "worker-1" {
		t.Errorf("LeaseOwner = %s, want worker-1", claimed.LeaseOwner)
	}
	if claimed.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", claimed.Attempt)
	}
}

func TestJobRepository_ClaimNextJob_EmptyQueue(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	claimed, err := repos.Job.ClaimNextJob(ctx, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextJob() error = %v", err)
	}
	if claimed != nil {
		t.Error("expected nil when no jobs are queued")
	}
}

func TestJobRepository_HeartbeatJob_WrongOwner(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	job := newTestJob()
	if err := repos.Job.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if _, err := repos.Job.ClaimNextJob(ctx, "worker-1", time.Minute); err != nil {
		t.Fatalf("ClaimNextJob() error = %v", err)
	}

	err := repos.Job.HeartbeatJob(ctx, job.ID, "worker-2")
	if apierr.CodeOf(err) != apierr.CodeConflict {
		t.Fatalf("expected CodeConflict for wrong lease owner, got %v", err)
	}
}

func TestJobRepository_ReclaimStaleLeases(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	job := newTestJob()
	if err := repos.Job.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if _, err := repos.Job.ClaimNextJob(ctx, "worker-1", -time.Minute); err != nil {
		t.Fatalf("ClaimNextJob() error = %v", err)
	}

	n, err := repos.Job.ReclaimStaleLeases(ctx, 0)
	if err != nil {
		t.Fatalf("ReclaimStaleLeases() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("reclaimed = %d, want 1", n)
	}

	got, err := repos.Job.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != models.JobStatusQueued {
		t.Errorf("Status = %s, want queued after reclaim", got.Status)
	}
}

func TestJobRepository_CancelJob_TerminalRejected(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	job := newTestJob()
	if err := repos.Job.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := repos.Job.SetJobStatus(ctx, job.ID, models.JobStatusSucceeded, `{}`, ""); err != nil {
		t.Fatalf("SetJobStatus() error = %v", err)
	}

	err := repos.Job.CancelJob(ctx, job.ID)
	if apierr.CodeOf(err) != apierr.CodeConflict {
		t.Fatalf("expected CodeConflict canceling a terminal job, got %v", err)
	}
}

func TestJobRepository_FindActiveByIdempotencyKey(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	job := newTestJob()
	job.IdempotencyKey = "key-abc"
	job.IdempotencyExpiresAt = &future
	if err := repos.Job.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	got, err := repos.Job.FindActiveByIdempotencyKey(ctx, "key-abc")
	if err != nil {
		t.Fatalf("FindActiveByIdempotencyKey() error = %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatalf("expected to find job %s, got %v", job.ID, got)
	}

	expired := time.Now().Add(-time.Hour)
	expiredJob := newTestJob()
	expiredJob.IdempotencyKey = "key-expired"
	expiredJob.IdempotencyExpiresAt = &expired
	if err := repos.Job.CreateJob(ctx, expiredJob); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	got, err = repos.Job.FindActiveByIdempotencyKey(ctx, "key-expired")
	if err != nil {
		t.Fatalf("FindActiveByIdempotencyKey() error = %v", err)
	}
	if got != nil {
		t.Error("expired idempotency key should not match")
	}
}

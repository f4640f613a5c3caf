package repository

import (
	"context"
	"testing"

	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

func TestJobEventRepository_AppendIsMonotonic(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	job := newTestJob()
	if err := repos.Job.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	e1, err := repos.JobEvent.AppendJobEvent(ctx, job.ID, models.JobEventSubmitted, `{}`)
	if err != nil {
		t.Fatalf("AppendJobEvent() error = %v", err)
	}
	e2, err := repos.JobEvent.AppendJobEvent(ctx, job.ID, models.JobEventStarted, `{}`)
	if err != nil {
		t.Fatalf("AppendJobEvent() error = %v", err)
	}
	if e1.ID != 1 || e2.ID != 2 {
		t.Fatalf("event ids = %d, %d; want 1, 2", e1.ID, e2.ID)
	}
}

func TestJobEventRepository_GetJobEvents_Since(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	job := newTestJob()
	if err := repos.Job.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	for _, typ := range []models.JobEventType{models.JobEventSubmitted, models.JobEventStarted, models.JobEventCompleted} {
		if _, err := repos.JobEvent.AppendJobEvent(ctx, job.ID, typ, `{}`); err != nil {
			t.Fatalf("AppendJobEvent() error = %v", err)
		}
	}

	events, err := repos.JobEvent.GetJobEvents(ctx, job.ID, 1, 10)
	if err != nil {
		t.Fatalf("GetJobEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events since id 1, want 2", len(events))
	}
	if events[0].Type != models.JobEventStarted || events[1].Type != models.JobEventCompleted {
		t.Errorf("unexpected event order: %+v", events)
	}
}

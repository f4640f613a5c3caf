package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

func TestJobEventsHandler_StreamsUntilTerminalEvent(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	job := &models.Job{ID: "job-1", Type: models.JobTypeResearch, Status: models.JobStatusRunning, ParamsJSON: "{}"}
	if err := repos.Job.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if _, err := repos.JobEvent.AppendJobEvent(ctx, job.ID, models.JobEventSubmitted, "{}"); err != nil {
		t.Fatalf("AppendJobEvent() error = %v", err)
	}
	if _, err := repos.JobEvent.AppendJobEvent(ctx, job.ID, models.JobEventCompleted, `{"ok":true}`); err != nil {
		t.Fatalf("AppendJobEvent() error = %v", err)
	}

	handler := NewJobEventsHandler(repos.Job, repos.JobEvent, nil)
	r := chi.NewRouter()
	r.Get("/jobs/{jobId}/events", handler.ServeHTTP)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/jobs/job-1/events")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body error = %v", err)
	}
	if !strings.Contains(string(body), "event: message") {
		t.Fatalf("expected message events in stream, got %q", string(body))
	}
	if !strings.Contains(string(body), `"completed"`) {
		t.Fatalf("expected the completed event payload, got %q", string(body))
	}
}

func TestJobEventsHandler_UnknownJobIsNotFound(t *testing.T) {
	repos := setupTestRepos(t)
	handler := NewJobEventsHandler(repos.Job, repos.JobEvent, nil)
	r := chi.NewRouter()
	r.Get("/jobs/{jobId}/events", handler.ServeHTTP)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/jobs/nonexistent/events")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// jobEventPollInterval is how often the job-events stream re-polls the
// event log for rows appended since the last batch.
const jobEventPollInterval = 500 * time.Millisecond

// JobEventsHandler serves GET /jobs/{jobId}/events: an SSE stream of a
// job's append-only event log, independent of any MCP session. Event
// IDs are the log's own per-job monotonic ids, so Last-Event-ID
// resumption is exact rather than best-effort (§4.8, §6).
type JobEventsHandler struct {
	events repository.JobEventRepository
	jobs   repository.JobRepository
	logger *slog.Logger
}

// NewJobEventsHandler builds the /jobs/{jobId}/events handler.
func NewJobEventsHandler(jobs repository.JobRepository, events repository.JobEventRepository, logger *slog.Logger) *JobEventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobEventsHandler{events: events, jobs: jobs, logger: logger.With("component", "transport.jobevents")}
}

func (h *JobEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		http.Error(w, "job id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	job, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		if apierr.CodeOf(err) == apierr.CodeNotFound {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to look up job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var sinceID int64
	if v, err := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		sinceID = v
	} else if v, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64); err == nil {
		sinceID = v
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(jobEventPollInterval)
	defer ticker.Stop()

	for {
		events, err := h.events.GetJobEvents(ctx, jobID, sinceID, 100)
		if err != nil {
			writeSSEEvent(w, flusher, 0, "error", []byte(`{"message":"failed to fetch job events"}`))
		} else {
			for _, ev := range events {
				data, marshalErr := json.Marshal(map[string]any{
					"job_id":  ev.JobID,
					"type":    ev.Type,
					"payload": json.RawMessage(nonEmptyJSON(ev.PayloadJSON)),
				})
				if marshalErr != nil {
					continue
				}
				writeSSEEvent(w, flusher, ev.ID, "message", data)
				sinceID = ev.ID
			}
		}

		if isTerminalJobEvent(events) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func nonEmptyJSON(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

func isTerminalJobEvent(events []*models.JobEvent) bool {
	for _, ev := range events {
		switch ev.Type {
		case models.JobEventCompleted, models.JobEventError, models.JobEventCanceled:
			return true
		}
	}
	return false
}

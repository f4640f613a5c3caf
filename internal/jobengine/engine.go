// Package jobengine is the Job Engine (C5): a durable, FIFO job queue with
// leased claims, heartbeats, idempotent submission, an append-only event
// log, cooperative cancellation, and webhook notification on terminal
// state (§4.5).
package jobengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/crypto"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// Handler executes a single job's work. C6's Research Orchestrator is the
// only implementation today; the job type column stays open for others.
// progress is called by the handler to append a job event as work proceeds.
type Handler interface {
	Run(ctx context.Context, job *models.Job, progress ProgressFunc) (resultJSON string, err error)
}

// ProgressFunc appends a job event of the given type with a JSON-encodable
// payload. Implementations assign monotonic event ids (C1).
type ProgressFunc func(ctx context.Context, typ models.JobEventType, payload any)

// SubmitRequest is the input to Submit.
type SubmitRequest struct {
	Type           models.JobType
	Params         any
	IdempotencyKey string
	ForceNew       bool
	WebhookURL     string
}

// SubmitResult reports how a submission was resolved per §4.5's
// idempotency outcomes.
type SubmitResult struct {
	Job         *models.Job
	ExistingJob bool
	Cached      bool
}

// Engine is the Job Engine's submission-time half: idempotency resolution
// and job creation. The Pool (pool.go) is its execution-time half.
type Engine struct {
	jobs      repository.JobRepository
	events    repository.JobEventRepository
	reports   repository.ReportRepository
	idemTTL   time.Duration
	encryptor *crypto.Encryptor
}

// NewEngine wires an Engine over the storage gateway's job repositories.
func NewEngine(jobs repository.JobRepository, events repository.JobEventRepository, idemTTL time.Duration) *Engine {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Engine{jobs: jobs, events: events, idemTTL: idemTTL}
}

// WithEncryptor enables at-rest encryption of each job's webhook URL
// (which may carry an embedded delivery token as a query parameter), using
// the operator's derived encryption key. A nil encryptor leaves URLs in
// plaintext, which is fine for local/stdio deployments with no configured
// encryption secret.
func (e *Engine) WithEncryptor(enc *crypto.Encryptor) *Engine {
	e.encryptor = enc
	return e
}

// Submit resolves idempotency per §4.5 and creates (or reuses) a job.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidParams, err, "failed to marshal job params")
	}

	key := req.IdempotencyKey
	if key == "" {
		key = canonicalHash(paramsJSON)
	}

	if !req.ForceNew {
		existing, err := e.jobs.FindActiveByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			switch existing.Status {
			case models.JobStatusQueued, models.JobStatusRunning:
				return &SubmitResult{Job: existing, ExistingJob: true}, nil
			case models.JobStatusSucceeded:
				return &SubmitResult{Job: existing, Cached: true}, nil
			}
			// Failed/canceled: fall through to create a new job with retry_of set.
			job, err := e.create(ctx, req, string(paramsJSON), key, existing.ID)
			if err != nil {
				return nil, err
			}
			return &SubmitResult{Job: job}, nil
		}
	}

	job, err := e.create(ctx, req, string(paramsJSON), key, "")
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Job: job}, nil
}

func (e *Engine) create(ctx context.Context, req SubmitRequest, paramsJSON, idemKey, retryOf string) (*models.Job, error) {
	expires := time.Now().Add(e.idemTTL)
	webhookURL := req.WebhookURL
	if webhookURL != "" && e.encryptor != nil {
		sealed, err := e.encryptor.Encrypt(webhookURL)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to encrypt webhook url")
		}
		webhookURL = sealed
	}
	job := &models.Job{
		ID:                   ulid.Make().String(),
		Type:                 req.Type,
		Status:               models.JobStatusQueued,
		ParamsJSON:           paramsJSON,
		IdempotencyKey:       idemKey,
		IdempotencyExpiresAt: &expires,
		RetryOf:              retryOf,
		WebhookURL:           webhookURL,
	}
	if err := e.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if _, err := e.events.AppendJobEvent(ctx, job.ID, models.JobEventSubmitted, paramsJSON); err != nil {
		return nil, err
	}
	return job, nil
}

// Cancel requests cooperative cancellation per §4.5: the job is marked
// canceled and an event is emitted. The running worker (if any) observes
// this at its next suspension point via the Pool's cancellation signal.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	if err := e.jobs.CancelJob(ctx, jobID); err != nil {
		return err
	}
	_, err := e.events.AppendJobEvent(ctx, jobID, models.JobEventCanceled, "")
	return err
}

// canonicalHash hashes normalized (key-sorted) JSON params so that
// semantically identical submissions with differently-ordered fields
// resolve to the same idempotency key.
func canonicalHash(paramsJSON []byte) string {
	var v any
	if err := json.Unmarshal(paramsJSON, &v); err != nil {
		sum := sha256.Sum256(paramsJSON)
		return hex.EncodeToString(sum[:])
	}
	normalized, err := json.Marshal(sortKeys(v))
	if err != nil {
		sum := sha256.Sum256(paramsJSON)
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}

// sortKeys recursively converts maps into a deterministically ordered
// representation so json.Marshal emits keys in a stable order regardless
// of the original map iteration order (Go's encoding/json already sorts
// map keys on marshal, but nested slices of maps are walked explicitly
// here for clarity and to keep the hash stable across Go versions).
func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = sortKeys(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return t
	}
}

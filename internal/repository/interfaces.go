// Package repository is the Storage Gateway (C1): a thin façade over the
// embedded SQL+vector store exposing only typed operations. SQL is an
// implementation detail confined to this package.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// JobRepository is the durable job queue: creation, atomic claim with
// lease, heartbeat, status transitions, reclaim of stale leases, and the
// idempotency lookup described in spec §4.5.
type JobRepository interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	FindActiveByIdempotencyKey(ctx context.Context, key string) (*models.Job, error)
	// ClaimNextJob atomically transitions the oldest queued job to running,
	// assigning the lease to owner for leaseTimeout. Returns nil, nil if no
	// job is eligible.
	ClaimNextJob(ctx context.Context, owner string, leaseTimeout time.Duration) (*models.Job, error)
	HeartbeatJob(ctx context.Context, id, owner string) error
	SetJobStatus(ctx context.Context, id string, status models.JobStatus, resultJSON, errMsg string) error
	CancelJob(ctx context.Context, id string) error
	// ReclaimStaleLeases returns running jobs whose heartbeat is older than
	// leaseTimeout back to queued; their attempt counter is incremented when
	// ClaimNextJob claims them again. Returns the number of jobs reclaimed.
	ReclaimStaleLeases(ctx context.Context, leaseTimeout time.Duration) (int, error)
}

// JobEventRepository is the append-only per-job event log.
type JobEventRepository interface {
	AppendJobEvent(ctx context.Context, jobID string, typ models.JobEventType, payloadJSON string) (*models.JobEvent, error)
	GetJobEvents(ctx context.Context, jobID string, sinceEventID int64, limit int) ([]*models.JobEvent, error)
}

// ReportRepository stores immutable completed-research reports.
type ReportRepository interface {
	UpsertReport(ctx context.Context, r *models.Report) (int64, error)
	GetReport(ctx context.Context, id int64) (*models.Report, error)
	ListRecentReports(ctx context.Context, limit int) ([]*models.Report, error)
	FindReportsBySimilarity(ctx context.Context, embedding []float32, topK int, minSim float64) ([]*models.Report, error)
}

// IndexRepository backs the Hybrid Index's document storage and the raw
// BM25 postings it scores over.
type IndexRepository interface {
	IndexDocument(ctx context.Context, doc *models.IndexDocument, terms map[string]int) error
	DeleteFromIndex(ctx context.Context, id string) error
	GetIndexDocument(ctx context.Context, id string) (*models.IndexDocument, error)
	ListIndexDocuments(ctx context.Context) ([]*models.IndexDocument, error)
	// Postings returns, for each requested term, the doc_id -> term frequency map.
	Postings(ctx context.Context, terms []string) (map[string]map[string]int, error)
	DocumentCount(ctx context.Context) (int, error)
	AverageDocLength(ctx context.Context) (float64, error)
}

// SessionRepository persists per-transport session state (HTTP and WS;
// stdio sessions are process-scoped and never touch this repository).
type SessionRepository interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	TouchSession(ctx context.Context, id string, resumeCursor int64) error
	DeleteSession(ctx context.Context, id string) error
}

// UsageRepository records per-model, per-job/report token and cost counters.
type UsageRepository interface {
	RecordUsage(ctx context.Context, u *models.UsageCounter) error
	SumUsage(ctx context.Context) (promptTokens, completionTokens, totalTokens int, costUSD float64, err error)
}

// WebhookRepository tracks outbound job-terminal-state notification attempts.
type WebhookRepository interface {
	CreateDelivery(ctx context.Context, d *models.WebhookDelivery) error
	UpdateDeliveryResult(ctx context.Context, id string, statusCode int, status models.WebhookDeliveryStatus, errMsg string) error
}

// ExecuteReadOnlySql runs a single allowlisted, read-only statement with
// bound parameters (§4.1, §6 execute_sql). Implemented outside the
// per-table repositories since it spans the whole schema.
type SQLGateway interface {
	ExecuteReadOnlySql(ctx context.Context, query string, params []any) ([]map[string]any, error)
}

// Repositories holds all repository instances, wired up by the bootstrap
// sequence and injected into the services that need storage access.
type Repositories struct {
	Job       JobRepository
	JobEvent  JobEventRepository
	Report    ReportRepository
	Index     IndexRepository
	Session   SessionRepository
	Usage     UsageRepository
	Webhook   WebhookRepository
	SQL       SQLGateway
}

// NewRepositories creates all repository instances over a shared *sql.DB.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Job:      NewSQLiteJobRepository(db),
		JobEvent: NewSQLiteJobEventRepository(db),
		Report:   NewSQLiteReportRepository(db),
		Index:    NewSQLiteIndexRepository(db),
		Session:  NewSQLiteSessionRepository(db),
		Usage:    NewSQLiteUsageRepository(db),
		Webhook:  NewSQLiteWebhookRepository(db),
		SQL:      NewSQLiteSQLGateway(db),
	}
}

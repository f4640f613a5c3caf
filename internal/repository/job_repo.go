package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// SQLiteJobRepository implements JobRepository over the embedded libsql store.
type SQLiteJobRepository struct {
	db *sql.DB
}

func NewSQLiteJobRepository(db *sql.DB) *SQLiteJobRepository {
	return &SQLiteJobRepository{db: db}
}

func (r *SQLiteJobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, params_json, idempotency_key, idempotency_expires_at,
			retry_of, lease_owner, lease_expires_at, attempt, result_json, error_message,
			webhook_url, heartbeat_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, job.Status, job.ParamsJSON,
		nullString(job.IdempotencyKey), nullTime(job.IdempotencyExpiresAt),
		nullString(job.RetryOf), nullString(job.LeaseOwner), nullTime(job.LeaseExpiresAt),
		job.Attempt, nullString(job.ResultJSON), nullString(job.ErrorMessage),
		nullString(job.WebhookURL), nullTime(job.HeartbeatAt),
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "create job failed")
	}
	return nil
}

func (r *SQLiteJobRepository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, jobSelectCols+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.CodeNotFound, "job not found").WithDetail("job_id", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "get job failed")
	}
	return job, nil
}

func (r *SQLiteJobRepository) FindActiveByIdempotencyKey(ctx context.Context, key string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, jobSelectCols+`
		FROM jobs
		WHERE idempotency_key = ? AND idempotency_expires_at > ?
		ORDER BY created_at DESC LIMIT 1`,
		key, formatTime(time.Now()))
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "idempotency lookup failed")
	}
	return job, nil
}

// ClaimNextJob atomically picks the oldest queued job (FIFO by created_at)
// and transitions it to running under a fresh lease, grounded on the
// teacher's CAS UPDATE...WHERE status=... claim pattern.
func (r *SQLiteJobRepository) ClaimNextJob(ctx context.Context, owner string, leaseTimeout time.Duration) (*models.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "claim begin tx failed")
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`,
		models.JobStatusQueued).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "claim select failed")
	}

	now := time.Now()
	leaseExpiry := now.Add(leaseTimeout)
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, lease_owner = ?, lease_expires_at = ?, heartbeat_at = ?,
			attempt = attempt + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.JobStatusRunning, owner, formatTime(leaseExpiry), formatTime(now),
		formatTime(now), id, models.JobStatusQueued)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "claim update failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "claim rows affected failed")
	}
	if n == 0 {
		// Another worker won the race; caller should retry on next poll.
		return nil, nil
	}

	row := tx.QueryRowContext(ctx, jobSelectCols+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "claim reload failed")
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "claim commit failed")
	}
	return job, nil
}

func (r *SQLiteJobRepository) HeartbeatJob(ctx context.Context, id, owner string) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET heartbeat_at = ?, updated_at = ?
		WHERE id = ? AND lease_owner = ? AND status = ?`,
		formatTime(now), formatTime(now), id, owner, models.JobStatusRunning)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "heartbeat failed")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.New(apierr.CodeConflict, "lease no longer owned").WithDetail("job_id", id)
	}
	return nil
}

func (r *SQLiteJobRepository) SetJobStatus(ctx context.Context, id string, status models.JobStatus, resultJSON, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result_json = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		status, nullString(resultJSON), nullString(errMsg), formatTime(time.Now()), id)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "set job status failed")
	}
	return nil
}

func (r *SQLiteJobRepository) CancelJob(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.JobStatusCanceled, formatTime(time.Now()), id,
		models.JobStatusQueued, models.JobStatusRunning)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "cancel job failed")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.New(apierr.CodeConflict, "job not cancelable in its current state").WithDetail("job_id", id)
	}
	return nil
}

// ReclaimStaleLeases returns running jobs whose heartbeat predates
// leaseTimeout back to queued, mirroring the teacher's
// MarkStaleRunningJobsFailed sweep but requeuing instead of failing. No
// attempt limit is applied: a reclaimed job is requeued every time.
func (r *SQLiteJobRepository) ReclaimStaleLeases(ctx context.Context, leaseTimeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-leaseTimeout)
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, lease_owner = NULL, lease_expires_at = NULL, updated_at = ?
		WHERE status = ? AND heartbeat_at < ?`,
		models.JobStatusQueued, formatTime(time.Now()), models.JobStatusRunning, formatTime(cutoff))
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeStorageUnavailable, err, "reclaim stale leases failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeStorageUnavailable, err, "reclaim rows affected failed")
	}
	return int(n), nil
}

const jobSelectCols = `SELECT id, type, status, params_json, idempotency_key, idempotency_expires_at,
	retry_of, lease_owner, lease_expires_at, attempt, result_json, error_message,
	webhook_url, heartbeat_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var idempotencyKey, retryOf, leaseOwner, resultJSON, errMsg, webhookURL sql.NullString
	var idempotencyExpiresAt, leaseExpiresAt, heartbeatAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Type, &j.Status, &j.ParamsJSON, &idempotencyKey, &idempotencyExpiresAt,
		&retryOf, &leaseOwner, &leaseExpiresAt, &j.Attempt, &resultJSON, &errMsg,
		&webhookURL, &heartbeatAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.IdempotencyKey = idempotencyKey.String
	j.RetryOf = retryOf.String
	j.LeaseOwner = leaseOwner.String
	j.ResultJSON = resultJSON.String
	j.ErrorMessage = errMsg.String
	j.WebhookURL = webhookURL.String

	if j.IdempotencyExpiresAt, err = parseNullTime(idempotencyExpiresAt); err != nil {
		return nil, fmt.Errorf("parse idempotency_expires_at: %w", err)
	}
	if j.LeaseExpiresAt, err = parseNullTime(leaseExpiresAt); err != nil {
		return nil, fmt.Errorf("parse lease_expires_at: %w", err)
	}
	if j.HeartbeatAt, err = parseNullTime(heartbeatAt); err != nil {
		return nil, fmt.Errorf("parse heartbeat_at: %w", err)
	}
	createdPtr, err := parseNullTime(sql.NullString{String: createdAt, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	j.CreatedAt = *createdPtr
	updatedPtr, err := parseNullTime(sql.NullString{String: updatedAt, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	j.UpdatedAt = *updatedPtr

	return &j, nil
}

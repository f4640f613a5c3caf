package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// SQLiteJobEventRepository implements JobEventRepository over the embedded store.
type SQLiteJobEventRepository struct {
	db *sql.DB
}

func NewSQLiteJobEventRepository(db *sql.DB) *SQLiteJobEventRepository {
	return &SQLiteJobEventRepository{db: db}
}

// AppendJobEvent assigns the next per-job monotonic event_id inside a
// transaction so concurrent progress emitters from the orchestrator never
// collide on the composite (job_id, event_id) primary key.
func (r *SQLiteJobEventRepository) AppendJobEvent(ctx context.Context, jobID string, typ models.JobEventType, payloadJSON string) (*models.JobEvent, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "append job event begin tx failed")
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(event_id) FROM job_events WHERE job_id = ?`, jobID).Scan(&maxID); err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "append job event max id failed")
	}
	nextID := int64(1)
	if maxID.Valid {
		nextID = maxID.Int64 + 1
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_events (job_id, event_id, type, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		jobID, nextID, typ, nullString(payloadJSON), formatTime(now)); err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "append job event insert failed")
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "append job event commit failed")
	}

	return &models.JobEvent{ID: nextID, JobID: jobID, Type: typ, PayloadJSON: payloadJSON, CreatedAt: now}, nil
}

func (r *SQLiteJobEventRepository) GetJobEvents(ctx context.Context, jobID string, sinceEventID int64, limit int) ([]*models.JobEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, event_id, type, payload_json, created_at
		FROM job_events WHERE job_id = ? AND event_id > ?
		ORDER BY event_id ASC LIMIT ?`, jobID, sinceEventID, limit)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "get job events failed")
	}
	defer rows.Close()

	var events []*models.JobEvent
	for rows.Next() {
		var e models.JobEvent
		var payload sql.NullString
		var createdAt string
		if err := rows.Scan(&e.JobID, &e.ID, &e.Type, &payload, &createdAt); err != nil {
			return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "scan job event failed")
		}
		e.PayloadJSON = payload.String
		t, err := parseNullTime(sql.NullString{String: createdAt, Valid: true})
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err, "parse job event created_at failed")
		}
		e.CreatedAt = *t
		events = append(events, &e)
	}
	return events, rows.Err()
}

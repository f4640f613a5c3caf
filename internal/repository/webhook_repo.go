package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// SQLiteWebhookRepository implements WebhookRepository, tracking outbound
// job-terminal-state delivery attempts for the job engine's notifier.
type SQLiteWebhookRepository struct {
	db *sql.DB
}

func NewSQLiteWebhookRepository(db *sql.DB) *SQLiteWebhookRepository {
	return &SQLiteWebhookRepository{db: db}
}

func (r *SQLiteWebhookRepository) CreateDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	d.CreatedAt = time.Now()
	if d.Status == "" {
		d.Status = models.WebhookDeliveryStatusPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, job_id, url, event_type, payload_json, status_code,
			status, error_message, attempt_number, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.JobID, d.URL, d.EventType, d.PayloadJSON, nullInt(d.StatusCode),
		d.Status, nullString(d.ErrorMessage), d.AttemptNumber, formatTime(d.CreatedAt), nullTime(d.DeliveredAt))
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "create webhook delivery failed")
	}
	return nil
}

func (r *SQLiteWebhookRepository) UpdateDeliveryResult(ctx context.Context, id string, statusCode int, status models.WebhookDeliveryStatus, errMsg string) error {
	now := time.Now()
	var deliveredAt any
	if status == models.WebhookDeliveryStatusSuccess {
		deliveredAt = formatTime(now)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status_code = ?, status = ?, error_message = ?, delivered_at = ?
		WHERE id = ?`,
		statusCode, status, nullString(errMsg), deliveredAt, id)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "update webhook delivery failed")
	}
	return nil
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

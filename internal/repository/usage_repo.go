package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// SQLiteUsageRepository implements UsageRepository.
type SQLiteUsageRepository struct {
	db *sql.DB
}

func NewSQLiteUsageRepository(db *sql.DB) *SQLiteUsageRepository {
	return &SQLiteUsageRepository{db: db}
}

func (r *SQLiteUsageRepository) RecordUsage(ctx context.Context, u *models.UsageCounter) error {
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	u.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_counters (id, model, job_id, report_id, prompt_tokens, completion_tokens,
			total_tokens, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Model, nullString(u.JobID), nullReportID(u.ReportID),
		u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.CostUSD, formatTime(u.CreatedAt))
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "record usage failed")
	}
	return nil
}

func (r *SQLiteUsageRepository) SumUsage(ctx context.Context) (promptTokens, completionTokens, totalTokens int, costUSD float64, err error) {
	var p, c, t sql.NullInt64
	var cost sql.NullFloat64
	row := r.db.QueryRowContext(ctx, `
		SELECT SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens), SUM(cost_usd)
		FROM usage_counters`)
	if scanErr := row.Scan(&p, &c, &t, &cost); scanErr != nil {
		return 0, 0, 0, 0, apierr.Wrap(apierr.CodeStorageUnavailable, scanErr, "sum usage failed")
	}
	return int(p.Int64), int(c.Int64), int(t.Int64), cost.Float64, nil
}

func nullReportID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

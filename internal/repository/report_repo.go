package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// SQLiteReportRepository implements ReportRepository over the embedded store.
type SQLiteReportRepository struct {
	db *sql.DB
}

func NewSQLiteReportRepository(db *sql.DB) *SQLiteReportRepository {
	return &SQLiteReportRepository{db: db}
}

func (r *SQLiteReportRepository) UpsertReport(ctx context.Context, rep *models.Report) (int64, error) {
	sourcesJSON, err := json.Marshal(rep.Sources)
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeInternal, err, "marshal sources failed")
	}
	metaJSON, err := json.Marshal(rep.Metadata)
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeInternal, err, "marshal metadata failed")
	}
	rep.CreatedAt = time.Now()

	if rep.ID != 0 {
		_, err := r.db.ExecContext(ctx, `
			UPDATE reports SET query=?, output_markdown=?, sources_json=?, metadata_json=?, embedding=?
			WHERE id=?`,
			rep.Query, rep.OutputMD, string(sourcesJSON), string(metaJSON), encodeEmbedding(rep.Embedding), rep.ID)
		if err != nil {
			return 0, apierr.Wrap(apierr.CodeStorageUnavailable, err, "update report failed")
		}
		return rep.ID, nil
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (query, output_markdown, sources_json, metadata_json, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rep.Query, rep.OutputMD, string(sourcesJSON), string(metaJSON), encodeEmbedding(rep.Embedding), formatTime(rep.CreatedAt))
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeStorageUnavailable, err, "insert report failed")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeStorageUnavailable, err, "insert report id failed")
	}
	rep.ID = id
	return id, nil
}

func (r *SQLiteReportRepository) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	row := r.db.QueryRowContext(ctx, reportSelectCols+` FROM reports WHERE id = ?`, id)
	rep, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.CodeNotFound, "report not found")
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "get report failed")
	}
	return rep, nil
}

func (r *SQLiteReportRepository) ListRecentReports(ctx context.Context, limit int) ([]*models.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, reportSelectCols+` FROM reports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "list reports failed")
	}
	defer rows.Close()

	var out []*models.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "scan report failed")
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// FindReportsBySimilarity does a Go-side cosine-similarity scan over stored
// BLOB embeddings (see vectorcodec.go) since the embedded store has no
// native ANN index; acceptable at the corpus sizes this broker targets.
func (r *SQLiteReportRepository) FindReportsBySimilarity(ctx context.Context, embedding []float32, topK int, minSim float64) ([]*models.Report, error) {
	rows, err := r.db.QueryContext(ctx, reportSelectCols+` FROM reports WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "similarity scan failed")
	}
	defer rows.Close()

	type scored struct {
		rep *models.Report
		sim float64
	}
	var candidates []scored
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "scan report failed")
		}
		sim := cosineSimilarity(embedding, rep.Embedding)
		if sim >= minSim {
			candidates = append(candidates, scored{rep, sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "similarity scan rows failed")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]*models.Report, len(candidates))
	for i, c := range candidates {
		out[i] = c.rep
	}
	return out, nil
}

const reportSelectCols = `SELECT id, query, output_markdown, sources_json, metadata_json, embedding, created_at`

func scanReport(row rowScanner) (*models.Report, error) {
	var rep models.Report
	var sourcesJSON, metaJSON string
	var embedding []byte
	var createdAt string

	if err := row.Scan(&rep.ID, &rep.Query, &rep.OutputMD, &sourcesJSON, &metaJSON, &embedding, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &rep.Sources); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &rep.Metadata); err != nil {
		return nil, err
	}
	rep.Embedding = decodeEmbedding(embedding)
	t, err := parseNullTime(sql.NullString{String: createdAt, Valid: true})
	if err != nil {
		return nil, err
	}
	rep.CreatedAt = *t
	return &rep, nil
}

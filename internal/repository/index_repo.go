package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// SQLiteIndexRepository implements IndexRepository, storing documents and
// the raw term postings the Hybrid Index (C4) scores BM25 over.
type SQLiteIndexRepository struct {
	db *sql.DB
}

func NewSQLiteIndexRepository(db *sql.DB) *SQLiteIndexRepository {
	return &SQLiteIndexRepository{db: db}
}

func (r *SQLiteIndexRepository) IndexDocument(ctx context.Context, doc *models.IndexDocument, terms map[string]int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "index document begin tx failed")
	}
	defer tx.Rollback()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO index_documents (id, origin, title, body, token_count, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET origin=excluded.origin, title=excluded.title,
			body=excluded.body, token_count=excluded.token_count, embedding=excluded.embedding`,
		doc.ID, doc.Origin, doc.Title, doc.Body, doc.TokenCount, encodeEmbedding(doc.Embedding), formatTime(doc.CreatedAt))
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "insert index document failed")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_postings WHERE doc_id = ?`, doc.ID); err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "clear postings failed")
	}
	for term, freq := range terms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_postings (term, doc_id, term_freq) VALUES (?, ?, ?)`,
			term, doc.ID, freq); err != nil {
			return apierr.Wrap(apierr.CodeStorageUnavailable, err, "insert posting failed")
		}
	}

	if err := tx.Commit(); err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "index document commit failed")
	}
	return nil
}

func (r *SQLiteIndexRepository) DeleteFromIndex(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM index_documents WHERE id = ?`, id)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "delete index document failed")
	}
	return nil
}

func (r *SQLiteIndexRepository) GetIndexDocument(ctx context.Context, id string) (*models.IndexDocument, error) {
	row := r.db.QueryRowContext(ctx, indexDocSelectCols+` FROM index_documents WHERE id = ?`, id)
	doc, err := scanIndexDoc(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.CodeNotFound, "index document not found")
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "get index document failed")
	}
	return doc, nil
}

func (r *SQLiteIndexRepository) ListIndexDocuments(ctx context.Context) ([]*models.IndexDocument, error) {
	rows, err := r.db.QueryContext(ctx, indexDocSelectCols+` FROM index_documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "list index documents failed")
	}
	defer rows.Close()

	var out []*models.IndexDocument
	for rows.Next() {
		doc, err := scanIndexDoc(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "scan index document failed")
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *SQLiteIndexRepository) Postings(ctx context.Context, terms []string) (map[string]map[string]int, error) {
	out := make(map[string]map[string]int, len(terms))
	if len(terms) == 0 {
		return out, nil
	}
	placeholders := make([]any, len(terms))
	q := "SELECT term, doc_id, term_freq FROM index_postings WHERE term IN ("
	for i, t := range terms {
		if i > 0 {
			q += ","
		}
		q += "?"
		placeholders[i] = t
	}
	q += ")"

	rows, err := r.db.QueryContext(ctx, q, placeholders...)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "postings query failed")
	}
	defer rows.Close()

	for rows.Next() {
		var term, docID string
		var freq int
		if err := rows.Scan(&term, &docID, &freq); err != nil {
			return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "scan posting failed")
		}
		if out[term] == nil {
			out[term] = make(map[string]int)
		}
		out[term][docID] = freq
	}
	return out, rows.Err()
}

func (r *SQLiteIndexRepository) DocumentCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_documents`).Scan(&n); err != nil {
		return 0, apierr.Wrap(apierr.CodeStorageUnavailable, err, "document count failed")
	}
	return n, nil
}

func (r *SQLiteIndexRepository) AverageDocLength(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, `SELECT AVG(token_count) FROM index_documents`).Scan(&avg); err != nil {
		return 0, apierr.Wrap(apierr.CodeStorageUnavailable, err, "average doc length failed")
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

const indexDocSelectCols = `SELECT id, origin, title, body, token_count, embedding, created_at`

func scanIndexDoc(row rowScanner) (*models.IndexDocument, error) {
	var doc models.IndexDocument
	var title sql.NullString
	var embedding []byte
	var createdAt string

	if err := row.Scan(&doc.ID, &doc.Origin, &title, &doc.Body, &doc.TokenCount, &embedding, &createdAt); err != nil {
		return nil, err
	}
	doc.Title = title.String
	doc.Embedding = decodeEmbedding(embedding)
	t, err := parseNullTime(sql.NullString{String: createdAt, Valid: true})
	if err != nil {
		return nil, err
	}
	doc.CreatedAt = *t
	return &doc, nil
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// SQLiteSessionRepository implements SessionRepository for HTTP and
// WebSocket transports; stdio sessions are process-scoped and never
// persist here.
type SQLiteSessionRepository struct {
	db *sql.DB
}

func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

func (r *SQLiteSessionRepository) CreateSession(ctx context.Context, s *models.Session) error {
	now := time.Now()
	s.CreatedAt = now
	s.LastSeenAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, transport, protocol_version, client_info_json, capabilities_json,
			resume_cursor, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Transport, nullString(s.ProtocolVersion), nullString(s.ClientInfoJSON),
		nullString(s.CapabilitiesJSON), s.ResumeCursor, formatTime(s.CreatedAt), formatTime(s.LastSeenAt))
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "create session failed")
	}
	return nil
}

func (r *SQLiteSessionRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	var protoVersion, clientInfo, capabilities sql.NullString
	var createdAt, lastSeenAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, transport, protocol_version, client_info_json, capabilities_json,
			resume_cursor, created_at, last_seen_at
		FROM sessions WHERE id = ?`, id).Scan(
		&s.ID, &s.Transport, &protoVersion, &clientInfo, &capabilities,
		&s.ResumeCursor, &createdAt, &lastSeenAt)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.CodeNotFound, "session not found").WithDetail("session_id", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "get session failed")
	}

	s.ProtocolVersion = protoVersion.String
	s.ClientInfoJSON = clientInfo.String
	s.CapabilitiesJSON = capabilities.String
	createdPtr, err := parseNullTime(sql.NullString{String: createdAt, Valid: true})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "parse session created_at failed")
	}
	s.CreatedAt = *createdPtr
	lastSeenPtr, err := parseNullTime(sql.NullString{String: lastSeenAt, Valid: true})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "parse session last_seen_at failed")
	}
	s.LastSeenAt = *lastSeenPtr
	return &s, nil
}

func (r *SQLiteSessionRepository) TouchSession(ctx context.Context, id string, resumeCursor int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET resume_cursor = ?, last_seen_at = ? WHERE id = ?`,
		resumeCursor, formatTime(time.Now()), id)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "touch session failed")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.New(apierr.CodeNotFound, "session not found").WithDetail("session_id", id)
	}
	return nil
}

func (r *SQLiteSessionRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, err, "delete session failed")
	}
	return nil
}

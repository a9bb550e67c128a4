package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// UploadDraftRepository stores wizard drafts as JSON documents keyed by session
type UploadDraftRepository struct {
	db DBTX
}

// NewUploadDraftRepository creates a new UploadDraftRepository
func NewUploadDraftRepository(db DBTX) *UploadDraftRepository {
	return &UploadDraftRepository{db: db}
}

// GetBySessionID returns models.ErrDraftNotFound when the session has no draft
func (r *UploadDraftRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.UploadDraft, error) {
	ctx, span := observability.StartDBSpan(ctx, "SELECT", "upload_drafts")
	defer span.End()

	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM upload_drafts WHERE session_id = $1`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, models.ErrDraftNotFound
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	var draft models.UploadDraft
	if err := json.Unmarshal([]byte(payload), &draft); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	draft.SessionID = sessionID
	return &draft, nil
}

// Save inserts or replaces the session's draft
func (r *UploadDraftRepository) Save(ctx context.Context, draft *models.UploadDraft) error {
	ctx, span := observability.StartDBSpan(ctx, "UPSERT", "upload_drafts")
	defer span.End()

	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	query := `INSERT INTO upload_drafts (session_id, step, payload, updated_at)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (session_id) DO UPDATE SET step = excluded.step, payload = excluded.payload, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, draft.SessionID, int(draft.Step), string(payload), draft.UpdatedAt.UTC()); err != nil {
		observability.RecordError(span, err)
		return err
	}
	return nil
}

// Delete removes the session's draft. A missing draft is not an error.
func (r *UploadDraftRepository) Delete(ctx context.Context, sessionID string) error {
	ctx, span := observability.StartDBSpan(ctx, "DELETE", "upload_drafts")
	defer span.End()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_drafts WHERE session_id = $1`, sessionID); err != nil {
		observability.RecordError(span, err)
		return err
	}
	return nil
}

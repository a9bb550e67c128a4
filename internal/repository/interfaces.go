package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

// DBTX is satisfied by *sql.DB and the traced wrapper
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// WebSessionRepo defines the interface for web session persistence
type WebSessionRepo interface {
	GetByID(ctx context.Context, id string) (*models.WebSession, error)
	Add(ctx context.Context, session *models.WebSession) error
	Update(ctx context.Context, session *models.WebSession) error
	Touch(ctx context.Context, id string) error
	Invalidate(ctx context.Context, id string) error
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// UploadDraftRepo defines the interface for upload wizard drafts
type UploadDraftRepo interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.UploadDraft, error)
	Save(ctx context.Context, draft *models.UploadDraft) error
	Delete(ctx context.Context, sessionID string) error
}

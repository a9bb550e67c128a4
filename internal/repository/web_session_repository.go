package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// WebSessionRepository implements WebSessionRepo for PostgreSQL/SQLite
type WebSessionRepository struct {
	db     DBTX
	sealer *TokenSealer
}

// NewWebSessionRepository creates a new WebSessionRepository
func NewWebSessionRepository(db DBTX) *WebSessionRepository {
	return &WebSessionRepository{db: db}
}

// WithTokenSealer encrypts access and refresh tokens at rest
func (r *WebSessionRepository) WithTokenSealer(s *TokenSealer) *WebSessionRepository {
	r.sealer = s
	return r
}

// sealTokens returns the access and refresh tokens as they are stored
func (r *WebSessionRepository) sealTokens(session *models.WebSession) (string, string, error) {
	access, err := r.sealer.Seal(session.AccessToken)
	if err != nil {
		return "", "", err
	}
	refresh, err := r.sealer.Seal(session.RefreshToken)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// openTokens decrypts the stored tokens in place. A token sealed under
// another secret signs the session out instead of failing the request.
func (r *WebSessionRepository) openTokens(ctx context.Context, session *models.WebSession) {
	access, err := r.sealer.Open(session.AccessToken)
	if err == nil {
		var refresh string
		if refresh, err = r.sealer.Open(session.RefreshToken); err == nil {
			session.AccessToken, session.RefreshToken = access, refresh
			return
		}
	}
	observability.WithContext(ctx).WithField("session_id", session.ID).Warnf("Signing out session: %v", err)
	session.ClearUser()
}

const webSessionColumns = `id, access_token, token_type, refresh_token, token_expires_at,
	user_email, user_created_at, user_loaded, created_at, expires_at, last_activity_at,
	ip_address, user_agent, is_active`

func (r *WebSessionRepository) GetByID(ctx context.Context, id string) (*models.WebSession, error) {
	ctx, span := observability.StartDBSpan(ctx, "SELECT", "web_sessions")
	defer span.End()

	query := `SELECT ` + webSessionColumns + ` FROM web_sessions WHERE id = $1`

	var session models.WebSession
	var tokenExpiresAt, userCreatedAt sql.NullTime
	var ipAddress, userAgent sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.AccessToken, &session.TokenType, &session.RefreshToken, &tokenExpiresAt,
		&session.UserEmail, &userCreatedAt, &session.UserLoaded, &session.CreatedAt,
		&session.ExpiresAt, &session.LastActivityAt, &ipAddress, &userAgent, &session.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if tokenExpiresAt.Valid {
		t := tokenExpiresAt.Time.UTC()
		session.TokenExpiresAt = &t
	}
	if userCreatedAt.Valid {
		t := userCreatedAt.Time.UTC()
		session.UserCreatedAt = &t
	}
	session.IPAddress = ipAddress.String
	session.UserAgent = userAgent.String
	r.openTokens(ctx, &session)
	return &session, nil
}

func (r *WebSessionRepository) Add(ctx context.Context, session *models.WebSession) error {
	ctx, span := observability.StartDBSpan(ctx, "INSERT", "web_sessions")
	defer span.End()

	query := `INSERT INTO web_sessions (` + webSessionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	access, refresh, err := r.sealTokens(session)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		session.ID, access, session.TokenType, refresh, nullTime(session.TokenExpiresAt),
		session.UserEmail, nullTime(session.UserCreatedAt), session.UserLoaded, session.CreatedAt,
		session.ExpiresAt, session.LastActivityAt, session.IPAddress, session.UserAgent, session.IsActive,
	)
	if err != nil {
		observability.RecordError(span, err)
	}
	return err
}

// Update stores the token, cached user and expiry of a session
func (r *WebSessionRepository) Update(ctx context.Context, session *models.WebSession) error {
	ctx, span := observability.StartDBSpan(ctx, "UPDATE", "web_sessions")
	defer span.End()

	query := `UPDATE web_sessions SET access_token = $2, token_type = $3, refresh_token = $4,
			  token_expires_at = $5, user_email = $6, user_created_at = $7, user_loaded = $8,
			  expires_at = $9, last_activity_at = $10, is_active = $11
			  WHERE id = $1`

	access, refresh, err := r.sealTokens(session)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}

	result, err := r.db.ExecContext(ctx, query,
		session.ID, access, session.TokenType, refresh,
		nullTime(session.TokenExpiresAt), session.UserEmail, nullTime(session.UserCreatedAt),
		session.UserLoaded, session.ExpiresAt, session.LastActivityAt, session.IsActive,
	)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func (r *WebSessionRepository) Touch(ctx context.Context, id string) error {
	query := `UPDATE web_sessions SET last_activity_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	return err
}

func (r *WebSessionRepository) Invalidate(ctx context.Context, id string) error {
	query := `UPDATE web_sessions SET is_active = false WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// ListExpired returns the ids of sessions past their expiry or invalidated
func (r *WebSessionRepository) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	ctx, span := observability.StartDBSpan(ctx, "SELECT", "web_sessions")
	defer span.End()

	query := `SELECT id FROM web_sessions WHERE expires_at <= $1 OR is_active = false`

	rows, err := r.db.QueryContext(ctx, query, now.UTC())
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a session; its draft goes with it
func (r *WebSessionRepository) Delete(ctx context.Context, id string) error {
	// Drafts are removed explicitly as well since SQLite only cascades with
	// foreign keys enabled on the connection
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_drafts WHERE session_id = $1`, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM web_sessions WHERE id = $1`, id)
	return err
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWebSessionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips an anonymous session", func(t *testing.T) {
		repo := NewWebSessionRepository(setupTestDB(t))
		session := models.NewWebSession("127.0.0.1", "test-agent", time.Hour)

		require.NoError(t, repo.Add(ctx, session))
		got, err := repo.GetByID(ctx, session.ID)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, session.ID, got.ID)
		assert.False(t, got.IsAuthenticated())
		assert.False(t, got.UserLoaded)
		assert.True(t, got.IsActive)
		assert.Equal(t, "127.0.0.1", got.IPAddress)
		assert.WithinDuration(t, session.ExpiresAt, got.ExpiresAt, time.Second)
	})

	t.Run("missing session returns nil", func(t *testing.T) {
		repo := NewWebSessionRepository(setupTestDB(t))

		got, err := repo.GetByID(ctx, "nope")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update stores token and user", func(t *testing.T) {
		repo := NewWebSessionRepository(setupTestDB(t))
		session := models.NewWebSession("", "", time.Hour)
		require.NoError(t, repo.Add(ctx, session))

		exp := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)
		session.AccessToken = "access"
		session.TokenType = "bearer"
		session.RefreshToken = "refresh"
		session.TokenExpiresAt = &exp
		session.SetUser(&models.User{Email: "climber@example.com", CreatedAt: exp})
		require.NoError(t, repo.Update(ctx, session))

		got, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, "access", got.AccessToken)
		assert.Equal(t, "refresh", got.RefreshToken)
		require.NotNil(t, got.TokenExpiresAt)
		assert.True(t, exp.Equal(*got.TokenExpiresAt))
		assert.True(t, got.UserLoaded)
		assert.Equal(t, "climber@example.com", got.User().Email)
	})

	t.Run("update of a missing session fails", func(t *testing.T) {
		repo := NewWebSessionRepository(setupTestDB(t))

		err := repo.Update(ctx, models.NewWebSession("", "", time.Hour))

		assert.ErrorIs(t, err, models.ErrSessionNotFound)
	})

	t.Run("lists expired and invalidated sessions", func(t *testing.T) {
		repo := NewWebSessionRepository(setupTestDB(t))
		live := models.NewWebSession("", "", time.Hour)
		expired := models.NewWebSession("", "", -time.Minute)
		invalid := models.NewWebSession("", "", time.Hour)
		for _, s := range []*models.WebSession{live, expired, invalid} {
			require.NoError(t, repo.Add(ctx, s))
		}
		require.NoError(t, repo.Invalidate(ctx, invalid.ID))

		ids, err := repo.ListExpired(ctx, time.Now())

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{expired.ID, invalid.ID}, ids)
	})
}

func TestUploadDraftRepository(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*WebSessionRepository, *UploadDraftRepository, string) {
		db := setupTestDB(t)
		sessions := NewWebSessionRepository(db)
		session := models.NewWebSession("", "", time.Hour)
		require.NoError(t, sessions.Add(ctx, session))
		return sessions, NewUploadDraftRepository(db), session.ID
	}

	t.Run("missing draft", func(t *testing.T) {
		_, drafts, sessionID := setup(t)

		_, err := drafts.GetBySessionID(ctx, sessionID)

		assert.ErrorIs(t, err, models.ErrDraftNotFound)
	})

	t.Run("save inserts then replaces", func(t *testing.T) {
		_, drafts, sessionID := setup(t)
		lat, lon := 49.179, 20.088
		draft := models.NewUploadDraft(sessionID)
		draft.File = &models.StagedFile{StoredPath: sessionID + "/a.jpg", OriginalName: "rysy.jpg", ContentType: "image/jpeg"}
		draft.Metadata = models.PhotoMetadata{Latitude: &lat, Longitude: &lon}
		require.NoError(t, drafts.Save(ctx, draft))

		draft.Step = models.StepPeak
		draft.Peaks = []models.PeakWithDistance{{Peak: models.Peak{ID: 1, Name: "Rysy"}, Distance: 120.5}}
		require.NoError(t, drafts.Save(ctx, draft))

		got, err := drafts.GetBySessionID(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, models.StepPeak, got.Step)
		assert.Equal(t, "rysy.jpg", got.File.OriginalName)
		assert.Equal(t, lat, *got.Metadata.Latitude)
		assert.Equal(t, "Rysy", got.Peaks[0].Peak.Name)
	})

	t.Run("deleting the session removes its draft", func(t *testing.T) {
		sessions, drafts, sessionID := setup(t)
		require.NoError(t, drafts.Save(ctx, models.NewUploadDraft(sessionID)))

		require.NoError(t, sessions.Delete(ctx, sessionID))

		_, err := drafts.GetBySessionID(ctx, sessionID)
		assert.ErrorIs(t, err, models.ErrDraftNotFound)
	})

	t.Run("delete is traced and idempotent", func(t *testing.T) {
		_, drafts, sessionID := setup(t)
		recorder := recordSpans(t)
		captured := time.Date(2024, 8, 13, 6, 30, 0, 0, time.UTC)
		draft := models.NewUploadDraft(sessionID)
		draft.Uploaded = &models.SummitPhoto{ID: 7, FileName: "a1b2c3.jpg", UploadedAt: captured, CapturedAt: &captured}
		require.NoError(t, drafts.Save(ctx, draft))

		got, err := drafts.GetBySessionID(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, captured.Equal(*got.Uploaded.CapturedAt))

		require.NoError(t, drafts.Delete(ctx, sessionID))
		require.NoError(t, drafts.Delete(ctx, sessionID))

		_, err = drafts.GetBySessionID(ctx, sessionID)
		assert.ErrorIs(t, err, models.ErrDraftNotFound)

		var deletes int
		for _, span := range recorder.Ended() {
			if span.Name() == "DB DELETE upload_drafts" {
				deletes++
			}
		}
		assert.Equal(t, 2, deletes)
	})
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestDialectSchema(t *testing.T) {
	for _, d := range []dialect{sqliteDialect, postgresDialect} {
		t.Run(d.name, func(t *testing.T) {
			schema := d.schema()
			assert.NotContains(t, schema, "{")
			assert.Contains(t, schema, "expires_at "+d.timestamp+" NOT NULL")
		})
	}
	assert.Contains(t, postgresDialect.schema(), "user_loaded BOOLEAN NOT NULL DEFAULT FALSE")
	assert.Contains(t, sqliteDialect.schema(), "is_active INTEGER NOT NULL DEFAULT 1")
}

func TestNewSQLiteDB_CreatesDirectory(t *testing.T) {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "nested", "data", "web.db"))
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM upload_drafts`).Scan(&n))
	assert.Zero(t, n)
}

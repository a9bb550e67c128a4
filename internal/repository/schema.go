package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// dialect holds the column types that differ between the two stores
type dialect struct {
	name      string
	timestamp string
	boolean   string
	now       string
	isTrue    string
}

var (
	sqliteDialect   = dialect{name: "sqlite", timestamp: "DATETIME", boolean: "INTEGER", now: "CURRENT_TIMESTAMP", isTrue: "1"}
	postgresDialect = dialect{name: "postgres", timestamp: "TIMESTAMPTZ", boolean: "BOOLEAN", now: "NOW()", isTrue: "TRUE"}
)

// schemaTemplate is shared by both dialects; {ts}, {bool}, {now} and
// {true} are substituted before execution.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS web_sessions (
	id TEXT PRIMARY KEY,
	access_token TEXT NOT NULL DEFAULT '',
	token_type TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	token_expires_at {ts},
	user_email TEXT NOT NULL DEFAULT '',
	user_created_at {ts},
	user_loaded {bool} NOT NULL DEFAULT {false},
	created_at {ts} NOT NULL DEFAULT {now},
	expires_at {ts} NOT NULL,
	last_activity_at {ts} NOT NULL DEFAULT {now},
	ip_address TEXT,
	user_agent TEXT,
	is_active {bool} NOT NULL DEFAULT {true}
);

CREATE INDEX IF NOT EXISTS idx_web_sessions_expires_at ON web_sessions(expires_at);

CREATE TABLE IF NOT EXISTS upload_drafts (
	session_id TEXT PRIMARY KEY REFERENCES web_sessions(id) ON DELETE CASCADE,
	step INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL,
	updated_at {ts} NOT NULL DEFAULT {now}
);
`

func (d dialect) schema() string {
	isFalse := "0"
	if d.isTrue == "TRUE" {
		isFalse = "FALSE"
	}
	return strings.NewReplacer(
		"{ts}", d.timestamp,
		"{bool}", d.boolean,
		"{now}", d.now,
		"{true}", d.isTrue,
		"{false}", isFalse,
	).Replace(schemaTemplate)
}

// migrate creates the session and draft tables if they are missing
func migrate(db *sql.DB, d dialect) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, d.schema()); err != nil {
		return fmt.Errorf("migrate %s schema: %w", d.name, err)
	}
	return nil
}

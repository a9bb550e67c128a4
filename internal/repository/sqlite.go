package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB opens the session store at dbPath, creating the file and its
// parent directory on first run.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// _fk turns on ON DELETE CASCADE for drafts; busy_timeout rides out
	// the janitor's sweeps
	db, err := sql.Open("sqlite3", dbPath+"?_fk=1&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// One connection: sqlite serialises writers and :memory: is per-connection
	db.SetMaxOpenConns(1)

	if err := migrate(db, sqliteDialect); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

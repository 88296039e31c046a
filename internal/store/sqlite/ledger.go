// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/apix-dev/apix/internal/store"
	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// Compile-time interface check.
var _ store.Ledger = (*Ledger)(nil)

// Ledger implements store.Ledger backed by SQLite.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// NewLedger opens (or creates) a SQLite database at dbPath and initialises
// the events and installed_versions tables.
func NewLedger(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, apixerr.Wrap(err, apixerr.CodeLedgerDatabaseFailure, "creating ledger directory", apixerr.FieldPath(dbPath))
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apixerr.Wrap(err, apixerr.CodeLedgerDatabaseFailure, "opening sqlite db", apixerr.FieldPath(dbPath))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apixerr.Wrap(err, apixerr.CodeLedgerDatabaseFailure, "pinging sqlite db", apixerr.FieldPath(dbPath))
	}

	l, err := NewLedgerWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// NewLedgerWithDB wraps an already opened database. The ledger owns db and
// closes it on Close.
func NewLedgerWithDB(db *sql.DB) (*Ledger, error) {
	if err := migrate(db); err != nil {
		return nil, apixerr.Wrap(err, apixerr.CodeLedgerDatabaseFailure, "migrating sqlite db")
	}
	return &Ledger{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	extension   TEXT NOT NULL,
	version     TEXT NOT NULL DEFAULT '',
	project     TEXT NOT NULL,
	package     TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	args        TEXT NOT NULL DEFAULT '[]',
	recorded_at TEXT NOT NULL,
	UNIQUE (extension, project, package, action, args)
);

CREATE INDEX IF NOT EXISTS idx_events_extension ON events(extension, project);

CREATE TABLE IF NOT EXISTS installed_versions (
	extension  TEXT PRIMARY KEY,
	version    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func encodeArgs(args []string) (string, error) {
	if args == nil {
		args = []string{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Record inserts the event. An event with the same key is left untouched.
func (l *Ledger) Record(ctx context.Context, e store.Event) error {
	if err := e.Key.Validate(); err != nil {
		return err
	}
	args, err := encodeArgs(e.Key.Args)
	if err != nil {
		return apixerr.Wrap(err, apixerr.CodeLedgerInvalidInput, "encoding event args")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = l.now()
	}

	const q = `INSERT INTO events (id, extension, version, project, package, action, args, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (extension, project, package, action, args) DO NOTHING`

	_, err = l.db.ExecContext(ctx, q,
		e.ID,
		e.Key.Extension,
		e.Version,
		e.Key.Project,
		e.Key.Package,
		e.Key.Action,
		args,
		formatTime(e.RecordedAt),
	)
	if err != nil {
		return apixerr.Wrap(err, apixerr.CodeLedgerDatabaseFailure, "recording event",
			apixerr.FieldExtension(e.Key.Extension), apixerr.Field("action", e.Key.Action))
	}
	return nil
}

// Exists reports whether an event with exactly this key was recorded.
func (l *Ledger) Exists(ctx context.Context, key store.EventKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	args, err := encodeArgs(key.Args)
	if err != nil {
		return false, apixerr.Wrap(err, apixerr.CodeLedgerInvalidInput, "encoding event args")
	}

	const q = `SELECT 1 FROM events
WHERE extension = ? AND project = ? AND package = ? AND action = ? AND args = ?
LIMIT 1`

	var one int
	err = l.db.QueryRowContext(ctx, q, key.Extension, key.Project, key.Package, key.Action, args).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apixerr.Wrap(err, apixerr.CodeLedgerDatabaseFailure, "querying event",
			apixerr.FieldExtension(key.Extension), apixerr.Field("action", key.Action))
	}
	return true, nil
}

// RecordInstalledVersion remembers version as the one last applied for
// extension.
func (l *Ledger) RecordInstalledVersion(ctx context.Context, extension, version string) error {
	if extension == "" || version == "" {
		return apixerr.New(apixerr.CodeLedgerInvalidInput, "installed version: extension and version are required")
	}

	const q = `INSERT INTO installed_versions (extension, version, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (extension) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`

	if _, err := l.db.ExecContext(ctx, q, extension, version, formatTime(l.now())); err != nil {
		return apixerr.Wrap(err, apixerr.CodeLedgerDatabaseFailure, "recording installed version",
			apixerr.FieldExtension(extension), apixerr.FieldVersion(version))
	}
	return nil
}

// InstalledVersion returns the version last recorded for extension.
func (l *Ledger) InstalledVersion(ctx context.Context, extension string) (string, error) {
	const q = `SELECT version FROM installed_versions WHERE extension = ?`

	var version string
	err := l.db.QueryRowContext(ctx, q, extension).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apixerr.New(apixerr.CodeLedgerVersionNotFound,
			"no installed version recorded for "+extension, apixerr.FieldExtension(extension))
	}
	if err != nil {
		return "", apixerr.Wrap(err, apixerr.CodeLedgerDatabaseFailure, "querying installed version",
			apixerr.FieldExtension(extension))
	}
	return version, nil
}

// Package store provides the SQL persistence layer: subjects, findings,
// audit entries and proof anchors. A single DSN selects the driver:
// postgres:// URLs use lib/pq, everything else is treated as a SQLite
// path. Queries are written with ? placeholders and rebound for Postgres.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// DB wraps the sql pool with the driver choice so queries can be rebound.
type DB struct {
	*sql.DB
	driver string
}

// Open connects to the database named by dsn and runs migrations.
func Open(dsn string) (*DB, error) {
	driver := driverSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = driverPostgres
	}

	pool, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if driver == driverSQLite {
		// SQLite gets one connection so in-memory databases and write
		// serialization behave predictably.
		pool.SetMaxOpenConns(1)
	}

	db := &DB{DB: pool, driver: driver}
	if err := db.migrate(); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS subjects (
			kind       TEXT NOT NULL,
			id         TEXT NOT NULL,
			status     TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (kind, id)
		)`,
		`CREATE TABLE IF NOT EXISTS findings (
			id                    TEXT PRIMARY KEY,
			seq                   BIGINT NOT NULL,
			subject_kind          TEXT NOT NULL,
			subject_id            TEXT NOT NULL,
			flag_type             TEXT NOT NULL,
			severity              INTEGER NOT NULL,
			message               TEXT NOT NULL,
			recommendation        TEXT NOT NULL DEFAULT '',
			requires_human_review BOOLEAN NOT NULL DEFAULT FALSE,
			blocks_execution      BOOLEAN NOT NULL DEFAULT FALSE,
			metadata              TEXT,
			resolved              BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_by           TEXT NOT NULL DEFAULT '',
			resolved_at           TEXT,
			resolution_notes      TEXT NOT NULL DEFAULT '',
			created_at            TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_subject ON findings (subject_kind, subject_id, seq)`,
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id            TEXT PRIMARY KEY,
			seq           BIGINT NOT NULL,
			actor         TEXT NOT NULL,
			action        TEXT NOT NULL,
			subject_ref   TEXT NOT NULL,
			metadata      TEXT,
			timestamp     TEXT NOT NULL,
			previous_hash TEXT NOT NULL,
			entry_hash    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_entries (subject_ref, seq)`,
		`CREATE TABLE IF NOT EXISTS anchors (
			id               TEXT PRIMARY KEY,
			object_type      TEXT NOT NULL,
			object_id        TEXT NOT NULL,
			canonical_hash   TEXT NOT NULL,
			requested_chains TEXT NOT NULL,
			submissions      TEXT NOT NULL,
			status           TEXT NOT NULL,
			created_at       TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1..$n for Postgres. SQLite queries
// pass through unchanged. Queries here never contain literal ? characters.
func (d *DB) rebind(query string) string {
	if d.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

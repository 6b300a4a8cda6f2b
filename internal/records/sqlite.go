package records

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deceased_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	findings TEXT,
	cause_of_death TEXT,
	category TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteSource is a file-backed record store for local deployments.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path in WAL mode.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialising sqlite database: %w", err)
		}
	}
	return &SQLiteSource{db: db}, nil
}

func (s *SQLiteSource) FetchPairs(ctx context.Context) ([]Record, error) {
	return queryPairs(ctx, s.db)
}

// Insert adds one record. Empty strings are stored as NULL, matching records
// whose fields were never filled in.
func (s *SQLiteSource) Insert(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deceased_records (findings, cause_of_death, category) VALUES (?, ?, ?)`,
		nullable(r.Findings), nullable(r.CauseOfDeath), nullable(r.Category),
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

func (s *SQLiteSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

//go:build integration

// Run with:
//
//	go test -v -tags=integration ./internal/records/...
package records

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/postgres"
)

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "records_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "records"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func TestPostgresSourceFetchPairs(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	stmts := []string{
		`CREATE TEMP TABLE deceased_records (
			id SERIAL PRIMARY KEY,
			findings TEXT,
			cause_of_death TEXT,
			category TEXT
		)`,
		`INSERT INTO deceased_records (findings, cause_of_death, category) VALUES
			('gunshot wound', 'homicide', 'violence'),
			('gunshot wound', 'homicide', 'violence'),
			('water in lungs', 'drowning', NULL),
			(NULL, 'unknown', NULL),
			('no findings', NULL, NULL)`,
	}
	// Temp tables are per-connection.
	db.DB.SetMaxOpenConns(1)
	for _, s := range stmts {
		if _, err := db.DB.ExecContext(ctx, s); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	src := NewPostgresSource(db.DB)
	if err := src.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	rows, err := src.FetchPairs(ctx)
	if err != nil {
		t.Fatalf("FetchPairs: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 distinct non-null pairs: %+v", len(rows), rows)
	}
	for _, r := range rows {
		if r.Findings == "water in lungs" && r.Category != "" {
			t.Errorf("NULL category should read as empty, got %q", r.Category)
		}
	}
}

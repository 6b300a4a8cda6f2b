// Package aggregator persists periodic analytics snapshots to PostgreSQL so
// the label distribution survives restarts and can be charted over time.
package aggregator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/postgres"
	"github.com/goccy/go-json"
)

// Store writes snapshots into two tables:
//
//	CREATE TABLE classification_snapshots (
//	    id          BIGSERIAL PRIMARY KEY,
//	    data        JSONB NOT NULL,
//	    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE TABLE classification_label_counts (
//	    snapshot_id BIGINT NOT NULL REFERENCES classification_snapshots(id) ON DELETE CASCADE,
//	    label       TEXT NOT NULL,
//	    count       BIGINT NOT NULL,
//	    PRIMARY KEY (snapshot_id, label)
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// SaveSnapshot stores stats and its per-label counts in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		var id int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO classification_snapshots (data, captured_at) VALUES ($1, $2) RETURNING id`,
			data, time.Now().UTC(),
		).Scan(&id); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		for _, lc := range stats.Labels {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO classification_label_counts (snapshot_id, label, count) VALUES ($1, $2, $3)`,
				id, lc.Label, lc.Count,
			); err != nil {
				return fmt.Errorf("inserting label count %q: %w", lc.Label, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Info("analytics snapshot saved",
		"total_classifications", stats.TotalClassifications,
		"labels", len(stats.Labels),
	)
	return nil
}

// LatestSnapshot returns the newest snapshot, or nil when none exist.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Stats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM classification_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// StartPeriodicSave snapshots agg every interval and once more on shutdown.
// It blocks until ctx is cancelled.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic snapshot started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			cancel()
			return
		}
	}
}

package records

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSource reads pairs from the deceased_records table.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) FetchPairs(ctx context.Context) ([]Record, error) {
	return queryPairs(ctx, s.db)
}

func queryPairs(ctx context.Context, db *sql.DB) ([]Record, error) {
	rows, err := db.QueryContext(ctx, pairsQuery)
	if err != nil {
		return nil, fmt.Errorf("querying record pairs: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Findings, &r.CauseOfDeath, &r.Category); err != nil {
			return nil, fmt.Errorf("scanning record pair: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record pairs: %w", err)
	}
	return out, nil
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

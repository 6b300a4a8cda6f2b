// Package records reads the historical (findings, cause of death) pairs the
// classifier is trained on. The training side depends only on Source; the
// Postgres and SQLite implementations run the same distinct-pairs query.
package records

import "context"

// Record is one historical report. Category is the authoritative label when
// staff assigned one and empty otherwise.
type Record struct {
	Findings     string
	CauseOfDeath string
	Category     string
}

// Source supplies distinct pairs where both text fields are non-null.
type Source interface {
	FetchPairs(ctx context.Context) ([]Record, error)
}

const pairsQuery = `
SELECT DISTINCT findings, cause_of_death, COALESCE(category, '')
FROM deceased_records
WHERE findings IS NOT NULL AND cause_of_death IS NOT NULL`

// StaticSource serves a fixed slice of records.
type StaticSource []Record

func (s StaticSource) FetchPairs(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Record(nil), s...), nil
}

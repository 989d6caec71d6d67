// Package postgres provides PostgreSQL implementation of the sequence counter.
package postgres

import (
	"context"
	"fmt"

	"github.com/bissquit/incident-tracker/internal/sequence"
	"github.com/jackc/pgx/v5"
)

// Counter implements sequence.Counter with an upsert on the counters table.
// The upsert holds the row lock until the caller's transaction ends, which
// serializes concurrent allocations for the same (kind, year).
type Counter struct{}

// NewCounter creates a new PostgreSQL counter.
func NewCounter() *Counter {
	return &Counter{}
}

// NextTx increments the counter for (kind, year) and returns the new value.
func (c *Counter) NextTx(ctx context.Context, tx pgx.Tx, kind sequence.Kind, year int) (int, error) {
	query := `
		INSERT INTO counters (counter_type, year, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (counter_type, year)
		DO UPDATE SET last_number = counters.last_number + 1
		RETURNING last_number
	`
	var n int
	if err := tx.QueryRow(ctx, query, string(kind), year).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return n, nil
}

// SetTx sets the counter for (kind, year) to n. Used when loading fixtures.
func (c *Counter) SetTx(ctx context.Context, tx pgx.Tx, kind sequence.Kind, year, n int) error {
	query := `
		INSERT INTO counters (counter_type, year, last_number)
		VALUES ($1, $2, $3)
		ON CONFLICT (counter_type, year)
		DO UPDATE SET last_number = GREATEST(counters.last_number, EXCLUDED.last_number)
	`
	if _, err := tx.Exec(ctx, query, string(kind), year, n); err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	return nil
}

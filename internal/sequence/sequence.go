// Package sequence allocates human-readable record numbers such as INC-2026-0001.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrAllocationFailed is returned when the counter store cannot produce a number.
var ErrAllocationFailed = errors.New("sequence allocation failed")

// Kind identifies an independent counter family.
type Kind string

const (
	KindIncident Kind = "incident"
	KindProblem  Kind = "problem"
)

// Prefix returns the number prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindIncident:
		return "INC"
	case KindProblem:
		return "PRB"
	default:
		return ""
	}
}

func (k Kind) IsValid() bool {
	return k.Prefix() != ""
}

// Format renders a number as PREFIX-YEAR-NNNN. Values above 9999 widen naturally.
func Format(kind Kind, year, n int) string {
	return fmt.Sprintf("%s-%d-%04d", kind.Prefix(), year, n)
}

// Counter increments and returns the counter for (kind, year) inside tx.
// A missing counter starts at zero, so the first value returned is 1.
type Counter interface {
	NextTx(ctx context.Context, tx pgx.Tx, kind Kind, year int) (int, error)
}

var allocations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "sequence",
		Name:      "allocations_total",
		Help:      "Total record numbers allocated by kind",
	},
	[]string{"kind"},
)

// Allocator hands out numbers within the caller's transaction, so a rolled
// back creation also rolls back its counter increment.
type Allocator struct {
	counter Counter
	now     func() time.Time
}

// NewAllocator creates an allocator backed by counter.
func NewAllocator(counter Counter) *Allocator {
	return &Allocator{counter: counter, now: time.Now}
}

// WithClock overrides the clock used to pick the counter year.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// AllocateTx returns the next number for kind in the current UTC year.
func (a *Allocator) AllocateTx(ctx context.Context, tx pgx.Tx, kind Kind) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrAllocationFailed, kind)
	}

	year := a.now().UTC().Year()
	n, err := a.counter.NextTx(ctx, tx, kind, year)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	number := Format(kind, year, n)
	allocations.WithLabelValues(string(kind)).Inc()
	slog.Debug("allocated record number", "kind", kind, "number", number)
	return number, nil
}

// AllocateIncidentNumberTx returns the next INC number.
func (a *Allocator) AllocateIncidentNumberTx(ctx context.Context, tx pgx.Tx) (string, error) {
	return a.AllocateTx(ctx, tx, KindIncident)
}

// AllocateProblemNumberTx returns the next PRB number.
func (a *Allocator) AllocateProblemNumberTx(ctx context.Context, tx pgx.Tx) (string, error) {
	return a.AllocateTx(ctx, tx, KindProblem)
}

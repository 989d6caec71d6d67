package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCounter keeps counters in memory keyed by kind and year.
type mockCounter struct {
	values map[Kind]map[int]int
	err    error
}

func newMockCounter() *mockCounter {
	return &mockCounter{values: make(map[Kind]map[int]int)}
}

func (m *mockCounter) NextTx(_ context.Context, _ pgx.Tx, kind Kind, year int) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	if m.values[kind] == nil {
		m.values[kind] = make(map[int]int)
	}
	m.values[kind][year]++
	return m.values[kind][year], nil
}

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, 6, 1, 12, 0, 0, 0, time.UTC)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		kind Kind
		year int
		n    int
		want string
	}{
		{KindIncident, 2026, 1, "INC-2026-0001"},
		{KindIncident, 2026, 10, "INC-2026-0010"},
		{KindProblem, 2025, 3, "PRB-2025-0003"},
		{KindIncident, 2026, 9999, "INC-2026-9999"},
		{KindIncident, 2026, 10000, "INC-2026-10000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.kind, tt.year, tt.n))
		})
	}
}

func TestAllocator_ContinuesExistingCounter(t *testing.T) {
	counter := newMockCounter()
	counter.values[KindIncident] = map[int]int{2026: 9}
	alloc := NewAllocator(counter).WithClock(fixedClock(2026))

	number, err := alloc.AllocateIncidentNumberTx(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "INC-2026-0010", number)
}

func TestAllocator_IndependentKinds(t *testing.T) {
	counter := newMockCounter()
	alloc := NewAllocator(counter).WithClock(fixedClock(2026))
	ctx := context.Background()

	inc, err := alloc.AllocateIncidentNumberTx(ctx, nil)
	require.NoError(t, err)
	prb, err := alloc.AllocateProblemNumberTx(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, "INC-2026-0001", inc)
	assert.Equal(t, "PRB-2026-0001", prb)
}

func TestAllocator_YearRollover(t *testing.T) {
	counter := newMockCounter()
	counter.values[KindIncident] = map[int]int{2025: 42}
	alloc := NewAllocator(counter).WithClock(fixedClock(2026))

	number, err := alloc.AllocateTx(context.Background(), nil, KindIncident)
	require.NoError(t, err)
	assert.Equal(t, "INC-2026-0001", number)
	assert.Equal(t, 42, counter.values[KindIncident][2025])
}

func TestAllocator_UsesUTCYear(t *testing.T) {
	counter := newMockCounter()
	// 23:30 on Dec 31 in UTC-5 is already Jan 1 in UTC.
	zone := time.FixedZone("EST", -5*3600)
	alloc := NewAllocator(counter).WithClock(func() time.Time {
		return time.Date(2025, 12, 31, 23, 30, 0, 0, zone)
	})

	number, err := alloc.AllocateIncidentNumberTx(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "INC-2026-0001", number)
}

func TestAllocator_Sequential(t *testing.T) {
	alloc := NewAllocator(newMockCounter()).WithClock(fixedClock(2026))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		number, err := alloc.AllocateIncidentNumberTx(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, Format(KindIncident, 2026, i), number)
	}
}

func TestAllocator_CounterError(t *testing.T) {
	counter := newMockCounter()
	counter.err = errors.New("connection reset")
	alloc := NewAllocator(counter)

	_, err := alloc.AllocateIncidentNumberTx(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

func TestAllocator_UnknownKind(t *testing.T) {
	alloc := NewAllocator(newMockCounter())

	_, err := alloc.AllocateTx(context.Background(), nil, Kind("change"))
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

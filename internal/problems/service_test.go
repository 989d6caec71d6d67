package problems

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed bool
}

func (f *fakeTx) Commit(_ context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(_ context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	return nil
}

// mockRepository keeps problems in memory and shares the incident store with
// mockIncidents so linking can be observed from both sides.
type mockRepository struct {
	problems  map[string]*domain.Problem
	incidents *mockIncidents
	createErr error
}

func (m *mockRepository) GetProblem(_ context.Context, sessionID, id string) (*domain.Problem, error) {
	p, ok := m.problems[id]
	if !ok || p.SessionID != sessionID {
		return nil, ErrProblemNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepository) ListProblems(_ context.Context, f ProblemFilter) ([]*domain.Problem, int, error) {
	var out []*domain.Problem
	for _, p := range m.problems {
		if p.SessionID != f.SessionID {
			continue
		}
		if f.FixStatus != nil && p.FixStatus != *f.FixStatus {
			continue
		}
		if f.Priority != nil && p.Priority != *f.Priority {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if f.Offset >= total {
		return []*domain.Problem{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return out[f.Offset:end], total, nil
}

func (m *mockRepository) ListTrendingProblems(_ context.Context, sessionID string, limit int) ([]*domain.Problem, error) {
	list, _, _ := m.ListProblems(context.Background(), ProblemFilter{SessionID: sessionID, Limit: 1000})
	sort.SliceStable(list, func(i, j int) bool { return list[i].IncidentCount > list[j].IncidentCount })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (m *mockRepository) GetProblemForUpdateTx(ctx context.Context, _ pgx.Tx, sessionID, id string) (*domain.Problem, error) {
	return m.GetProblem(ctx, sessionID, id)
}

func (m *mockRepository) CreateProblemTx(_ context.Context, _ pgx.Tx, p *domain.Problem) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *p
	m.problems[p.ID] = &cp
	return nil
}

func (m *mockRepository) UpdateProblemTx(_ context.Context, _ pgx.Tx, p *domain.Problem) error {
	cp := *p
	m.problems[p.ID] = &cp
	return nil
}

func (m *mockRepository) LinkIncidentTx(_ context.Context, _ pgx.Tx, sessionID, problemID, incidentID string, at time.Time) (int, error) {
	inc, ok := m.incidents.items[incidentID]
	if !ok || inc.SessionID != sessionID {
		return 0, incidents.ErrIncidentNotFound
	}
	pid := problemID
	inc.ProblemID = &pid
	inc.UpdatedAt = at

	count := 0
	for _, i := range m.incidents.items {
		if i.SessionID == sessionID && i.ProblemID != nil && *i.ProblemID == problemID {
			count++
		}
	}
	return count, nil
}

type mockIncidents struct {
	items map[string]*domain.Incident
}

func (m *mockIncidents) GetIncident(_ context.Context, sessionID, id string) (*domain.Incident, error) {
	inc, ok := m.items[id]
	if !ok || inc.SessionID != sessionID {
		return nil, incidents.ErrIncidentNotFound
	}
	cp := *inc
	return &cp, nil
}

func (m *mockIncidents) ListIncidentsByProblem(_ context.Context, sessionID, problemID string) ([]*domain.Incident, error) {
	var out []*domain.Incident
	for _, inc := range m.items {
		if inc.SessionID == sessionID && inc.ProblemID != nil && *inc.ProblemID == problemID {
			out = append(out, inc)
		}
	}
	return out, nil
}

type mockAllocator struct {
	n   int
	err error
}

func (a *mockAllocator) AllocateProblemNumberTx(_ context.Context, _ pgx.Tx) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.n++
	return fmt.Sprintf("PRB-2026-%04d", a.n), nil
}

func newTestService() (*Service, *mockRepository, *mockIncidents, *mockAllocator) {
	incs := &mockIncidents{items: map[string]*domain.Incident{
		"inc-1": {ID: "inc-1", SessionID: domain.DefaultSessionID, IncidentNumber: "INC-2026-0001"},
		"inc-2": {ID: "inc-2", SessionID: domain.DefaultSessionID, IncidentNumber: "INC-2026-0002"},
		"inc-x": {ID: "inc-x", SessionID: "other", IncidentNumber: "INC-2026-0003"},
	}}
	repo := &mockRepository{problems: make(map[string]*domain.Problem), incidents: incs}
	alloc := &mockAllocator{}

	tick := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, incs, alloc).WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	})
	return svc, repo, incs, alloc
}

func TestService_CreateProblem_Defaults(t *testing.T) {
	svc, _, _, _ := newTestService()

	p, err := svc.CreateProblem(context.Background(), CreateProblemInput{Title: "memory leak"})
	require.NoError(t, err)

	assert.Equal(t, "PRB-2026-0001", p.ProblemNumber)
	assert.Equal(t, domain.FixStatusOpen, p.FixStatus)
	assert.Equal(t, domain.SeverityMedium, p.Priority)
	assert.Equal(t, domain.DefaultSessionID, p.SessionID)
	assert.NotEmpty(t, p.ID)
}

func TestService_CreateProblem_Validation(t *testing.T) {
	negative := -1.0

	tests := []struct {
		name    string
		input   CreateProblemInput
		wantErr error
	}{
		{"missing title", CreateProblemInput{Title: "  "}, ErrTitleRequired},
		{"bad fix status", CreateProblemInput{Title: "x", FixStatus: "done"}, ErrInvalidFixStatus},
		{"bad priority", CreateProblemInput{Title: "x", Priority: "urgent"}, ErrInvalidPriority},
		{"negative cost", CreateProblemInput{Title: "x", EstimatedCost: &negative}, ErrNegativeValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, _ := newTestService()
			_, err := svc.CreateProblem(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
			assert.Empty(t, repo.problems)
		})
	}
}

func TestService_CreateProblem_AllocationFailure(t *testing.T) {
	svc, repo, _, alloc := newTestService()
	alloc.err = errors.New("counter locked")

	_, err := svc.CreateProblem(context.Background(), CreateProblemInput{Title: "x"})
	require.Error(t, err)
	assert.Empty(t, repo.problems)
}

func TestService_LinkIncident(t *testing.T) {
	svc, _, incs, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreateProblem(ctx, CreateProblemInput{Title: "dns flaps"})
	require.NoError(t, err)

	res, err := svc.LinkIncident(ctx, "", p.ID, "inc-1")
	require.NoError(t, err)
	assert.Equal(t, "Incident INC-2026-0001 linked to problem PRB-2026-0001", res.Message)
	assert.Equal(t, 1, res.Problem.IncidentCount)
	require.NotNil(t, res.Incident.ProblemID)
	assert.Equal(t, p.ID, *res.Incident.ProblemID)

	res, err = svc.LinkIncident(ctx, "", p.ID, "inc-2")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Problem.IncidentCount)

	// relinking does not double count
	res, err = svc.LinkIncident(ctx, "", p.ID, "inc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Problem.IncidentCount)

	detail, err := svc.GetProblemDetail(ctx, "", p.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Incidents, 2)
	assert.Equal(t, 2, detail.IncidentCount)

	assert.Equal(t, p.ID, *incs.items["inc-2"].ProblemID)
}

func TestService_LinkIncident_NotFoundOrder(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.LinkIncident(ctx, "", "missing", "missing")
	assert.ErrorIs(t, err, ErrProblemNotFound)

	p, err := svc.CreateProblem(ctx, CreateProblemInput{Title: "x"})
	require.NoError(t, err)

	_, err = svc.LinkIncident(ctx, "", p.ID, "missing")
	assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)

	// incident from another session is invisible
	_, err = svc.LinkIncident(ctx, "", p.ID, "inc-x")
	assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

func TestService_UpdateProblem(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreateProblem(ctx, CreateProblemInput{Title: "x"})
	require.NoError(t, err)

	status := domain.FixStatusImplemented
	owner := "platform"
	known := true
	updated, err := svc.UpdateProblem(ctx, "", p.ID, UpdateProblemInput{
		FixStatus:  &status,
		FixOwner:   &owner,
		KnownError: &known,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FixStatusImplemented, updated.FixStatus)
	assert.Equal(t, "platform", updated.FixOwner)
	assert.True(t, updated.KnownError)
	assert.Equal(t, "x", updated.Title)
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	bad := domain.FixStatus("nope")
	_, err = svc.UpdateProblem(ctx, "", p.ID, UpdateProblemInput{FixStatus: &bad})
	assert.ErrorIs(t, err, ErrInvalidFixStatus)

	_, err = svc.UpdateProblem(ctx, "", "missing", UpdateProblemInput{FixOwner: &owner})
	assert.ErrorIs(t, err, ErrProblemNotFound)
}

func TestService_ListProblems(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateProblem(ctx, CreateProblemInput{Title: fmt.Sprintf("p%d", i)})
		require.NoError(t, err)
	}
	_, err := svc.CreateProblem(ctx, CreateProblemInput{Title: "critical", Priority: domain.SeverityCritical})
	require.NoError(t, err)

	page, err := svc.ListProblems(ctx, ListProblemsInput{PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Problems, 2)
	assert.Equal(t, "critical", page.Problems[0].Title)

	prio := domain.SeverityCritical
	page, err = svc.ListProblems(ctx, ListProblemsInput{Priority: &prio})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, DefaultPerPage, page.PerPage)
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/bissquit/incident-tracker/internal/problems"
	"github.com/stretchr/testify/assert"
)

func TestRepository_MalformedIDs(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()

	_, err := repo.GetProblem(ctx, "s", "abc")
	assert.ErrorIs(t, err, problems.ErrProblemNotFound)

	_, err = repo.GetProblemForUpdateTx(ctx, nil, "s", "PRB-2026-0001")
	assert.ErrorIs(t, err, problems.ErrProblemNotFound)

	_, err = repo.LinkIncidentTx(ctx, nil, "s", "7f0c8a52-3c1e-4a57-9d7b-2f4f5b0c9e11", "abc", time.Now())
	assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

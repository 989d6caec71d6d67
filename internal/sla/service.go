// Package sla manages per-severity response and resolution targets.
package sla

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// Service implements SLA target business logic.
type Service struct {
	repo Repository
}

// NewService creates a new SLA service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func sessionOrDefault(id string) string {
	if strings.TrimSpace(id) == "" {
		return domain.DefaultSessionID
	}
	return id
}

// ListTargets returns the targets of a session ordered by severity rank.
func (s *Service) ListTargets(ctx context.Context, sessionID string) ([]*domain.SLATarget, error) {
	targets, err := s.repo.ListTargets(ctx, sessionOrDefault(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list sla targets: %w", err)
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Severity.Rank() < targets[j].Severity.Rank()
	})
	return targets, nil
}

// UpsertTarget sets the targets for one severity. Nil minutes mean no target.
func (s *Service) UpsertTarget(ctx context.Context, sessionID string, severity domain.Severity, response, resolution *int) (*domain.SLATarget, error) {
	if !severity.IsValid() {
		return nil, ErrInvalidSeverity
	}
	if (response != nil && *response < 0) || (resolution != nil && *resolution < 0) {
		return nil, ErrNegativeTarget
	}

	target := &domain.SLATarget{
		ID:                      uuid.NewString(),
		SessionID:               sessionOrDefault(sessionID),
		Severity:                severity,
		ResponseTargetMinutes:   response,
		ResolutionTargetMinutes: resolution,
	}
	if err := s.repo.UpsertTarget(ctx, target); err != nil {
		return nil, fmt.Errorf("upsert sla target: %w", err)
	}

	ctxlog.FromContext(ctx).Info("sla target updated",
		"session_id", target.SessionID,
		"severity", severity,
	)
	return target, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/events"
	"github.com/spec-kit/community-services/internal/repository"
)

// errNotDue aborts an escalation whose ticket moved on since it was listed.
var errNotDue = errors.New("escalation not due")

// EscalationService moves overdue workflow steps up the approver hierarchy.
type EscalationService struct {
	tickets   repository.TicketRepository
	workflows repository.WorkflowRepository
	notifier  *NotificationService
	clock     Clock
	logger    *zap.Logger
	metrics   LifecycleMetrics
	tracer    trace.Tracer
}

// NewEscalationService reuses the lifecycle collaborators.
func NewEscalationService(deps LifecycleDependencies) *EscalationService {
	s := &EscalationService{
		tickets:   deps.TicketRepo,
		workflows: deps.WorkflowRepo,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		tracer:    otel.Tracer(tracerName),
	}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// Sweep escalates every pending ticket whose current step has timed out and
// returns how many moved. Per-ticket failures are logged and skipped.
func (s *EscalationService) Sweep(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.sweep")
	defer span.End()

	pending := domain.TicketStatusPending
	candidates, err := s.tickets.List(ctx, repository.TicketFilter{Status: &pending, HasWorkflow: true})
	if err != nil {
		return 0, fmt.Errorf("list pending tickets: %w", err)
	}

	now := s.clock.Now()
	defs := make(map[string]*domain.WorkflowDefinition)
	escalated := 0
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return escalated, err
		}
		candidate := &candidates[i]
		def := s.definition(ctx, defs, candidate)
		if def == nil || !def.Conditions.EscalationEnabled || !escalationDue(candidate, def, now) {
			continue
		}
		if s.escalate(ctx, candidate.ID, def, now) {
			escalated++
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.candidates", len(candidates)),
		attribute.Int("sweep.escalated", escalated),
	)
	if escalated > 0 {
		s.logger.Info("escalation sweep finished",
			zap.Int("candidates", len(candidates)),
			zap.Int("escalated", escalated),
		)
	}
	return escalated, nil
}

func (s *EscalationService) escalate(ctx context.Context, ticketID string, def *domain.WorkflowDefinition, now time.Time) bool {
	var from, to domain.ApproverRole
	updated, err := s.tickets.Update(ctx, ticketID, func(t *domain.Ticket) error {
		if t.Status != domain.TicketStatusPending || t.Workflow == nil || t.Workflow.WorkflowID != def.ID {
			return errNotDue
		}
		if !escalationDue(t, def, now) {
			return errNotDue
		}
		next, ok := t.Workflow.ApproverRole.Escalate()
		if !ok {
			return errNotDue
		}
		from, to = t.Workflow.ApproverRole, next

		t.Workflow.ApproverRole = next
		t.Workflow.EscalationLevel++
		t.Workflow.StepStartedAt = now
		t.UpdatedAt = now
		t.Comments = append(t.Comments, systemComment(
			fmt.Sprintf("Step %d escalated from %s to %s after timeout", t.Workflow.CurrentStep, from, to), now))
		return nil
	})
	if errors.Is(err, errNotDue) {
		return false
	}
	if err != nil {
		s.logger.Warn("escalation failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return false
	}

	s.metrics.RecordEscalation(string(to))
	s.logger.Info("ticket escalated",
		zap.String("ticket_id", ticketID),
		zap.String("from_role", string(from)),
		zap.String("to_role", string(to)),
		zap.Int("level", updated.Workflow.EscalationLevel),
	)
	s.notifier.Notify(ctx, updated, def, events.KindEscalated, systemAuthor, now, map[string]any{
		"step":      updated.Workflow.CurrentStep,
		"from_role": from,
		"to_role":   to,
		"level":     updated.Workflow.EscalationLevel,
	})
	return true
}

func (s *EscalationService) definition(ctx context.Context, cache map[string]*domain.WorkflowDefinition, t *domain.Ticket) *domain.WorkflowDefinition {
	if def, ok := cache[t.Workflow.WorkflowID]; ok {
		return def
	}
	def := loadWorkflow(ctx, s.workflows, t, s.logger)
	cache[t.Workflow.WorkflowID] = def
	return def
}

// escalationDue reports whether the current step has outlived its timeout.
// The first deadline is the step's own timeout; each escalation grants the
// workflow's escalation time.
func escalationDue(t *domain.Ticket, def *domain.WorkflowDefinition, now time.Time) bool {
	if t.Workflow == nil || t.Workflow.ApproverRole == domain.ApproverAdmin {
		return false
	}
	step, ok := def.Locate(t.Workflow)
	if !ok {
		return false
	}
	timeout := step.Timeout()
	if t.Workflow.EscalationLevel > 0 {
		timeout = def.Conditions.EscalationTimeout()
	}
	return !now.Before(t.Workflow.StepStartedAt.Add(timeout))
}

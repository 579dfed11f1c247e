package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/auth"
	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/events"
	"github.com/spec-kit/community-services/internal/repository"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

const (
	tracerName   = "github.com/spec-kit/community-services/internal/service"
	systemAuthor = "System"
)

// errNoop aborts a store update that would not change the ticket.
var errNoop = errors.New("no change")

// LifecycleMetrics receives engine counters.
type LifecycleMetrics interface {
	RecordTransition(action, outcome string)
	RecordEscalation(role string)
}

type nopMetrics struct{}

func (nopMetrics) RecordTransition(string, string) {}
func (nopMetrics) RecordEscalation(string)         {}

// TransitionExtra carries action-specific arguments.
type TransitionExtra struct {
	Assignee     string
	TargetStatus domain.TicketStatus
	Note         string
}

// TransitionInput is one lifecycle request. An empty ExpectedStatus skips
// the precondition check.
type TransitionInput struct {
	TicketID       string
	Action         domain.Action
	Actor          domain.Principal
	ExpectedStatus domain.TicketStatus
	Extra          TransitionExtra
}

// edge is one allowed status change.
type edge struct {
	from   domain.TicketStatus
	to     domain.TicketStatus
	action domain.Action
}

var allowedEdges = []edge{
	{domain.TicketStatusPending, domain.TicketStatusApproved, domain.ActionApprove},
	{domain.TicketStatusPending, domain.TicketStatusRejected, domain.ActionReject},
	{domain.TicketStatusPending, domain.TicketStatusInfoRequired, domain.ActionRequestInfo},
	{domain.TicketStatusInfoRequired, domain.TicketStatusPending, domain.ActionResubmit},
	{domain.TicketStatusApproved, domain.TicketStatusAssigned, domain.ActionAssign},
	{domain.TicketStatusAssigned, domain.TicketStatusInProgress, domain.ActionUpdateStatus},
	{domain.TicketStatusInProgress, domain.TicketStatusOnHold, domain.ActionUpdateStatus},
	{domain.TicketStatusOnHold, domain.TicketStatusInProgress, domain.ActionUpdateStatus},
	{domain.TicketStatusInProgress, domain.TicketStatusCompleted, domain.ActionUpdateStatus},
	{domain.TicketStatusRejected, domain.TicketStatusPending, domain.ActionReopen},
}

// actionTargets maps fixed-target actions to their status. updateStatus
// takes its target from the request; cancel is handled separately.
var actionTargets = map[domain.Action]domain.TicketStatus{
	domain.ActionApprove:     domain.TicketStatusApproved,
	domain.ActionReject:      domain.TicketStatusRejected,
	domain.ActionRequestInfo: domain.TicketStatusInfoRequired,
	domain.ActionResubmit:    domain.TicketStatusPending,
	domain.ActionAssign:      domain.TicketStatusAssigned,
	domain.ActionReopen:      domain.TicketStatusPending,
}

func edgeAllowed(from, to domain.TicketStatus, action domain.Action) bool {
	for _, e := range allowedEdges {
		if e.from == from && e.to == to && e.action == action {
			return true
		}
	}
	return false
}

// IsTransitionAction reports whether action is handled by Transition.
func IsTransitionAction(action domain.Action) bool {
	if _, ok := actionTargets[action]; ok {
		return true
	}
	return action == domain.ActionUpdateStatus || action == domain.ActionCancel || action == domain.ActionSkipStep
}

type notice struct {
	kind   events.Kind
	detail map[string]any
}

// transitionResult collects what a successful mutation should announce.
type transitionResult struct {
	def     *domain.WorkflowDefinition
	from    domain.TicketStatus
	notices []notice
}

// LifecycleService is the ticket state machine.
type LifecycleService struct {
	tickets   repository.TicketRepository
	workflows repository.WorkflowRepository
	notifier  *NotificationService
	clock     Clock
	logger    *zap.Logger
	metrics   LifecycleMetrics
	tracer    trace.Tracer
}

// LifecycleDependencies bundles collaborators for the engine.
type LifecycleDependencies struct {
	TicketRepo   repository.TicketRepository
	WorkflowRepo repository.WorkflowRepository
	Notifier     *NotificationService
	Clock        Clock
	Logger       *zap.Logger
	Metrics      LifecycleMetrics
}

// NewLifecycleService constructs the engine.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	s := &LifecycleService{
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

// Transition validates and applies one action under the ticket's lock.
// Failed calls leave the ticket untouched.
func (s *LifecycleService) Transition(ctx context.Context, in TransitionInput) (*domain.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.transition", trace.WithAttributes(
		attribute.String("ticket.id", in.TicketID),
		attribute.String("ticket.action", string(in.Action)),
		attribute.String("actor.role", string(in.Actor.Role)),
	))
	defer span.End()

	var result transitionResult
	updated, err := s.tickets.Update(ctx, in.TicketID, func(t *domain.Ticket) error {
		var err error
		result, err = s.apply(ctx, t, in)
		return err
	})

	if errors.Is(err, errNoop) {
		s.metrics.RecordTransition(string(in.Action), "noop")
		span.SetAttributes(attribute.Bool("ticket.noop", true))
		ticket, getErr := s.tickets.GetByID(ctx, in.TicketID)
		if getErr != nil {
			return nil, storeError(getErr, "ticket", in.TicketID)
		}
		return ticket, nil
	}
	if err != nil {
		err = storeError(err, "ticket", in.TicketID)
		domainErr := apperrors.ToDomainError(err)
		s.metrics.RecordTransition(string(in.Action), domainErr.Code)
		span.RecordError(err)
		span.SetStatus(codes.Error, domainErr.Code)
		return nil, err
	}

	s.metrics.RecordTransition(string(in.Action), "ok")
	span.SetAttributes(attribute.String("ticket.status", string(updated.Status)))
	s.logger.Info("ticket transitioned",
		zap.String("ticket_id", updated.ID),
		zap.String("action", string(in.Action)),
		zap.String("actor", in.Actor.Email),
		zap.String("from", string(result.from)),
		zap.String("to", string(updated.Status)),
	)
	for _, n := range result.notices {
		s.notifier.Notify(ctx, updated, result.def, n.kind, in.Actor.Email, updated.UpdatedAt, n.detail)
	}
	return updated, nil
}

func (s *LifecycleService) apply(ctx context.Context, t *domain.Ticket, in TransitionInput) (transitionResult, error) {
	if !IsTransitionAction(in.Action) {
		return transitionResult{}, apperrors.NewValidationError("unknown action", map[string]any{"action": in.Action})
	}
	if !auth.CanPerform(in.Actor, in.Action, t) {
		return transitionResult{}, apperrors.NewPermissionDenied(string(in.Actor.Role), string(in.Action))
	}
	if in.Action == domain.ActionCancel && t.Status == domain.TicketStatusCancelled {
		return transitionResult{from: t.Status}, errNoop
	}
	if in.ExpectedStatus != "" && t.Status != in.ExpectedStatus {
		return transitionResult{}, apperrors.NewConflict("ticket status changed", map[string]any{
			"expected": in.ExpectedStatus,
			"actual":   t.Status,
		})
	}

	now := s.clock.Now()
	note := strings.TrimSpace(in.Extra.Note)
	result := transitionResult{from: t.Status}

	switch in.Action {
	case domain.ActionCancel:
		if t.Status.Terminal() {
			return result, apperrors.NewInvalidTransition(string(t.Status), string(domain.TicketStatusCancelled))
		}
		result.def = loadWorkflow(ctx, s.workflows, t, s.logger)
		s.move(t, domain.TicketStatusCancelled, in.Actor, now, note, &result)
		return result, nil

	case domain.ActionSkipStep:
		if t.Status != domain.TicketStatusPending || t.Workflow == nil {
			return result, apperrors.NewValidationError("no workflow step is awaiting approval", map[string]any{"status": t.Status})
		}
		return result, s.skipStep(ctx, t, in.Actor, now, note, &result)
	}

	target, err := targetFor(in)
	if err != nil {
		return result, err
	}
	if !edgeAllowed(t.Status, target, in.Action) {
		return result, apperrors.NewInvalidTransition(string(t.Status), string(target))
	}

	result.def = loadWorkflow(ctx, s.workflows, t, s.logger)

	switch in.Action {
	case domain.ActionApprove:
		if t.Workflow != nil && result.def != nil {
			return result, s.approveStep(t, in.Actor, now, note, &result)
		}
	case domain.ActionAssign:
		assignee := strings.TrimSpace(in.Extra.Assignee)
		if assignee == "" {
			return result, apperrors.NewMissingFields([]string{"assignee"})
		}
		t.Assignee = &assignee
	case domain.ActionResubmit:
		if t.Workflow != nil {
			t.Workflow.StepStartedAt = now
		}
	case domain.ActionReopen:
		restartWorkflow(t, result.def, now)
	}

	s.move(t, target, in.Actor, now, note, &result)
	return result, nil
}

func targetFor(in TransitionInput) (domain.TicketStatus, error) {
	if in.Action != domain.ActionUpdateStatus {
		return actionTargets[in.Action], nil
	}
	target := in.Extra.TargetStatus
	if target == "" {
		return "", apperrors.NewMissingFields([]string{"targetStatus"})
	}
	if !target.Valid() {
		return "", apperrors.NewValidationError("unknown status", map[string]any{"targetStatus": target})
	}
	return target, nil
}

// move sets the status and records the change as a system comment.
func (s *LifecycleService) move(t *domain.Ticket, to domain.TicketStatus, actor domain.Principal, now time.Time, note string, result *transitionResult) {
	from := t.Status
	t.Status = to
	t.UpdatedAt = now

	text := fmt.Sprintf("Status changed from %s to %s by %s", from, to, actor.Name())
	if note != "" {
		text += ": " + note
	}
	t.Comments = append(t.Comments, domain.Comment{
		ID:     uuid.NewString(),
		Author: systemAuthor,
		Text:   text,
		System: true,
		Change: &domain.StatusChange{
			PreviousStatus: from,
			NewStatus:      to,
			Actor:          actor.Email,
			At:             now,
		},
		CreatedAt: now,
	})

	detail := map[string]any{"from": from, "to": to}
	if to == domain.TicketStatusAssigned {
		detail["assignee"] = t.AssigneeName()
	}
	if note != "" {
		detail["note"] = note
	}
	result.notices = append(result.notices, notice{kind: events.KindTransitioned, detail: detail})
}

func systemComment(text string, now time.Time) domain.Comment {
	return domain.Comment{
		ID:        uuid.NewString(),
		Author:    systemAuthor,
		Text:      text,
		System:    true,
		CreatedAt: now,
	}
}

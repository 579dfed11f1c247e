package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/auth"
	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/events"
	"github.com/spec-kit/community-services/internal/repository"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

// submitAttempts bounds retries when a generated id collides with an
// existing ticket.
const submitAttempts = 3

// TicketService handles submission, reads and free-form comments.
type TicketService struct {
	tickets   repository.TicketRepository
	workflows repository.WorkflowRepository
	sequencer repository.Sequencer
	notifier  *NotificationService
	clock     Clock
	logger    *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	WorkflowRepo repository.WorkflowRepository
	Sequencer    repository.Sequencer
	Notifier     *NotificationService
	Clock        Clock
	Logger       *zap.Logger
}

// SubmitTicketInput describes a form submission.
type SubmitTicketInput struct {
	Category domain.Category
	Title    string
	Payload  map[string]any
	Priority domain.TicketPriority
}

// TicketListFilter narrows ticket listings.
type TicketListFilter struct {
	Category *domain.Category
	Status   *domain.TicketStatus
	Assignee *string
	Limit    int
	Offset   int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:   deps.TicketRepo,
		workflows: deps.WorkflowRepo,
		sequencer: deps.Sequencer,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// SubmitTicket validates the payload against its category, assigns an id
// and stores the ticket as pending. The category's active workflow, if
// any, is attached at its first step.
func (s *TicketService) SubmitTicket(ctx context.Context, actor domain.Principal, input SubmitTicketInput) (*domain.Ticket, error) {
	if !auth.CanPerform(actor, domain.ActionSubmit, nil) {
		return nil, apperrors.NewPermissionDenied(string(actor.Role), string(domain.ActionSubmit))
	}
	if !input.Category.Valid() {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": input.Category})
	}
	if missing := input.Category.MissingFields(input.Payload); len(missing) > 0 {
		return nil, apperrors.NewMissingFields(missing)
	}
	if input.Priority != "" && !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}

	def, err := s.workflows.GetActiveByCategory(ctx, input.Category)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err, "workflow", string(input.Category))
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		Category:  input.Category,
		Title:     strings.TrimSpace(input.Title),
		Payload:   copyPayload(input.Payload),
		Status:    domain.TicketStatusPending,
		Priority:  input.Priority,
		Submitter: actor.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ticket.Title == "" {
		ticket.Title = input.Category.DefaultTitle(input.Payload)
	}
	if ticket.Priority == "" {
		ticket.Priority = input.Category.DefaultPriority()
		if def != nil && def.Priority.Valid() {
			ticket.Priority = def.Priority
		}
	}
	if def != nil {
		if first, ok := def.FirstStep(); ok {
			ticket.Workflow = &domain.WorkflowProgress{WorkflowID: def.ID, StepStartedAt: now}
			ticket.Workflow.MoveTo(first)
		}
	}

	if err := s.create(ctx, ticket); err != nil {
		return nil, err
	}

	s.logger.Info("ticket submitted",
		zap.String("ticket_id", ticket.ID),
		zap.String("category", string(ticket.Category)),
		zap.String("submitter", ticket.Submitter),
		zap.Bool("workflow", ticket.Workflow != nil),
	)
	s.notifier.Notify(ctx, ticket, def, events.KindCreated, actor.Email, now, map[string]any{
		"category": ticket.Category,
		"priority": ticket.Priority,
		"title":    ticket.Title,
	})
	return ticket, nil
}

func (s *TicketService) create(ctx context.Context, ticket *domain.Ticket) error {
	prefix := ticket.Category.Prefix()
	var lastErr error
	for attempt := 0; attempt < submitAttempts; attempt++ {
		seq, err := s.sequencer.Next(ctx, prefix)
		if err != nil {
			return apperrors.NewInternalError(fmt.Errorf("next ticket id: %w", err))
		}
		ticket.ID = fmt.Sprintf("%s%03d", prefix, seq)

		err = s.tickets.Create(ctx, ticket)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return storeError(err, "ticket", ticket.ID)
		}
		s.logger.Warn("ticket id collision", zap.String("ticket_id", ticket.ID))
		lastErr = err
	}
	return storeError(lastErr, "ticket", ticket.ID)
}

// GetTicket returns a ticket the actor may view.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Principal, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "ticket", id)
	}
	if !auth.CanPerform(actor, domain.ActionViewDetails, ticket) {
		return nil, apperrors.NewPermissionDenied(string(actor.Role), string(domain.ActionViewDetails))
	}
	return ticket, nil
}

// ListTickets returns tickets matching filter. Guests only see their own.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Principal, filter TicketListFilter) ([]domain.Ticket, error) {
	if !auth.CanPerform(actor, domain.ActionViewDetails, nil) {
		return nil, apperrors.NewPermissionDenied(string(actor.Role), string(domain.ActionViewDetails))
	}
	repoFilter := repository.TicketFilter{
		Category: filter.Category,
		Status:   filter.Status,
		Assignee: filter.Assignee,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	if actor.Role == domain.RoleGuest {
		email := actor.Email
		repoFilter.Submitter = &email
	}
	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, storeError(err, "ticket", "")
	}
	return tickets, nil
}

// AddComment appends a free-form comment. Comments never change status.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Principal, ticketID, text string) (*domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewMissingFields([]string{"text"})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError(err, "ticket", ticketID)
	}
	if !auth.CanPerform(actor, domain.ActionComment, ticket) {
		return nil, apperrors.NewPermissionDenied(string(actor.Role), string(domain.ActionComment))
	}

	comment := domain.Comment{
		ID:        uuid.NewString(),
		Author:    actor.Name(),
		Text:      text,
		CreatedAt: s.clock.Now(),
	}
	if err := s.tickets.AppendComment(ctx, ticketID, comment); err != nil {
		return nil, storeError(err, "ticket", ticketID)
	}

	s.notifier.Notify(ctx, ticket, s.workflowFor(ctx, ticket), events.KindCommented, actor.Email, comment.CreatedAt, map[string]any{
		"comment_id": comment.ID,
		"preview":    domain.Preview(text, 120),
	})
	return &comment, nil
}

// workflowFor loads the definition a ticket references. A missing
// definition only affects recipient selection, so lookup errors are logged.
func (s *TicketService) workflowFor(ctx context.Context, ticket *domain.Ticket) *domain.WorkflowDefinition {
	return loadWorkflow(ctx, s.workflows, ticket, s.logger)
}

func loadWorkflow(ctx context.Context, workflows repository.WorkflowRepository, ticket *domain.Ticket, logger *zap.Logger) *domain.WorkflowDefinition {
	if ticket.Workflow == nil {
		return nil
	}
	def, err := workflows.GetByID(ctx, ticket.Workflow.WorkflowID)
	if err != nil {
		logger.Warn("workflow lookup failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("workflow_id", ticket.Workflow.WorkflowID),
			zap.Error(err),
		)
		return nil
	}
	return def
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/events"
)

// RolePrefix marks a recipient that names an approver role rather than an
// address.
const RolePrefix = "role:"

// NotificationService turns lifecycle changes into sink events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterSinks attaches delivery targets.
func (n *NotificationService) RegisterSinks(sinks ...events.Sink) {
	if n == nil || n.dispatcher == nil {
		return
	}
	for _, sink := range sinks {
		n.dispatcher.Register(sink)
		n.logger.Info("notification sink registered", zap.String("sink", sink.Name()))
	}
}

// Notify publishes kind for ticket. def is the ticket's workflow, if any,
// and selects the recipients.
func (n *NotificationService) Notify(ctx context.Context, ticket *domain.Ticket, def *domain.WorkflowDefinition, kind events.Kind, actor string, at time.Time, detail map[string]any) {
	if n == nil || n.dispatcher == nil {
		return
	}
	event := events.NewEvent(kind, ticket.ID, actor, at, detail)
	event.Recipients = Recipients(ticket, def)
	n.dispatcher.Publish(ctx, event)
}

// Recipients resolves who hears about ticket. Without a workflow only the
// submitter is notified.
func Recipients(ticket *domain.Ticket, def *domain.WorkflowDefinition) []string {
	if def == nil || ticket.Workflow == nil {
		return []string{ticket.Submitter}
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(r string) {
		if r == "" || r == RolePrefix {
			return
		}
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	if def.Notifications.NotifySubmitter {
		add(ticket.Submitter)
	}
	if def.Notifications.NotifyApprovers {
		add(RolePrefix + string(ticket.Workflow.ApproverRole))
	}
	if def.Notifications.NotifyManager {
		add(RolePrefix + string(domain.ApproverManager))
	}
	return out
}

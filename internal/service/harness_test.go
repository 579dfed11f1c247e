package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/events"
	"github.com/spec-kit/community-services/internal/repository"
)

var (
	adminUser = domain.Principal{Email: "admin@company.com", DisplayName: "Admin User", Role: domain.RoleAdmin}
	employee  = domain.Principal{Email: "john.doe@company.com", DisplayName: "John Doe", Role: domain.RoleEmployee, Team: "Maintenance Team"}
	outsider  = domain.Principal{Email: "jane.smith@company.com", DisplayName: "Jane Smith", Role: domain.RoleEmployee, Team: "Transport Team"}
	guestUser = domain.Principal{Email: "guest@visitor.com", DisplayName: "Guest User", Role: domain.RoleGuest}
)

type recordingMetrics struct {
	mu          sync.Mutex
	transitions map[string]int
	escalations map[string]int
}

func (m *recordingMetrics) RecordTransition(action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[action+":"+outcome]++
}

func (m *recordingMetrics) RecordEscalation(role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[role]++
}

func (m *recordingMetrics) transitionCount(action domain.Action, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions[string(action)+":"+outcome]
}

func (m *recordingMetrics) escalationCount(role domain.ApproverRole) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escalations[string(role)]
}

type harness struct {
	ctx        context.Context
	clock      *FakeClock
	tickets    repository.TicketRepository
	sink       *events.MemorySink
	metrics    *recordingMetrics
	ticketSvc  *TicketService
	lifecycle  *LifecycleService
	escalation *EscalationService
	workflows  *WorkflowService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	clock := NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	tickets := repository.NewMemoryTicketRepository()
	workflowRepo := repository.NewMemoryWorkflowRepository()
	seq := repository.NewMemorySequencer()

	sink := events.NewMemorySink()
	notifier := NewNotificationService(events.NewInMemoryDispatcher(logger), logger)
	notifier.RegisterSinks(sink)

	metrics := &recordingMetrics{transitions: map[string]int{}, escalations: map[string]int{}}
	lifecycleDeps := LifecycleDependencies{
		TicketRepo:   tickets,
		WorkflowRepo: workflowRepo,
		Notifier:     notifier,
		Clock:        clock,
		Logger:       logger,
		Metrics:      metrics,
	}

	return &harness{
		ctx:     context.Background(),
		clock:   clock,
		tickets: tickets,
		sink:    sink,
		metrics: metrics,
		ticketSvc: NewTicketService(TicketDependencies{
			TicketRepo:   tickets,
			WorkflowRepo: workflowRepo,
			Sequencer:    seq,
			Notifier:     notifier,
			Clock:        clock,
			Logger:       logger,
		}),
		lifecycle:  NewLifecycleService(lifecycleDeps),
		escalation: NewEscalationService(lifecycleDeps),
		workflows: NewWorkflowService(WorkflowDependencies{
			WorkflowRepo: workflowRepo,
			Sequencer:    seq,
			Clock:        clock,
			Logger:       logger,
		}),
	}
}

func maintenancePayload() map[string]any {
	return map[string]any{
		"problemDescription": "leak",
		"urgencyLevel":       "high",
		"buildingName":       "A",
		"apartmentNumber":    "12",
		"residentName":       "Doe",
		"contactNumber":      "555",
	}
}

func transportPayload(passengers any) map[string]any {
	return map[string]any{
		"from":       "Head Office",
		"to":         "Airport",
		"date":       "2026-03-05",
		"time":       "08:30",
		"passengers": passengers,
	}
}

func (h *harness) submit(t *testing.T, actor domain.Principal, category domain.Category, payload map[string]any) *domain.Ticket {
	t.Helper()
	ticket, err := h.ticketSvc.SubmitTicket(h.ctx, actor, SubmitTicketInput{Category: category, Payload: payload})
	require.NoError(t, err)
	return ticket
}

func (h *harness) transition(ticketID string, action domain.Action, actor domain.Principal, expected domain.TicketStatus, extra TransitionExtra) (*domain.Ticket, error) {
	return h.lifecycle.Transition(h.ctx, TransitionInput{
		TicketID:       ticketID,
		Action:         action,
		Actor:          actor,
		ExpectedStatus: expected,
		Extra:          extra,
	})
}

// activeWorkflow creates and activates a definition for category.
func (h *harness) activeWorkflow(t *testing.T, category domain.Category, steps []domain.WorkflowStep, conditions domain.WorkflowConditions) *domain.WorkflowDefinition {
	t.Helper()
	def, err := h.workflows.CreateDraft(h.ctx, adminUser, WorkflowInput{
		Name:       "Approval for " + string(category),
		Category:   category,
		Steps:      steps,
		Conditions: conditions,
		Notifications: domain.WorkflowNotifications{
			NotifySubmitter: true,
			NotifyApprovers: true,
		},
	})
	require.NoError(t, err)
	def, err = h.workflows.Activate(h.ctx, adminUser, def.ID)
	require.NoError(t, err)
	return def
}

func twoStepWorkflow() []domain.WorkflowStep {
	return []domain.WorkflowStep{
		{Order: 1, Name: "Manager review", ApproverRole: domain.ApproverManager, ApprovalType: domain.ApprovalRequired, TimeoutHours: 4},
		{Order: 2, Name: "Finance sign-off", ApproverRole: domain.ApproverFinance, ApprovalType: domain.ApprovalRequired, TimeoutHours: 8},
	}
}

func autoApproveUpTo(limit int64) domain.WorkflowConditions {
	return domain.WorkflowConditions{AutoApprove: true, AutoApproveLimit: decimal.NewFromInt(limit)}
}

func systemComments(ticket *domain.Ticket) []domain.Comment {
	var out []domain.Comment
	for _, c := range ticket.Comments {
		if c.System {
			out = append(out, c)
		}
	}
	return out
}

package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/events"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

func TestMaintenanceTicketEndToEnd(t *testing.T) {
	h := newHarness(t)

	ticket, err := h.ticketSvc.SubmitTicket(h.ctx, employee, SubmitTicketInput{
		Category: domain.CategoryServiceMaintenance,
		Payload:  maintenancePayload(),
		Priority: domain.TicketPriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, "SR001", ticket.ID)
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
	assert.Equal(t, "Service Request - leak", ticket.Title)

	approved, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusApproved, approved.Status)

	assigned, err := h.transition(ticket.ID, domain.ActionAssign, adminUser, domain.TicketStatusApproved, TransitionExtra{Assignee: "Maintenance Team"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, assigned.Status)
	assert.Equal(t, "Maintenance Team", assigned.AssigneeName())

	working, err := h.transition(ticket.ID, domain.ActionUpdateStatus, employee, domain.TicketStatusAssigned, TransitionExtra{TargetStatus: domain.TicketStatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, working.Status)

	done, err := h.transition(ticket.ID, domain.ActionUpdateStatus, employee, "", TransitionExtra{TargetStatus: domain.TicketStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCompleted, done.Status)

	changes := systemComments(done)
	require.Len(t, changes, 4)
	assert.Equal(t, domain.TicketStatusPending, changes[0].Change.PreviousStatus)
	assert.Equal(t, domain.TicketStatusApproved, changes[0].Change.NewStatus)
	assert.Equal(t, adminUser.Email, changes[0].Change.Actor)

	assert.Equal(t, []events.Kind{
		events.KindCreated,
		events.KindTransitioned,
		events.KindTransitioned,
		events.KindTransitioned,
		events.KindTransitioned,
	}, h.sink.Kinds())
	for _, event := range h.sink.Events() {
		assert.Equal(t, []string{employee.Email}, event.Recipients)
	}
	assert.Equal(t, 1, h.metrics.transitionCount(domain.ActionAssign, "ok"))
}

func TestSubmitTicketMissingUrgency(t *testing.T) {
	h := newHarness(t)
	payload := maintenancePayload()
	delete(payload, "urgencyLevel")

	_, err := h.ticketSvc.SubmitTicket(h.ctx, employee, SubmitTicketInput{Category: domain.CategoryServiceMaintenance, Payload: payload})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
	assert.Equal(t, []string{"urgencyLevel"}, domainErr.Details["missing_fields"])
	assert.Empty(t, h.sink.Events())
}

func TestSubmitTicketRejectsUnknownCategoryAndPriority(t *testing.T) {
	h := newHarness(t)

	_, err := h.ticketSvc.SubmitTicket(h.ctx, employee, SubmitTicketInput{Category: "parking/permit", Payload: map[string]any{}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.ticketSvc.SubmitTicket(h.ctx, employee, SubmitTicketInput{
		Category: domain.CategoryServiceMaintenance,
		Payload:  maintenancePayload(),
		Priority: "urgent",
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestSubmitTicketIDsArePerPrefix(t *testing.T) {
	h := newHarness(t)

	first := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())
	second := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())
	trip := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(2))

	assert.Equal(t, "SR001", first.ID)
	assert.Equal(t, "SR002", second.ID)
	assert.Equal(t, "TRN001", trip.ID)
	assert.Equal(t, domain.TicketPriorityMedium, trip.Priority)
	assert.Nil(t, trip.Workflow)
}

func TestConcurrentTransitionsConflict(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	actions := []domain.Action{domain.ActionApprove, domain.ActionReject}
	errs := make([]error, len(actions))
	var wg sync.WaitGroup
	for i, action := range actions {
		wg.Add(1)
		go func(i int, action domain.Action) {
			defer wg.Done()
			_, errs[i] = h.transition(ticket.ID, action, adminUser, domain.TicketStatusPending, TransitionExtra{})
		}(i, action)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperrors.HasCode(err, apperrors.CodeConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	stored, err := h.tickets.GetByID(h.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Contains(t, []domain.TicketStatus{domain.TicketStatusApproved, domain.TicketStatusRejected}, stored.Status)
	assert.Len(t, systemComments(stored), 1)
}

func TestExpectedStatusMismatchLeavesTicketUnchanged(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	_, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, domain.TicketStatusInfoRequired, TransitionExtra{})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeConflict, domainErr.Code)
	assert.Equal(t, domain.TicketStatusInfoRequired, domainErr.Details["expected"])
	assert.Equal(t, domain.TicketStatusPending, domainErr.Details["actual"])

	stored, err := h.tickets.GetByID(h.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.Version, stored.Version)
	assert.Equal(t, 1, h.metrics.transitionCount(domain.ActionApprove, "CONFLICT"))
}

func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	first, err := h.transition(ticket.ID, domain.ActionCancel, adminUser, "", TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, first.Status)

	second, err := h.transition(ticket.ID, domain.ActionCancel, adminUser, "", TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, second.Status)
	assert.Equal(t, first.Version, second.Version)
	assert.Len(t, systemComments(second), 1)
	assert.Equal(t, []events.Kind{events.KindCreated, events.KindTransitioned}, h.sink.Kinds())
	assert.Equal(t, 1, h.metrics.transitionCount(domain.ActionCancel, "noop"))
}

func TestRepeatedCancelWithSameExpectedStatus(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	first, err := h.transition(ticket.ID, domain.ActionCancel, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, first.Status)

	second, err := h.transition(ticket.ID, domain.ActionCancel, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, second.Status)
	assert.Equal(t, first.Version, second.Version)
	assert.Len(t, systemComments(second), 1)
	assert.Equal(t, 0, h.metrics.transitionCount(domain.ActionCancel, apperrors.CodeConflict))
	assert.Equal(t, 1, h.metrics.transitionCount(domain.ActionCancel, "noop"))

	_, err = h.transition(ticket.ID, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "other actions still check the expected status")
}

func TestParallelTransitionsOnDistinctTickets(t *testing.T) {
	h := newHarness(t)
	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload()).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.transition(id, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, n, h.metrics.transitionCount(domain.ActionApprove, "ok"))
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	h := newHarness(t)

	completed := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())
	steps := []struct {
		action domain.Action
		extra  TransitionExtra
	}{
		{domain.ActionApprove, TransitionExtra{}},
		{domain.ActionAssign, TransitionExtra{Assignee: "Maintenance Team"}},
		{domain.ActionUpdateStatus, TransitionExtra{TargetStatus: domain.TicketStatusInProgress}},
		{domain.ActionUpdateStatus, TransitionExtra{TargetStatus: domain.TicketStatusCompleted}},
	}
	for _, step := range steps {
		_, err := h.transition(completed.ID, step.action, adminUser, "", step.extra)
		require.NoError(t, err)
	}

	rejected := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())
	_, err := h.transition(rejected.ID, domain.ActionReject, adminUser, "", TransitionExtra{})
	require.NoError(t, err)

	cancelled := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())
	_, err = h.transition(cancelled.ID, domain.ActionCancel, adminUser, "", TransitionExtra{})
	require.NoError(t, err)

	cases := []struct {
		name   string
		id     string
		action domain.Action
		extra  TransitionExtra
	}{
		{"completed approve", completed.ID, domain.ActionApprove, TransitionExtra{}},
		{"completed cancel", completed.ID, domain.ActionCancel, TransitionExtra{}},
		{"completed reopen", completed.ID, domain.ActionReopen, TransitionExtra{}},
		{"completed on hold", completed.ID, domain.ActionUpdateStatus, TransitionExtra{TargetStatus: domain.TicketStatusOnHold}},
		{"rejected approve", rejected.ID, domain.ActionApprove, TransitionExtra{}},
		{"rejected cancel", rejected.ID, domain.ActionCancel, TransitionExtra{}},
		{"cancelled approve", cancelled.ID, domain.ActionApprove, TransitionExtra{}},
		{"cancelled reopen", cancelled.ID, domain.ActionReopen, TransitionExtra{}},
		{"cancelled resubmit", cancelled.ID, domain.ActionResubmit, TransitionExtra{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before, err := h.tickets.GetByID(h.ctx, tc.id)
			require.NoError(t, err)

			_, err = h.transition(tc.id, tc.action, adminUser, "", tc.extra)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "got %v", err)

			after, err := h.tickets.GetByID(h.ctx, tc.id)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestReopenRejectedTicket(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	_, err := h.transition(ticket.ID, domain.ActionReject, adminUser, "", TransitionExtra{Note: "duplicate request"})
	require.NoError(t, err)

	reopened, err := h.transition(ticket.ID, domain.ActionReopen, adminUser, domain.TicketStatusRejected, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, reopened.Status)

	changes := systemComments(reopened)
	require.Len(t, changes, 2)
	assert.Contains(t, changes[0].Text, "duplicate request")
}

func TestRequestInfoAndResubmitBySubmitter(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(3))

	_, err := h.transition(ticket.ID, domain.ActionRequestInfo, adminUser, "", TransitionExtra{})
	require.NoError(t, err)

	_, err = h.transition(ticket.ID, domain.ActionResubmit, outsider, "", TransitionExtra{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	resubmitted, err := h.transition(ticket.ID, domain.ActionResubmit, guestUser, domain.TicketStatusInfoRequired, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, resubmitted.Status)
}

func TestTransitionPermissions(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	for _, action := range []domain.Action{domain.ActionApprove, domain.ActionReject, domain.ActionCancel, domain.ActionAssign} {
		_, err := h.transition(ticket.ID, action, employee, "", TransitionExtra{Assignee: "Maintenance Team"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "action %s", action)
	}

	_, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, "", TransitionExtra{})
	require.NoError(t, err)
	_, err = h.transition(ticket.ID, domain.ActionAssign, adminUser, "", TransitionExtra{Assignee: "Maintenance Team"})
	require.NoError(t, err)

	_, err = h.transition(ticket.ID, domain.ActionUpdateStatus, outsider, "", TransitionExtra{TargetStatus: domain.TicketStatusInProgress})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.transition(ticket.ID, domain.ActionUpdateStatus, employee, "", TransitionExtra{TargetStatus: domain.TicketStatusInProgress})
	require.NoError(t, err)
	_, err = h.transition(ticket.ID, domain.ActionUpdateStatus, employee, "", TransitionExtra{TargetStatus: domain.TicketStatusOnHold})
	require.NoError(t, err)
	resumed, err := h.transition(ticket.ID, domain.ActionUpdateStatus, employee, "", TransitionExtra{TargetStatus: domain.TicketStatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, resumed.Status)
}

func TestTransitionArgumentValidation(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	_, err := h.transition(ticket.ID, "escalate", adminUser, "", TransitionExtra{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.transition(ticket.ID, domain.ActionUpdateStatus, adminUser, "", TransitionExtra{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.transition(ticket.ID, domain.ActionUpdateStatus, adminUser, "", TransitionExtra{TargetStatus: "archived"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.transition(ticket.ID, domain.ActionAssign, adminUser, "", TransitionExtra{Assignee: "Maintenance Team"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))

	_, err = h.transition(ticket.ID, domain.ActionApprove, adminUser, "", TransitionExtra{})
	require.NoError(t, err)

	_, err = h.transition(ticket.ID, domain.ActionAssign, adminUser, "", TransitionExtra{Assignee: "  "})
	require.Error(t, err)
	assert.Equal(t, []string{"assignee"}, apperrors.ToDomainError(err).Details["missing_fields"])

	_, err = h.transition("SR999", domain.ActionApprove, adminUser, "", TransitionExtra{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAddComment(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(2))

	_, err := h.ticketSvc.AddComment(h.ctx, guestUser, ticket.ID, "any update?")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.ticketSvc.AddComment(h.ctx, employee, ticket.ID, "  ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	comment, err := h.ticketSvc.AddComment(h.ctx, employee, ticket.ID, "Driver confirmed")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", comment.Author)
	assert.False(t, comment.System)

	stored, err := h.tickets.GetByID(h.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, stored.Status)
	require.Len(t, stored.Comments, 1)
	assert.Equal(t, "Driver confirmed", stored.Comments[0].Text)
	assert.Equal(t, []events.Kind{events.KindCreated, events.KindCommented}, h.sink.Kinds())
}

func TestGuestVisibility(t *testing.T) {
	h := newHarness(t)
	own := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(1))
	other := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	list, err := h.ticketSvc.ListTickets(h.ctx, guestUser, TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, own.ID, list[0].ID)

	_, err = h.ticketSvc.GetTicket(h.ctx, guestUser, other.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	got, err := h.ticketSvc.GetTicket(h.ctx, guestUser, own.ID)
	require.NoError(t, err)
	assert.Equal(t, own.ID, got.ID)

	all, err := h.ticketSvc.ListTickets(h.ctx, employee, TicketListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := domain.TicketStatusPending
	category := domain.CategoryServiceMaintenance
	filtered, err := h.ticketSvc.ListTickets(h.ctx, adminUser, TicketListFilter{Category: &category, Status: &status})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, other.ID, filtered[0].ID)
}

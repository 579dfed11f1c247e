package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/events"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

func TestWorkflowApprovalWalksSteps(t *testing.T) {
	h := newHarness(t)
	def := h.activeWorkflow(t, domain.CategoryTransportBooking, twoStepWorkflow(), domain.WorkflowConditions{})

	ticket := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(3))
	require.NotNil(t, ticket.Workflow)
	assert.Equal(t, def.ID, ticket.Workflow.WorkflowID)
	assert.Equal(t, 1, ticket.Workflow.CurrentStep)
	assert.Equal(t, domain.ApproverManager, ticket.Workflow.ApproverRole)

	h.clock.Advance(time.Hour)
	first, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, first.Status)
	assert.Equal(t, 2, first.Workflow.CurrentStep)
	assert.Equal(t, domain.ApproverFinance, first.Workflow.ApproverRole)
	assert.Equal(t, h.clock.Now(), first.Workflow.StepStartedAt)
	require.Len(t, first.Workflow.Approvals, 1)
	assert.Equal(t, domain.StepOutcomeApproved, first.Workflow.Approvals[0].Outcome)
	for _, c := range first.Comments {
		assert.Nil(t, c.Change, "step progress must not record a status change")
	}

	second, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusApproved, second.Status)
	assert.Len(t, second.Workflow.Approvals, 2)

	assert.Equal(t, []events.Kind{
		events.KindCreated,
		events.KindStepApproved,
		events.KindStepApproved,
		events.KindTransitioned,
	}, h.sink.Kinds())

	last := h.sink.Events()[3]
	assert.Equal(t, []string{guestUser.Email, RolePrefix + string(domain.ApproverFinance)}, last.Recipients)
}

func TestAutoApproveWithinLimit(t *testing.T) {
	h := newHarness(t)
	h.activeWorkflow(t, domain.CategoryTransportBooking, twoStepWorkflow(), autoApproveUpTo(4))

	small := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(3))
	approved, err := h.transition(small.ID, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusApproved, approved.Status)

	require.Len(t, approved.Workflow.Approvals, 2)
	for _, approval := range approved.Workflow.Approvals {
		assert.Equal(t, domain.StepOutcomeAutoApproved, approval.Outcome)
	}
	comments := systemComments(approved)
	require.Len(t, comments, 3)
	assert.Contains(t, comments[0].Text, "Step 1 (Manager review) auto-approved")
	assert.Contains(t, comments[1].Text, "Step 2 (Finance sign-off) auto-approved")
	assert.NotNil(t, comments[2].Change)

	large := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload("12"))
	stepped, err := h.transition(large.ID, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, stepped.Status)
	assert.Equal(t, 2, stepped.Workflow.CurrentStep)
}

func TestAutoApproveNeedsAmountField(t *testing.T) {
	h := newHarness(t)
	h.activeWorkflow(t, domain.CategoryEmployeeRegistration, twoStepWorkflow(), autoApproveUpTo(1000))

	ticket := h.submit(t, employee, domain.CategoryEmployeeRegistration, map[string]any{
		"employeeId":    "E-1042",
		"fullName":      "Priya Raman",
		"officeEmail":   "priya.raman@company.com",
		"department":    "Finance",
		"managerName":   "Lee Chen",
		"contactNumber": "555-0100",
	})
	assert.Equal(t, "REG001", ticket.ID)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)

	stepped, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, "", TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, stepped.Status)
	assert.Equal(t, domain.StepOutcomeApproved, stepped.Workflow.Approvals[0].Outcome)
}

func TestSkipOptionalStep(t *testing.T) {
	h := newHarness(t)
	h.activeWorkflow(t, domain.CategoryServiceMaintenance, []domain.WorkflowStep{
		{Order: 1, Name: "Manager review", ApproverRole: domain.ApproverManager},
		{Order: 2, Name: "HR check", ApproverRole: domain.ApproverHR, ApprovalType: domain.ApprovalOptional},
		{Order: 3, Name: "Facilities", ApproverRole: domain.ApproverAdmin, ApprovalType: domain.ApprovalConditional},
	}, domain.WorkflowConditions{})

	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	_, err := h.transition(ticket.ID, domain.ActionSkipStep, adminUser, "", TransitionExtra{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "required step must not be skipped")

	atOptional, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, "", TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, 2, atOptional.Workflow.CurrentStep)

	_, err = h.transition(ticket.ID, domain.ActionSkipStep, employee, "", TransitionExtra{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	skipped, err := h.transition(ticket.ID, domain.ActionSkipStep, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, skipped.Status)
	assert.Equal(t, 3, skipped.Workflow.CurrentStep)
	assert.Equal(t, domain.StepOutcomeSkipped, skipped.Workflow.Approvals[1].Outcome)

	_, err = h.transition(ticket.ID, domain.ActionSkipStep, adminUser, "", TransitionExtra{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "conditional steps block like required ones")

	done, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, "", TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusApproved, done.Status)
}

func TestTrailingOptionalStepDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	h.activeWorkflow(t, domain.CategoryServiceMaintenance, []domain.WorkflowStep{
		{Order: 1, Name: "Manager review", ApproverRole: domain.ApproverManager},
		{Order: 2, Name: "Courtesy check", ApproverRole: domain.ApproverHR, ApprovalType: domain.ApprovalOptional},
	}, domain.WorkflowConditions{})

	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())
	approved, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, "", TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusApproved, approved.Status)
}

func TestSkipStepWithoutWorkflow(t *testing.T) {
	h := newHarness(t)
	ticket := h.submit(t, employee, domain.CategoryServiceMaintenance, maintenancePayload())

	_, err := h.transition(ticket.ID, domain.ActionSkipStep, adminUser, "", TransitionExtra{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestReopenRestartsWorkflow(t *testing.T) {
	h := newHarness(t)
	h.activeWorkflow(t, domain.CategoryTransportBooking, twoStepWorkflow(), domain.WorkflowConditions{})
	ticket := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(8))

	_, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, "", TransitionExtra{})
	require.NoError(t, err)
	_, err = h.transition(ticket.ID, domain.ActionReject, adminUser, "", TransitionExtra{})
	require.NoError(t, err)

	h.clock.Advance(48 * time.Hour)
	reopened, err := h.transition(ticket.ID, domain.ActionReopen, adminUser, domain.TicketStatusRejected, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, reopened.Status)
	assert.Equal(t, 1, reopened.Workflow.CurrentStep)
	assert.Equal(t, domain.ApproverManager, reopened.Workflow.ApproverRole)
	assert.Empty(t, reopened.Workflow.Approvals)
	assert.Equal(t, h.clock.Now(), reopened.Workflow.StepStartedAt)
}

func TestInFlightTicketKeepsDemotedWorkflow(t *testing.T) {
	h := newHarness(t)
	original := h.activeWorkflow(t, domain.CategoryTransportBooking, twoStepWorkflow(), domain.WorkflowConditions{})
	ticket := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(2))

	h.activeWorkflow(t, domain.CategoryTransportBooking, []domain.WorkflowStep{
		{Order: 1, Name: "Admin only", ApproverRole: domain.ApproverAdmin},
	}, domain.WorkflowConditions{})

	stepped, err := h.transition(ticket.ID, domain.ActionApprove, adminUser, "", TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, original.ID, stepped.Workflow.WorkflowID)
	assert.Equal(t, domain.TicketStatusPending, stepped.Status)
	assert.Equal(t, 2, stepped.Workflow.CurrentStep)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{3, "3", true},
		{int64(7), "7", true},
		{2.5, "2.5", true},
		{" 120.75 ", "120.75", true},
		{"three", "0", false},
		{nil, "0", false},
		{true, "0", false},
	}
	for _, tc := range cases {
		got, ok := parseAmount(tc.in)
		assert.Equal(t, tc.ok, ok, "input %v", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got.String(), "input %v", tc.in)
		}
	}
}

func TestActiveEditDoesNotRewindInFlightTicket(t *testing.T) {
	h := newHarness(t)
	def := h.activeWorkflow(t, domain.CategoryTransportBooking, twoStepWorkflow(), domain.WorkflowConditions{})

	ahead := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(3))
	_, err := h.transition(ahead.ID, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	behind := h.submit(t, guestUser, domain.CategoryTransportBooking, transportPayload(2))

	steps := twoStepWorkflow()
	_, err = h.workflows.Update(h.ctx, adminUser, def.ID, WorkflowInput{
		Name:     def.Name,
		Category: def.Category,
		Steps: []domain.WorkflowStep{
			steps[0],
			{Order: 2, Name: "HR check", ApproverRole: domain.ApproverHR, ApprovalType: domain.ApprovalRequired},
			{Order: 3, Name: steps[1].Name, ApproverRole: steps[1].ApproverRole, ApprovalType: steps[1].ApprovalType, TimeoutHours: steps[1].TimeoutHours},
		},
	})
	require.NoError(t, err)

	stored, err := h.tickets.GetByID(h.ctx, ahead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Finance sign-off", stored.Workflow.StepName)
	assert.Equal(t, domain.ApproverFinance, stored.Workflow.ApproverRole)
	require.Len(t, stored.Workflow.Approvals, 1)
	assert.Equal(t, "Manager review", stored.Workflow.Approvals[0].Name)

	// The inserted step sits behind this ticket, so finance is the last stop.
	done, err := h.transition(ahead.ID, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusApproved, done.Status)
	require.Len(t, done.Workflow.Approvals, 2)
	assert.Equal(t, "Manager review", done.Workflow.Approvals[0].Name)
	assert.Equal(t, 1, done.Workflow.Approvals[0].Order)
	assert.Equal(t, "Finance sign-off", done.Workflow.Approvals[1].Name)
	assert.Equal(t, 3, done.Workflow.Approvals[1].Order)

	// A ticket still on step 1 picks up the inserted step.
	next, err := h.transition(behind.ID, domain.ActionApprove, adminUser, domain.TicketStatusPending, TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, next.Status)
	assert.Equal(t, 2, next.Workflow.CurrentStep)
	assert.Equal(t, "HR check", next.Workflow.StepName)
	assert.Equal(t, domain.ApproverHR, next.Workflow.ApproverRole)
}

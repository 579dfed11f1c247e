package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/events"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

// approveStep resolves the current workflow step. The ticket only reaches
// approved once no blocking step remains.
func (s *LifecycleService) approveStep(t *domain.Ticket, actor domain.Principal, now time.Time, note string, result *transitionResult) error {
	def := result.def
	current, ok := def.Locate(t.Workflow)
	if !ok {
		// The definition was edited below the ticket's position.
		s.move(t, domain.TicketStatusApproved, actor, now, note, result)
		return nil
	}
	t.Workflow.CurrentStep = current.Order

	if amount, limit, ok := autoApprovable(def, t); ok {
		s.autoApprove(t, def, current, actor, now, amount, limit)
		s.move(t, domain.TicketStatusApproved, actor, now, note, result)
		return nil
	}

	recordStep(t, current, domain.StepOutcomeApproved, actor.Email, now)
	t.Comments = append(t.Comments, systemComment(
		fmt.Sprintf("Step %d (%s) approved by %s", current.Order, stepName(current), actor.Name()), now))
	s.advance(t, def, current, actor, now, note, result)
	return nil
}

// skipStep passes over an optional step.
func (s *LifecycleService) skipStep(ctx context.Context, t *domain.Ticket, actor domain.Principal, now time.Time, note string, result *transitionResult) error {
	result.def = loadWorkflow(ctx, s.workflows, t, s.logger)
	if result.def == nil {
		return apperrors.NewValidationError("workflow definition unavailable", map[string]any{"workflow_id": t.Workflow.WorkflowID})
	}
	current, ok := result.def.Locate(t.Workflow)
	if !ok {
		return apperrors.NewValidationError("current step not found", map[string]any{"step": t.Workflow.CurrentStep})
	}
	t.Workflow.CurrentStep = current.Order
	if current.ApprovalType.Blocking() {
		return apperrors.NewValidationError(
			fmt.Sprintf("step %d is %s and cannot be skipped", current.Order, current.ApprovalType),
			map[string]any{"step": current.Order})
	}

	recordStep(t, current, domain.StepOutcomeSkipped, actor.Email, now)
	t.Comments = append(t.Comments, systemComment(
		fmt.Sprintf("Step %d (%s) skipped by %s", current.Order, stepName(current), actor.Name()), now))
	s.advance(t, result.def, current, actor, now, note, result)
	return nil
}

// advance moves progress past current. With no blocking step left the
// ticket is approved, otherwise the next step starts its timer.
func (s *LifecycleService) advance(t *domain.Ticket, def *domain.WorkflowDefinition, current domain.WorkflowStep, actor domain.Principal, now time.Time, note string, result *transitionResult) {
	detail := map[string]any{
		"step":      current.Order,
		"step_name": current.Name,
	}

	if !def.BlockingAfter(current.Order) {
		t.UpdatedAt = now
		result.notices = append(result.notices, notice{kind: events.KindStepApproved, detail: detail})
		s.move(t, domain.TicketStatusApproved, actor, now, note, result)
		return
	}

	next, _ := def.NextStep(current.Order)
	t.Workflow.MoveTo(next)
	t.Workflow.StepStartedAt = now
	t.Workflow.EscalationLevel = 0
	t.UpdatedAt = now
	t.Comments = append(t.Comments, systemComment(
		fmt.Sprintf("Awaiting step %d (%s) from %s", next.Order, stepName(next), next.ApproverRole), now))

	detail["next_step"] = next.Order
	detail["approver_role"] = next.ApproverRole
	if note != "" {
		detail["note"] = note
	}
	result.notices = append(result.notices, notice{kind: events.KindStepApproved, detail: detail})
}

// autoApprove resolves every remaining step with one comment per step.
func (s *LifecycleService) autoApprove(t *domain.Ticket, def *domain.WorkflowDefinition, current domain.WorkflowStep, actor domain.Principal, now time.Time, amount, limit decimal.Decimal) {
	for _, step := range def.Steps {
		if step.Order < current.Order {
			continue
		}
		recordStep(t, step, domain.StepOutcomeAutoApproved, actor.Email, now)
		t.Comments = append(t.Comments, systemComment(
			fmt.Sprintf("Step %d (%s) auto-approved: amount %s within limit %s",
				step.Order, stepName(step), amount.String(), limit.String()), now))
	}
	if last := def.Steps[len(def.Steps)-1]; last.Order >= current.Order {
		t.Workflow.MoveTo(last)
	}
}

// autoApprovable reports whether the ticket's amount field is within the
// workflow's auto-approve limit.
func autoApprovable(def *domain.WorkflowDefinition, t *domain.Ticket) (amount, limit decimal.Decimal, ok bool) {
	if !def.Conditions.AutoApprove || len(def.Steps) == 0 {
		return amount, limit, false
	}
	field := t.Category.AmountField()
	if field == "" {
		return amount, limit, false
	}
	amount, ok = parseAmount(t.Payload[field])
	if !ok || amount.IsNegative() {
		return amount, limit, false
	}
	limit = def.Conditions.AutoApproveLimit
	return amount, limit, amount.LessThanOrEqual(limit)
}

func parseAmount(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

// restartWorkflow rewinds progress to the first step for a reopened ticket.
func restartWorkflow(t *domain.Ticket, def *domain.WorkflowDefinition, now time.Time) {
	if t.Workflow == nil {
		return
	}
	t.Workflow.Approvals = nil
	t.Workflow.EscalationLevel = 0
	t.Workflow.StepStartedAt = now
	if def == nil {
		return
	}
	if first, ok := def.FirstStep(); ok {
		t.Workflow.MoveTo(first)
	}
}

func recordStep(t *domain.Ticket, step domain.WorkflowStep, outcome domain.StepOutcome, actor string, now time.Time) {
	t.Workflow.Approvals = append(t.Workflow.Approvals, domain.StepApproval{
		Order:     step.Order,
		Name:      step.Name,
		Outcome:   outcome,
		Actor:     actor,
		DecidedAt: now,
	})
}

func stepName(step domain.WorkflowStep) string {
	if step.Name == "" {
		return "unnamed"
	}
	return step.Name
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkflowStatus marks whether a definition is enforced.
type WorkflowStatus string

const (
	WorkflowStatusDraft  WorkflowStatus = "draft"
	WorkflowStatusActive WorkflowStatus = "active"
)

// ApprovalType controls whether a step may be skipped.
type ApprovalType string

const (
	ApprovalRequired    ApprovalType = "required"
	ApprovalOptional    ApprovalType = "optional"
	ApprovalConditional ApprovalType = "conditional"
)

// Blocking reports whether the step must be approved before the ticket
// can leave pending. Conditional steps have no predicate yet and block.
func (a ApprovalType) Blocking() bool {
	return a != ApprovalOptional
}

// ApproverRole names who a workflow step waits on.
type ApproverRole string

const (
	ApproverManager  ApproverRole = "manager"
	ApproverDeptHead ApproverRole = "dept_head"
	ApproverHR       ApproverRole = "hr"
	ApproverFinance  ApproverRole = "finance"
	ApproverAdmin    ApproverRole = "admin"
	ApproverCustom   ApproverRole = "custom"
)

// escalationLadder is the fixed manager -> dept_head -> admin hierarchy.
var escalationLadder = []ApproverRole{ApproverManager, ApproverDeptHead, ApproverAdmin}

// Escalate returns the next role up the hierarchy. Roles off the ladder go
// straight to admin. ok is false when r is already admin.
func (r ApproverRole) Escalate() (next ApproverRole, ok bool) {
	if r == ApproverAdmin {
		return r, false
	}
	for i, role := range escalationLadder {
		if role == r {
			return escalationLadder[i+1], true
		}
	}
	return ApproverAdmin, true
}

// DefaultStepTimeoutHours applies when a step leaves timeout unset.
const DefaultStepTimeoutHours = 24

// WorkflowStep is one approval stage.
type WorkflowStep struct {
	Order        int
	Name         string
	ApproverRole ApproverRole
	ApprovalType ApprovalType
	TimeoutHours int
}

// Timeout returns the step deadline as a duration.
func (s WorkflowStep) Timeout() time.Duration {
	hours := s.TimeoutHours
	if hours <= 0 {
		hours = DefaultStepTimeoutHours
	}
	return time.Duration(hours) * time.Hour
}

// WorkflowConditions holds auto-approval and escalation settings.
type WorkflowConditions struct {
	AutoApprove         bool
	AutoApproveLimit    decimal.Decimal
	EscalationEnabled   bool
	EscalationTimeHours int
}

// EscalationTimeout is the fresh timeout granted after an escalation.
func (c WorkflowConditions) EscalationTimeout() time.Duration {
	hours := c.EscalationTimeHours
	if hours <= 0 {
		hours = DefaultStepTimeoutHours
	}
	return time.Duration(hours) * time.Hour
}

// WorkflowNotifications selects who hears about lifecycle events.
type WorkflowNotifications struct {
	NotifySubmitter bool
	NotifyApprovers bool
	NotifyManager   bool
}

// WorkflowDefinition is an approval template bound to a category.
type WorkflowDefinition struct {
	ID            string
	Name          string
	Category      Category
	Description   string
	Priority      TicketPriority
	SLAHours      int
	Steps         []WorkflowStep
	Conditions    WorkflowConditions
	Notifications WorkflowNotifications
	Status        WorkflowStatus
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone copies the definition including its steps.
func (w *WorkflowDefinition) Clone() *WorkflowDefinition {
	if w == nil {
		return nil
	}
	out := *w
	out.Steps = append([]WorkflowStep(nil), w.Steps...)
	return &out
}

// Locate finds the step progress is waiting on. A recorded step name takes
// precedence over the order, so renumbering edits keep a ticket on its stage.
func (w *WorkflowDefinition) Locate(p *WorkflowProgress) (WorkflowStep, bool) {
	if p == nil {
		return WorkflowStep{}, false
	}
	step, ok := w.Step(p.CurrentStep)
	if p.StepName == "" || (ok && step.Name == p.StepName) {
		return step, ok
	}
	for _, candidate := range w.Steps {
		if candidate.Name == p.StepName {
			return candidate, true
		}
	}
	return step, ok
}

// Step returns the step with the given order.
func (w *WorkflowDefinition) Step(order int) (WorkflowStep, bool) {
	for _, step := range w.Steps {
		if step.Order == order {
			return step, true
		}
	}
	return WorkflowStep{}, false
}

// FirstStep returns the lowest-ordered step.
func (w *WorkflowDefinition) FirstStep() (WorkflowStep, bool) {
	var first WorkflowStep
	found := false
	for _, step := range w.Steps {
		if !found || step.Order < first.Order {
			first = step
			found = true
		}
	}
	return first, found
}

// NextStep returns the first step ordered after order.
func (w *WorkflowDefinition) NextStep(order int) (WorkflowStep, bool) {
	var next WorkflowStep
	found := false
	for _, step := range w.Steps {
		if step.Order <= order {
			continue
		}
		if !found || step.Order < next.Order {
			next = step
			found = true
		}
	}
	return next, found
}

// BlockingAfter reports whether any required or conditional step follows
// order.
func (w *WorkflowDefinition) BlockingAfter(order int) bool {
	for _, step := range w.Steps {
		if step.Order > order && step.ApprovalType.Blocking() {
			return true
		}
	}
	return false
}

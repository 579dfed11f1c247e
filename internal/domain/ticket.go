package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending      TicketStatus = "pending"
	TicketStatusInfoRequired TicketStatus = "info_required"
	TicketStatusApproved     TicketStatus = "approved"
	TicketStatusRejected     TicketStatus = "rejected"
	TicketStatusAssigned     TicketStatus = "assigned"
	TicketStatusInProgress   TicketStatus = "in_progress"
	TicketStatusOnHold       TicketStatus = "on_hold"
	TicketStatusCompleted    TicketStatus = "completed"
	TicketStatusCancelled    TicketStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusPending, TicketStatusInfoRequired, TicketStatusApproved, TicketStatusRejected,
		TicketStatusAssigned, TicketStatusInProgress, TicketStatusOnHold, TicketStatusCompleted, TicketStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further work happens in this state.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusRejected || s == TicketStatusCancelled
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	return p == TicketPriorityLow || p == TicketPriorityMedium || p == TicketPriorityHigh
}

// Ticket is the aggregate for community service requests.
type Ticket struct {
	ID        string
	Category  Category
	Title     string
	Payload   map[string]any
	Status    TicketStatus
	Priority  TicketPriority
	Submitter string
	Assignee  *string
	Comments  []Comment
	Workflow  *WorkflowProgress
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so store callers can mutate freely.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	if t.Payload != nil {
		out.Payload = make(map[string]any, len(t.Payload))
		for k, v := range t.Payload {
			out.Payload[k] = v
		}
	}
	if t.Assignee != nil {
		assignee := *t.Assignee
		out.Assignee = &assignee
	}
	out.Comments = append([]Comment(nil), t.Comments...)
	if t.Workflow != nil {
		out.Workflow = t.Workflow.Clone()
	}
	return &out
}

// AssigneeName returns the assignee or an empty string.
func (t *Ticket) AssigneeName() string {
	if t.Assignee == nil {
		return ""
	}
	return *t.Assignee
}

// WorkflowProgress tracks a ticket's position in its approval workflow.
type WorkflowProgress struct {
	WorkflowID      string
	CurrentStep     int
	StepName        string
	ApproverRole    ApproverRole
	StepStartedAt   time.Time
	EscalationLevel int
	Approvals       []StepApproval
}

// MoveTo points progress at step and hands it to the step's approver.
func (p *WorkflowProgress) MoveTo(step WorkflowStep) {
	p.CurrentStep = step.Order
	p.StepName = step.Name
	p.ApproverRole = step.ApproverRole
}

// Clone copies the progress record.
func (p *WorkflowProgress) Clone() *WorkflowProgress {
	out := *p
	out.Approvals = append([]StepApproval(nil), p.Approvals...)
	return &out
}

// StepOutcome records how a workflow step was resolved.
type StepOutcome string

const (
	StepOutcomeApproved     StepOutcome = "approved"
	StepOutcomeAutoApproved StepOutcome = "auto_approved"
	StepOutcomeSkipped      StepOutcome = "skipped"
)

// StepApproval is one resolved workflow step.
type StepApproval struct {
	Order     int
	Name      string
	Outcome   StepOutcome
	Actor     string
	DecidedAt time.Time
}

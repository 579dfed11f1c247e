package dto

import (
	"time"

	"github.com/spec-kit/community-services/internal/domain"
)

// SubmitTicketRequest payload.
type SubmitTicketRequest struct {
	Category domain.Category       `json:"category"`
	Title    string                `json:"title"`
	Priority domain.TicketPriority `json:"priority"`
	Payload  map[string]any        `json:"payload"`
}

// TransitionRequest drives the lifecycle engine. ExpectedStatus is optional.
type TransitionRequest struct {
	Action         domain.Action       `json:"action"`
	ExpectedStatus domain.TicketStatus `json:"expected_status"`
	Assignee       string              `json:"assignee"`
	TargetStatus   domain.TicketStatus `json:"target_status"`
	Note           string              `json:"note"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Text string `json:"text"`
}

// TicketSummary is the list representation.
type TicketSummary struct {
	ID          string                `json:"id"`
	Category    domain.Category       `json:"category"`
	Title       string                `json:"title"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	Submitter   string                `json:"submitter"`
	Assignee    *string               `json:"assignee"`
	CurrentStep *int                  `json:"current_step,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID        string                    `json:"id"`
	Category  domain.Category           `json:"category"`
	Title     string                    `json:"title"`
	Payload   map[string]any            `json:"payload"`
	Status    domain.TicketStatus       `json:"status"`
	Priority  domain.TicketPriority     `json:"priority"`
	Submitter string                    `json:"submitter"`
	Assignee  *string                   `json:"assignee"`
	Workflow  *WorkflowProgressResponse `json:"workflow,omitempty"`
	Comments  []CommentResponse         `json:"comments"`
	Version   int64                     `json:"version"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// WorkflowProgressResponse is a ticket's position in its workflow.
type WorkflowProgressResponse struct {
	WorkflowID      string                 `json:"workflow_id"`
	CurrentStep     int                    `json:"current_step"`
	StepName        string                 `json:"step_name,omitempty"`
	ApproverRole    domain.ApproverRole    `json:"approver_role"`
	StepStartedAt   time.Time              `json:"step_started_at"`
	EscalationLevel int                    `json:"escalation_level"`
	Approvals       []StepApprovalResponse `json:"approvals"`
}

// StepApprovalResponse is one resolved step.
type StepApprovalResponse struct {
	Order     int                `json:"order"`
	Name      string             `json:"name"`
	Outcome   domain.StepOutcome `json:"outcome"`
	Actor     string             `json:"actor"`
	DecidedAt time.Time          `json:"decided_at"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID        string                `json:"id"`
	Author    string                `json:"author"`
	Text      string                `json:"text"`
	System    bool                  `json:"system"`
	Change    *StatusChangeResponse `json:"status_change,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// StatusChangeResponse records a transition on a system comment.
type StatusChangeResponse struct {
	PreviousStatus domain.TicketStatus `json:"previous_status"`
	NewStatus      domain.TicketStatus `json:"new_status"`
	Actor          string              `json:"actor"`
	At             time.Time           `json:"at"`
}

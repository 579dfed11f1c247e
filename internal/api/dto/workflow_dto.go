package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/community-services/internal/domain"
)

// CloneWorkflowRequest optionally names the copy.
type CloneWorkflowRequest struct {
	Name string `json:"name"`
}

// WorkflowRequest creates or replaces a workflow definition.
type WorkflowRequest struct {
	Name          string                       `json:"name"`
	Category      domain.Category              `json:"category"`
	Description   string                       `json:"description"`
	Priority      domain.TicketPriority        `json:"priority"`
	SLAHours      int                          `json:"sla_hours"`
	Steps         []WorkflowStepPayload        `json:"steps"`
	Conditions    WorkflowConditionsPayload    `json:"conditions"`
	Notifications WorkflowNotificationsPayload `json:"notifications"`
}

// WorkflowStepPayload is one approval stage.
type WorkflowStepPayload struct {
	Order        int                 `json:"order"`
	Name         string              `json:"name"`
	ApproverRole domain.ApproverRole `json:"approver_role"`
	ApprovalType domain.ApprovalType `json:"approval_type"`
	TimeoutHours int                 `json:"timeout_hours"`
}

// WorkflowConditionsPayload carries auto-approval and escalation settings.
// The limit accepts a JSON number or string.
type WorkflowConditionsPayload struct {
	AutoApprove         bool            `json:"auto_approve"`
	AutoApproveLimit    decimal.Decimal `json:"auto_approve_limit"`
	EscalationEnabled   bool            `json:"escalation_enabled"`
	EscalationTimeHours int             `json:"escalation_time_hours"`
}

// WorkflowNotificationsPayload selects notification recipients.
type WorkflowNotificationsPayload struct {
	NotifySubmitter bool `json:"notify_submitter"`
	NotifyApprovers bool `json:"notify_approvers"`
	NotifyManager   bool `json:"notify_manager"`
}

// WorkflowResponse is a stored definition.
type WorkflowResponse struct {
	ID            string                       `json:"id"`
	Name          string                       `json:"name"`
	Category      domain.Category              `json:"category"`
	Description   string                       `json:"description"`
	Priority      domain.TicketPriority        `json:"priority"`
	SLAHours      int                          `json:"sla_hours"`
	Status        domain.WorkflowStatus        `json:"status"`
	Steps         []WorkflowStepPayload        `json:"steps"`
	Conditions    WorkflowConditionsPayload    `json:"conditions"`
	Notifications WorkflowNotificationsPayload `json:"notifications"`
	CreatedBy     string                       `json:"created_by"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

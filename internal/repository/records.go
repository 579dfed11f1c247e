package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/community-services/internal/domain"
)

// Row shapes for the JSONB columns. Kept separate from the domain types so
// the stored document layout does not follow Go field names.

type ticketRecord struct {
	ID        string
	Category  string
	Title     string
	Payload   []byte
	Status    string
	Priority  string
	Submitter string
	Assignee  *string
	Comments  []byte
	Workflow  []byte
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type commentDoc struct {
	ID        string        `json:"id"`
	Author    string        `json:"author"`
	Text      string        `json:"text"`
	System    bool          `json:"system,omitempty"`
	Change    *statusChange `json:"change,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type statusChange struct {
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Actor          string    `json:"actor"`
	At             time.Time `json:"at"`
}

type progressDoc struct {
	WorkflowID      string        `json:"workflow_id"`
	CurrentStep     int           `json:"current_step"`
	StepName        string        `json:"step_name,omitempty"`
	ApproverRole    string        `json:"approver_role"`
	StepStartedAt   time.Time     `json:"step_started_at"`
	EscalationLevel int           `json:"escalation_level"`
	Approvals       []approvalDoc `json:"approvals,omitempty"`
}

type approvalDoc struct {
	Order     int       `json:"order"`
	Name      string    `json:"name"`
	Outcome   string    `json:"outcome"`
	Actor     string    `json:"actor"`
	DecidedAt time.Time `json:"decided_at"`
}

func newTicketRecord(t *domain.Ticket) (ticketRecord, error) {
	payload := t.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return ticketRecord{}, fmt.Errorf("encode payload: %w", err)
	}
	comments, err := encodeComments(t.Comments)
	if err != nil {
		return ticketRecord{}, err
	}

	var workflow []byte
	if t.Workflow != nil {
		doc := progressDoc{
			WorkflowID:      t.Workflow.WorkflowID,
			CurrentStep:     t.Workflow.CurrentStep,
			StepName:        t.Workflow.StepName,
			ApproverRole:    string(t.Workflow.ApproverRole),
			StepStartedAt:   t.Workflow.StepStartedAt,
			EscalationLevel: t.Workflow.EscalationLevel,
		}
		for _, a := range t.Workflow.Approvals {
			doc.Approvals = append(doc.Approvals, approvalDoc{
				Order:     a.Order,
				Name:      a.Name,
				Outcome:   string(a.Outcome),
				Actor:     a.Actor,
				DecidedAt: a.DecidedAt,
			})
		}
		if workflow, err = json.Marshal(doc); err != nil {
			return ticketRecord{}, fmt.Errorf("encode workflow progress: %w", err)
		}
	}

	return ticketRecord{
		ID:        t.ID,
		Category:  string(t.Category),
		Title:     t.Title,
		Payload:   payloadJSON,
		Status:    string(t.Status),
		Priority:  string(t.Priority),
		Submitter: t.Submitter,
		Assignee:  t.Assignee,
		Comments:  comments,
		Workflow:  workflow,
		Version:   t.Version,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}, nil
}

func encodeComments(comments []domain.Comment) ([]byte, error) {
	docs := make([]commentDoc, 0, len(comments))
	for _, c := range comments {
		doc := commentDoc{
			ID:        c.ID,
			Author:    c.Author,
			Text:      c.Text,
			System:    c.System,
			CreatedAt: c.CreatedAt,
		}
		if c.Change != nil {
			doc.Change = &statusChange{
				PreviousStatus: string(c.Change.PreviousStatus),
				NewStatus:      string(c.Change.NewStatus),
				Actor:          c.Change.Actor,
				At:             c.Change.At,
			}
		}
		docs = append(docs, doc)
	}
	out, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode comments: %w", err)
	}
	return out, nil
}

func (r ticketRecord) toDomain() (*domain.Ticket, error) {
	t := &domain.Ticket{
		ID:        r.ID,
		Category:  domain.Category(r.Category),
		Title:     r.Title,
		Status:    domain.TicketStatus(r.Status),
		Priority:  domain.TicketPriority(r.Priority),
		Submitter: r.Submitter,
		Assignee:  r.Assignee,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &t.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", r.ID, err)
		}
	}

	var comments []commentDoc
	if len(r.Comments) > 0 {
		if err := json.Unmarshal(r.Comments, &comments); err != nil {
			return nil, fmt.Errorf("decode comments of %s: %w", r.ID, err)
		}
	}
	for _, doc := range comments {
		c := domain.Comment{
			ID:        doc.ID,
			Author:    doc.Author,
			Text:      doc.Text,
			System:    doc.System,
			CreatedAt: doc.CreatedAt,
		}
		if doc.Change != nil {
			c.Change = &domain.StatusChange{
				PreviousStatus: domain.TicketStatus(doc.Change.PreviousStatus),
				NewStatus:      domain.TicketStatus(doc.Change.NewStatus),
				Actor:          doc.Change.Actor,
				At:             doc.Change.At,
			}
		}
		t.Comments = append(t.Comments, c)
	}

	if len(r.Workflow) > 0 {
		var doc progressDoc
		if err := json.Unmarshal(r.Workflow, &doc); err != nil {
			return nil, fmt.Errorf("decode workflow progress of %s: %w", r.ID, err)
		}
		progress := &domain.WorkflowProgress{
			WorkflowID:      doc.WorkflowID,
			CurrentStep:     doc.CurrentStep,
			StepName:        doc.StepName,
			ApproverRole:    domain.ApproverRole(doc.ApproverRole),
			StepStartedAt:   doc.StepStartedAt,
			EscalationLevel: doc.EscalationLevel,
		}
		for _, a := range doc.Approvals {
			progress.Approvals = append(progress.Approvals, domain.StepApproval{
				Order:     a.Order,
				Name:      a.Name,
				Outcome:   domain.StepOutcome(a.Outcome),
				Actor:     a.Actor,
				DecidedAt: a.DecidedAt,
			})
		}
		t.Workflow = progress
	}
	return t, nil
}

type workflowRecord struct {
	ID            string
	Name          string
	Category      string
	Description   string
	Priority      string
	SLAHours      int
	Steps         []byte
	Conditions    []byte
	Notifications []byte
	Status        string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type stepDoc struct {
	Order        int    `json:"order"`
	Name         string `json:"name"`
	ApproverRole string `json:"approver_role"`
	ApprovalType string `json:"approval_type"`
	TimeoutHours int    `json:"timeout_hours"`
}

type conditionsDoc struct {
	AutoApprove         bool            `json:"auto_approve"`
	AutoApproveLimit    decimal.Decimal `json:"auto_approve_limit"`
	EscalationEnabled   bool            `json:"escalation_enabled"`
	EscalationTimeHours int             `json:"escalation_time_hours"`
}

type notificationsDoc struct {
	NotifySubmitter bool `json:"notify_submitter"`
	NotifyApprovers bool `json:"notify_approvers"`
	NotifyManager   bool `json:"notify_manager"`
}

func newWorkflowRecord(w *domain.WorkflowDefinition) (workflowRecord, error) {
	steps := make([]stepDoc, 0, len(w.Steps))
	for _, s := range w.Steps {
		steps = append(steps, stepDoc{
			Order:        s.Order,
			Name:         s.Name,
			ApproverRole: string(s.ApproverRole),
			ApprovalType: string(s.ApprovalType),
			TimeoutHours: s.TimeoutHours,
		})
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return workflowRecord{}, fmt.Errorf("encode steps: %w", err)
	}
	conditionsJSON, err := json.Marshal(conditionsDoc(w.Conditions))
	if err != nil {
		return workflowRecord{}, fmt.Errorf("encode conditions: %w", err)
	}
	notificationsJSON, err := json.Marshal(notificationsDoc(w.Notifications))
	if err != nil {
		return workflowRecord{}, fmt.Errorf("encode notifications: %w", err)
	}

	return workflowRecord{
		ID:            w.ID,
		Name:          w.Name,
		Category:      string(w.Category),
		Description:   w.Description,
		Priority:      string(w.Priority),
		SLAHours:      w.SLAHours,
		Steps:         stepsJSON,
		Conditions:    conditionsJSON,
		Notifications: notificationsJSON,
		Status:        string(w.Status),
		CreatedBy:     w.CreatedBy,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}, nil
}

func (r workflowRecord) toDomain() (*domain.WorkflowDefinition, error) {
	w := &domain.WorkflowDefinition{
		ID:          r.ID,
		Name:        r.Name,
		Category:    domain.Category(r.Category),
		Description: r.Description,
		Priority:    domain.TicketPriority(r.Priority),
		SLAHours:    r.SLAHours,
		Status:      domain.WorkflowStatus(r.Status),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	var steps []stepDoc
	if err := json.Unmarshal(r.Steps, &steps); err != nil {
		return nil, fmt.Errorf("decode steps of %s: %w", r.ID, err)
	}
	for _, s := range steps {
		w.Steps = append(w.Steps, domain.WorkflowStep{
			Order:        s.Order,
			Name:         s.Name,
			ApproverRole: domain.ApproverRole(s.ApproverRole),
			ApprovalType: domain.ApprovalType(s.ApprovalType),
			TimeoutHours: s.TimeoutHours,
		})
	}

	var conditions conditionsDoc
	if err := json.Unmarshal(r.Conditions, &conditions); err != nil {
		return nil, fmt.Errorf("decode conditions of %s: %w", r.ID, err)
	}
	w.Conditions = domain.WorkflowConditions(conditions)

	var notifications notificationsDoc
	if err := json.Unmarshal(r.Notifications, &notifications); err != nil {
		return nil, fmt.Errorf("decode notifications of %s: %w", r.ID, err)
	}
	w.Notifications = domain.WorkflowNotifications(notifications)
	return w, nil
}

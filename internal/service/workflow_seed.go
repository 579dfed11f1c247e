package service

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/community-services/internal/domain"
)

// SeedWorkflow is one definition in a workflow seed file.
type SeedWorkflow struct {
	Name        string     `yaml:"name"`
	Category    string     `yaml:"category"`
	Description string     `yaml:"description"`
	Priority    string     `yaml:"priority"`
	SLAHours    int        `yaml:"sla_hours"`
	Active      bool       `yaml:"active"`
	Steps       []seedStep `yaml:"steps"`
	Conditions  struct {
		AutoApprove         bool            `yaml:"auto_approve"`
		AutoApproveLimit    decimal.Decimal `yaml:"auto_approve_limit"`
		EscalationEnabled   bool            `yaml:"escalation_enabled"`
		EscalationTimeHours int             `yaml:"escalation_time_hours"`
	} `yaml:"conditions"`
	Notifications struct {
		NotifySubmitter bool `yaml:"notify_submitter"`
		NotifyApprovers bool `yaml:"notify_approvers"`
		NotifyManager   bool `yaml:"notify_manager"`
	} `yaml:"notifications"`
}

type seedStep struct {
	Order        int    `yaml:"order"`
	Name         string `yaml:"name"`
	ApproverRole string `yaml:"approver_role"`
	ApprovalType string `yaml:"approval_type"`
	TimeoutHours int    `yaml:"timeout_hours"`
}

// LoadWorkflowFile parses a YAML document with a top-level workflows list.
func LoadWorkflowFile(path string) ([]SeedWorkflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	var doc struct {
		Workflows []SeedWorkflow `yaml:"workflows"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow file: %w", err)
	}
	return doc.Workflows, nil
}

// Input converts the seed entry into a WorkflowInput.
func (w SeedWorkflow) Input() WorkflowInput {
	input := WorkflowInput{
		Name:        w.Name,
		Category:    domain.Category(w.Category),
		Description: w.Description,
		Priority:    domain.TicketPriority(w.Priority),
		SLAHours:    w.SLAHours,
		Conditions: domain.WorkflowConditions{
			AutoApprove:         w.Conditions.AutoApprove,
			AutoApproveLimit:    w.Conditions.AutoApproveLimit,
			EscalationEnabled:   w.Conditions.EscalationEnabled,
			EscalationTimeHours: w.Conditions.EscalationTimeHours,
		},
		Notifications: domain.WorkflowNotifications{
			NotifySubmitter: w.Notifications.NotifySubmitter,
			NotifyApprovers: w.Notifications.NotifyApprovers,
			NotifyManager:   w.Notifications.NotifyManager,
		},
	}
	for _, step := range w.Steps {
		input.Steps = append(input.Steps, domain.WorkflowStep{
			Order:        step.Order,
			Name:         step.Name,
			ApproverRole: domain.ApproverRole(step.ApproverRole),
			ApprovalType: domain.ApprovalType(step.ApprovalType),
			TimeoutHours: step.TimeoutHours,
		})
	}
	return input
}

// Seed creates each workflow as actor and activates those marked active.
func (s *WorkflowService) Seed(ctx context.Context, actor domain.Principal, seeds []SeedWorkflow) error {
	for _, seed := range seeds {
		def, err := s.CreateDraft(ctx, actor, seed.Input())
		if err != nil {
			return fmt.Errorf("seed workflow %q: %w", seed.Name, err)
		}
		if !seed.Active {
			continue
		}
		if _, err := s.Activate(ctx, actor, def.ID); err != nil {
			return fmt.Errorf("activate seeded workflow %q: %w", seed.Name, err)
		}
	}
	s.logger.Info("workflows seeded", zap.Int("count", len(seeds)))
	return nil
}

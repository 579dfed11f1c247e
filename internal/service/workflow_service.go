package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/repository"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

const workflowIDPrefix = "WF"

// WorkflowInput carries the admin-editable fields of a definition.
type WorkflowInput struct {
	Name          string
	Category      domain.Category
	Description   string
	Priority      domain.TicketPriority
	SLAHours      int
	Steps         []domain.WorkflowStep
	Conditions    domain.WorkflowConditions
	Notifications domain.WorkflowNotifications
}

// WorkflowService manages approval workflow definitions.
type WorkflowService struct {
	workflows repository.WorkflowRepository
	sequencer repository.Sequencer
	clock     Clock
	logger    *zap.Logger
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	WorkflowRepo repository.WorkflowRepository
	Sequencer    repository.Sequencer
	Clock        Clock
	Logger       *zap.Logger
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	s := &WorkflowService{
		workflows: deps.WorkflowRepo,
		sequencer: deps.Sequencer,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// CreateDraft stores a new definition in draft. Step ordering is not
// checked until activation.
func (s *WorkflowService) CreateDraft(ctx context.Context, actor domain.Principal, input WorkflowInput) (*domain.WorkflowDefinition, error) {
	if err := requireAdmin(actor, "create workflows"); err != nil {
		return nil, err
	}
	if err := validateWorkflowInput(&input); err != nil {
		return nil, err
	}

	seq, err := s.sequencer.Next(ctx, workflowIDPrefix)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("next workflow id: %w", err))
	}

	now := s.clock.Now()
	def := &domain.WorkflowDefinition{
		ID:        fmt.Sprintf("%s%03d", workflowIDPrefix, seq),
		Status:    domain.WorkflowStatusDraft,
		CreatedBy: actor.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyWorkflowInput(def, input)

	if err := s.workflows.Create(ctx, def); err != nil {
		return nil, storeError(err, "workflow", def.ID)
	}
	s.logger.Info("workflow drafted",
		zap.String("workflow_id", def.ID),
		zap.String("category", string(def.Category)),
		zap.Int("steps", len(def.Steps)),
	)
	return def, nil
}

// Activate enforces def for new tickets of its category. Any other active
// definition of that category returns to draft.
func (s *WorkflowService) Activate(ctx context.Context, actor domain.Principal, id string) (*domain.WorkflowDefinition, error) {
	if err := requireAdmin(actor, "activate workflows"); err != nil {
		return nil, err
	}
	def, err := s.workflows.Activate(ctx, id, func(def *domain.WorkflowDefinition) error {
		if err := validateSteps(def.Steps); err != nil {
			return err
		}
		def.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, storeError(err, "workflow", id)
	}
	s.logger.Info("workflow activated",
		zap.String("workflow_id", def.ID),
		zap.String("category", string(def.Category)),
	)
	return def, nil
}

// Clone copies a definition into a new draft of the same category. An
// empty name yields "<source name> (Copy)".
func (s *WorkflowService) Clone(ctx context.Context, actor domain.Principal, id, name string) (*domain.WorkflowDefinition, error) {
	if err := requireAdmin(actor, "clone workflows"); err != nil {
		return nil, err
	}
	source, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "workflow", id)
	}
	if strings.TrimSpace(name) == "" {
		name = source.Name + " (Copy)"
	}
	def, err := s.CreateDraft(ctx, actor, WorkflowInput{
		Name:          name,
		Category:      source.Category,
		Description:   source.Description,
		Priority:      source.Priority,
		SLAHours:      source.SLAHours,
		Steps:         source.Steps,
		Conditions:    source.Conditions,
		Notifications: source.Notifications,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("workflow cloned", zap.String("source_id", source.ID), zap.String("workflow_id", def.ID))
	return def, nil
}

// Update replaces a definition's editable fields. Active definitions must
// stay valid. Tickets already in flight keep their completed steps.
func (s *WorkflowService) Update(ctx context.Context, actor domain.Principal, id string, input WorkflowInput) (*domain.WorkflowDefinition, error) {
	if err := requireAdmin(actor, "edit workflows"); err != nil {
		return nil, err
	}
	if err := validateWorkflowInput(&input); err != nil {
		return nil, err
	}
	def, err := s.workflows.Update(ctx, id, func(def *domain.WorkflowDefinition) error {
		applyWorkflowInput(def, input)
		if def.Status == domain.WorkflowStatusActive {
			if err := validateSteps(def.Steps); err != nil {
				return err
			}
		}
		def.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, storeError(err, "workflow", id)
	}
	return def, nil
}

// GetActive returns the active definition for category, or nil when none.
func (s *WorkflowService) GetActive(ctx context.Context, category domain.Category) (*domain.WorkflowDefinition, error) {
	def, err := s.workflows.GetActiveByCategory(ctx, category)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "workflow", string(category))
	}
	return def, nil
}

// GetByID fetches a definition.
func (s *WorkflowService) GetByID(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	def, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "workflow", id)
	}
	return def, nil
}

// List returns definitions matching filter.
func (s *WorkflowService) List(ctx context.Context, filter repository.WorkflowFilter) ([]domain.WorkflowDefinition, error) {
	defs, err := s.workflows.List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "workflow", "")
	}
	return defs, nil
}

func requireAdmin(actor domain.Principal, what string) error {
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewPermissionDenied(string(actor.Role), what)
	}
	return nil
}

func applyWorkflowInput(def *domain.WorkflowDefinition, input WorkflowInput) {
	def.Name = input.Name
	def.Category = input.Category
	def.Description = input.Description
	def.Priority = input.Priority
	def.SLAHours = input.SLAHours
	def.Steps = append([]domain.WorkflowStep(nil), input.Steps...)
	sort.SliceStable(def.Steps, func(i, j int) bool { return def.Steps[i].Order < def.Steps[j].Order })
	def.Conditions = input.Conditions
	def.Notifications = input.Notifications
}

// validateWorkflowInput checks field values and fills defaults.
func validateWorkflowInput(input *WorkflowInput) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return apperrors.NewMissingFields([]string{"name"})
	}
	if !input.Category.Valid() {
		return apperrors.NewValidationError("unknown category", map[string]any{"category": input.Category})
	}
	if input.Priority == "" {
		input.Priority = input.Category.DefaultPriority()
	}
	if !input.Priority.Valid() {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if input.SLAHours < 0 {
		return apperrors.NewValidationError("sla must not be negative", map[string]any{"sla_hours": input.SLAHours})
	}
	if input.Conditions.AutoApproveLimit.IsNegative() {
		return apperrors.NewValidationError("auto-approve limit must not be negative", nil)
	}
	if input.Conditions.EscalationTimeHours < 0 {
		return apperrors.NewValidationError("escalation time must not be negative", nil)
	}

	input.Steps = append([]domain.WorkflowStep(nil), input.Steps...)
	for i := range input.Steps {
		step := &input.Steps[i]
		step.Name = strings.TrimSpace(step.Name)
		if step.ApprovalType == "" {
			step.ApprovalType = domain.ApprovalRequired
		}
		if !validApproverRole(step.ApproverRole) {
			return apperrors.NewValidationError("unknown approver role", map[string]any{"step": step.Order, "approver_role": step.ApproverRole})
		}
		if !validApprovalType(step.ApprovalType) {
			return apperrors.NewValidationError("unknown approval type", map[string]any{"step": step.Order, "approval_type": step.ApprovalType})
		}
		if step.TimeoutHours < 0 {
			return apperrors.NewValidationError("step timeout must not be negative", map[string]any{"step": step.Order})
		}
	}
	return nil
}

// validateSteps requires at least one step with orders forming 1..N.
func validateSteps(steps []domain.WorkflowStep) error {
	if len(steps) == 0 {
		return apperrors.NewValidationError("workflow needs at least one step", nil)
	}
	orders := make([]int, 0, len(steps))
	for _, step := range steps {
		orders = append(orders, step.Order)
	}
	sort.Ints(orders)
	for i, order := range orders {
		if order != i+1 {
			return apperrors.NewValidationError("step orders must be unique and contiguous from 1", map[string]any{"orders": orders})
		}
	}
	return nil
}

func validApproverRole(r domain.ApproverRole) bool {
	switch r {
	case domain.ApproverManager, domain.ApproverDeptHead, domain.ApproverHR,
		domain.ApproverFinance, domain.ApproverAdmin, domain.ApproverCustom:
		return true
	}
	return false
}

func validApprovalType(t domain.ApprovalType) bool {
	return t == domain.ApprovalRequired || t == domain.ApprovalOptional || t == domain.ApprovalConditional
}

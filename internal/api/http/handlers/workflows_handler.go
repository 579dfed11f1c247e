package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/community-services/internal/api/dto"
	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/repository"
	"github.com/spec-kit/community-services/internal/service"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

// WorkflowsHandler manages workflow definition endpoints.
type WorkflowsHandler struct {
	workflows *service.WorkflowService
}

// NewWorkflowsHandler constructs handler.
func NewWorkflowsHandler(workflows *service.WorkflowService) *WorkflowsHandler {
	return &WorkflowsHandler{workflows: workflows}
}

// ListWorkflows GET /api/workflows.
func (h *WorkflowsHandler) ListWorkflows(c *fiber.Ctx) error {
	var filter repository.WorkflowFilter
	if raw := c.Query("category"); raw != "" {
		category := domain.Category(raw)
		filter.Category = &category
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.WorkflowStatus(raw)
		filter.Status = &status
	}
	defs, err := h.workflows.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.WorkflowResponse, 0, len(defs))
	for i := range defs {
		items = append(items, workflowResponse(&defs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetWorkflow GET /api/workflows/:id.
func (h *WorkflowsHandler) GetWorkflow(c *fiber.Ctx) error {
	def, err := h.workflows.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workflowResponse(def)})
}

// CreateWorkflow POST /api/workflows. New definitions start in draft.
func (h *WorkflowsHandler) CreateWorkflow(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.WorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	def, err := h.workflows.CreateDraft(c.UserContext(), principal, workflowInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": workflowResponse(def)})
}

// UpdateWorkflow PUT /api/workflows/:id.
func (h *WorkflowsHandler) UpdateWorkflow(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.WorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	def, err := h.workflows.Update(c.UserContext(), principal, c.Params("id"), workflowInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workflowResponse(def)})
}

// ActivateWorkflow POST /api/workflows/:id/activate.
func (h *WorkflowsHandler) ActivateWorkflow(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	def, err := h.workflows.Activate(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workflowResponse(def)})
}

// CloneWorkflow POST /api/workflows/:id/clone. The copy starts in draft.
func (h *WorkflowsHandler) CloneWorkflow(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CloneWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	def, err := h.workflows.Clone(c.UserContext(), principal, c.Params("id"), req.Name)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": workflowResponse(def)})
}

func workflowInput(req dto.WorkflowRequest) service.WorkflowInput {
	input := service.WorkflowInput{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Priority:    req.Priority,
		SLAHours:    req.SLAHours,
		Conditions: domain.WorkflowConditions{
			AutoApprove:         req.Conditions.AutoApprove,
			AutoApproveLimit:    req.Conditions.AutoApproveLimit,
			EscalationEnabled:   req.Conditions.EscalationEnabled,
			EscalationTimeHours: req.Conditions.EscalationTimeHours,
		},
		Notifications: domain.WorkflowNotifications(req.Notifications),
	}
	for _, step := range req.Steps {
		input.Steps = append(input.Steps, domain.WorkflowStep(step))
	}
	return input
}

func workflowResponse(def *domain.WorkflowDefinition) dto.WorkflowResponse {
	steps := make([]dto.WorkflowStepPayload, 0, len(def.Steps))
	for _, step := range def.Steps {
		steps = append(steps, dto.WorkflowStepPayload(step))
	}
	return dto.WorkflowResponse{
		ID:          def.ID,
		Name:        def.Name,
		Category:    def.Category,
		Description: def.Description,
		Priority:    def.Priority,
		SLAHours:    def.SLAHours,
		Status:      def.Status,
		Steps:       steps,
		Conditions: dto.WorkflowConditionsPayload{
			AutoApprove:         def.Conditions.AutoApprove,
			AutoApproveLimit:    def.Conditions.AutoApproveLimit,
			EscalationEnabled:   def.Conditions.EscalationEnabled,
			EscalationTimeHours: def.Conditions.EscalationTimeHours,
		},
		Notifications: dto.WorkflowNotificationsPayload(def.Notifications),
		CreatedBy:     def.CreatedBy,
		CreatedAt:     def.CreatedAt,
		UpdatedAt:     def.UpdatedAt,
	}
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/community-services/internal/api/dto"
	"github.com/spec-kit/community-services/internal/auth"
	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/service"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

const maxPageSize = 100

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	tickets   *service.TicketService
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService, lifecycle: lifecycle}
}

// SubmitTicket POST /api/tickets.
func (h *TicketsHandler) SubmitTicket(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SubmitTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Category == "" {
		return apperrors.NewMissingFields([]string{"category"})
	}

	ticket, err := h.tickets.SubmitTicket(c.UserContext(), principal, service.SubmitTicketInput{
		Category: req.Category,
		Title:    req.Title,
		Payload:  req.Payload,
		Priority: req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListTickets(c.UserContext(), principal, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Transition POST /api/tickets/:id/transitions.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Action == "" {
		return apperrors.NewMissingFields([]string{"action"})
	}
	if req.ExpectedStatus != "" && !req.ExpectedStatus.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"expected_status": req.ExpectedStatus})
	}

	ticket, err := h.lifecycle.Transition(c.UserContext(), service.TransitionInput{
		TicketID:       c.Params("id"),
		Action:         req.Action,
		Actor:          principal,
		ExpectedStatus: req.ExpectedStatus,
		Extra: service.TransitionExtra{
			Assignee:     req.Assignee,
			TargetStatus: req.TargetStatus,
			Note:         req.Note,
		},
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.tickets.AddComment(c.UserContext(), principal, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(*comment)})
}

func currentPrincipal(c *fiber.Ctx) (domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Principal{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	var filter service.TicketListFilter
	if raw := c.Query("category"); raw != "" {
		category := domain.Category(raw)
		if !category.Valid() {
			return filter, apperrors.NewValidationError("unknown category", map[string]any{"category": raw})
		}
		filter.Category = &category
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.TicketStatus(raw)
		if !status.Valid() {
			return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": raw})
		}
		filter.Status = &status
	}
	if raw := c.Query("assignee"); raw != "" {
		filter.Assignee = &raw
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	summary := dto.TicketSummary{
		ID:        ticket.ID,
		Category:  ticket.Category,
		Title:     ticket.Title,
		Status:    ticket.Status,
		Priority:  ticket.Priority,
		Submitter: ticket.Submitter,
		Assignee:  ticket.Assignee,
		CreatedAt: ticket.CreatedAt,
		UpdatedAt: ticket.UpdatedAt,
	}
	if ticket.Workflow != nil {
		step := ticket.Workflow.CurrentStep
		summary.CurrentStep = &step
	}
	return summary
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	comments := make([]dto.CommentResponse, 0, len(ticket.Comments))
	for _, comment := range ticket.Comments {
		comments = append(comments, commentResponse(comment))
	}
	resp := dto.TicketDetailResponse{
		ID:        ticket.ID,
		Category:  ticket.Category,
		Title:     ticket.Title,
		Payload:   ticket.Payload,
		Status:    ticket.Status,
		Priority:  ticket.Priority,
		Submitter: ticket.Submitter,
		Assignee:  ticket.Assignee,
		Comments:  comments,
		Version:   ticket.Version,
		CreatedAt: ticket.CreatedAt,
		UpdatedAt: ticket.UpdatedAt,
	}
	if wf := ticket.Workflow; wf != nil {
		approvals := make([]dto.StepApprovalResponse, 0, len(wf.Approvals))
		for _, a := range wf.Approvals {
			approvals = append(approvals, dto.StepApprovalResponse{
				Order:     a.Order,
				Name:      a.Name,
				Outcome:   a.Outcome,
				Actor:     a.Actor,
				DecidedAt: a.DecidedAt,
			})
		}
		resp.Workflow = &dto.WorkflowProgressResponse{
			WorkflowID:      wf.WorkflowID,
			CurrentStep:     wf.CurrentStep,
			StepName:        wf.StepName,
			ApproverRole:    wf.ApproverRole,
			StepStartedAt:   wf.StepStartedAt,
			EscalationLevel: wf.EscalationLevel,
			Approvals:       approvals,
		}
	}
	return resp
}

func commentResponse(comment domain.Comment) dto.CommentResponse {
	resp := dto.CommentResponse{
		ID:        comment.ID,
		Author:    comment.Author,
		Text:      comment.Text,
		System:    comment.System,
		CreatedAt: comment.CreatedAt,
	}
	if ch := comment.Change; ch != nil {
		resp.Change = &dto.StatusChangeResponse{
			PreviousStatus: ch.PreviousStatus,
			NewStatus:      ch.NewStatus,
			Actor:          ch.Actor,
			At:             ch.At,
		}
	}
	return resp
}

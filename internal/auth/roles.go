package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/community-services/internal/domain"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

// rolePolicy is the fixed role to action table. Ownership rules in
// CanPerform extend it for submitters and assignee team members.
var rolePolicy = map[domain.Role]map[domain.Action]bool{
	domain.RoleGuest: {
		domain.ActionSubmit:      true,
		domain.ActionViewDetails: true,
	},
	domain.RoleEmployee: {
		domain.ActionSubmit:      true,
		domain.ActionComment:     true,
		domain.ActionViewDetails: true,
	},
}

// CanPerform reports whether the principal may invoke action on ticket.
// ticket may be nil for actions that do not target one (submit).
func CanPerform(p domain.Principal, action domain.Action, ticket *domain.Ticket) bool {
	if p.Role == domain.RoleAdmin {
		return true
	}
	if ticket != nil {
		switch action {
		case domain.ActionResubmit:
			return IsSubmitter(p, ticket)
		case domain.ActionUpdateStatus:
			return IsAssignee(p, ticket)
		}
	}
	if !rolePolicy[p.Role][action] {
		return false
	}
	if p.Role == domain.RoleGuest && ticket != nil {
		return IsSubmitter(p, ticket)
	}
	return true
}

// IsSubmitter reports whether p submitted ticket.
func IsSubmitter(p domain.Principal, ticket *domain.Ticket) bool {
	return p.Email != "" && p.Email == ticket.Submitter
}

// IsAssignee reports whether p belongs to the team ticket is assigned to.
func IsAssignee(p domain.Principal, ticket *domain.Ticket) bool {
	return p.Team != "" && ticket.Assignee != nil && *ticket.Assignee == p.Team
}

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

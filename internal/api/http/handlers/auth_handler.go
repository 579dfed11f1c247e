package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/community-services/internal/api/dto"
	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/service"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

// AuthHandler exposes the login endpoint.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": dto.LoginResponse{
			AccessToken: result.Token,
			TokenType:   "Bearer",
			ExpiresAt:   result.ExpiresAt,
			Principal:   principalResponse(result.Principal),
		},
	})
}

func principalResponse(p domain.Principal) dto.PrincipalResponse {
	return dto.PrincipalResponse{
		Email:       p.Email,
		DisplayName: p.Name(),
		Role:        p.Role,
		Team:        p.Team,
	}
}

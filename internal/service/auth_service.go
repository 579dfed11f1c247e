package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/auth"
	"github.com/spec-kit/community-services/internal/domain"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal domain.Principal
}

// AuthService coordinates the login flow.
type AuthService struct {
	directory auth.Directory
	tokenMgr  *auth.TokenManager
	logger    *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(directory auth.Directory, tokens *auth.TokenManager, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{directory: directory, tokenMgr: tokens, logger: logger}
}

// Login authenticates against the directory and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var missing []string
	if strings.TrimSpace(email) == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingFields(missing)
	}

	principal, err := s.directory.Authenticate(ctx, email, password)
	if err != nil {
		s.logger.Info("login rejected", zap.String("email", email))
		return nil, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(principal)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	principal.PasswordHash = ""
	return &LoginResult{Token: token, ExpiresAt: exp, Principal: principal}, nil
}

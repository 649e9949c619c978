package service

import (
	"context"
	"errors"
	"strings"

	"github.com/boddenberg/mazebank-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: wrong password", zap.Int64("user_id", user.ID))
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	if user.Blocked {
		s.logger.Warn("login: user blocked", zap.Int64("user_id", user.ID))
		return nil, &domain.ErrUserBlocked{UserID: user.ID}
	}

	s.logger.Info("user logged in", zap.Int64("user_id", user.ID))

	return s.issue(user)
}

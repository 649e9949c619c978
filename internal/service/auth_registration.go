package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/mazebank-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// Register: POST /v1/auth/register
// ============================================================

// Register creates a customer and signs them in. req must already be validated.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.ensureFree(ctx, email, req.BSN); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, &domain.User{
		Email:            email,
		BSN:              req.BSN,
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		PhoneNumber:      req.PhoneNumber,
		DateOfBirth:      req.DateOfBirth,
		PasswordHash:     string(hash),
		Role:             domain.RoleCustomer,
		DayLimit:         domain.DefaultDayLimit,
		TransactionLimit: domain.DefaultTransactionLimit,
		CreatedAt:        s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("customer registered", zap.Int64("user_id", user.ID))

	return s.issue(user)
}

// ensureFree reports a conflict when the email or BSN is taken. The store
// enforces the same constraints; this gives the common case a clear message.
func (s *AuthService) ensureFree(ctx context.Context, email, bsn string) error {
	var notFound *domain.ErrNotFound

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return &domain.ErrConflict{Message: "email already registered"}
	} else if !errors.As(err, &notFound) {
		return err
	}

	if _, err := s.users.FindByBSN(ctx, bsn); err == nil {
		return &domain.ErrConflict{Message: "bsn already registered"}
	} else if !errors.As(err, &notFound) {
		return err
	}
	return nil
}

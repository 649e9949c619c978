// Package service implements the bank's use cases on top of the store ports.
// AuthService handles registration, login and JWT access tokens.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const bcryptCost = 12

// AuthService orchestrates authentication flows.
type AuthService struct {
	users     port.UserStore
	jwtSecret []byte
	accessTTL time.Duration
	clock     port.Clock
	logger    *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(users port.UserStore, jwtSecret string, accessTTL time.Duration, clock port.Clock, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		clock:     clock,
		logger:    logger,
	}
}

// ============================================================
// SeedEmployee: initial employee from configuration
// ============================================================

// SeedEmployee creates an employee with the given credentials unless a user
// with that email already exists. An empty email disables seeding.
func (s *AuthService) SeedEmployee(ctx context.Context, email, password string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.SeedEmployee")
	defer span.End()

	if email == "" {
		return nil
	}
	email = strings.ToLower(strings.TrimSpace(email))

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		s.logger.Debug("seed employee already present", zap.String("email", email))
		return nil
	}
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("lookup seed employee: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, &domain.User{
		Email:            email,
		BSN:              "000000000",
		FirstName:        "Maze",
		LastName:         "Employee",
		PasswordHash:     string(hash),
		Role:             domain.RoleEmployee,
		DayLimit:         domain.DefaultDayLimit,
		TransactionLimit: domain.DefaultTransactionLimit,
		CreatedAt:        s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("create seed employee: %w", err)
	}

	s.logger.Info("seed employee created", zap.Int64("user_id", user.ID), zap.String("email", email))
	return nil
}

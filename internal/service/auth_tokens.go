package service

import (
	"fmt"
	"strconv"

	"github.com/boddenberg/mazebank-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer     = "mazebank-api"
	tokenTypeAccess = "access"
)

// ============================================================
// ValidateToken: used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	Type  string      `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *JWTClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != tokenTypeAccess {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	if _, err := claims.UserID(); err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid token subject"}
	}

	return claims, nil
}

// ============================================================
// Internal JWT helpers
// ============================================================

func (s *AuthService) issue(user *domain.User) (*domain.AuthResponse, error) {
	token, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &domain.AuthResponse{
		Token:     token,
		ExpiresIn: int(s.accessTTL.Seconds()),
		UserID:    user.ID,
		Role:      user.Role,
	}, nil
}

func (s *AuthService) signAccessToken(user *domain.User) (string, error) {
	now := s.clock.Now()
	claims := JWTClaims{
		Email: user.Email,
		Role:  user.Role,
		Type:  tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

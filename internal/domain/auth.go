package domain

import "time"

// ============================================================
// Auth: Request / Response types
// ============================================================

// RegisterRequest is the body for POST /v1/auth/register.
type RegisterRequest struct {
	Email       string     `json:"email"`
	BSN         string     `json:"bsn"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Password    string     `json:"password"`
	PhoneNumber string     `json:"phoneNumber"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
}

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	UserID    int64  `json:"userId"`
	Role      Role   `json:"role"`
}

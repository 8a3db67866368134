package http

import "github.com/upay2home/auth-backend/internal/domain"

// ErrorResponse represents a generic error payload.
type ErrorResponse struct {
	Error string `json:"error" example:"invalid credentials"`
}

// OKResponse is the body of every successful password reset call.
type OKResponse struct {
	OK bool `json:"ok" example:"true"`
}

// AuthTokenResponse is returned by endpoints that issue session tokens.
type AuthTokenResponse struct {
	Token     string          `json:"token"`
	ExpiresAt string          `json:"expires_at" example:"2025-01-02T09:30:00Z"`
	User      domain.Identity `json:"user"`
}

type AuthUserResponse struct {
	User domain.Identity `json:"user"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"`
	Password string `json:"password" validate:"required,min=6" example:"secret1"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// ForgotPasswordRequest starts the reset flow. It is never validated and
// always answered with OKResponse.
type ForgotPasswordRequest struct {
	Email string `json:"email" example:"user@example.com"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	Email       string `json:"email" example:"user@example.com"`
	NewPassword string `json:"newPassword" example:"new-secret"`
}

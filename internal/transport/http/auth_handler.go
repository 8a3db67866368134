package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/upay2home/auth-backend/internal/domain"
	"github.com/upay2home/auth-backend/internal/service"
	"github.com/upay2home/auth-backend/internal/util"
)

// AuthService is the part of service.AuthService the transport depends on.
type AuthService interface {
	LoginWithEmail(ctx context.Context, email, password string) (*service.AuthResult, error)
	LoginWithGoogle(ctx context.Context, idToken string) (*service.AuthResult, error)
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	Logout(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, email, newPassword string) error
}

type AuthHandler struct {
	auth   AuthService
	logger *slog.Logger
}

func RegisterAuth(e *echo.Echo, auth AuthService, logger *slog.Logger) {
	handler := &AuthHandler{auth: auth, logger: logger}

	group := e.Group("/api/auth")
	group.POST("/login", handler.loginWithEmail)
	group.POST("/google", handler.loginWithGoogle)
	group.GET("/session", handler.session, RequireAuth(auth))
	group.POST("/logout", handler.logout, RequireAuth(auth))
}

func (h *AuthHandler) loginWithEmail(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error(validationMessage(err)))
	}

	result, err := h.auth.LoginWithEmail(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, util.Error("invalid credentials"))
		}
		h.logger.Error("email login failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, util.Error("could not sign in"))
	}
	return c.JSON(http.StatusOK, toTokenResponse(result))
}

func (h *AuthHandler) loginWithGoogle(c echo.Context) error {
	var req GoogleLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error(validationMessage(err)))
	}

	result, err := h.auth.LoginWithGoogle(c.Request().Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGoogleToken) {
			return c.JSON(http.StatusUnauthorized, util.Error("invalid google token"))
		}
		h.logger.Error("google login failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, util.Error("could not sign in"))
	}
	return c.JSON(http.StatusOK, toTokenResponse(result))
}

func (h *AuthHandler) session(c echo.Context) error {
	user, ok := CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, util.Error("authentication required"))
	}
	return c.JSON(http.StatusOK, AuthUserResponse{User: *user.Identity()})
}

func (h *AuthHandler) logout(c echo.Context) error {
	if err := h.auth.Logout(c.Request().Context(), currentToken(c)); err != nil {
		h.logger.Error("logout failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, util.Error("could not sign out"))
	}
	return c.JSON(http.StatusOK, util.OK())
}

func toTokenResponse(result *service.AuthResult) AuthTokenResponse {
	resp := AuthTokenResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if result.User != nil {
		resp.User = *result.User
	}
	return resp
}

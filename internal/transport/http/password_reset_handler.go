package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/upay2home/auth-backend/internal/service"
	"github.com/upay2home/auth-backend/internal/util"
)

const (
	msgInvalidRequest   = "Invalid request"
	msgPasswordTooShort = "Password too short"
	msgInvalidToken     = "Invalid or expired token"
	msgServerError      = "Server error"

	maxResetRequestBody = 64 << 10
)

func isResetRequestPath(path string) bool {
	return path == "/reset-request" || path == "/api/forgot"
}

type PasswordResetHandler struct {
	auth   AuthService
	logger *slog.Logger
}

func RegisterPasswordReset(e *echo.Echo, auth AuthService, logger *slog.Logger) {
	handler := &PasswordResetHandler{auth: auth, logger: logger}

	e.POST("/reset-request", handler.requestReset)
	e.POST("/api/forgot", handler.requestReset)
	e.POST("/reset-confirm", handler.confirmReset)
	e.POST("/api/reset", handler.confirmReset)
}

func (h *PasswordResetHandler) requestReset(c echo.Context) error {
	return h.respondGeneric(c, func(ctx context.Context) error {
		if !isJSONRequest(c) {
			return errors.New("non-json body")
		}
		req := c.Request()
		req.Body = http.MaxBytesReader(c.Response(), req.Body, maxResetRequestBody)
		var body ForgotPasswordRequest
		if err := c.Bind(&body); err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		return h.auth.RequestPasswordReset(ctx, body.Email)
	})
}

// respondGeneric runs work and then answers 200 {"ok": true} no matter how
// work ended, including by panic. Failures are only logged.
func (h *PasswordResetHandler) respondGeneric(c echo.Context, work func(ctx context.Context) error) error {
	func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("password reset request panicked", slog.Any("panic", r))
			}
		}()
		if err := work(c.Request().Context()); err != nil {
			h.logger.Warn("password reset request failed", slog.String("error", err.Error()))
		}
	}()
	return c.JSON(http.StatusOK, util.OK())
}

// confirmReset maps validation failures to the three fixed 400 messages and
// anything else to 500 "Server error".
func (h *PasswordResetHandler) confirmReset(c echo.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("password reset confirm panicked", slog.Any("panic", r))
			err = c.JSON(http.StatusInternalServerError, util.Error(msgServerError))
		}
	}()

	if !isJSONRequest(c) {
		return c.JSON(http.StatusBadRequest, util.Error(msgInvalidRequest))
	}
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error(msgInvalidRequest))
	}

	switch err := h.auth.ConfirmPasswordReset(c.Request().Context(), req.Token, req.Email, req.NewPassword); {
	case err == nil:
		return c.JSON(http.StatusOK, util.OK())
	case errors.Is(err, service.ErrInvalidResetRequest):
		return c.JSON(http.StatusBadRequest, util.Error(msgInvalidRequest))
	case errors.Is(err, service.ErrPasswordTooShort):
		return c.JSON(http.StatusBadRequest, util.Error(msgPasswordTooShort))
	case errors.Is(err, service.ErrResetTokenInvalid):
		return c.JSON(http.StatusBadRequest, util.Error(msgInvalidToken))
	default:
		h.logger.Error("password reset confirm failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, util.Error(msgServerError))
	}
}

func isJSONRequest(c echo.Context) bool {
	return strings.Contains(strings.ToLower(c.Request().Header.Get(echo.HeaderContentType)), echo.MIMEApplicationJSON)
}

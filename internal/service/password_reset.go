package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/upay2home/auth-backend/internal/util"
)

// PasswordResetTokenTTL is how long an emailed reset link stays valid.
const PasswordResetTokenTTL = time.Hour

// RequestPasswordReset issues a reset token for email and mails the link.
// Callers must answer the client identically whatever happens here; the
// returned error is for logging only. Unknown or empty emails are not errors.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.RequestPasswordReset")
	defer func() { endSpan(span, err) }()

	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	dbCtx, cancel := s.withDB(ctx)
	user, err := s.users.FindByEmail(dbCtx, email)
	cancel()
	if err != nil {
		if isNotFound(err) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	if s.throttle != nil && s.resetCooldown > 0 {
		allowed, err := s.throttle.Allow(ctx, user.ID, s.resetCooldown)
		if err != nil {
			s.logger.Warn("reset throttle unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			s.logger.Info("password reset throttled", slog.String("user_id", user.ID.String()))
			return nil
		}
	}

	token, tokenHash, err := util.GenerateResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expiresAt := s.now().Add(PasswordResetTokenTTL)

	dbCtx, cancel = s.withDB(ctx)
	err = s.users.SetResetToken(dbCtx, user.ID, tokenHash, expiresAt)
	cancel()
	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if s.mailer == nil {
		s.logger.Warn("password reset mailer not configured", slog.String("user_id", user.ID.String()))
		return nil
	}

	name := ""
	if user.Name != nil {
		name = *user.Name
	}
	mailCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()
	if err := s.mailer.SendPasswordReset(mailCtx, user.Email, name, buildResetURL(s.baseURL, token, user.Email)); err != nil {
		// The stored token stays valid; the user can simply ask again.
		s.logger.Error("send password reset email failed", slog.String("user_id", user.ID.String()), slog.String("error", err.Error()))
		return nil
	}

	s.logger.Info("password reset email sent", slog.String("user_id", user.ID.String()))
	return nil
}

// ConfirmPasswordReset sets a new password when token matches the pending,
// unexpired reset for email. Lookup failures, a missing or expired reset and
// a wrong token all yield ErrResetTokenInvalid.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, email, newPassword string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ConfirmPasswordReset")
	defer func() { endSpan(span, err) }()

	token = strings.TrimSpace(token)
	email = normalizeEmail(email)
	if token == "" || email == "" || newPassword == "" {
		return ErrInvalidResetRequest
	}
	if err := util.ValidatePassword(newPassword); err != nil {
		return ErrPasswordTooShort
	}

	dbCtx, cancel := s.withDB(ctx)
	user, err := s.users.FindByEmail(dbCtx, email)
	cancel()
	if err != nil {
		if isNotFound(err) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("find user: %w", err)
	}

	now := s.now()
	if !user.HasPendingReset() || user.ResetTokenExpiresAt.Before(now) {
		return ErrResetTokenInvalid
	}
	if !util.ResetTokenMatches(token, *user.ResetTokenHash) {
		return ErrResetTokenInvalid
	}

	passwordHash, err := util.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	dbCtx, cancel = s.withDB(ctx)
	defer cancel()
	if err := s.users.ResetPassword(dbCtx, user.ID, *user.ResetTokenHash, passwordHash, now); err != nil {
		if isNotFound(err) {
			// Consumed or superseded between lookup and update.
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("reset password: %w", err)
	}

	if err := s.sessions.DeactivateUserSessions(dbCtx, user.ID); err != nil {
		s.logger.Warn("revoke sessions after reset failed", slog.String("user_id", user.ID.String()), slog.String("error", err.Error()))
	}
	s.logger.Info("password reset completed", slog.String("user_id", user.ID.String()))
	return nil
}

// buildResetURL returns the link embedded in reset emails. A base without a
// scheme is treated as https; an empty base yields a relative link.
func buildResetURL(base, token, email string) string {
	base = strings.TrimSpace(base)
	if base != "" {
		lower := strings.ToLower(base)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			base = "https://" + base
		}
		base = strings.TrimRight(base, "/")
	}
	return base + "/reset-password?token=" + url.QueryEscape(token) + "&email=" + url.QueryEscape(email)
}

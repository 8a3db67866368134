package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/idtoken"

	"github.com/upay2home/auth-backend/internal/domain"
	"github.com/upay2home/auth-backend/internal/media"
	"github.com/upay2home/auth-backend/internal/repository/ports"
	"github.com/upay2home/auth-backend/internal/util"
)

const (
	maxPublicIDAttempts = 5
	maxAvatarBytes      = 5 << 20
	defaultDBTimeout    = 5 * time.Second
	defaultMailTimeout  = 15 * time.Second
)

// PasswordResetSender delivers reset links. It is satisfied by
// mail.PasswordResetMailer.
type PasswordResetSender interface {
	SendPasswordReset(ctx context.Context, to, name, resetURL string) error
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type googleTokenValidator func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

type AuthService struct {
	users          ports.UserRepository
	sessions       ports.SessionRepository
	mailer         PasswordResetSender
	jwt            *util.JWTManager
	googleAudience string
	baseURL        string

	storage      ports.ObjectStorage
	avatarBucket string

	throttle      ports.ResetThrottle
	resetCooldown time.Duration

	dbTimeout   time.Duration
	mailTimeout time.Duration

	logger              *slog.Logger
	tracer              trace.Tracer
	httpClient          httpDoer
	validateGoogleToken googleTokenValidator
	now                 func() time.Time
}

type AuthResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *domain.Identity `json:"user"`
}

type Option func(*AuthService)

// WithAvatarStorage enables caching of Google profile pictures in bucket.
func WithAvatarStorage(storage ports.ObjectStorage, bucket string) Option {
	return func(s *AuthService) {
		s.storage = storage
		s.avatarBucket = bucket
	}
}

// WithResetThrottle limits reset emails to one per account per cooldown.
func WithResetThrottle(throttle ports.ResetThrottle, cooldown time.Duration) Option {
	return func(s *AuthService) {
		s.throttle = throttle
		s.resetCooldown = cooldown
	}
}

func WithTimeouts(db, mail time.Duration) Option {
	return func(s *AuthService) {
		if db > 0 {
			s.dbTimeout = db
		}
		if mail > 0 {
			s.mailTimeout = mail
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewAuthService(users ports.UserRepository, sessions ports.SessionRepository, mailer PasswordResetSender, jwtManager *util.JWTManager, googleAudience, baseURL string, opts ...Option) *AuthService {
	s := &AuthService{
		users:               users,
		sessions:            sessions,
		mailer:              mailer,
		jwt:                 jwtManager,
		googleAudience:      strings.TrimSpace(googleAudience),
		baseURL:             baseURL,
		dbTimeout:           defaultDBTimeout,
		mailTimeout:         defaultMailTimeout,
		logger:              slog.Default(),
		tracer:              otel.Tracer("github.com/upay2home/auth-backend/internal/service"),
		httpClient:          &http.Client{Timeout: 10 * time.Second},
		validateGoogleToken: idtoken.Validate,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) withDB(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.dbTimeout)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerifyCredentials checks an email/password pair and returns the identity
// of the matching account. Every failure that could reveal whether the
// account exists is reported as ErrInvalidCredentials.
func (s *AuthService) VerifyCredentials(ctx context.Context, email, password string) (identity *domain.Identity, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.VerifyCredentials")
	defer func() { endSpan(span, err) }()

	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return user.Identity(), nil
}

func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	dbCtx, cancel := s.withDB(ctx)
	user, err := s.users.FindByEmail(dbCtx, email)
	cancel()
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !user.HasPassword() || !util.VerifyPassword(password, *user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := s.ensurePublicID(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ensurePublicID gives the account its user-facing identifier on first use.
// The repository only writes when none is stored, so concurrent logins agree
// on a single value.
func (s *AuthService) ensurePublicID(ctx context.Context, user *domain.User) error {
	if user.PublicID != nil && *user.PublicID != "" {
		return nil
	}

	for attempt := 0; attempt < maxPublicIDAttempts; attempt++ {
		candidate, err := util.GeneratePublicID()
		if err != nil {
			return err
		}
		dbCtx, cancel := s.withDB(ctx)
		assigned, err := s.users.AssignPublicID(dbCtx, user.ID, candidate)
		cancel()
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return fmt.Errorf("assign public id: %w", err)
		}
		user.PublicID = &assigned
		return nil
	}
	return errors.New("assign public id: too many collisions")
}

func (s *AuthService) LoginWithEmail(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.LoginWithEmail")
	defer func() { endSpan(span, err) }()

	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, user)
}

func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (result *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.LoginWithGoogle")
	defer func() { endSpan(span, err) }()

	idToken = strings.TrimSpace(idToken)
	if idToken == "" || s.googleAudience == "" {
		return nil, ErrInvalidGoogleToken
	}

	payload, err := s.validateGoogleToken(ctx, idToken, s.googleAudience)
	if err != nil {
		s.logger.Info("google token rejected", slog.String("error", err.Error()))
		return nil, ErrInvalidGoogleToken
	}

	email := normalizeEmail(claimString(payload.Claims, "email"))
	if email == "" || !claimBool(payload.Claims, "email_verified") {
		return nil, ErrInvalidGoogleToken
	}
	name := optionalString(claimString(payload.Claims, "name"))
	picture := strings.TrimSpace(claimString(payload.Claims, "picture"))

	dbCtx, cancel := s.withDB(ctx)
	user, err := s.users.UpsertGoogleUser(dbCtx, email, name, optionalString(picture))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("upsert google user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	if err := s.ensurePublicID(ctx, user); err != nil {
		return nil, err
	}

	if s.storage != nil && s.shouldCacheGooglePicture(user.ImageURL, picture) {
		s.refreshAvatar(ctx, user, picture)
	}

	return s.issueSession(ctx, user)
}

func (s *AuthService) refreshAvatar(ctx context.Context, user *domain.User, picture string) {
	cached, err := s.cacheGoogleProfileImage(ctx, user.ID, picture)
	if err != nil {
		s.logger.Warn("cache google avatar failed", slog.String("user_id", user.ID.String()), slog.String("error", err.Error()))
		return
	}
	dbCtx, cancel := s.withDB(ctx)
	defer cancel()
	if err := s.users.UpdateImage(dbCtx, user.ID, *cached); err != nil {
		s.logger.Warn("store cached avatar failed", slog.String("user_id", user.ID.String()), slog.String("error", err.Error()))
		return
	}
	user.ImageURL = cached
}

// shouldCacheGooglePicture reports whether the stored image still points at
// Google (or is unset) so that a fresh copy belongs in object storage.
func (s *AuthService) shouldCacheGooglePicture(existing *string, picture string) bool {
	if strings.TrimSpace(picture) == "" {
		return false
	}
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return true
	}
	if *existing == picture {
		return true
	}
	return isGoogleHosted(*existing)
}

func isGoogleHosted(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "googleusercontent.com" || strings.HasSuffix(host, ".googleusercontent.com")
}

func (s *AuthService) cacheGoogleProfileImage(ctx context.Context, userID uuid.UUID, pictureURL string) (*string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pictureURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download avatar: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("download avatar: unexpected content type %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("download avatar: empty body")
	}
	if len(data) > maxAvatarBytes {
		return nil, errors.New("download avatar: image too large")
	}

	avatar, err := media.NormalizeAvatar(data, media.DefaultAvatarSize)
	if err != nil {
		return nil, fmt.Errorf("download avatar: %w", err)
	}

	objectName := fmt.Sprintf("profiles/%s/google/%d%s", userID.String(), s.now().UnixNano(), imageExtension(avatar.ContentType))
	uploaded, err := s.storage.Upload(ctx, s.avatarBucket, objectName, avatar.ContentType, bytes.NewReader(avatar.Bytes), int64(len(avatar.Bytes)))
	if err != nil {
		return nil, err
	}
	return &uploaded, nil
}

func imageExtension(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func (s *AuthService) issueSession(ctx context.Context, user *domain.User) (*AuthResult, error) {
	identity := user.Identity()
	token, expiresAt, err := s.jwt.Generate(user.ID, user.Email, identity.Name, identity.Role, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	dbCtx, cancel := s.withDB(ctx)
	defer cancel()
	if _, err := s.sessions.CreateSession(dbCtx, user.ID, token, expiresAt); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: identity}, nil
}

// Authenticate resolves a bearer token to its account. Tokens issued before
// the account's last password change are rejected even if the session row
// is still active.
func (s *AuthService) Authenticate(ctx context.Context, token string) (user *domain.User, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Authenticate")
	defer func() { endSpan(span, err) }()

	claims, err := s.jwt.Parse(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	dbCtx, cancel := s.withDB(ctx)
	defer cancel()

	session, err := s.sessions.FindActiveSession(dbCtx, token)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	if !session.IsActive || !session.ExpiresAt.After(s.now()) {
		return nil, ErrUnauthorized
	}

	user, err = s.users.FindByID(dbCtx, claims.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if user.PasswordChangedAt != nil && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
			return nil, ErrUnauthorized
		}
	}
	return user, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer func() { endSpan(span, err) }()

	dbCtx, cancel := s.withDB(ctx)
	defer cancel()

	if err := s.sessions.DeactivateSession(dbCtx, token); err != nil && !isNotFound(err) {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

func claimString(claims map[string]interface{}, key string) string {
	v, _ := claims[key].(string)
	return v
}

func claimBool(claims map[string]interface{}, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

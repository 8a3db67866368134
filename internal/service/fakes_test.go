package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/upay2home/auth-backend/internal/domain"
	"github.com/upay2home/auth-backend/internal/util"
)

// memUserRepo is a stateful stand-in for the PostgreSQL user repository.
// It mirrors the conditional update semantics of ResetPassword.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User

	findByEmailCalls   int
	setResetCalls      int
	resetPasswordCalls int
	assignCalls        int
	updateImageCalls   []string

	findByEmailErr error
	setResetErr    error
	assignErrs     []error
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	repo := &memUserRepo{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		clone := *u
		repo.users[u.ID] = &clone
	}
	return repo
}

func (r *memUserRepo) get(id uuid.UUID) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *r.users[id]
	return &clone
}

func (r *memUserRepo) byEmailLocked(email string) *domain.User {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (r *memUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findByEmailCalls++
	if r.findByEmailErr != nil {
		return nil, r.findByEmailErr
	}
	u := r.byEmailLocked(email)
	if u == nil {
		return nil, sql.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (r *memUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (r *memUserRepo) UpsertGoogleUser(ctx context.Context, email string, name *string, imageURL *string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byEmailLocked(email)
	if u == nil {
		u = &domain.User{ID: uuid.New(), Email: email, Role: domain.DefaultRole, CreatedAt: time.Now()}
		r.users[u.ID] = u
	}
	if u.Name == nil {
		u.Name = name
	}
	if u.ImageURL == nil {
		u.ImageURL = imageURL
	}
	clone := *u
	return &clone, nil
}

func (r *memUserRepo) UpdateImage(ctx context.Context, id uuid.UUID, imageURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.updateImageCalls = append(r.updateImageCalls, imageURL)
	u.ImageURL = &imageURL
	return nil
}

func (r *memUserRepo) AssignPublicID(ctx context.Context, id uuid.UUID, publicID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignCalls++
	if len(r.assignErrs) > 0 {
		err := r.assignErrs[0]
		r.assignErrs = r.assignErrs[1:]
		if err != nil {
			return "", err
		}
	}
	u, ok := r.users[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	if u.PublicID == nil {
		u.PublicID = &publicID
	}
	return *u.PublicID, nil
}

func (r *memUserRepo) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setResetCalls++
	if r.setResetErr != nil {
		return r.setResetErr
	}
	u, ok := r.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.ResetTokenHash = &tokenHash
	u.ResetTokenExpiresAt = &expiresAt
	return nil
}

func (r *memUserRepo) ResetPassword(ctx context.Context, id uuid.UUID, expectedTokenHash, passwordHash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetPasswordCalls++
	u, ok := r.users[id]
	if !ok || u.ResetTokenHash == nil || *u.ResetTokenHash != expectedTokenHash {
		return sql.ErrNoRows
	}
	u.PasswordHash = &passwordHash
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	u.PasswordChangedAt = &changedAt
	return nil
}

type fakeSessionRepo struct {
	mu sync.Mutex

	created []struct {
		userID    uuid.UUID
		token     string
		expiresAt time.Time
	}
	createErr error

	findActiveToken  string
	findActiveResult *domain.Session
	findActiveErr    error

	deactivatedToken string
	deactivateErr    error
	deactivatedUsers []uuid.UUID
}

func (f *fakeSessionRepo) CreateSession(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, struct {
		userID    uuid.UUID
		token     string
		expiresAt time.Time
	}{userID: userID, token: token, expiresAt: expiresAt})
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &domain.Session{ID: int64(len(f.created)), UserID: userID, TokenHash: util.HashToken(token), ExpiresAt: expiresAt, IsActive: true}, nil
}

func (f *fakeSessionRepo) DeactivateSession(ctx context.Context, token string) error {
	f.deactivatedToken = token
	return f.deactivateErr
}

func (f *fakeSessionRepo) DeactivateUserSessions(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivatedUsers = append(f.deactivatedUsers, userID)
	return nil
}

func (f *fakeSessionRepo) FindActiveSession(ctx context.Context, token string) (*domain.Session, error) {
	f.findActiveToken = token
	if f.findActiveErr != nil {
		return nil, f.findActiveErr
	}
	if f.findActiveResult != nil {
		clone := *f.findActiveResult
		return &clone, nil
	}
	return &domain.Session{ID: 1, TokenHash: util.HashToken(token), IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type sentReset struct {
	to       string
	name     string
	resetURL string
}

func (s sentReset) token() string {
	u, err := url.Parse(s.resetURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

type fakeResetMailer struct {
	mu   sync.Mutex
	sent []sentReset
	err  error
}

func (f *fakeResetMailer) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReset{to: to, name: name, resetURL: resetURL})
	return f.err
}

type fakeThrottle struct {
	allow bool
	err   error
	calls []uuid.UUID
}

func (f *fakeThrottle) Allow(ctx context.Context, userID uuid.UUID, window time.Duration) (bool, error) {
	f.calls = append(f.calls, userID)
	return f.allow, f.err
}

type fakeStorage struct {
	uploaded []struct {
		bucket      string
		objectName  string
		contentType string
		size        int64
	}
	url string
	err error
}

func (f *fakeStorage) Upload(ctx context.Context, bucket, objectName, contentType string, reader io.Reader, size int64) (string, error) {
	f.uploaded = append(f.uploaded, struct {
		bucket      string
		objectName  string
		contentType string
		size        int64
	}{bucket: bucket, objectName: objectName, contentType: contentType, size: size})
	if f.err != nil {
		return "", f.err
	}
	if f.url != "" {
		return f.url, nil
	}
	return "https://storage/" + objectName, nil
}

type fakeHTTPClient struct {
	resp     *http.Response
	err      error
	requests []*http.Request
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return nil, errors.New("no response configured")
	}
	return f.resp, nil
}

func newAuthServiceForTests(users *memUserRepo, sessions *fakeSessionRepo, mailer PasswordResetSender, opts ...Option) *AuthService {
	if sessions == nil {
		sessions = &fakeSessionRepo{}
	}
	jwtManager := util.NewJWTManager("test-secret", time.Hour)
	svc := NewAuthService(users, sessions, mailer, jwtManager, "google-audience", "https://upay2home.com", opts...)
	svc.logger = discardLogger()
	return svc
}

func passwordUser(t interface{ Fatalf(string, ...any) }, email, password string) *domain.User {
	hash, err := util.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	name := "Ana"
	return &domain.User{ID: uuid.New(), Email: email, Name: &name, PasswordHash: &hash, Role: domain.DefaultRole}
}

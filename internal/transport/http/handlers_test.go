package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/upay2home/auth-backend/docs"
	"github.com/upay2home/auth-backend/internal/domain"
	"github.com/upay2home/auth-backend/internal/service"
)

type fakeAuth struct {
	loginEmail    string
	loginPassword string
	loginResult   *service.AuthResult
	loginErr      error

	googleToken  string
	googleResult *service.AuthResult
	googleErr    error

	authToken  string
	authUser   *domain.User
	authErr    error
	logoutWith string

	resetRequests []string
	resetErr      error
	resetPanic    bool

	confirmCalls []ResetPasswordRequest
	confirmErr   error
	confirmPanic bool
}

func (f *fakeAuth) LoginWithEmail(ctx context.Context, email, password string) (*service.AuthResult, error) {
	f.loginEmail, f.loginPassword = email, password
	return f.loginResult, f.loginErr
}

func (f *fakeAuth) LoginWithGoogle(ctx context.Context, idToken string) (*service.AuthResult, error) {
	f.googleToken = idToken
	return f.googleResult, f.googleErr
}

func (f *fakeAuth) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	f.authToken = token
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.authUser, nil
}

func (f *fakeAuth) Logout(ctx context.Context, token string) error {
	f.logoutWith = token
	return nil
}

func (f *fakeAuth) RequestPasswordReset(ctx context.Context, email string) error {
	f.resetRequests = append(f.resetRequests, email)
	if f.resetPanic {
		panic("boom")
	}
	return f.resetErr
}

func (f *fakeAuth) ConfirmPasswordReset(ctx context.Context, token, email, newPassword string) error {
	f.confirmCalls = append(f.confirmCalls, ResetPasswordRequest{Token: token, Email: email, NewPassword: newPassword})
	if f.confirmPanic {
		panic("boom")
	}
	return f.confirmErr
}

func newTestServer(auth *fakeAuth) *echo.Echo {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewRouter([]string{"*"}, logger)
	RegisterAuth(e, auth, logger)
	RegisterPasswordReset(e, auth, logger)
	return e
}

func doRequest(e *echo.Echo, method, target, contentType, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not json: %v (%q)", err, rec.Body.String())
	}
	return body
}

func assertOK(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["ok"] != true || len(body) != 1 {
		t.Fatalf("expected {\"ok\":true}, got %v", body)
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["error"] != message {
		t.Fatalf("expected error %q, got %v", message, body)
	}
}

func TestForgotPasswordAlwaysAnswersOK(t *testing.T) {
	cases := []struct {
		name        string
		path        string
		contentType string
		body        string
		auth        *fakeAuth
		wantCalls   int
	}{
		{name: "known or unknown email", path: "/api/forgot", contentType: echo.MIMEApplicationJSON, body: `{"email":"user@example.com"}`, auth: &fakeAuth{}, wantCalls: 1},
		{name: "alias route", path: "/reset-request", contentType: echo.MIMEApplicationJSON, body: `{"email":"user@example.com"}`, auth: &fakeAuth{}, wantCalls: 1},
		{name: "service failure", path: "/api/forgot", contentType: echo.MIMEApplicationJSON, body: `{"email":"user@example.com"}`, auth: &fakeAuth{resetErr: errors.New("db down")}, wantCalls: 1},
		{name: "panic", path: "/api/forgot", contentType: echo.MIMEApplicationJSON, body: `{"email":"user@example.com"}`, auth: &fakeAuth{resetPanic: true}, wantCalls: 1},
		{name: "malformed json", path: "/api/forgot", contentType: echo.MIMEApplicationJSON, body: `{"email":`, auth: &fakeAuth{}, wantCalls: 0},
		{name: "oversized body", path: "/api/forgot", contentType: echo.MIMEApplicationJSON, body: `{"email":"` + strings.Repeat("a", 70<<10) + `@example.com"}`, auth: &fakeAuth{}, wantCalls: 0},
		{name: "oversized body on alias route", path: "/reset-request", contentType: echo.MIMEApplicationJSON, body: `{"email":"` + strings.Repeat("a", 70<<10) + `@example.com"}`, auth: &fakeAuth{}, wantCalls: 0},
		{name: "form body", path: "/api/forgot", contentType: echo.MIMEApplicationForm, body: "email=user%40example.com", auth: &fakeAuth{}, wantCalls: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestServer(tc.auth)
			rec := doRequest(e, http.MethodPost, tc.path, tc.contentType, tc.body)
			assertOK(t, rec)
			if len(tc.auth.resetRequests) != tc.wantCalls {
				t.Fatalf("expected %d service calls, got %d", tc.wantCalls, len(tc.auth.resetRequests))
			}
		})
	}
}

func TestForgotPasswordPassesEmailThrough(t *testing.T) {
	auth := &fakeAuth{}
	e := newTestServer(auth)

	doRequest(e, http.MethodPost, "/api/forgot", echo.MIMEApplicationJSONCharsetUTF8, `{"email":"  User@Example.com "}`)
	if len(auth.resetRequests) != 1 || auth.resetRequests[0] != "  User@Example.com " {
		t.Fatalf("unexpected service input %v", auth.resetRequests)
	}
}

func TestResetPasswordResponses(t *testing.T) {
	validBody := `{"token":"abc","email":"user@example.com","newPassword":"new-secret"}`

	cases := []struct {
		name        string
		contentType string
		body        string
		auth        *fakeAuth
		wantStatus  int
		wantError   string
	}{
		{name: "non json", contentType: echo.MIMETextPlain, body: validBody, auth: &fakeAuth{}, wantStatus: http.StatusBadRequest, wantError: "Invalid request"},
		{name: "malformed json", contentType: echo.MIMEApplicationJSON, body: `{"token":`, auth: &fakeAuth{}, wantStatus: http.StatusBadRequest, wantError: "Invalid request"},
		{name: "missing fields", contentType: echo.MIMEApplicationJSON, body: `{}`, auth: &fakeAuth{confirmErr: service.ErrInvalidResetRequest}, wantStatus: http.StatusBadRequest, wantError: "Invalid request"},
		{name: "short password", contentType: echo.MIMEApplicationJSON, body: validBody, auth: &fakeAuth{confirmErr: service.ErrPasswordTooShort}, wantStatus: http.StatusBadRequest, wantError: "Password too short"},
		{name: "bad token", contentType: echo.MIMEApplicationJSON, body: validBody, auth: &fakeAuth{confirmErr: service.ErrResetTokenInvalid}, wantStatus: http.StatusBadRequest, wantError: "Invalid or expired token"},
		{name: "infrastructure failure", contentType: echo.MIMEApplicationJSON, body: validBody, auth: &fakeAuth{confirmErr: errors.New("db down")}, wantStatus: http.StatusInternalServerError, wantError: "Server error"},
		{name: "panic", contentType: echo.MIMEApplicationJSON, body: validBody, auth: &fakeAuth{confirmPanic: true}, wantStatus: http.StatusInternalServerError, wantError: "Server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestServer(tc.auth)
			rec := doRequest(e, http.MethodPost, "/api/reset", tc.contentType, tc.body)
			assertError(t, rec, tc.wantStatus, tc.wantError)
		})
	}
}

func TestResetPasswordSuccess(t *testing.T) {
	for _, path := range []string{"/api/reset", "/reset-confirm"} {
		t.Run(path, func(t *testing.T) {
			auth := &fakeAuth{}
			e := newTestServer(auth)

			rec := doRequest(e, http.MethodPost, path, echo.MIMEApplicationJSON, `{"token":"abc","email":"user@example.com","newPassword":"new-secret"}`)
			assertOK(t, rec)
			want := ResetPasswordRequest{Token: "abc", Email: "user@example.com", NewPassword: "new-secret"}
			if len(auth.confirmCalls) != 1 || auth.confirmCalls[0] != want {
				t.Fatalf("unexpected service input %+v", auth.confirmCalls)
			}
		})
	}
}

func TestResetPasswordNonJSONSkipsService(t *testing.T) {
	auth := &fakeAuth{}
	e := newTestServer(auth)

	doRequest(e, http.MethodPost, "/api/reset", echo.MIMEApplicationForm, "token=abc")
	if len(auth.confirmCalls) != 0 {
		t.Fatal("non-json body must not reach the service")
	}
}

func TestLoginWithEmail(t *testing.T) {
	t.Run("invalid payload", func(t *testing.T) {
		auth := &fakeAuth{}
		e := newTestServer(auth)
		rec := doRequest(e, http.MethodPost, "/api/auth/login", echo.MIMEApplicationJSON, `{"email":"not-an-email","password":"secret1"}`)
		assertError(t, rec, http.StatusBadRequest, "email must be a valid email")
		if auth.loginEmail != "" {
			t.Fatal("invalid payload must not reach the service")
		}
	})

	t.Run("short password", func(t *testing.T) {
		e := newTestServer(&fakeAuth{})
		rec := doRequest(e, http.MethodPost, "/api/auth/login", echo.MIMEApplicationJSON, `{"email":"user@example.com","password":"123"}`)
		assertError(t, rec, http.StatusBadRequest, "password must be at least 6 characters")
	})

	t.Run("invalid credentials", func(t *testing.T) {
		e := newTestServer(&fakeAuth{loginErr: service.ErrInvalidCredentials})
		rec := doRequest(e, http.MethodPost, "/api/auth/login", echo.MIMEApplicationJSON, `{"email":"user@example.com","password":"secret1"}`)
		assertError(t, rec, http.StatusUnauthorized, "invalid credentials")
	})

	t.Run("success", func(t *testing.T) {
		expires := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)
		identity := &domain.Identity{ID: uuid.New(), Email: "user@example.com", Role: "user", UserID: "U123456789"}
		auth := &fakeAuth{loginResult: &service.AuthResult{Token: "jwt", ExpiresAt: expires, User: identity}}
		e := newTestServer(auth)

		rec := doRequest(e, http.MethodPost, "/api/auth/login", echo.MIMEApplicationJSON, `{"email":"user@example.com","password":"secret1"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp AuthTokenResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Token != "jwt" || resp.ExpiresAt != "2025-01-02T09:30:00Z" || resp.User.UserID != "U123456789" {
			t.Fatalf("unexpected response %+v", resp)
		}
		if auth.loginPassword != "secret1" {
			t.Fatal("password not forwarded")
		}
	})
}

func TestLoginWithGoogle(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		e := newTestServer(&fakeAuth{})
		rec := doRequest(e, http.MethodPost, "/api/auth/google", echo.MIMEApplicationJSON, `{}`)
		assertError(t, rec, http.StatusBadRequest, "id_token is required")
	})

	t.Run("rejected token", func(t *testing.T) {
		e := newTestServer(&fakeAuth{googleErr: service.ErrInvalidGoogleToken})
		rec := doRequest(e, http.MethodPost, "/api/auth/google", echo.MIMEApplicationJSON, `{"id_token":"x"}`)
		assertError(t, rec, http.StatusUnauthorized, "invalid google token")
	})

	t.Run("success", func(t *testing.T) {
		auth := &fakeAuth{googleResult: &service.AuthResult{Token: "jwt", ExpiresAt: time.Now(), User: &domain.Identity{Email: "g@gmail.com"}}}
		e := newTestServer(auth)
		rec := doRequest(e, http.MethodPost, "/api/auth/google", echo.MIMEApplicationJSON, `{"id_token":"x"}`)
		if rec.Code != http.StatusOK || auth.googleToken != "x" {
			t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestSessionAndLogout(t *testing.T) {
	name := "Ana"
	user := &domain.User{ID: uuid.New(), Email: "user@example.com", Name: &name, Role: "user"}

	t.Run("missing header", func(t *testing.T) {
		e := newTestServer(&fakeAuth{authUser: user})
		rec := doRequest(e, http.MethodGet, "/api/auth/session", "", "")
		assertError(t, rec, http.StatusUnauthorized, "missing authorization header")
	})

	t.Run("malformed header", func(t *testing.T) {
		e := newTestServer(&fakeAuth{authUser: user})
		rec := doRequest(e, http.MethodGet, "/api/auth/session", "", "", echo.HeaderAuthorization, "Token abc")
		assertError(t, rec, http.StatusUnauthorized, "invalid authorization header")
	})

	t.Run("rejected token", func(t *testing.T) {
		e := newTestServer(&fakeAuth{authErr: service.ErrUnauthorized})
		rec := doRequest(e, http.MethodGet, "/api/auth/session", "", "", echo.HeaderAuthorization, "Bearer abc")
		assertError(t, rec, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("current identity", func(t *testing.T) {
		auth := &fakeAuth{authUser: user}
		e := newTestServer(auth)
		rec := doRequest(e, http.MethodGet, "/api/auth/session", "", "", echo.HeaderAuthorization, "Bearer abc")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp AuthUserResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.User.ID != user.ID || resp.User.Name != "Ana" || auth.authToken != "abc" {
			t.Fatalf("unexpected identity %+v", resp.User)
		}
	})

	t.Run("logout", func(t *testing.T) {
		auth := &fakeAuth{authUser: user}
		e := newTestServer(auth)
		rec := doRequest(e, http.MethodPost, "/api/auth/logout", "", "", echo.HeaderAuthorization, "Bearer abc")
		assertOK(t, rec)
		if auth.logoutWith != "abc" {
			t.Fatalf("expected logout with token, got %q", auth.logoutWith)
		}
	})
}

func TestHealth(t *testing.T) {
	e := newTestServer(&fakeAuth{})
	assertOK(t, doRequest(e, http.MethodGet, "/health", "", ""))
}

func TestSwaggerDocJSON(t *testing.T) {
	e := newTestServer(&fakeAuth{})
	RegisterSwagger(e, docs.SwaggerYAML)

	rec := doRequest(e, http.MethodGet, "/swagger/doc.json", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["swagger"] != "2.0" {
		t.Fatalf("unexpected document: %v", body["swagger"])
	}
	paths, _ := body["paths"].(map[string]interface{})
	if _, ok := paths["/api/reset"]; !ok {
		t.Fatal("expected /api/reset in swagger paths")
	}
}

func TestBodyLimitStillAppliesToOtherRoutes(t *testing.T) {
	auth := &fakeAuth{}
	e := newTestServer(auth)

	body := `{"token":"abc","email":"user@example.com","newPassword":"` + strings.Repeat("a", 70<<10) + `"}`
	rec := doRequest(e, http.MethodPost, "/api/reset", echo.MIMEApplicationJSON, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if len(auth.confirmCalls) != 0 {
		t.Fatal("service must not be called")
	}
}

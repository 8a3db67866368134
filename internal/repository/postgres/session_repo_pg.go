package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/upay2home/auth-backend/internal/domain"
	"github.com/upay2home/auth-backend/internal/util"
)

const sessionColumns = `id, user_id, token_hash, created_at, expires_at, is_active`

// SessionRepository persists issued JWTs by digest. Callers always pass the
// plaintext token; hashing happens here.
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepo(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (*domain.Session, error) {
	query := `
        INSERT INTO sessions (user_id, token_hash, expires_at, is_active)
        VALUES ($1, $2, $3, true)
        RETURNING ` + sessionColumns
	var session domain.Session
	if err := r.db.QueryRowxContext(ctx, query, userID, util.HashToken(token), expiresAt).StructScan(&session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) FindActiveSession(ctx context.Context, token string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
        FROM sessions
        WHERE token_hash = $1 AND is_active = true AND expires_at > NOW()`
	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, util.HashToken(token)); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeactivateSession ends one session. Unknown or already inactive tokens are
// not an error.
func (r *SessionRepository) DeactivateSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE sessions SET is_active = false, expires_at = NOW()
        WHERE token_hash = $1 AND is_active = true`, util.HashToken(token))
	return err
}

func (r *SessionRepository) DeactivateUserSessions(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `
        UPDATE sessions SET is_active = false, expires_at = NOW()
        WHERE user_id = $1 AND is_active = true`, userID); err != nil {
		return fmt.Errorf("deactivate sessions for %s: %w", userID, err)
	}
	return nil
}

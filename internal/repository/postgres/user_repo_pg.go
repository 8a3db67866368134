package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/upay2home/auth-backend/internal/domain"
)

const userColumns = `id, email, name, image_url, password_hash, role, public_id, reset_token_hash,
        reset_token_expires_at, password_changed_at, email_verified_at, created_at, updated_at`

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
        SELECT ` + userColumns + `
        FROM user_account
        WHERE LOWER(email) = $1
    `
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
        SELECT ` + userColumns + `
        FROM user_account
        WHERE id = $1
    `
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpsertGoogleUser(ctx context.Context, email string, name *string, imageURL *string) (*domain.User, error) {
	query := `
        INSERT INTO user_account (email, name, image_url, email_verified_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT ((LOWER(email))) DO UPDATE
        SET name = COALESCE(user_account.name, EXCLUDED.name),
            image_url = COALESCE(user_account.image_url, EXCLUDED.image_url),
            email_verified_at = COALESCE(user_account.email_verified_at, EXCLUDED.email_verified_at),
            updated_at = NOW()
        RETURNING ` + userColumns
	row := r.db.QueryRowxContext(ctx, query, email, name, imageURL)
	var user domain.User
	if err := row.StructScan(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpdateImage(ctx context.Context, id uuid.UUID, imageURL string) error {
	const query = `
        UPDATE user_account
        SET image_url = $2,
            updated_at = NOW()
        WHERE id = $1
    `
	return execOne(ctx, r.db, query, id, imageURL)
}

func (r *UserRepository) AssignPublicID(ctx context.Context, id uuid.UUID, publicID string) (string, error) {
	const query = `
        UPDATE user_account
        SET public_id = COALESCE(public_id, $2),
            updated_at = CASE WHEN public_id IS NULL THEN NOW() ELSE updated_at END
        WHERE id = $1
        RETURNING public_id
    `
	var assigned string
	if err := r.db.GetContext(ctx, &assigned, query, id, publicID); err != nil {
		return "", err
	}
	return assigned, nil
}

func (r *UserRepository) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	const query = `
        UPDATE user_account
        SET reset_token_hash = $2,
            reset_token_expires_at = $3,
            updated_at = NOW()
        WHERE id = $1
    `
	return execOne(ctx, r.db, query, id, tokenHash, expiresAt)
}

func (r *UserRepository) ResetPassword(ctx context.Context, id uuid.UUID, expectedTokenHash, passwordHash string, changedAt time.Time) error {
	const query = `
        UPDATE user_account
        SET password_hash = $3,
            reset_token_hash = NULL,
            reset_token_expires_at = NULL,
            password_changed_at = $4,
            updated_at = NOW()
        WHERE id = $1 AND reset_token_hash = $2
    `
	return execOne(ctx, r.db, query, id, expectedTokenHash, passwordHash, changedAt)
}

// execOne runs an update that must touch exactly one row.
func execOne(ctx context.Context, db *sqlx.DB, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/upay2home/auth-backend/internal/domain"
)

type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpsertGoogleUser(ctx context.Context, email string, name *string, imageURL *string) (*domain.User, error)
	UpdateImage(ctx context.Context, id uuid.UUID, imageURL string) error
	// AssignPublicID stores publicID only when the account has none yet and
	// returns the identifier the account ends up with.
	AssignPublicID(ctx context.Context, id uuid.UUID, publicID string) (string, error)
	// SetResetToken writes the reset hash and expiry together, replacing any
	// pending pair.
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	// ResetPassword stores the new password hash and clears the reset pair in a
	// single update, provided the stored hash still equals expectedTokenHash.
	// It returns sql.ErrNoRows when the pair changed underneath.
	ResetPassword(ctx context.Context, id uuid.UUID, expectedTokenHash, passwordHash string, changedAt time.Time) error
}

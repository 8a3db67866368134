package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ResetThrottle rate-limits reset emails per account. Allow returns false
// while a previous request for the same account is still inside window.
type ResetThrottle interface {
	Allow(ctx context.Context, userID uuid.UUID, window time.Duration) (bool, error)
}

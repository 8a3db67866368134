package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const resetKeyPrefix = "auth:reset-cooldown:"

func NewClient(redisURL string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return goredis.NewClient(opt), nil
}

// ResetThrottle records the last reset email per account as a key that
// expires with the cooldown window.
type ResetThrottle struct {
	client goredis.Cmdable
}

func NewResetThrottle(client goredis.Cmdable) *ResetThrottle {
	return &ResetThrottle{client: client}
}

func (t *ResetThrottle) Allow(ctx context.Context, userID uuid.UUID, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	ok, err := t.client.SetNX(ctx, resetKeyPrefix+userID.String(), time.Now().Unix(), window).Result()
	if err != nil {
		return false, fmt.Errorf("reset throttle: %w", err)
	}
	return ok, nil
}

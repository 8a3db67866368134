package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultRole = "user"

// User is a row of user_account. PasswordHash is nil for accounts created
// through Google sign-in that never set a local password.
type User struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	Name                *string    `db:"name" json:"name,omitempty"`
	ImageURL            *string    `db:"image_url" json:"image,omitempty"`
	PasswordHash        *string    `db:"password_hash" json:"-"`
	Role                string     `db:"role" json:"role"`
	PublicID            *string    `db:"public_id" json:"user_id,omitempty"`
	ResetTokenHash      *string    `db:"reset_token_hash" json:"-"`
	ResetTokenExpiresAt *time.Time `db:"reset_token_expires_at" json:"-"`
	PasswordChangedAt   *time.Time `db:"password_changed_at" json:"-"`
	EmailVerifiedAt     *time.Time `db:"email_verified_at" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether the account can use the credentials flow.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// HasPendingReset reports whether both halves of the reset pair are stored.
func (u *User) HasPendingReset() bool {
	return u.ResetTokenHash != nil && *u.ResetTokenHash != "" && u.ResetTokenExpiresAt != nil
}

// Identity is the minimal, serializable view of a verified account handed to
// the session layer.
type Identity struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	UserID string    `json:"user_id"`
	Image  *string   `json:"image,omitempty"`
}

func (u *User) Identity() *Identity {
	id := &Identity{
		ID:    u.ID,
		Email: u.Email,
		Role:  u.Role,
		Image: u.ImageURL,
	}
	if u.Name != nil {
		id.Name = *u.Name
	}
	if id.Role == "" {
		id.Role = DefaultRole
	}
	if u.PublicID != nil {
		id.UserID = *u.PublicID
	}
	return id
}

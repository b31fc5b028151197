package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the unit of storage for the credential store. Opaque tokens
// (refresh, reset) are never persisted raw, only as one-way fingerprints.
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name               string     `bun:"name,notnull" json:"name,omitempty"`
	Email              string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone              string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"-"`
	IsVerified         bool       `bun:"is_verified" json:"is_verified,omitempty"`
	FederatedID        string     `bun:"federated_id,nullzero,unique" json:"federated_id,omitempty"`
	AvatarURL          string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	RefreshFingerprint string     `bun:"refresh_fingerprint,nullzero" json:"-"`
	ResetFingerprint   string     `bun:"reset_fingerprint,nullzero" json:"-"`
	ResetExpiry        *time.Time `bun:"reset_expiry,nullzero" json:"-"`
	LoggedInAt         *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsFederated reports whether the account was provisioned by an external
// identity provider and therefore carries no local password.
func (u *User) IsFederated() bool {
	return u.FederatedID != ""
}

// HasPendingReset reports whether a reset request exists and is still live
// at the given instant.
func (u *User) HasPendingReset(now time.Time) bool {
	return u.ResetFingerprint != "" && u.ResetExpiry != nil && u.ResetExpiry.After(now)
}

// Profile is the caller-safe projection of a User; it never carries the
// password hash or any token fingerprint.
type Profile struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	IsVerified bool      `json:"is_verified"`
}

// PublicProfile projects the user for API responses.
func (u *User) PublicProfile() Profile {
	return Profile{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		AvatarURL:  u.AvatarURL,
		IsVerified: u.IsVerified,
	}
}

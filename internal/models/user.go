package models

import "time"

// Role names a user's access level.
type Role string

const (
	// RoleUser is the default role for registered accounts.
	RoleUser Role = "user"
	// RoleAdmin grants access to the admin endpoints.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an end-user account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique email address (lowercased).
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Role    Role  `gorm:"type:varchar(16);not null;default:'user';index"` // Access level.
	Points  int64 `gorm:"not null;default:0;check:points >= 0"`            // Current points balance, never negative.
	Enabled bool  `gorm:"not null"`                                       // Whether the user can sign in.

	TOTPSecret   string     `gorm:"type:text"`    // TOTP secret for MFA, empty when disabled.
	InviteCodeID *uint64    `gorm:"index"`        // Invite code consumed at registration.
	LastLoginAt  *time.Time `gorm:"default:null"` // Last successful login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

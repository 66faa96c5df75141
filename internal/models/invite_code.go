package models

import "time"

// InviteCode is a single-use registration code.
type InviteCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code      string     `gorm:"type:varchar(32);not null;uniqueIndex"` // Code entered at registration.
	CreatedBy uint64     `gorm:"not null;index"`                        // Admin who generated the code.
	UsedBy    *uint64    `gorm:"index"`                                 // User who consumed the code.
	UsedAt    *time.Time `gorm:"default:null"`                          // Consumption timestamp.
	ExpiresAt *time.Time `gorm:"default:null"`                          // Optional expiry.
	IsActive  bool       `gorm:"not null"`                              // Revoked codes are inactive.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Usable reports whether the code can still be redeemed at now.
func (c *InviteCode) Usable(now time.Time) bool {
	if c == nil || !c.IsActive || c.UsedBy != nil {
		return false
	}
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}

package models

import "time"

// UserAssistantPermission overrides access and pricing of one assistant for one user.
// A missing row means the assistant is allowed at its default cost.
type UserAssistantPermission struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID      uint64 `gorm:"not null;uniqueIndex:idx_user_assistant_permissions_pair,priority:1"` // User ID.
	AssistantID uint64 `gorm:"not null;uniqueIndex:idx_user_assistant_permissions_pair,priority:2"` // Assistant ID.

	Enabled          bool   `gorm:"not null"`     // False blocks the user from the assistant.
	CustomPointsCost *int64 `gorm:"default:null"` // Per-user cost override.

	UsageCount  int64      `gorm:"not null;default:0"` // Successful dispatches.
	PointsSpent int64      `gorm:"not null;default:0"` // Points charged through this assistant.
	LastUsedAt  *time.Time `gorm:"default:null"`       // Last successful dispatch.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

package models

import "time"

// PointsType classifies a ledger entry.
type PointsType string

const (
	// PointsTypeRegister seeds the starting balance of a new account.
	PointsTypeRegister PointsType = "register"
	// PointsTypeUseAssistant charges a successful chat dispatch.
	PointsTypeUseAssistant PointsType = "use_assistant"
	// PointsTypeAnalyzeFiles charges a successful file analysis.
	PointsTypeAnalyzeFiles PointsType = "analyze_files"
	// PointsTypeAdminGrant records a manual adjustment by an admin.
	PointsTypeAdminGrant PointsType = "admin_grant"
	// PointsTypeAdd records a top-up.
	PointsTypeAdd PointsType = "add"
)

// Valid reports whether t is a known ledger entry type.
func (t PointsType) Valid() bool {
	switch t {
	case PointsTypeRegister, PointsTypeUseAssistant, PointsTypeAnalyzeFiles, PointsTypeAdminGrant, PointsTypeAdd:
		return true
	default:
		return false
	}
}

// PointsHistory is one append-only ledger entry.
type PointsHistory struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID      uint64     `gorm:"not null;index:idx_points_histories_user_created,priority:1"` // Owner of the balance.
	Points      int64      `gorm:"not null"`                                                     // Signed delta.
	Type        PointsType `gorm:"type:varchar(32);not null;index"`                              // Entry classification.
	Description string     `gorm:"type:text"`                                                    // Human-readable reason.
	Balance     int64      `gorm:"not null"`                                                     // Balance right after this entry.
	AssistantID *uint64    `gorm:"index"`                                                        // Assistant charged, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index:idx_points_histories_user_created,priority:2"` // Creation timestamp.
}

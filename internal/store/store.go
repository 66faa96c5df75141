package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storefront-ai/assistant-hub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAssistantNotFound is returned when no assistant matches the key or ID.
	ErrAssistantNotFound = errors.New("store: assistant not found")
	// ErrUserNotFound is returned when no user matches the ID.
	ErrUserNotFound = errors.New("store: user not found")
)

// Store runs the fixed query set used by dispatch against the database.
type Store struct {
	db *gorm.DB
}

// New constructs a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FindAssistantByKey loads an assistant by key regardless of its active flag.
func (s *Store) FindAssistantByKey(ctx context.Context, key string) (*models.Assistant, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrAssistantNotFound
	}
	var assistant models.Assistant
	if errFind := s.db.WithContext(ctx).Where("key = ?", key).Take(&assistant).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrAssistantNotFound
		}
		return nil, fmt.Errorf("store: find assistant %q: %w", key, errFind)
	}
	return &assistant, nil
}

// FindAssistantByID loads an assistant by primary key.
func (s *Store) FindAssistantByID(ctx context.Context, id uint64) (*models.Assistant, error) {
	var assistant models.Assistant
	if errFind := s.db.WithContext(ctx).Take(&assistant, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrAssistantNotFound
		}
		return nil, fmt.Errorf("store: find assistant %d: %w", id, errFind)
	}
	return &assistant, nil
}

// ListAssistants returns assistants in catalogue order.
func (s *Store) ListAssistants(ctx context.Context, activeOnly bool) ([]models.Assistant, error) {
	q := s.db.WithContext(ctx).Model(&models.Assistant{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []models.Assistant
	if errFind := q.Order("sort_order ASC, id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list assistants: %w", errFind)
	}
	return rows, nil
}

// FindUser loads a user by ID.
func (s *Store) FindUser(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Take(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: find user %d: %w", id, errFind)
	}
	return &user, nil
}

// FindPermission returns the override row for the pair, or nil when none exists.
func (s *Store) FindPermission(ctx context.Context, userID, assistantID uint64) (*models.UserAssistantPermission, error) {
	var perm models.UserAssistantPermission
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND assistant_id = ?", userID, assistantID).
		Take(&perm).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find permission: %w", errFind)
	}
	return &perm, nil
}

// ListPermissions returns every override row of a user keyed by assistant ID.
func (s *Store) ListPermissions(ctx context.Context, userID uint64) (map[uint64]models.UserAssistantPermission, error) {
	var rows []models.UserAssistantPermission
	if errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list permissions: %w", errFind)
	}
	out := make(map[uint64]models.UserAssistantPermission, len(rows))
	for _, row := range rows {
		out[row.AssistantID] = row
	}
	return out, nil
}

// PermissionUpdate describes an override upsert. Nil fields keep their stored value.
type PermissionUpdate struct {
	Enabled          *bool
	CustomPointsCost *int64
	ClearCustomCost  bool
}

// UpsertPermission creates or updates the override row for the pair.
func (s *Store) UpsertPermission(ctx context.Context, userID, assistantID uint64, update PermissionUpdate) (*models.UserAssistantPermission, error) {
	var result models.UserAssistantPermission
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var perm models.UserAssistantPermission
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND assistant_id = ?", userID, assistantID).
			Take(&perm).Error
		switch {
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			perm = models.UserAssistantPermission{UserID: userID, AssistantID: assistantID, Enabled: true}
		case errFind != nil:
			return errFind
		}

		if update.Enabled != nil {
			perm.Enabled = *update.Enabled
		}
		if update.ClearCustomCost {
			perm.CustomPointsCost = nil
		} else if update.CustomPointsCost != nil {
			cost := *update.CustomPointsCost
			perm.CustomPointsCost = &cost
		}

		if perm.ID == 0 {
			if errCreate := tx.Create(&perm).Error; errCreate != nil {
				return errCreate
			}
		} else if errSave := tx.Model(&perm).Select("enabled", "custom_points_cost", "updated_at").Updates(map[string]any{
			"enabled":            perm.Enabled,
			"custom_points_cost": perm.CustomPointsCost,
			"updated_at":         time.Now().UTC(),
		}).Error; errSave != nil {
			return errSave
		}
		result = perm
		return nil
	})
	if errTx != nil {
		return nil, fmt.Errorf("store: upsert permission: %w", errTx)
	}
	return &result, nil
}

// RecordPermissionUsage bumps the usage counters of the pair, creating the row
// with default access when it does not exist yet.
func (s *Store) RecordPermissionUsage(ctx context.Context, userID, assistantID uint64, pointsSpent int64, usedAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.UserAssistantPermission{}).
		Where("user_id = ? AND assistant_id = ?", userID, assistantID).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + ?", 1),
			"points_spent": gorm.Expr("points_spent + ?", pointsSpent),
			"last_used_at": usedAt,
			"updated_at":   usedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("store: record usage: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	perm := models.UserAssistantPermission{
		UserID:      userID,
		AssistantID: assistantID,
		Enabled:     true,
		UsageCount:  1,
		PointsSpent: pointsSpent,
		LastUsedAt:  &usedAt,
	}
	errCreate := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "assistant_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"usage_count":  gorm.Expr("user_assistant_permissions.usage_count + ?", 1),
			"points_spent": gorm.Expr("user_assistant_permissions.points_spent + ?", pointsSpent),
			"last_used_at": usedAt,
			"updated_at":   usedAt,
		}),
	}).Create(&perm).Error
	if errCreate != nil {
		return fmt.Errorf("store: create usage row: %w", errCreate)
	}
	return nil
}

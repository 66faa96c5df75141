package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/storefront-ai/assistant-hub/internal/models"
	"gorm.io/gorm"
)

var (
	errUnknownKey              = errors.New("unknown setting key")
	errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")
	errBooleanValue            = errors.New("value must be a boolean")
	errStringValue             = errors.New("value must be a string")
)

// Store is an in-memory snapshot of the settings table.
type Store struct {
	mu        sync.RWMutex
	values    map[string]json.RawMessage
	updatedAt time.Time
}

// NewStore constructs an empty Store; getters return their fallbacks until Refresh.
func NewStore() *Store {
	return &Store{values: make(map[string]json.RawMessage)}
}

// Refresh rebuilds the snapshot from the DB.
func (s *Store) Refresh(ctx context.Context, db *gorm.DB) error {
	var rows []models.Setting
	if errFind := db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: refresh: %w", errFind)
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = json.RawMessage(row.Value)
		if row.UpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = row.UpdatedAt.UTC()
		}
	}
	s.Replace(maxUpdatedAt, values)
	return nil
}

// Replace swaps the snapshot contents.
func (s *Store) Replace(updatedAt time.Time, values map[string]json.RawMessage) {
	copied := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		copied[k] = append(json.RawMessage(nil), v...)
	}
	s.mu.Lock()
	s.values = copied
	s.updatedAt = updatedAt
	s.mu.Unlock()
}

// DBConfigValue returns the raw JSON value stored for key.
func (s *Store) DBConfigValue(key string) (json.RawMessage, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.values[key]
	return raw, ok
}

// UpdatedAt returns the newest row timestamp seen by the last refresh.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Int returns a non-negative integer setting or fallback.
func (s *Store) Int(key string, fallback int) int {
	if raw, ok := s.DBConfigValue(key); ok {
		if v, okParse := parseNonNegativeInt(raw); okParse {
			return v
		}
	}
	return fallback
}

// Bool returns a boolean setting or fallback.
func (s *Store) Bool(key string, fallback bool) bool {
	if raw, ok := s.DBConfigValue(key); ok {
		if v, okParse := parseBool(raw); okParse {
			return v
		}
	}
	return fallback
}

// String returns a string setting or fallback.
func (s *Store) String(key, fallback string) string {
	if raw, ok := s.DBConfigValue(key); ok {
		if v, okParse := parseString(raw); okParse {
			return v
		}
	}
	return fallback
}

// RegisterPoints returns the starting balance for new accounts.
func (s *Store) RegisterPoints() int64 {
	return int64(s.Int(RegisterPointsKey, DefaultRegisterPoints))
}

// RequireInviteCode reports whether registration needs an invite code.
func (s *Store) RequireInviteCode() bool {
	return s.Bool(RequireInviteCodeKey, DefaultRequireInviteCode)
}

// RateLimit returns the per-user dispatch limit per minute.
func (s *Store) RateLimit() int {
	return s.Int(RateLimitKey, DefaultRateLimit)
}

// HonorCustomPointsCost reports whether per-user cost overrides are charged.
func (s *Store) HonorCustomPointsCost() bool {
	return s.Bool(HonorCustomPointsCostKey, DefaultHonorCustomPointsCost)
}

// SiteName returns the configured site name.
func (s *Store) SiteName() string {
	name := s.String(SiteNameKey, DefaultSiteName)
	if name == "" {
		return DefaultSiteName
	}
	return name
}

// ValidateValue checks value against the declared kind of key.
func ValidateValue(key string, value json.RawMessage) error {
	kind, ok := Known[key]
	if !ok {
		return errUnknownKey
	}
	switch kind {
	case KindNonNegativeInt:
		if _, okParse := parseNonNegativeInt(value); !okParse {
			return errNonNegativeIntegerValue
		}
	case KindBool:
		if _, okParse := parseBool(value); !okParse {
			return errBooleanValue
		}
	default:
		if _, okParse := parseString(value); !okParse {
			return errStringValue
		}
	}
	return nil
}

func parseBool(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false, false
	}
	var parsedBool bool
	if errUnmarshalBool := json.Unmarshal(raw, &parsedBool); errUnmarshalBool == nil {
		return parsedBool, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		switch strings.ToLower(strings.TrimSpace(parsedString)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		default:
			return false, false
		}
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return false, false
		}
		if parsedFloat == 1 {
			return true, true
		}
		if parsedFloat == 0 {
			return false, true
		}
	}
	return false, false
}

func parseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		return strings.TrimSpace(parsedString), true
	}
	return "", false
}

func parseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return 0, false
		}
		if parsedFloat < 0 || parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}

package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storefront-ai/assistant-hub/internal/models"
	internalsettings "github.com/storefront-ai/assistant-hub/internal/settings"
	"gorm.io/gorm"
)

// Defaults carries seed values that come from the config file rather than constants.
type Defaults struct {
	RegisterPoints int // Initial REGISTER_POINTS value.
}

// Migrate runs database migrations with built-in seed defaults.
func Migrate(conn *gorm.DB) error {
	return MigrateWithDefaults(conn, Defaults{RegisterPoints: internalsettings.DefaultRegisterPoints})
}

// MigrateWithDefaults runs database migrations for the current dialect and seeds
// settings that are still missing.
func MigrateWithDefaults(conn *gorm.DB, defaults Defaults) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	var errMigrate error
	switch DialectName(conn) {
	case DialectSQLite:
		errMigrate = migrateSQLite(conn)
	case DialectPostgres, "":
		errMigrate = migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
	if errMigrate != nil {
		return errMigrate
	}
	return ensureDefaultSettings(conn, defaults)
}

func autoMigrate(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Assistant{},
		&models.PointsHistory{},
		&models.UserAssistantPermission{},
		&models.InviteCode{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}

// migratePostgres applies PostgreSQL-specific constraints and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "chk_users_points_non_negative",
			sql: `
				DO $$
				BEGIN
					IF NOT EXISTS (
						SELECT 1 FROM pg_constraint WHERE conname = 'chk_users_points_non_negative'
					) THEN
						ALTER TABLE users ADD CONSTRAINT chk_users_points_non_negative CHECK (points >= 0);
					END IF;
				END $$;
			`,
		},
		{
			name: "chk_assistants_points_cost_non_negative",
			sql: `
				DO $$
				BEGIN
					IF NOT EXISTS (
						SELECT 1 FROM pg_constraint WHERE conname = 'chk_assistants_points_cost_non_negative'
					) THEN
						ALTER TABLE assistants ADD CONSTRAINT chk_assistants_points_cost_non_negative CHECK (points_cost >= 0);
					END IF;
				END $$;
			`,
		},
		{
			name: "idx_assistants_active_sort",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_assistants_active_sort
				ON assistants (sort_order ASC, id ASC)
				WHERE is_active = true
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
	}
	for _, stmt := range ddls {
		if errExec := conn.Exec(stmt.sql).Error; errExec != nil {
			return fmt.Errorf("db: apply %s: %w", stmt.name, errExec)
		}
	}
	return nil
}

// migrateSQLite applies SQLite-compatible indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_assistants_active_sort
		ON assistants (is_active, sort_order, id)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create assistants sort index: %w", errIndex)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
		ON settings (updated_at DESC, key DESC)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create settings index: %w", errIndex)
	}
	return nil
}

func ensureDefaultSettings(conn *gorm.DB, defaults Defaults) error {
	registerPoints := defaults.RegisterPoints
	if registerPoints < 0 {
		registerPoints = internalsettings.DefaultRegisterPoints
	}
	if errSeed := ensureStringSetting(conn, internalsettings.SiteNameKey, internalsettings.DefaultSiteName); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.RegisterPointsKey, registerPoints); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureBoolSetting(conn, internalsettings.RequireInviteCodeKey, internalsettings.DefaultRequireInviteCode); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.RateLimitKey, internalsettings.DefaultRateLimit); errSeed != nil {
		return errSeed
	}
	return ensureBoolSetting(conn, internalsettings.HonorCustomPointsCostKey, internalsettings.DefaultHonorCustomPointsCost)
}

// ensureIntSetting ensures an integer setting exists and defaults when empty.
func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	return ensureSetting(conn, key, value)
}

// ensureBoolSetting ensures a boolean setting exists and defaults when empty.
func ensureBoolSetting(conn *gorm.DB, key string, value bool) error {
	return ensureSetting(conn, key, value)
}

// ensureStringSetting ensures a string setting exists and defaults when empty.
func ensureStringSetting(conn *gorm.DB, key string, value string) error {
	return ensureSetting(conn, key, value)
}

func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := models.JSONValue(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}

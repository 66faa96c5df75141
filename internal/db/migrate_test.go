package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/storefront-ai/assistant-hub/internal/models"
	internalsettings "github.com/storefront-ai/assistant-hub/internal/settings"
	"gorm.io/gorm"
)

func TestMigrate_SeedsDefaultSettings(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "hub-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if DialectName(conn) != DialectSQLite {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := MigrateWithDefaults(conn, Defaults{RegisterPoints: 25}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var setting models.Setting
	if errFind := conn.Where("key = ?", internalsettings.RegisterPointsKey).First(&setting).Error; errFind != nil {
		t.Fatalf("find register points: %v", errFind)
	}
	if string(setting.Value) != "25" {
		t.Fatalf("expected REGISTER_POINTS=25, got %s", string(setting.Value))
	}

	var count int64
	if errCount := conn.Model(&models.Setting{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count settings: %v", errCount)
	}
	if count != int64(len(internalsettings.Known)) {
		t.Fatalf("expected %d seeded settings, got %d", len(internalsettings.Known), count)
	}
}

func TestMigrate_KeepsExistingSettings(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "hub-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errUpdate := conn.Model(&models.Setting{}).
		Where("key = ?", internalsettings.RateLimitKey).
		Update("value", []byte("12")).Error; errUpdate != nil {
		t.Fatalf("update setting: %v", errUpdate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}

	store := internalsettings.NewStore()
	if errRefresh := store.Refresh(context.Background(), conn); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}
	if store.RateLimit() != 12 {
		t.Fatalf("expected rate limit 12 to survive migrate, got %d", store.RateLimit())
	}
}

func TestMigrate_StoresSettingsAsText(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "hub-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for key := range internalsettings.Known {
		var storage string
		if errRaw := conn.Raw("SELECT typeof(value) FROM settings WHERE key = ?", key).Scan(&storage).Error; errRaw != nil {
			t.Fatalf("typeof %s: %v", key, errRaw)
		}
		if storage != "text" {
			t.Fatalf("expected %s stored as text, got %s", key, storage)
		}
	}

	// Rows written as bare integers by an older schema still load.
	if errExec := conn.Exec("UPDATE settings SET value = 9 WHERE key = ?", internalsettings.RateLimitKey).Error; errExec != nil {
		t.Fatalf("write integer value: %v", errExec)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}
	store := internalsettings.NewStore()
	if errRefresh := store.Refresh(context.Background(), conn); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}
	if store.RateLimit() != 9 {
		t.Fatalf("expected rate limit 9, got %d", store.RateLimit())
	}
}

func TestOpen_TranslatesDuplicateKey(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "hub-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	first := models.User{Username: "twin", Email: "a@example.com", Password: "hash", Role: models.RoleUser, Enabled: true}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	second := models.User{Username: "twin", Email: "b@example.com", Password: "hash", Role: models.RoleUser, Enabled: true}
	if errCreate := conn.Create(&second).Error; !errors.Is(errCreate, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected gorm.ErrDuplicatedKey, got %v", errCreate)
	}
}

func TestIsSQLiteDSN(t *testing.T) {
	cases := map[string]bool{
		"file:hub.db":                          true,
		"./data/hub.db":                        true,
		":memory:":                             true,
		"postgres://u:p@localhost:5432/hub":    false,
		"host=localhost user=hub dbname=hub":   false,
		"postgresql://u:p@localhost:5432/x.db": false,
	}
	for dsn, want := range cases {
		if got := isSQLiteDSN(dsn); got != want {
			t.Fatalf("isSQLiteDSN(%q)=%v, want %v", dsn, got, want)
		}
	}
}

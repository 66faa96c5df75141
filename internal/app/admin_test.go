package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/storefront-ai/assistant-hub/internal/db"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"github.com/storefront-ai/assistant-hub/internal/security"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "app-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}

func TestCreateAdminUser(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	initialized, err := HasAdmin(ctx, conn)
	if err != nil {
		t.Fatalf("HasAdmin: %v", err)
	}
	if initialized {
		t.Fatalf("expected no admin before creation")
	}

	admin, err := CreateAdminUser(ctx, conn, "root", "Root@Example.com", "password")
	if err != nil {
		t.Fatalf("CreateAdminUser: %v", err)
	}
	if admin.Role != models.RoleAdmin || !admin.Enabled || admin.Email != "root@example.com" {
		t.Fatalf("unexpected admin %+v", admin)
	}
	if !security.CheckPassword(admin.Password, "password") {
		t.Fatalf("expected stored password hash to verify")
	}

	initialized, err = HasAdmin(ctx, conn)
	if err != nil || !initialized {
		t.Fatalf("expected admin present, got %v err=%v", initialized, err)
	}

	if _, err = CreateAdminUser(ctx, conn, "root", "other@example.com", "password"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, err = CreateAdminUser(ctx, conn, "short", "short@example.com", "123"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
}

func TestPromoteAdmin(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	user := models.User{Username: "owner", Email: "owner@example.com", Password: "hash", Role: models.RoleUser, Enabled: true}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	promoted, err := PromoteAdmin(ctx, conn, " OWNER@example.com ")
	if err != nil || !promoted {
		t.Fatalf("expected promotion, got %v err=%v", promoted, err)
	}
	var reloaded models.User
	if errFind := conn.Take(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.Role != models.RoleAdmin {
		t.Fatalf("expected admin role, got %q", reloaded.Role)
	}

	promoted, err = PromoteAdmin(ctx, conn, "owner@example.com")
	if err != nil || promoted {
		t.Fatalf("expected second promotion to be a no-op, got %v err=%v", promoted, err)
	}
	promoted, err = PromoteAdmin(ctx, conn, "nobody@example.com")
	if err != nil || promoted {
		t.Fatalf("expected unknown email to be a no-op, got %v err=%v", promoted, err)
	}
}

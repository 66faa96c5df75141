package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storefront-ai/assistant-hub/internal/models"
	"github.com/storefront-ai/assistant-hub/internal/security"
	"gorm.io/gorm"
)

// ErrAccountExists is returned when the requested admin username or email is taken.
var ErrAccountExists = errors.New("account already exists")

// HasAdmin reports whether at least one admin account exists.
func HasAdmin(ctx context.Context, conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// PromoteAdmin grants the admin role to the enabled account registered with
// email. It reports whether a row changed.
func PromoteAdmin(ctx context.Context, conn *gorm.DB, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, nil
	}
	res := conn.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND role <> ?", email, models.RoleAdmin).
		Updates(map[string]any{"role": models.RoleAdmin, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("promote admin: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CreateAdminUser creates an enabled admin account with a zero balance.
func CreateAdminUser(ctx context.Context, conn *gorm.DB, username, email, password string) (*models.User, error) {
	if conn == nil {
		return nil, fmt.Errorf("open database: nil connection")
	}
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("admin username and a valid email are required")
	}
	if len(password) < security.MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", security.MinPasswordLength)
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return nil, fmt.Errorf("hash password: %w", errHash)
	}

	admin := models.User{
		Username: username,
		Email:    email,
		Password: hashedPassword,
		Role:     models.RoleAdmin,
		Enabled:  true,
	}
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.User{}).
			Where("username = ? OR email = ?", username, email).
			Count(&count).Error; errCount != nil {
			return errCount
		}
		if count > 0 {
			return ErrAccountExists
		}
		return tx.Create(&admin).Error
	})
	if errTx != nil {
		if errors.Is(errTx, ErrAccountExists) {
			return nil, errTx
		}
		return nil, fmt.Errorf("create admin: %w", errTx)
	}
	return &admin, nil
}

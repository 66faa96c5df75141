// Package apiutil holds the response and request helpers shared by API handlers.
package apiutil

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/storefront-ai/assistant-hub/internal/models"
)

// Context keys set by the auth middleware.
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// Pagination bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Fail aborts the request with a failure body.
func Fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// OK writes a success body merged with fields.
func OK(c *gin.Context, status int, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// UserID returns the authenticated user, or 0 outside the auth middleware.
func UserID(c *gin.Context) uint64 {
	if v, ok := c.Get(ContextUserID); ok {
		if id, okID := v.(uint64); okID {
			return id
		}
	}
	return 0
}

// UserRole returns the authenticated user's role.
func UserRole(c *gin.Context) models.Role {
	if v, ok := c.Get(ContextUserRole); ok {
		if role, okRole := v.(models.Role); okRole {
			return role
		}
	}
	return ""
}

// IsAdmin reports whether the caller carries the admin role.
func IsAdmin(c *gin.Context) bool {
	return UserRole(c) == models.RoleAdmin
}

// ParseID reads a positive integer path parameter, writing a 400 on failure.
func ParseID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		Fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// Page reads page and page_size query parameters.
func Page(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(strings.TrimSpace(c.Query("page")))
	if page <= 0 {
		page = 1
	}
	size, _ := strconv.Atoi(strings.TrimSpace(c.Query("page_size")))
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// UserView is the public representation of a user.
func UserView(u *models.User) gin.H {
	return gin.H{
		"id":            u.ID,
		"username":      u.Username,
		"email":         u.Email,
		"role":          u.Role,
		"points":        u.Points,
		"enabled":       u.Enabled,
		"totp_enabled":  u.TOTPSecret != "",
		"last_login_at": u.LastLoginAt,
		"created_at":    u.CreatedAt,
		"updated_at":    u.UpdatedAt,
	}
}

// HistoryView is the public representation of a ledger entry.
func HistoryView(row *models.PointsHistory) gin.H {
	return gin.H{
		"id":           row.ID,
		"points":       row.Points,
		"type":         row.Type,
		"description":  row.Description,
		"balance":      row.Balance,
		"assistant_id": row.AssistantID,
		"created_at":   row.CreatedAt,
	}
}

// AssistantView is the representation of an assistant. Vendor credentials are
// included only when withSecrets is set.
func AssistantView(a *models.Assistant, withSecrets bool) gin.H {
	cfg := gin.H{
		"model_type":  a.Config.ModelType,
		"model":       a.Config.Model,
		"temperature": a.Config.Temperature,
		"max_tokens":  a.Config.MaxTokens,
	}
	if withSecrets {
		cfg["api_key"] = a.Config.APIKey
		cfg["api_url"] = a.Config.APIURL
		cfg["bot_id"] = a.Config.BotID
		cfg["system_prompt"] = a.Config.SystemPrompt
		cfg["extra"] = a.Config.Extra
	}
	return gin.H{
		"id":          a.ID,
		"key":         a.Key,
		"name":        a.Name,
		"description": a.Description,
		"avatar":      a.Avatar,
		"category":    a.Category,
		"sort_order":  a.SortOrder,
		"config":      cfg,
		"points_cost": a.PointsCost,
		"is_active":   a.IsActive,
		"created_at":  a.CreatedAt,
		"updated_at":  a.UpdatedAt,
	}
}

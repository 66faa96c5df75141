package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"github.com/storefront-ai/assistant-hub/internal/settings"
	"github.com/storefront-ai/assistant-hub/internal/store"
)

// PermissionHandler manages per-user assistant overrides.
type PermissionHandler struct {
	store    *store.Store
	settings *settings.Store
}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler(st *store.Store, settingsStore *settings.Store) *PermissionHandler {
	return &PermissionHandler{store: st, settings: settingsStore}
}

// List returns every assistant merged with the user's override, if any.
func (h *PermissionHandler) List(c *gin.Context) {
	userID, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, errUser := h.store.FindUser(ctx, userID); errUser != nil {
		writeStoreError(c, errUser)
		return
	}
	assistants, errList := h.store.ListAssistants(ctx, false)
	if errList != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "list assistants failed")
		return
	}
	perms, errPerms := h.store.ListPermissions(ctx, userID)
	if errPerms != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "list permissions failed")
		return
	}

	honor := h.settings.HonorCustomPointsCost()
	out := make([]gin.H, 0, len(assistants))
	for i := range assistants {
		a := &assistants[i]
		row := gin.H{
			"assistant_id":       a.ID,
			"key":                a.Key,
			"name":               a.Name,
			"is_active":          a.IsActive,
			"points_cost":        a.PointsCost,
			"enabled":            true,
			"custom_points_cost": nil,
			"effective_cost":     a.PointsCost,
			"usage_count":        int64(0),
			"points_spent":       int64(0),
			"last_used_at":       nil,
		}
		if perm, found := perms[a.ID]; found {
			row["enabled"] = perm.Enabled
			row["custom_points_cost"] = perm.CustomPointsCost
			row["usage_count"] = perm.UsageCount
			row["points_spent"] = perm.PointsSpent
			row["last_used_at"] = perm.LastUsedAt
			if honor && perm.CustomPointsCost != nil {
				row["effective_cost"] = *perm.CustomPointsCost
			}
		}
		out = append(out, row)
	}
	apiutil.OK(c, http.StatusOK, gin.H{"permissions": out, "custom_cost_honored": honor})
}

// upsertPermissionRequest edits an override; clear_custom_cost drops the custom cost.
type upsertPermissionRequest struct {
	Enabled          *bool  `json:"enabled"`
	CustomPointsCost *int64 `json:"custom_points_cost"`
	ClearCustomCost  bool   `json:"clear_custom_cost"`
}

// Upsert creates or updates the override for one assistant.
func (h *PermissionHandler) Upsert(c *gin.Context) {
	userID, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	assistantID, ok := apiutil.ParseID(c, "assistantId")
	if !ok {
		return
	}
	var body upsertPermissionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if body.CustomPointsCost != nil && *body.CustomPointsCost < 0 {
		apiutil.Fail(c, http.StatusBadRequest, "custom_points_cost must not be negative")
		return
	}

	ctx := c.Request.Context()
	if _, errUser := h.store.FindUser(ctx, userID); errUser != nil {
		writeStoreError(c, errUser)
		return
	}
	if _, errAssistant := h.store.FindAssistantByID(ctx, assistantID); errAssistant != nil {
		writeStoreError(c, errAssistant)
		return
	}
	perm, errUpsert := h.store.UpsertPermission(ctx, userID, assistantID, store.PermissionUpdate{
		Enabled:          body.Enabled,
		CustomPointsCost: body.CustomPointsCost,
		ClearCustomCost:  body.ClearCustomCost,
	})
	if errUpsert != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "save permission failed")
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"permission": permissionView(perm)})
}

func permissionView(p *models.UserAssistantPermission) gin.H {
	return gin.H{
		"id":                 p.ID,
		"user_id":            p.UserID,
		"assistant_id":       p.AssistantID,
		"enabled":            p.Enabled,
		"custom_points_cost": p.CustomPointsCost,
		"usage_count":        p.UsageCount,
		"points_spent":       p.PointsSpent,
		"last_used_at":       p.LastUsedAt,
	}
}

func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		apiutil.Fail(c, http.StatusNotFound, "user not found")
	case errors.Is(err, store.ErrAssistantNotFound):
		apiutil.Fail(c, http.StatusNotFound, "assistant not found")
	default:
		apiutil.Fail(c, http.StatusInternalServerError, "query failed")
	}
}

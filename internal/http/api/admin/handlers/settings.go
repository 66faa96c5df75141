package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/models"
	internalsettings "github.com/storefront-ai/assistant-hub/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingHandler manages runtime settings.
type SettingHandler struct {
	db       *gorm.DB                // Database handle for settings.
	snapshot *internalsettings.Store // In-memory snapshot refreshed after writes.
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(db *gorm.DB, snapshot *internalsettings.Store) *SettingHandler {
	return &SettingHandler{db: db, snapshot: snapshot}
}

// List returns all settings sorted by key.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "list settings failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatSetting(&rows[i]))
	}
	apiutil.OK(c, http.StatusOK, gin.H{"settings": out})
}

// Get returns a setting by key.
func (h *SettingHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	var setting models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", key).Take(&setting).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			apiutil.Fail(c, http.StatusNotFound, "not found")
			return
		}
		apiutil.Fail(c, http.StatusInternalServerError, "query failed")
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"setting": formatSetting(&setting)})
}

// updateSettingRequest captures the payload for updating a setting.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"` // New JSON value.
}

// Update validates and stores a setting value, then refreshes the snapshot.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		apiutil.Fail(c, http.StatusBadRequest, "invalid key")
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if errValidate := internalsettings.ValidateValue(key, body.Value); errValidate != nil {
		apiutil.Fail(c, http.StatusBadRequest, errValidate.Error())
		return
	}

	ctx := c.Request.Context()
	setting := models.Setting{
		Key:       key,
		Value:     models.JSONValue(body.Value),
		UpdatedAt: time.Now().UTC(),
	}
	if errSave := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error; errSave != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "update failed")
		return
	}
	if errRefresh := h.snapshot.Refresh(ctx, h.db); errRefresh != nil {
		log.WithError(errRefresh).Error("settings: refresh snapshot failed")
		apiutil.Fail(c, http.StatusInternalServerError, "refresh settings snapshot failed")
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"setting": formatSetting(&setting)})
}

// formatSetting formats a setting row into response JSON.
func formatSetting(s *models.Setting) gin.H {
	return gin.H{
		"key":        s.Key,
		"value":      json.RawMessage(s.Value),
		"updated_at": s.UpdatedAt,
	}
}

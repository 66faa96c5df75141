package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"gorm.io/gorm"
)

const (
	inviteCodeLength = 12
	maxInviteBatch   = 100
)

// InviteCodeHandler manages registration invite codes.
type InviteCodeHandler struct {
	db *gorm.DB
}

// NewInviteCodeHandler constructs an InviteCodeHandler.
func NewInviteCodeHandler(db *gorm.DB) *InviteCodeHandler {
	return &InviteCodeHandler{db: db}
}

type createInviteCodesRequest struct {
	Count        int `json:"count"`
	ExpiresHours int `json:"expires_hours"` // 0 means no expiry.
}

// Create generates a batch of single-use codes.
func (h *InviteCodeHandler) Create(c *gin.Context) {
	var body createInviteCodesRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Count <= 0 {
		body.Count = 1
	}
	if body.Count > maxInviteBatch {
		apiutil.Fail(c, http.StatusBadRequest, "count must not exceed 100")
		return
	}
	if body.ExpiresHours < 0 {
		apiutil.Fail(c, http.StatusBadRequest, "expires_hours must not be negative")
		return
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if body.ExpiresHours > 0 {
		t := now.Add(time.Duration(body.ExpiresHours) * time.Hour)
		expiresAt = &t
	}
	codes := make([]models.InviteCode, 0, body.Count)
	for i := 0; i < body.Count; i++ {
		codes = append(codes, models.InviteCode{
			Code:      newInviteCode(),
			CreatedBy: apiutil.UserID(c),
			ExpiresAt: expiresAt,
			IsActive:  true,
		})
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&codes).Error; errCreate != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "create invite codes failed")
		return
	}
	out := make([]gin.H, 0, len(codes))
	for i := range codes {
		out = append(out, inviteCodeView(&codes[i], now))
	}
	apiutil.OK(c, http.StatusCreated, gin.H{"invite_codes": out})
}

// List returns invite codes, newest first. status=unused filters to redeemable codes.
func (h *InviteCodeHandler) List(c *gin.Context) {
	page, size := apiutil.Page(c)
	now := time.Now().UTC()
	q := h.db.WithContext(c.Request.Context()).Model(&models.InviteCode{})
	switch strings.TrimSpace(c.Query("status")) {
	case "unused":
		q = q.Where("used_by IS NULL AND is_active = ?", true).
			Where("expires_at IS NULL OR expires_at > ?", now)
	case "used":
		q = q.Where("used_by IS NOT NULL")
	}

	var total int64
	if errCount := q.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "count invite codes failed")
		return
	}
	var rows []models.InviteCode
	if errFind := q.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&rows).Error; errFind != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "list invite codes failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, inviteCodeView(&rows[i], now))
	}
	apiutil.OK(c, http.StatusOK, gin.H{"invite_codes": out, "total": total, "page": page, "page_size": size})
}

// Delete removes an unused code. Used codes are kept for audit.
func (h *InviteCodeHandler) Delete(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("id = ? AND used_by IS NULL", id).Delete(&models.InviteCode{})
	if res.Error != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "delete failed")
		return
	}
	if res.RowsAffected == 0 {
		apiutil.Fail(c, http.StatusNotFound, "not found or already used")
		return
	}
	c.Status(http.StatusNoContent)
}

// newInviteCode derives an uppercase code from a random UUID.
func newInviteCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:inviteCodeLength])
}

func inviteCodeView(code *models.InviteCode, now time.Time) gin.H {
	return gin.H{
		"id":         code.ID,
		"code":       code.Code,
		"created_by": code.CreatedBy,
		"used_by":    code.UsedBy,
		"used_at":    code.UsedAt,
		"expires_at": code.ExpiresAt,
		"is_active":  code.IsActive,
		"usable":     code.Usable(now),
		"created_at": code.CreatedAt,
	}
}

package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront-ai/assistant-hub/internal/events"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/ledger"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"github.com/storefront-ai/assistant-hub/internal/security"
	"github.com/storefront-ai/assistant-hub/internal/settings"
	"gorm.io/gorm"
)

// streamPingInterval keeps idle SSE connections alive through proxies.
const streamPingInterval = 25 * time.Second

// ProfileHandler serves the signed-in user's own account.
type ProfileHandler struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	hub      *events.Hub
	settings *settings.Store
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(db *gorm.DB, l *ledger.Ledger, hub *events.Hub, st *settings.Store) *ProfileHandler {
	return &ProfileHandler{db: db, ledger: l, hub: hub, settings: st}
}

func (h *ProfileHandler) loadUser(c *gin.Context) (*models.User, bool) {
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Take(&user, apiutil.UserID(c)).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			apiutil.Fail(c, http.StatusNotFound, "user not found")
			return nil, false
		}
		apiutil.Fail(c, http.StatusInternalServerError, "query user failed")
		return nil, false
	}
	return &user, true
}

// Me returns the caller's profile and balance.
func (h *ProfileHandler) Me(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"user": apiutil.UserView(user)})
}

// History lists the caller's ledger entries.
func (h *ProfileHandler) History(c *gin.Context) {
	page, size := apiutil.Page(c)
	result, errHistory := h.ledger.History(c.Request.Context(), apiutil.UserID(c), page, size)
	if errHistory != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "list history failed")
		return
	}
	items := make([]gin.H, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, apiutil.HistoryView(&result.Items[i]))
	}
	apiutil.OK(c, http.StatusOK, gin.H{
		"items":     items,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
	})
}

// Stream pushes a "points" event whenever the caller's balance changes.
func (h *ProfileHandler) Stream(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	updates, cancel := h.hub.Subscribe(user.ID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("points", events.PointsUpdate{UserID: user.ID, Points: user.Points, At: time.Now().UTC()})
	c.Writer.Flush()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case update, open := <-updates:
			if !open {
				return false
			}
			c.SSEvent("points", update)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		}
	})
}

// PrepareTOTP returns a fresh secret for the caller to enrol in an authenticator.
func (h *ProfileHandler) PrepareTOTP(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	if user.TOTPSecret != "" {
		apiutil.Fail(c, http.StatusConflict, "totp already enabled")
		return
	}
	enrollment, errEnroll := security.NewTOTPEnrollment(h.settings.SiteName(), user.Username)
	if errEnroll != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "generate totp secret failed")
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"secret": enrollment.Secret, "url": enrollment.URL})
}

type confirmTOTPRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

// ConfirmTOTP enables TOTP once the caller proves possession of the secret.
func (h *ProfileHandler) ConfirmTOTP(c *gin.Context) {
	var body confirmTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	secret := strings.TrimSpace(body.Secret)
	if secret == "" || !security.ValidateTOTP(secret, strings.TrimSpace(body.Code)) {
		apiutil.Fail(c, http.StatusBadRequest, "invalid totp code")
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ? AND (totp_secret IS NULL OR totp_secret = '')", apiutil.UserID(c)).
		Updates(map[string]any{"totp_secret": secret, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "enable totp failed")
		return
	}
	if res.RowsAffected == 0 {
		apiutil.Fail(c, http.StatusConflict, "totp already enabled")
		return
	}
	apiutil.OK(c, http.StatusOK, nil)
}

type disableTOTPRequest struct {
	Code string `json:"code"`
}

// DisableTOTP turns TOTP off after checking a current code.
func (h *ProfileHandler) DisableTOTP(c *gin.Context) {
	var body disableTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	if user.TOTPSecret == "" {
		apiutil.Fail(c, http.StatusBadRequest, "totp not enabled")
		return
	}
	if !security.ValidateTOTP(user.TOTPSecret, strings.TrimSpace(body.Code)) {
		apiutil.Fail(c, http.StatusBadRequest, "invalid totp code")
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"totp_secret": "", "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "disable totp failed")
		return
	}
	apiutil.OK(c, http.StatusOK, nil)
}

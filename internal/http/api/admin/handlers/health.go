package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"gorm.io/gorm"
)

// HealthHandler reports liveness of the API and its database.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz pings the database.
func (h *HealthHandler) Healthz(c *gin.Context) {
	sqlDB, errDB := h.db.DB()
	if errDB != nil {
		apiutil.Fail(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if errPing := sqlDB.PingContext(ctx); errPing != nil {
		apiutil.Fail(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"status": "ok"})
}

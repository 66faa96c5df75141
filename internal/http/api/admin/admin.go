package admin

import (
	"github.com/gin-gonic/gin"
	handlers "github.com/storefront-ai/assistant-hub/internal/http/api/admin/handlers"
	"github.com/storefront-ai/assistant-hub/internal/ledger"
	"github.com/storefront-ai/assistant-hub/internal/settings"
	"github.com/storefront-ai/assistant-hub/internal/store"
	"gorm.io/gorm"
)

// RegisterHealthRoutes registers unauthenticated probes.
func RegisterHealthRoutes(r gin.IRouter, db *gorm.DB) {
	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)
}

// RegisterAdminRoutes registers admin handlers on a group already guarded by
// user auth and the admin role check.
func RegisterAdminRoutes(authed gin.IRouter, db *gorm.DB, l *ledger.Ledger, st *store.Store, snapshot *settings.Store) {
	userHandler := handlers.NewUserHandler(db, l)
	authed.POST("/users", userHandler.Create)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id", userHandler.Update)
	authed.POST("/users/:id/disable", userHandler.Disable)
	authed.POST("/users/:id/enable", userHandler.Enable)
	authed.PUT("/users/:id/password", userHandler.ChangePassword)
	authed.POST("/users/:id/points", userHandler.GrantPoints)
	authed.GET("/users/:id/points-history", userHandler.History)

	permissionHandler := handlers.NewPermissionHandler(st, snapshot)
	authed.GET("/users/:id/assistant-permissions", permissionHandler.List)
	authed.PUT("/users/:id/assistant-permissions/:assistantId", permissionHandler.Upsert)

	assistantHandler := handlers.NewAssistantHandler(db)
	authed.POST("/assistants", assistantHandler.Create)
	authed.PUT("/assistants/:id", assistantHandler.Update)
	authed.DELETE("/assistants/:id", assistantHandler.Delete)

	inviteCodeHandler := handlers.NewInviteCodeHandler(db)
	authed.POST("/invite-codes", inviteCodeHandler.Create)
	authed.GET("/invite-codes", inviteCodeHandler.List)
	authed.DELETE("/invite-codes/:id", inviteCodeHandler.Delete)

	settingHandler := handlers.NewSettingHandler(db, snapshot)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
}

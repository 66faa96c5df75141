package front

import (
	"github.com/gin-gonic/gin"
	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/dispatch"
	"github.com/storefront-ai/assistant-hub/internal/events"
	"github.com/storefront-ai/assistant-hub/internal/http/api/front/handlers"
	"github.com/storefront-ai/assistant-hub/internal/ledger"
	"github.com/storefront-ai/assistant-hub/internal/settings"
	"github.com/storefront-ai/assistant-hub/internal/store"
	"github.com/storefront-ai/assistant-hub/internal/uploads"
	"gorm.io/gorm"
)

// Deps are the services the user-facing handlers need.
type Deps struct {
	DB         *gorm.DB
	JWT        config.JWTConfig
	Analysis   config.AnalysisConfig
	Ledger     *ledger.Ledger
	Store      *store.Store
	Settings   *settings.Store
	Hub        *events.Hub
	Dispatcher *dispatch.Dispatcher
	Uploads    *uploads.Store
}

// RegisterPublicRoutes registers routes that need no token.
func RegisterPublicRoutes(public gin.IRouter, deps Deps) {
	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.Ledger, deps.Settings)
	public.POST("/auth/register", authHandler.Register)
	public.POST("/auth/login", authHandler.Login)
}

// RegisterFrontRoutes registers routes for signed-in users. dispatchMiddleware
// guards the endpoints that call providers or store uploads.
func RegisterFrontRoutes(authed gin.IRouter, deps Deps, dispatchMiddleware ...gin.HandlerFunc) {
	profileHandler := handlers.NewProfileHandler(deps.DB, deps.Ledger, deps.Hub, deps.Settings)
	authed.GET("/users/me", profileHandler.Me)
	authed.GET("/users/me/points-history", profileHandler.History)
	authed.GET("/users/me/points/stream", profileHandler.Stream)
	authed.POST("/users/me/totp/prepare", profileHandler.PrepareTOTP)
	authed.POST("/users/me/totp/confirm", profileHandler.ConfirmTOTP)
	authed.POST("/users/me/totp/disable", profileHandler.DisableTOTP)

	assistantHandler := handlers.NewAssistantHandler(deps.Store)
	authed.GET("/assistants", assistantHandler.List)
	authed.GET("/assistants/:key", assistantHandler.Get)

	limited := authed.Group("", dispatchMiddleware...)
	dispatchHandler := handlers.NewDispatchHandler(deps.Dispatcher, deps.Analysis)
	limited.POST("/assistants/:key/chat", dispatchHandler.Chat)
	limited.POST("/assistants/:key/analyze", dispatchHandler.Analyze)

	uploadHandler := handlers.NewUploadHandler(deps.Uploads)
	limited.POST("/upload/image", uploadHandler.Image)
}

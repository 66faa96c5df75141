// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/http/api/admin"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/http/api/front"
	"github.com/storefront-ai/assistant-hub/internal/ratelimit"
	"github.com/storefront-ai/assistant-hub/internal/uploads"
)

// PathPrefix is the mount point of every API route.
const PathPrefix = "/api"

// Deps wires the router to the application services.
type Deps struct {
	front.Deps
	Debug       bool
	CORS        config.CORSConfig
	RateLimiter *ratelimit.Manager
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(deps Deps) *gin.Engine {
	engine := gin.New()
	engine.Use(recovery(deps.Debug), requestLogger(), corsMiddleware(deps.CORS))
	RegisterRoutes(engine, deps)
	return engine
}

// RegisterRoutes mounts the API on engine.
func RegisterRoutes(engine *gin.Engine, deps Deps) {
	if deps.Uploads != nil {
		engine.Static(uploads.URLPrefix, deps.Uploads.Dir())
	}
	engine.NoRoute(func(c *gin.Context) {
		apiutil.Fail(c, http.StatusNotFound, "route not found")
	})

	group := engine.Group(PathPrefix)
	admin.RegisterHealthRoutes(group, deps.DB)
	front.RegisterPublicRoutes(group, deps.Deps)

	authed := group.Group("", userAuthMiddleware(deps.DB, deps.JWT))
	front.RegisterFrontRoutes(authed, deps.Deps,
		rateLimitMiddleware(deps.RateLimiter, deps.Settings.RateLimit, "dispatch"))

	adminGroup := authed.Group("", requireAdmin())
	admin.RegisterAdminRoutes(adminGroup, deps.DB, deps.Ledger, deps.Store, deps.Settings)
}

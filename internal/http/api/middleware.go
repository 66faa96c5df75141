package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"github.com/storefront-ai/assistant-hub/internal/ratelimit"
	"github.com/storefront-ai/assistant-hub/internal/security"
	"gorm.io/gorm"
)

// requestLogger writes one logrus line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if userID := apiutil.UserID(c); userID != 0 {
			entry = entry.WithField("user_id", userID)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}

// recovery turns panics into a 500 body. Debug builds include the panic value.
func recovery(debug bool) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.WithField("path", c.Request.URL.Path).Errorf("panic recovered: %v", recovered)
		message := "internal server error"
		if debug {
			message = fmt.Sprintf("internal server error: %v", recovered)
		}
		apiutil.Fail(c, http.StatusInternalServerError, message)
	})
}

// corsMiddleware allows the configured browser origins, or any origin when none are set.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Retry-After", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	return cors.New(corsCfg)
}

// userAuthMiddleware validates user JWTs and loads the caller into the context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apiutil.Fail(c, http.StatusUnauthorized, "missing authorization header")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			apiutil.Fail(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			apiutil.Fail(c, http.StatusUnauthorized, "empty token")
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			if errors.Is(errJWT, security.ErrTokenExpired) {
				apiutil.Fail(c, http.StatusUnauthorized, "token expired")
				return
			}
			apiutil.Fail(c, http.StatusUnauthorized, "invalid token")
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).
			Select("id", "role", "enabled").
			Take(&user, claims.UserID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				apiutil.Fail(c, http.StatusUnauthorized, "user not found")
				return
			}
			apiutil.Fail(c, http.StatusInternalServerError, "load user failed")
			return
		}
		if !user.Enabled {
			apiutil.Fail(c, http.StatusForbidden, "user disabled")
			return
		}

		c.Set(apiutil.ContextUserID, user.ID)
		c.Set(apiutil.ContextUserRole, user.Role)
		c.Next()
	}
}

// requireAdmin rejects callers without the admin role.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !apiutil.IsAdmin(c) {
			apiutil.Fail(c, http.StatusForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware enforces the per-user request budget returned by limitFn.
func rateLimitMiddleware(manager *ratelimit.Manager, limitFn func() int, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil || limitFn == nil {
			c.Next()
			return
		}
		limit := limitFn()
		key := ratelimit.KeyForUser(apiutil.UserID(c), scope)
		if limit <= 0 || key == "" {
			c.Next()
			return
		}
		result, errAllow := manager.Allow(c.Request.Context(), key, limit)
		if errAllow != nil {
			log.WithError(errAllow).Warn("rate limit: check failed, allowing request")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(time.Until(result.Reset).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			apiutil.Fail(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/db"
	"github.com/storefront-ai/assistant-hub/internal/dispatch"
	"github.com/storefront-ai/assistant-hub/internal/events"
	"github.com/storefront-ai/assistant-hub/internal/http/api"
	"github.com/storefront-ai/assistant-hub/internal/http/api/front"
	"github.com/storefront-ai/assistant-hub/internal/ledger"
	"github.com/storefront-ai/assistant-hub/internal/provider"
	"github.com/storefront-ai/assistant-hub/internal/ratelimit"
	internalsettings "github.com/storefront-ai/assistant-hub/internal/settings"
	"github.com/storefront-ai/assistant-hub/internal/store"
	"github.com/storefront-ai/assistant-hub/internal/uploads"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 15 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conn, err := openAndMigrate(ctx, cfg)
	if err != nil {
		return err
	}
	return db.Close(conn)
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	conn, err := openAndMigrate(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := db.Close(conn); errClose != nil {
			log.WithError(errClose).Warn("close database")
		}
	}()

	snapshot := internalsettings.NewStore()
	if errRefresh := snapshot.Refresh(ctx, conn); errRefresh != nil {
		return fmt.Errorf("load settings: %w", errRefresh)
	}
	if cfg.AdminEmail != "" {
		promoted, errPromote := PromoteAdmin(ctx, conn, cfg.AdminEmail)
		if errPromote != nil {
			return errPromote
		}
		if promoted {
			log.WithField("email", cfg.AdminEmail).Info("promoted configured admin account")
		}
	}

	hub := events.NewHub()
	var (
		sink        events.Sink = hub
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if errClose := redisClient.Close(); errClose != nil {
				log.WithError(errClose).Warn("close redis client")
			}
		}()
		// Every instance, this one included, receives updates through the relay.
		channel := events.ChannelName(cfg.Redis.Prefix)
		sink = events.NewRedisSink(redisClient, channel)
		relay := events.NewRelay(redisClient, channel, hub)
		go func() {
			if errRelay := relay.Run(ctx); errRelay != nil {
				log.WithError(errRelay).Error("points relay stopped")
			}
		}()
		log.WithField("addr", cfg.Redis.Addr).Info("redis enabled for events and rate limits")
	}

	st := store.New(conn)
	l := ledger.New(conn, sink)
	factory := provider.NewFactory(cfg.Providers, nil)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := api.NewRouter(api.Deps{
		Deps: front.Deps{
			DB:         conn,
			JWT:        cfg.JWT,
			Analysis:   cfg.Analysis,
			Ledger:     l,
			Store:      st,
			Settings:   snapshot,
			Hub:        hub,
			Dispatcher: dispatch.New(st, l, factory, snapshot),
			Uploads:    uploads.New(cfg.Uploads),
		},
		Debug:       cfg.Debug,
		CORS:        cfg.CORS,
		RateLimiter: ratelimit.NewManager(time.Now, redisClient, cfg.Redis.Prefix),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting %s on %s (config=%s)", snapshot.SiteName(), srv.Addr, cfg.ConfigPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	log.Info("server stopped")
	return nil
}

func openAndMigrate(ctx context.Context, cfg config.AppConfig) (*gorm.DB, error) {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if errMigrate := db.MigrateWithDefaults(conn.WithContext(ctx), db.Defaults{RegisterPoints: cfg.Points.Register}); errMigrate != nil {
		_ = db.Close(conn)
		return nil, fmt.Errorf("migrate database: %w", errMigrate)
	}
	return conn, nil
}

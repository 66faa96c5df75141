package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/app"
	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/db"
	"github.com/storefront-ai/assistant-hub/internal/logging"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run parses flags, loads config, and dispatches to serve, migrate or create-admin.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 0, "listen port, overrides config and PORT")
	envFile := fs.String("env-file", ".env", "dotenv file loaded before the config")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errEnv := godotenv.Load(*envFile); errEnv != nil && !isNotExist(errEnv) {
		return fmt.Errorf("load env file: %w", errEnv)
	}

	path := strings.TrimSpace(*cfgPath)
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if *port != 0 {
		if *port < 0 || *port > 65535 {
			return fmt.Errorf("invalid port: %d", *port)
		}
		cfg.Port = *port
	}

	closeLog, errLog := logging.Setup(cfg.Logging)
	if errLog != nil {
		return errLog
	}
	defer func() { _ = closeLog() }()

	rest := fs.Args()
	command := "serve"
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}
	switch command {
	case "serve":
		return app.RunServer(ctx, cfg)
	case "migrate":
		if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	case "create-admin":
		return createAdmin(ctx, cfg, rest)
	default:
		return fmt.Errorf("unknown command %q (want serve, migrate or create-admin)", command)
	}
}

func createAdmin(ctx context.Context, cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	username := fs.String("username", "admin", "admin username")
	email := fs.String("email", cfg.AdminEmail, "admin email")
	password := fs.String("password", "", "admin password (min 6 characters)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
		return errMigrate
	}
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close(conn) }()

	admin, errCreate := app.CreateAdminUser(ctx, conn, *username, *email, *password)
	if errCreate != nil {
		return errCreate
	}
	log.WithFields(log.Fields{"id": admin.ID, "username": admin.Username}).Info("admin account created")
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

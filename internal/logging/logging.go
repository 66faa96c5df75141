package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the standard logrus logger from cfg and returns a closer
// for the rotating file writer (a no-op when logging to stdout only).
func Setup(cfg config.LoggingConfig) (func() error, error) {
	level, errLevel := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errLevel != nil {
		return nil, fmt.Errorf("logging: parse level %q: %w", cfg.Level, errLevel)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if !cfg.ToFile {
		log.SetOutput(os.Stdout)
		return func() error { return nil }, nil
	}

	path := strings.TrimSpace(cfg.File)
	if errMkdir := os.MkdirAll(filepath.Dir(path), 0o755); errMkdir != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", errMkdir)
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator.Close, nil
}

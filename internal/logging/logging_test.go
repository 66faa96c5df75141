package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/config"
)

func TestSetup_WritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hub.log")
	closeFn, err := Setup(config.LoggingConfig{Level: "debug", ToFile: true, File: path})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() {
		log.SetOutput(os.Stdout)
		log.SetLevel(log.InfoLevel)
	})

	log.WithField("user_id", 7).Debug("ledger entry applied")
	if errClose := closeFn(); errClose != nil {
		t.Fatalf("close: %v", errClose)
	}

	data, errRead := os.ReadFile(path)
	if errRead != nil {
		t.Fatalf("read log: %v", errRead)
	}
	if !strings.Contains(string(data), "ledger entry applied") {
		t.Fatalf("expected log line in file, got %q", string(data))
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
}

func TestSetup_InvalidLevel(t *testing.T) {
	if _, err := Setup(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackmichael/bsky-autoposter/internal/activitylog"
	"github.com/blackmichael/bsky-autoposter/internal/config"
)

func TestNewWire(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := &config.Config{
		Bluesky:  config.BlueskyConfig{PDS: "http://127.0.0.1:0"},
		Log:      config.LogConfig{Level: "success", File: filepath.Join(dir, "activity.log")},
		Publish:  config.PublishConfig{MaxAttempts: 3},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "autoposter.db"), SessionSecret: "s3cret"},
		Server:   config.ServerConfig{Port: 3000},
	}

	var stdout bytes.Buffer
	w, err := NewWire(cfg, &stdout)
	if err != nil {
		t.Fatalf("NewWire() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })

	w.Logger.Debug("debug line")
	w.Logger.Log(context.Background(), activitylog.LevelSuccess, "success line")

	b, err := w.ActivityLog.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if strings.Contains(string(b), "debug line") || !strings.Contains(string(b), "[SUCCESS] success line") {
		t.Errorf("activity log = %q", b)
	}
	if !strings.Contains(stdout.String(), `"level":"SUCCESS"`) {
		t.Errorf("stdout = %q, want the success level by name", stdout.String())
	}

	if _, err := w.Registry.Gather(); err != nil {
		t.Errorf("Gather() error = %v", err)
	}

	if err := w.Publisher.TestConnection(context.Background(), "", ""); err == nil {
		t.Error("TestConnection() without credentials succeeded")
	}
}

package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"actionflow/internal/app"
	"actionflow/internal/config"
	"actionflow/internal/db"
	"actionflow/internal/engine"
	"actionflow/internal/migrate"
)

func TestNewLoggerLevelsAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := app.NewLogger("WARN", "json", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "task", "t1")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("expected json record: %v", err)
	}
	if rec["msg"] != "shown" || rec["task"] != "t1" {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["source"]; ok {
		t.Fatalf("source should only be added at debug level: %v", rec)
	}

	buf.Reset()
	logger, err = app.NewLogger("debug", "text", &buf)
	if err != nil {
		t.Fatalf("new debug logger: %v", err)
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "source=") {
		t.Fatalf("expected source location at debug, got %q", buf.String())
	}

	if _, err := app.NewLogger("bogus", "text", &buf); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := app.NewLogger("info", "yaml", &buf); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func openEngine(t *testing.T, workspace string) engine.Engine {
	t.Helper()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, nil)
}

func TestResolveSeedsProjectFromWorkspaceFile(t *testing.T) {
	ctx := context.Background()
	workspace := t.TempDir()
	e := openEngine(t, workspace)

	yml := strings.Replace(config.GenerateDefault("media"), "on_all_completed: pending_approval", "on_all_completed: approved", 1)
	if err := os.WriteFile(filepath.Join(workspace, "actionflow.yml"), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	projectID, cfg, err := app.ResolveProjectAndConfig(ctx, workspace, "", "tester", e)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if projectID != "media" || cfg.Tasks.OnAllCompleted != "approved" {
		t.Fatalf("expected media project seeded from file, got %s %+v", projectID, cfg.Tasks)
	}
	stored, err := e.Repo.GetProjectConfig(ctx, "media")
	if err != nil {
		t.Fatalf("stored config: %v", err)
	}
	if stored.Tasks.OnAllCompleted != "approved" {
		t.Fatalf("stored config not seeded from file: %+v", stored.Tasks)
	}

	// the only project is picked without an override
	again, _, err := app.ResolveProjectAndConfig(ctx, workspace, "", "tester", e)
	if err != nil || again != "media" {
		t.Fatalf("expected media again, got %q %v", again, err)
	}
}

func TestResolveRequiresProjectWhenAmbiguous(t *testing.T) {
	workspace := t.TempDir()
	e := openEngine(t, workspace)
	if _, _, err := app.ResolveProjectAndConfig(context.Background(), workspace, "", "tester", e); err == nil {
		t.Fatalf("expected error without project or config file")
	}
	projectID, cfg, err := app.ResolveProjectAndConfig(context.Background(), workspace, "ops", "tester", e)
	if err != nil {
		t.Fatalf("resolve with override: %v", err)
	}
	if projectID != "ops" || cfg.Project.ID != "ops" {
		t.Fatalf("unexpected %s %+v", projectID, cfg.Project)
	}
}

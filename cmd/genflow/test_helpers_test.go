package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"genflow/internal/config"
	"genflow/internal/run"
	"genflow/internal/runstore"
	"genflow/internal/testsupport"
)

// writeCLIConfig writes a minimal config file pointing at per-test temp
// directories and returns its path.
func writeCLIConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[service]
base_url = "http://127.0.0.1:8000"

[paths]
data_dir = %q
log_dir = %q
`, filepath.Join(base, "data"), filepath.Join(base, "logs"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

// runCLI executes the root command with the provided args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// seedRun stores a snapshot through a short-lived store so CLI commands can
// restore it.
func seedRun(t *testing.T, configPath string, snap run.Snapshot) {
	t.Helper()

	cfg := loadTestConfig(t, configPath)
	store, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	defer store.Close()
	if err := store.SaveSnapshot(t.Context(), snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
}

func seededSnapshot(runID string) run.Snapshot {
	return run.Snapshot{
		RunID:       runID,
		ActiveStage: run.StageAvatar,
		Reached:     run.StageAvatar,
		Script: &run.Script{
			VideoTitle:    "Desk Lamp Ad",
			TotalDuration: 24,
			Scenes: []run.Scene{
				{SceneNumber: 1, SceneType: "hook", DurationSeconds: 8, ScriptDialogue: "Meet the lamp."},
				{SceneNumber: 2, SceneType: "demo", DurationSeconds: 8, ScriptDialogue: "Watch it glow."},
				{SceneNumber: 3, SceneType: "cta", DurationSeconds: 8, ScriptDialogue: "Get yours today."},
			},
		},
		AvatarVariants: []run.AvatarVariant{
			{Index: 0, ImagePath: "/avatars/a.png"},
			{Index: 1, ImagePath: "/avatars/b.png"},
		},
		Log: []run.LogEntry{
			{Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), Level: run.LevelInfo, Message: "Run started"},
		},
	}
}

func loadTestConfig(t *testing.T, configPath string) *config.Config {
	t.Helper()
	base := filepath.Dir(configPath)
	cfg := testsupport.NewConfig(t)
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	return cfg
}

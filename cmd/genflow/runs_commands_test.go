package main

import (
	"encoding/json"
	"strings"
	"testing"

	"genflow/internal/run"
)

func TestRunsListEmpty(t *testing.T) {
	configPath := writeCLIConfig(t)

	out, err := runCLI(t, "--config", configPath, "runs", "list")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(out, "No stored runs") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunsListJSON(t *testing.T) {
	configPath := writeCLIConfig(t)
	seedRun(t, configPath, seededSnapshot("run-1"))

	out, err := runCLI(t, "--config", configPath, "runs", "list", "--json")
	if err != nil {
		t.Fatalf("runs list --json: %v", err)
	}

	var summaries []struct {
		RunID      string `json:"RunID"`
		VideoTitle string `json:"VideoTitle"`
	}
	if err := json.Unmarshal([]byte(out), &summaries); err != nil {
		t.Fatalf("parse output: %v\n%s", err, out)
	}
	if len(summaries) != 1 || summaries[0].RunID != "run-1" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
	if summaries[0].VideoTitle != "Desk Lamp Ad" {
		t.Fatalf("unexpected title: %q", summaries[0].VideoTitle)
	}
}

func TestRunsRemove(t *testing.T) {
	configPath := writeCLIConfig(t)
	seedRun(t, configPath, seededSnapshot("run-1"))

	if _, err := runCLI(t, "--config", configPath, "runs", "rm", "run-1"); err != nil {
		t.Fatalf("runs rm: %v", err)
	}
	if _, err := runCLI(t, "--config", configPath, "runs", "rm", "run-1"); err == nil {
		t.Fatal("expected error removing missing run")
	}
}

func TestStatusJSONRestoresLatestRun(t *testing.T) {
	configPath := writeCLIConfig(t)
	seedRun(t, configPath, seededSnapshot("run-1"))

	out, err := runCLI(t, "--config", configPath, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}

	var snap run.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("parse snapshot: %v\n%s", err, out)
	}
	if snap.RunID != "run-1" {
		t.Fatalf("unexpected run id: %q", snap.RunID)
	}
	if snap.ActiveStage != run.StageAvatar {
		t.Fatalf("unexpected stage: %v", snap.ActiveStage)
	}
}

func TestStatusWithoutRuns(t *testing.T) {
	configPath := writeCLIConfig(t)

	if _, err := runCLI(t, "--config", configPath, "status"); err == nil {
		t.Fatal("expected error when no run exists")
	}
}

func TestRunFlagSelectsRun(t *testing.T) {
	configPath := writeCLIConfig(t)
	seedRun(t, configPath, seededSnapshot("run-old"))
	other := seededSnapshot("run-new")
	other.ActiveStage = run.StageVideo
	seedRun(t, configPath, other)

	out, err := runCLI(t, "--config", configPath, "--run", "run-old", "status", "--json")
	if err != nil {
		t.Fatalf("status --run: %v", err)
	}
	var snap run.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	if snap.RunID != "run-old" {
		t.Fatalf("expected run-old, got %q", snap.RunID)
	}
}

func TestResumeRemembersRun(t *testing.T) {
	configPath := writeCLIConfig(t)
	seedRun(t, configPath, seededSnapshot("run-old"))
	seedRun(t, configPath, seededSnapshot("run-new"))

	if _, err := runCLI(t, "--config", configPath, "resume", "run-old"); err != nil {
		t.Fatalf("resume: %v", err)
	}

	out, err := runCLI(t, "--config", configPath, "status", "--json")
	if err != nil {
		t.Fatalf("status after resume: %v", err)
	}
	var snap run.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	if snap.RunID != "run-old" {
		t.Fatalf("resume did not stick, got %q", snap.RunID)
	}
}

package runstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"genflow/internal/run"
	"genflow/internal/runstore"
	"genflow/internal/testsupport"
)

func sampleSnapshot(runID string) run.Snapshot {
	return run.Snapshot{
		RunID:       runID,
		ActiveStage: run.StageStoryboard,
		Reached:     run.StageStoryboard,
		Script: &run.Script{
			VideoTitle: "Desk Lamp Ad",
			Scenes: []run.Scene{
				{SceneNumber: 1, ScriptDialogue: "Meet the lamp."},
				{SceneNumber: 2, ScriptDialogue: "See it shine."},
			},
		},
		Log: []run.LogEntry{
			{Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), Level: run.LevelInfo, Message: "Run started"},
			{Timestamp: time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC), Level: run.LevelSuccess, Message: "Script generated successfully"},
		},
	}
}

func TestSaveSnapshotRoundTrip(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	snap := sampleSnapshot("run-1")
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RunID != snap.RunID || got.ActiveStage != snap.ActiveStage || got.Reached != snap.Reached {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	if got.Script == nil || got.Script.VideoTitle != "Desk Lamp Ad" {
		t.Fatalf("script not preserved: %+v", got.Script)
	}
	if len(got.Log) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(got.Log))
	}
}

func TestSaveSnapshotRequiresRunID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	if err := store.SaveSnapshot(context.Background(), run.Snapshot{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestSaveSnapshotUpsertPreservesCreation(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	snap := sampleSnapshot("run-1")
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("first SaveSnapshot: %v", err)
	}
	first, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	snap.ActiveStage = run.StageVideo
	snap.FinalVideoPath = "/out/final.mp4"
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("second SaveSnapshot: %v", err)
	}

	after, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(after) != 1 {
		t.Fatalf("expected single run, got %d", len(after))
	}
	if !after[0].CreatedAt.Equal(first[0].CreatedAt) {
		t.Fatalf("created_at changed on upsert: %v -> %v", first[0].CreatedAt, after[0].CreatedAt)
	}
	if after[0].ActiveStage != run.StageVideo {
		t.Fatalf("active stage not updated: %v", after[0].ActiveStage)
	}
	if after[0].FinalVideoPath != "/out/final.mp4" {
		t.Fatalf("final video path not updated: %q", after[0].FinalVideoPath)
	}
}

func TestGetMissingRun(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, runstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdersByRecency(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, sampleSnapshot("run-old")); err != nil {
		t.Fatalf("SaveSnapshot run-old: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := store.SaveSnapshot(ctx, sampleSnapshot("run-new")); err != nil {
		t.Fatalf("SaveSnapshot run-new: %v", err)
	}

	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(summaries))
	}
	if summaries[0].RunID != "run-new" || summaries[1].RunID != "run-old" {
		t.Fatalf("unexpected order: %s, %s", summaries[0].RunID, summaries[1].RunID)
	}
	if summaries[0].VideoTitle != "Desk Lamp Ad" {
		t.Fatalf("video title not denormalized: %q", summaries[0].VideoTitle)
	}
}

func TestDeleteRemovesRunAndLogs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, sampleSnapshot("run-1")); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := store.Delete(ctx, "run-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "run-1"); !errors.Is(err, runstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	logs, err := store.Logs(ctx, "run-1")
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected no logs after delete, got %d", len(logs))
	}

	if err := store.Delete(ctx, "run-1"); !errors.Is(err, runstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestLogsReplacedOnSave(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	snap := sampleSnapshot("run-1")
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	snap.Log = append(snap.Log, run.LogEntry{
		Timestamp: time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC),
		Level:     run.LevelError,
		Message:   "Video generation failed",
	})
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("second SaveSnapshot: %v", err)
	}

	logs, err := store.Logs(ctx, "run-1")
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(logs))
	}
	if logs[2].Level != run.LevelError || logs[2].Message != "Video generation failed" {
		t.Fatalf("unexpected last log entry: %+v", logs[2])
	}
	if !logs[0].Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("log timestamp not preserved: %v", logs[0].Timestamp)
	}
}

func TestAppendLog(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	entry := run.LogEntry{
		Timestamp: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Level:     run.LevelWarn,
		Message:   "Scene 2 below QC threshold",
	}
	if err := store.AppendLog(ctx, "missing", entry); !errors.Is(err, runstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing run, got %v", err)
	}

	if err := store.SaveSnapshot(ctx, sampleSnapshot("run-1")); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := store.AppendLog(ctx, "run-1", entry); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	logs, err := store.Logs(ctx, "run-1")
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(logs))
	}
	if logs[2].Message != entry.Message || logs[2].Level != run.LevelWarn {
		t.Fatalf("unexpected appended entry: %+v", logs[2])
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, sampleSnapshot("run-1")); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	got, err := reopened.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.RunID != "run-1" {
		t.Fatalf("unexpected run id after reopen: %q", got.RunID)
	}
}

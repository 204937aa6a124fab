package main

import (
	"testing"

	"genflow/internal/run"
)

func TestParseScenePrompts(t *testing.T) {
	prompts, err := parseScenePrompts([]string{"1=warmer lighting", "3=tighter framing"})
	if err != nil {
		t.Fatalf("parseScenePrompts: %v", err)
	}
	if len(prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(prompts))
	}
	if prompts[1] != "warmer lighting" || prompts[3] != "tighter framing" {
		t.Fatalf("unexpected prompts: %v", prompts)
	}
}

func TestParseScenePromptsRejectsMalformed(t *testing.T) {
	for _, value := range []string{"nope", "0=text", "x=text", "2="} {
		if _, err := parseScenePrompts([]string{value}); err == nil {
			t.Errorf("expected error for %q", value)
		}
	}
}

func TestParseScenePromptsEmpty(t *testing.T) {
	prompts, err := parseScenePrompts(nil)
	if err != nil {
		t.Fatalf("parseScenePrompts(nil): %v", err)
	}
	if prompts != nil {
		t.Fatalf("expected nil map, got %v", prompts)
	}
}

func TestStageLabel(t *testing.T) {
	if got := stageLabel(run.StageStoryboard); got != "Storyboard" {
		t.Fatalf("stageLabel = %q", got)
	}
}

func TestParseReviewArg(t *testing.T) {
	cases := map[string]run.ReviewDecision{
		"approve":  run.ReviewApproved,
		"Approved": run.ReviewApproved,
		"reject":   run.ReviewRejected,
		"changes":  run.ReviewChangesRequested,
	}
	for input, want := range cases {
		got, ok := parseReviewArg(input)
		if !ok || got != want {
			t.Errorf("parseReviewArg(%q) = %v, %v", input, got, ok)
		}
	}
	if _, ok := parseReviewArg("maybe"); ok {
		t.Error("expected maybe to be rejected")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate(short) = %q", got)
	}
	if got := truncate("a long dialogue line here", 10); got != "a long ..." {
		t.Fatalf("truncate = %q", got)
	}
}

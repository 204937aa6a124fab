package pipeline_test

import (
	"errors"
	"testing"
	"time"

	"genflow/internal/config"
	"genflow/internal/pipeline"
	"genflow/internal/run"
)

func newRegenerator(t *testing.T, svc *fakeService) (*pipeline.Regenerator, *run.State) {
	t.Helper()
	cfg := config.Default()
	state := run.NewState()
	state.SetRunID("run-1")
	if err := state.SetScript(testScript(3)); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	return pipeline.NewRegenerator(&cfg, state, svc, nil, nil), state
}

func seedStoryboard(t *testing.T, state *run.State) {
	t.Helper()
	state.ReplaceStoryboard([]run.StoryboardResult{
		{SceneNumber: 1, ImagePath: "/sb1.png", QCReport: run.StoryboardQC{
			AvatarValidation:  run.QCScore{Score: 80},
			ProductValidation: run.QCScore{Score: 80},
		}},
		{SceneNumber: 2, ImagePath: "/sb2.png", QCReport: run.StoryboardQC{
			AvatarValidation:  run.QCScore{Score: 60},
			ProductValidation: run.QCScore{Score: 70},
		}},
		{SceneNumber: 3, ImagePath: "/sb3.png"},
	})
}

func TestRegenStoryboardSceneReplacesOnlyThatScene(t *testing.T) {
	svc := &fakeService{regenSB: run.StoryboardResult{
		ImagePath: "/sb2-regen.png",
		QCReport: run.StoryboardQC{
			AvatarValidation:  run.QCScore{Score: 92},
			ProductValidation: run.QCScore{Score: 88},
		},
	}}
	regen, state := newRegenerator(t, svc)
	seedStoryboard(t, state)

	if err := regen.RegenerateStoryboardScene(t.Context(), 2, pipeline.StoryboardSceneOptions{}); err != nil {
		t.Fatalf("RegenerateStoryboardScene: %v", err)
	}
	got, _ := state.StoryboardScene(2)
	if got.ImagePath != "/sb2-regen.png" {
		t.Fatalf("scene 2 = %+v", got)
	}
	if got.RegenAttempts != 1 {
		t.Fatalf("regen attempts = %d, want 1", got.RegenAttempts)
	}
	for _, n := range []int{1, 3} {
		other, _ := state.StoryboardScene(n)
		if other.ImagePath == "/sb2-regen.png" || other.RegenAttempts != 0 {
			t.Fatalf("scene %d mutated: %+v", n, other)
		}
	}
}

func TestRegenAttemptsIncrementPerCallEvenOnFailure(t *testing.T) {
	svc := &fakeService{regenSBErr: errors.New("image backend down")}
	regen, state := newRegenerator(t, svc)
	seedStoryboard(t, state)

	for i := 1; i <= 2; i++ {
		if err := regen.RegenerateStoryboardScene(t.Context(), 2, pipeline.StoryboardSceneOptions{}); err == nil {
			t.Fatal("expected failure")
		}
		got, _ := state.StoryboardScene(2)
		if got.RegenAttempts != i {
			t.Fatalf("after call %d attempts = %d", i, got.RegenAttempts)
		}
		// Best attempt retained: the old image survives the failed call.
		if got.ImagePath != "/sb2.png" {
			t.Fatalf("scene 2 lost its result: %+v", got)
		}
	}
}

func TestRegenScenesLockIndependently(t *testing.T) {
	svc := &fakeService{regenSB: run.StoryboardResult{ImagePath: "/regen.png"}}
	regen, state := newRegenerator(t, svc)
	seedStoryboard(t, state)

	// Hold scene 2's lock as if a regeneration were in flight.
	if !state.TryBeginScene(2) {
		t.Fatal("TryBeginScene(2)")
	}
	defer state.EndScene(2)

	if err := regen.RegenerateStoryboardScene(t.Context(), 2, pipeline.StoryboardSceneOptions{}); !errors.Is(err, pipeline.ErrSceneBusy) {
		t.Fatalf("err = %v, want ErrSceneBusy", err)
	}
	// Scene 3 regenerates while scene 2 is locked.
	if err := regen.RegenerateStoryboardScene(t.Context(), 3, pipeline.StoryboardSceneOptions{}); err != nil {
		t.Fatalf("scene 3 blocked by scene 2's lock: %v", err)
	}
}

func TestRegenVideoSceneSendsPreviousQC(t *testing.T) {
	failing := &run.VideoQC{
		TechnicalDistortion: run.VideoQCDimension{Score: 4, Reasoning: "warped hands"},
		OverallVerdict:      "fail",
	}
	svc := &fakeService{regenVid: run.VideoResult{
		Variants:          []run.VideoVariant{{Index: 0, VideoPath: "/v2-regen.mp4"}},
		SelectedVideoPath: "/v2-regen.mp4",
		QCRewriteContext:  "avoided hand closeups",
	}}
	regen, state := newRegenerator(t, svc)
	seedStoryboard(t, state)
	state.ReplaceVideos([]run.VideoResult{{
		SceneNumber:       2,
		Variants:          []run.VideoVariant{{Index: 0, VideoPath: "/v2.mp4", QCReport: failing}},
		SelectedVideoPath: "/v2.mp4",
	}})

	if err := regen.RegenerateVideoScene(t.Context(), 2, pipeline.VideoSceneOptions{}); err != nil {
		t.Fatalf("RegenerateVideoScene: %v", err)
	}
	got, _ := state.VideoScene(2)
	if got.SelectedVideoPath != "/v2-regen.mp4" || got.RegenAttempts != 1 {
		t.Fatalf("scene 2 = %+v", got)
	}
	if got.QCRewriteContext != "avoided hand closeups" {
		t.Fatalf("qc rewrite context = %q", got.QCRewriteContext)
	}
}

func TestRegenVideoSceneRequiresStoryboard(t *testing.T) {
	svc := &fakeService{}
	regen, _ := newRegenerator(t, svc)
	if err := regen.RegenerateVideoScene(t.Context(), 1, pipeline.VideoSceneOptions{}); !errors.Is(err, pipeline.ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
}

func TestRegenAppliesAfterSealedFullReplace(t *testing.T) {
	// A regeneration response is correlated to its request, so it must land
	// even though the stage was sealed by a full replace.
	svc := &fakeService{regenSB: run.StoryboardResult{ImagePath: "/sealed-regen.png"}}
	regen, state := newRegenerator(t, svc)
	seedStoryboard(t, state)

	// Sanity: a raw stream partial is rejected at this point.
	if err := state.UpsertStoryboardScene(run.StoryboardResult{SceneNumber: 1, ImagePath: "/x.png"}); !errors.Is(err, run.ErrStalePartial) {
		t.Fatalf("upsert err = %v, want ErrStalePartial", err)
	}
	if err := regen.RegenerateStoryboardScene(t.Context(), 1, pipeline.StoryboardSceneOptions{}); err != nil {
		t.Fatalf("RegenerateStoryboardScene: %v", err)
	}
	got, _ := state.StoryboardScene(1)
	if got.ImagePath != "/sealed-regen.png" {
		t.Fatalf("scene 1 = %+v", got)
	}
}

func TestRegenStoryboardWarnsWhenStillBelowThreshold(t *testing.T) {
	svc := &fakeService{regenSB: run.StoryboardResult{
		ImagePath: "/low.png",
		QCReport: run.StoryboardQC{
			AvatarValidation:  run.QCScore{Score: 50},
			ProductValidation: run.QCScore{Score: 55},
		},
	}}
	regen, state := newRegenerator(t, svc)
	seedStoryboard(t, state)

	if err := regen.RegenerateStoryboardScene(t.Context(), 2, pipeline.StoryboardSceneOptions{}); err != nil {
		t.Fatalf("RegenerateStoryboardScene: %v", err)
	}
	var warned bool
	for _, entry := range state.Log() {
		if entry.Level == run.LevelWarn && time.Since(entry.Timestamp) < time.Minute {
			warned = true
		}
	}
	if !warned {
		t.Fatal("no warning logged for below-threshold result")
	}
}

package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"genflow/internal/config"
	"genflow/internal/pipeline"
	"genflow/internal/run"
	"genflow/internal/services/studio"
)

// fakeService scripts responses per endpoint and records calls.
type fakeService struct {
	mu    sync.Mutex
	calls []string

	scriptErr     error
	avatarsErr    error
	storyboardErr error
	videosErr     error
	stitchErr     error
	selectErr     error

	script     run.Script
	variants   []run.AvatarVariant
	storyboard []run.StoryboardResult
	videos     []run.VideoResult
	regenSB    run.StoryboardResult
	regenSBErr error
	regenVid   run.VideoResult
	regenVidEr error
	finalPath  string

	blockStoryboard chan struct{}
}

func (f *fakeService) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeService) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeService) GenerateScript(_ context.Context, req studio.ScriptRequest) (studio.ScriptResponse, error) {
	f.record("script")
	if f.scriptErr != nil {
		return studio.ScriptResponse{}, f.scriptErr
	}
	return studio.ScriptResponse{Status: "completed", RunID: req.RunID, Script: f.script}, nil
}

func (f *fakeService) UpdateScript(_ context.Context, runID string, script run.Script) (studio.ScriptResponse, error) {
	f.record("script/update")
	return studio.ScriptResponse{Status: "completed", RunID: runID, Script: script}, nil
}

func (f *fakeService) GenerateAvatars(_ context.Context, req studio.AvatarRequest) (studio.AvatarResponse, error) {
	f.record("avatar")
	if f.avatarsErr != nil {
		return studio.AvatarResponse{}, f.avatarsErr
	}
	return studio.AvatarResponse{Status: "completed", RunID: req.RunID, Variants: f.variants}, nil
}

func (f *fakeService) SelectAvatar(_ context.Context, _ string, variantIndex int) (studio.AvatarSelection, error) {
	f.record("avatar/select")
	if f.selectErr != nil {
		return studio.AvatarSelection{}, f.selectErr
	}
	return studio.AvatarSelection{Status: "ok", SelectedPath: fmt.Sprintf("/avatars/%d.png", variantIndex)}, nil
}

func (f *fakeService) GenerateStoryboard(_ context.Context, req studio.StoryboardRequest) (studio.StoryboardResponse, error) {
	f.record("storyboard")
	if f.blockStoryboard != nil {
		<-f.blockStoryboard
	}
	if f.storyboardErr != nil {
		return studio.StoryboardResponse{}, f.storyboardErr
	}
	return studio.StoryboardResponse{Status: "completed", Results: f.storyboard}, nil
}

func (f *fakeService) RegenStoryboardScene(_ context.Context, req studio.StoryboardRegenRequest) (run.StoryboardResult, error) {
	f.record("storyboard/regen-scene")
	if f.regenSBErr != nil {
		return run.StoryboardResult{}, f.regenSBErr
	}
	res := f.regenSB
	res.SceneNumber = req.SceneNumber
	return res, nil
}

func (f *fakeService) GenerateVideos(_ context.Context, _ studio.VideoRequest) (studio.VideoResponse, error) {
	f.record("video")
	if f.videosErr != nil {
		return studio.VideoResponse{}, f.videosErr
	}
	return studio.VideoResponse{Status: "completed", Results: f.videos}, nil
}

func (f *fakeService) RegenVideoScene(_ context.Context, req studio.VideoRegenRequest) (studio.VideoRegenResponse, error) {
	f.record("video/regen-scene")
	if f.regenVidEr != nil {
		return studio.VideoRegenResponse{}, f.regenVidEr
	}
	res := f.regenVid
	res.SceneNumber = req.SceneNumber
	return studio.VideoRegenResponse{Status: "completed", Result: res}, nil
}

func (f *fakeService) SelectVideoVariant(_ context.Context, _ string, sceneNumber, variantIndex int) (studio.VideoSelection, error) {
	f.record("video/select")
	if f.selectErr != nil {
		return studio.VideoSelection{}, f.selectErr
	}
	return studio.VideoSelection{Status: "ok", SelectedVideoPath: fmt.Sprintf("/videos/%d-%d.mp4", sceneNumber, variantIndex)}, nil
}

func (f *fakeService) Stitch(_ context.Context, _ string, _ []run.TransitionCue) (studio.StitchResponse, error) {
	f.record("stitch")
	if f.stitchErr != nil {
		return studio.StitchResponse{}, f.stitchErr
	}
	return studio.StitchResponse{Status: "completed", Path: f.finalPath}, nil
}

func (f *fakeService) SubmitReview(_ context.Context, _ string, _ run.ReviewDecision, _ string) error {
	f.record("review")
	return nil
}

type memoryStore struct {
	mu    sync.Mutex
	saves []run.Snapshot
}

func (m *memoryStore) SaveSnapshot(_ context.Context, snap run.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, snap)
	return nil
}

func testScript(sceneCount int) run.Script {
	scenes := make([]run.Scene, 0, sceneCount)
	for i := 1; i <= sceneCount; i++ {
		scenes = append(scenes, run.Scene{SceneNumber: i, DurationSeconds: 6, ScriptDialogue: "line"})
	}
	return run.Script{VideoTitle: "Test Ad", TotalDuration: float64(sceneCount) * 6, Scenes: scenes}
}

func newOrchestrator(t *testing.T, svc *fakeService) (*pipeline.Orchestrator, *run.State, *memoryStore) {
	t.Helper()
	cfg := config.Default()
	state := run.NewState()
	store := &memoryStore{}
	return pipeline.NewOrchestrator(&cfg, state, svc, store, nil), state, store
}

func TestStartRunSuccess(t *testing.T) {
	svc := &fakeService{script: testScript(3)}
	orch, state, store := newOrchestrator(t, svc)

	runID, err := orch.StartRun(t.Context(), pipeline.StartRunRequest{
		ProductName:    "Hydra Bottle",
		Specifications: "750ml insulated",
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if runID == "" || state.RunID() != runID {
		t.Fatalf("run id = %q, state = %q", runID, state.RunID())
	}
	if state.ActiveStage() != run.StageScript {
		t.Fatalf("active stage = %v", state.ActiveStage())
	}
	if state.Script() == nil || len(state.Script().Scenes) != 3 {
		t.Fatalf("script = %+v", state.Script())
	}
	if state.Busy() {
		t.Fatal("busy flag not released")
	}
	if len(store.saves) == 0 {
		t.Fatal("snapshot not persisted")
	}
}

func TestStartRunFailureRevertsToInputStage(t *testing.T) {
	svc := &fakeService{scriptErr: errors.New("model overloaded")}
	orch, state, _ := newOrchestrator(t, svc)

	if _, err := orch.StartRun(t.Context(), pipeline.StartRunRequest{
		ProductName:    "Hydra Bottle",
		Specifications: "750ml insulated",
	}); err == nil {
		t.Fatal("expected error")
	}
	if state.ActiveStage() != run.StageInput {
		t.Fatalf("active stage = %v, want revert to input", state.ActiveStage())
	}
	if state.LastError() == "" {
		t.Fatal("error not recorded on state")
	}
	if state.Busy() {
		t.Fatal("busy flag not released after failure")
	}
}

func TestStartRunValidatesInput(t *testing.T) {
	svc := &fakeService{script: testScript(3)}
	orch, _, _ := newOrchestrator(t, svc)

	if _, err := orch.StartRun(t.Context(), pipeline.StartRunRequest{Specifications: "x"}); err == nil {
		t.Fatal("expected error for missing product name")
	}
	if _, err := orch.StartRun(t.Context(), pipeline.StartRunRequest{
		ProductName:    "X",
		Specifications: "y",
		SceneCount:     25,
	}); err == nil {
		t.Fatal("expected error for out-of-range scene count")
	}
	if svc.callCount("script") != 0 {
		t.Fatal("invalid input must not reach the service")
	}
}

func TestStartRunClearsPreviousRunState(t *testing.T) {
	svc := &fakeService{script: testScript(2)}
	orch, state, store := newOrchestrator(t, svc)

	// A fully completed earlier run, as restored from the store.
	idx := 0
	state.Restore(run.Snapshot{
		RunID:              "run-old",
		ActiveStage:        run.StageReview,
		Script:             &run.Script{VideoTitle: "Old Ad", Scenes: testScript(2).Scenes},
		AvatarVariants:     []run.AvatarVariant{{Index: 0, ImagePath: "/a0.png"}},
		SelectedAvatar:     &idx,
		SelectedAvatarPath: "/a0.png",
		Storyboard:         []run.StoryboardResult{{SceneNumber: 1, ImagePath: "/old-sb1.png"}},
		StoryboardSealed:   true,
		Videos:             []run.VideoResult{{SceneNumber: 1, SelectedVideoPath: "/old-1.mp4"}},
		VideosSealed:       true,
		FinalVideoPath:     "/final/old.mp4",
		Reached:            run.StageReview,
	})

	runID, err := orch.StartRun(t.Context(), pipeline.StartRunRequest{
		ProductName:    "Hydra Bottle",
		Specifications: "750ml insulated",
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if runID == "run-old" {
		t.Fatal("new run reused the old run id")
	}
	if state.FinalVideoPath() != "" {
		t.Fatalf("new run inherited final video %q", state.FinalVideoPath())
	}
	if got := len(state.StoryboardResults()); got != 0 {
		t.Fatalf("new run inherited %d storyboard scenes", got)
	}
	if got := len(state.VideoResults()); got != 0 {
		t.Fatalf("new run inherited %d video results", got)
	}
	if got := len(state.AvatarVariants()); got != 0 {
		t.Fatalf("new run inherited %d avatar variants", got)
	}
	if _, ok := state.SelectedAvatar(); ok {
		t.Fatal("new run inherited the avatar selection")
	}

	saved := store.saves[len(store.saves)-1]
	if saved.RunID != runID || saved.FinalVideoPath != "" || len(saved.Storyboard) != 0 {
		t.Fatalf("polluted snapshot persisted: %+v", saved)
	}
	if got := run.MaxReachableStage(saved); got != run.StageAvatar {
		t.Fatalf("fresh run reaches %v from stale data", got)
	}
}

func TestStartRunFailurePersistsNothing(t *testing.T) {
	svc := &fakeService{scriptErr: errors.New("model overloaded")}
	orch, state, store := newOrchestrator(t, svc)

	if _, err := orch.StartRun(t.Context(), pipeline.StartRunRequest{
		ProductName:    "Hydra Bottle",
		Specifications: "750ml insulated",
	}); err == nil {
		t.Fatal("expected error")
	}
	if len(store.saves) != 0 {
		t.Fatalf("%d snapshots persisted for a run that never got a script", len(store.saves))
	}
	if state.RunID() != "" {
		t.Fatalf("run id %q kept after failed start", state.RunID())
	}
}

func TestStageOperationsAreSingleFlight(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{
		script:          testScript(2),
		storyboard:      []run.StoryboardResult{{SceneNumber: 1, ImagePath: "/sb1.png"}},
		blockStoryboard: release,
	}
	orch, state, _ := newOrchestrator(t, svc)
	state.SetRunID("run-1")
	if err := state.SetScript(testScript(2)); err != nil {
		t.Fatalf("SetScript: %v", err)
	}

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- orch.GenerateStoryboard(t.Context(), pipeline.StoryboardOptions{})
	}()
	<-started
	// Wait until the first call is inside the service.
	for svc.callCount("storyboard") == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := orch.GenerateStoryboard(t.Context(), pipeline.StoryboardOptions{}); !errors.Is(err, pipeline.ErrBusy) {
		t.Fatalf("concurrent call returned %v, want ErrBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if svc.callCount("storyboard") != 1 {
		t.Fatalf("storyboard called %d times, want 1", svc.callCount("storyboard"))
	}
}

func TestConfirmAvatarSelectionChainsStoryboard(t *testing.T) {
	svc := &fakeService{
		variants: []run.AvatarVariant{{Index: 0, ImagePath: "/a0.png"}, {Index: 1, ImagePath: "/a1.png"}},
		storyboard: []run.StoryboardResult{
			{SceneNumber: 1, ImagePath: "/sb1.png"},
			{SceneNumber: 2, ImagePath: "/sb2.png"},
		},
	}
	orch, state, _ := newOrchestrator(t, svc)
	state.SetRunID("run-1")
	if err := state.SetScript(testScript(2)); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	if err := orch.GenerateAvatars(t.Context(), pipeline.AvatarOptions{}); err != nil {
		t.Fatalf("GenerateAvatars: %v", err)
	}

	if err := orch.ConfirmAvatarSelection(t.Context(), 1, pipeline.StoryboardOptions{}); err != nil {
		t.Fatalf("ConfirmAvatarSelection: %v", err)
	}
	if idx, ok := state.SelectedAvatar(); !ok || idx != 1 {
		t.Fatalf("selection = (%d, %v)", idx, ok)
	}
	if state.ActiveStage() != run.StageStoryboard {
		t.Fatalf("active stage = %v", state.ActiveStage())
	}
	if got := len(state.StoryboardResults()); got != 2 {
		t.Fatalf("storyboard results = %d", got)
	}
}

func TestConfirmAvatarSelectionKeepsCommitOnChainedFailure(t *testing.T) {
	svc := &fakeService{
		variants:      []run.AvatarVariant{{Index: 0, ImagePath: "/a0.png"}},
		storyboardErr: errors.New("image backend down"),
	}
	orch, state, _ := newOrchestrator(t, svc)
	state.SetRunID("run-1")
	if err := state.SetScript(testScript(2)); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	if err := orch.GenerateAvatars(t.Context(), pipeline.AvatarOptions{}); err != nil {
		t.Fatalf("GenerateAvatars: %v", err)
	}

	err := orch.ConfirmAvatarSelection(t.Context(), 0, pipeline.StoryboardOptions{})
	if err == nil {
		t.Fatal("expected chained storyboard failure")
	}
	// Phase one committed: selection and stage survive the chained failure.
	if idx, ok := state.SelectedAvatar(); !ok || idx != 0 {
		t.Fatalf("selection = (%d, %v), want commit retained", idx, ok)
	}
	if state.ActiveStage() != run.StageStoryboard {
		t.Fatalf("active stage = %v, want storyboard stage retained", state.ActiveStage())
	}
}

func TestGenerateVideosRequiresStoryboard(t *testing.T) {
	svc := &fakeService{}
	orch, state, _ := newOrchestrator(t, svc)
	state.SetRunID("run-1")
	if err := state.SetScript(testScript(2)); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	if err := orch.GenerateVideos(t.Context(), pipeline.VideoOptions{}); !errors.Is(err, pipeline.ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
}

func TestGenerateVideosAdvancesStageOnlyOnSuccess(t *testing.T) {
	svc := &fakeService{videosErr: errors.New("render backend down")}
	orch, state, _ := newOrchestrator(t, svc)
	state.SetRunID("run-1")
	if err := state.SetScript(testScript(1)); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	state.ReplaceStoryboard([]run.StoryboardResult{{SceneNumber: 1, ImagePath: "/sb1.png"}})
	state.SetStage(run.StageStoryboard)

	if err := orch.GenerateVideos(t.Context(), pipeline.VideoOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if state.ActiveStage() != run.StageStoryboard {
		t.Fatalf("failed generation moved stage to %v", state.ActiveStage())
	}

	svc.videosErr = nil
	svc.videos = []run.VideoResult{{SceneNumber: 1, Variants: []run.VideoVariant{{Index: 0, VideoPath: "/v0.mp4"}}}}
	if err := orch.GenerateVideos(t.Context(), pipeline.VideoOptions{}); err != nil {
		t.Fatalf("GenerateVideos: %v", err)
	}
	if state.ActiveStage() != run.StageVideo {
		t.Fatalf("active stage = %v after success", state.ActiveStage())
	}
}

func TestSelectVideoVariantRejectsInvalidIndexLocally(t *testing.T) {
	svc := &fakeService{}
	orch, state, _ := newOrchestrator(t, svc)
	state.SetRunID("run-1")
	if err := state.SetScript(testScript(1)); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	state.ReplaceVideos([]run.VideoResult{{
		SceneNumber:       1,
		Variants:          []run.VideoVariant{{Index: 0, VideoPath: "/v0.mp4"}},
		SelectedVideoPath: "/v0.mp4",
	}})

	if err := orch.SelectVideoVariant(t.Context(), 1, 3); !errors.Is(err, run.ErrUnknownVariant) {
		t.Fatalf("err = %v, want ErrUnknownVariant", err)
	}
	if svc.callCount("video/select") != 0 {
		t.Fatal("invalid index must be rejected before any service call")
	}
	got, _ := state.VideoScene(1)
	if got.SelectedIndex != 0 || got.SelectedVideoPath != "/v0.mp4" {
		t.Fatalf("state mutated by rejected selection: %+v", got)
	}
}

func TestStitchAndReview(t *testing.T) {
	svc := &fakeService{finalPath: "/final/run-1.mp4"}
	orch, state, _ := newOrchestrator(t, svc)
	state.SetRunID("run-1")
	script := testScript(3)
	script.Scenes[0].TransitionType = "fade"
	script.Scenes[0].TransitionDuration = 1.0
	if err := state.SetScript(script); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	state.ReplaceVideos([]run.VideoResult{
		{SceneNumber: 1, Variants: []run.VideoVariant{{Index: 0, VideoPath: "/v1.mp4"}}},
		{SceneNumber: 2, Variants: []run.VideoVariant{{Index: 0, VideoPath: "/v2.mp4"}}},
		{SceneNumber: 3, Variants: []run.VideoVariant{{Index: 0, VideoPath: "/v3.mp4"}}},
	})

	if err := orch.StitchFinalVideo(t.Context()); err != nil {
		t.Fatalf("StitchFinalVideo: %v", err)
	}
	if state.FinalVideoPath() != "/final/run-1.mp4" {
		t.Fatalf("final path = %q", state.FinalVideoPath())
	}
	if state.ActiveStage() != run.StageStitch {
		t.Fatalf("active stage = %v", state.ActiveStage())
	}

	decision := run.ReviewApproved
	if err := orch.SubmitForReview(t.Context(), &decision, "ship it"); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	if state.ActiveStage() != run.StageReview {
		t.Fatalf("active stage = %v", state.ActiveStage())
	}
	if svc.callCount("review") != 1 {
		t.Fatal("review decision not sent")
	}
}

func TestResetTearsDownStreamAndState(t *testing.T) {
	svc := &fakeService{}
	orch, state, _ := newOrchestrator(t, svc)
	state.SetRunID("run-1")
	if err := state.SetScript(testScript(2)); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	stopped := false
	orch.BindStream(func() { stopped = true })

	orch.Reset()
	if !stopped {
		t.Fatal("stream cancel not invoked")
	}
	if state.RunID() != "" || state.Script() != nil {
		t.Fatal("state not cleared")
	}
	if state.ActiveStage() != run.StageInput {
		t.Fatalf("active stage = %v", state.ActiveStage())
	}
}

func TestUpdateScriptKeepsStage(t *testing.T) {
	svc := &fakeService{}
	orch, state, _ := newOrchestrator(t, svc)
	state.SetRunID("run-1")
	if err := state.SetScript(testScript(2)); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	state.SetStage(run.StageScript)

	edited := testScript(2)
	edited.Scenes[0].ScriptDialogue = "edited line"
	if err := orch.UpdateScript(t.Context(), edited); err != nil {
		t.Fatalf("UpdateScript: %v", err)
	}
	if state.Script().Scenes[0].ScriptDialogue != "edited line" {
		t.Fatal("script edit not applied")
	}
	if state.ActiveStage() != run.StageScript {
		t.Fatalf("active stage = %v, want unchanged", state.ActiveStage())
	}
}

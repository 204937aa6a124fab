package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"genflow/internal/config"
	"genflow/internal/logging"
	"genflow/internal/run"
	"genflow/internal/services/studio"
)

var (
	// ErrBusy is returned when a stage operation is already in flight.
	ErrBusy = errors.New("pipeline: operation already in progress")
	// ErrSceneBusy is returned when the target scene is already regenerating.
	ErrSceneBusy = errors.New("pipeline: scene regeneration already in progress")
	// ErrNoRun is returned when an operation requires an active run.
	ErrNoRun = errors.New("pipeline: no active run")
	// ErrPrecondition is returned when an earlier stage's output is missing.
	ErrPrecondition = errors.New("pipeline: stage precondition not met")
)

// Service is the subset of the generation service API the orchestrator
// drives. *studio.Client satisfies it.
type Service interface {
	GenerateScript(ctx context.Context, req studio.ScriptRequest) (studio.ScriptResponse, error)
	UpdateScript(ctx context.Context, runID string, script run.Script) (studio.ScriptResponse, error)
	GenerateAvatars(ctx context.Context, req studio.AvatarRequest) (studio.AvatarResponse, error)
	SelectAvatar(ctx context.Context, runID string, variantIndex int) (studio.AvatarSelection, error)
	GenerateStoryboard(ctx context.Context, req studio.StoryboardRequest) (studio.StoryboardResponse, error)
	RegenStoryboardScene(ctx context.Context, req studio.StoryboardRegenRequest) (run.StoryboardResult, error)
	GenerateVideos(ctx context.Context, req studio.VideoRequest) (studio.VideoResponse, error)
	RegenVideoScene(ctx context.Context, req studio.VideoRegenRequest) (studio.VideoRegenResponse, error)
	SelectVideoVariant(ctx context.Context, runID string, sceneNumber, variantIndex int) (studio.VideoSelection, error)
	Stitch(ctx context.Context, runID string, transitions []run.TransitionCue) (studio.StitchResponse, error)
	SubmitReview(ctx context.Context, runID string, decision run.ReviewDecision, notes string) error
}

// SnapshotStore persists run snapshots after successful mutations. A nil
// store disables persistence.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap run.Snapshot) error
}

// Orchestrator drives whole-stage pipeline operations. Stage transitions are
// forward-only with one exception: a failed script generation reverts the
// run to the input stage so the user can retry.
type Orchestrator struct {
	cfg     *config.Config
	state   *run.State
	service Service
	store   SnapshotStore
	logger  *slog.Logger

	stopStream func()
}

// NewOrchestrator assembles an orchestrator over shared run state.
func NewOrchestrator(cfg *config.Config, state *run.State, service Service, store SnapshotStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		state:   state,
		service: service,
		store:   store,
		logger:  logger,
	}
}

// BindStream registers the cancel function for the run's event subscription
// so Reset can tear it down.
func (o *Orchestrator) BindStream(cancel func()) {
	o.stopStream = cancel
}

// StartRunRequest is the product input that seeds a new run.
type StartRunRequest struct {
	ProductName        string
	Specifications     string
	ImageURL           string
	SceneCount         int
	AdTone             string
	CustomInstructions string
}

// StartRun begins a new run: any state left by a previous run is discarded,
// the run id is pre-assigned (so the event stream can attach before the
// request is sent), and the state moves to the script stage optimistically.
// If script generation fails the state reverts to a blank input stage and
// nothing is persisted; a run exists only once its script does.
func (o *Orchestrator) StartRun(ctx context.Context, req StartRunRequest) (string, error) {
	req.ProductName = strings.TrimSpace(req.ProductName)
	req.Specifications = strings.TrimSpace(req.Specifications)
	if req.ProductName == "" {
		return "", fmt.Errorf("start run: product name required")
	}
	if req.Specifications == "" {
		return "", fmt.Errorf("start run: product specifications required")
	}
	sceneCount := req.SceneCount
	if sceneCount == 0 {
		sceneCount = o.cfg.Script.SceneCount
	}
	if sceneCount < config.MinSceneCount || sceneCount > config.MaxSceneCount {
		return "", fmt.Errorf("start run: scene count %d out of range %d..%d",
			sceneCount, config.MinSceneCount, config.MaxSceneCount)
	}
	if !o.state.TryBeginOp() {
		o.logger.Info("ignoring start: operation in progress")
		return "", ErrBusy
	}
	defer o.state.EndOp()

	if o.stopStream != nil {
		o.stopStream()
		o.stopStream = nil
	}
	runID := uuid.NewString()
	o.state.BeginRun(runID)
	o.state.AppendLog(run.LevelInfo, fmt.Sprintf("Starting script generation (model: %s)...", o.cfg.Script.Model))

	started := time.Now()
	resp, err := o.service.GenerateScript(ctx, studio.ScriptRequest{
		ProductName:        req.ProductName,
		Specifications:     req.Specifications,
		ImageURL:           req.ImageURL,
		SceneCount:         sceneCount,
		AdTone:             firstNonEmpty(req.AdTone, o.cfg.Script.AdTone),
		Model:              o.cfg.Script.Model,
		CustomInstructions: req.CustomInstructions,
		RunID:              runID,
	})
	if err != nil {
		// The only backward transition: let the user fix the input and
		// retry. No row is written for a run that never got a script.
		o.state.Reset()
		o.fail(err)
		return "", fmt.Errorf("start run: %w", err)
	}
	if !o.sameRun(runID) {
		return "", fmt.Errorf("start run: run superseded")
	}
	if resp.RunID != "" {
		o.state.SetRunID(resp.RunID)
		runID = resp.RunID
	}
	if err := o.state.SetScript(resp.Script); err != nil {
		o.state.Reset()
		o.fail(err)
		return "", fmt.Errorf("start run: %w", err)
	}
	o.state.AppendLog(run.LevelSuccess, fmt.Sprintf("Script generated in %.1fs", time.Since(started).Seconds()))
	o.persist(ctx)
	return runID, nil
}

// UpdateScript sends the user's edits to the server and stores the
// normalized script it returns. The active stage is unchanged.
func (o *Orchestrator) UpdateScript(ctx context.Context, script run.Script) error {
	runID := o.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	if !o.state.TryBeginOp() {
		o.logger.Info("ignoring script update: operation in progress")
		return ErrBusy
	}
	defer o.state.EndOp()

	o.state.AppendLog(run.LevelInfo, "Saving script changes...")
	resp, err := o.service.UpdateScript(ctx, runID, script)
	if err != nil {
		o.fail(err)
		return fmt.Errorf("update script: %w", err)
	}
	if !o.sameRun(runID) {
		return fmt.Errorf("update script: run superseded")
	}
	if err := o.state.SetScript(resp.Script); err != nil {
		o.fail(err)
		return fmt.Errorf("update script: %w", err)
	}
	o.state.AppendLog(run.LevelSuccess, "Script updated successfully")
	o.persist(ctx)
	return nil
}

// AvatarOptions tune avatar generation.
type AvatarOptions struct {
	CustomPrompt      string
	ReferenceImageURL string
	OverrideGender    string
	OverrideAgeRange  string
	OverrideEthnicity string
}

// GenerateAvatars renders presenter candidates from the script's avatar
// profile, fully replacing any previous variant set.
func (o *Orchestrator) GenerateAvatars(ctx context.Context, opts AvatarOptions) error {
	runID := o.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	script := o.state.Script()
	if script == nil {
		return fmt.Errorf("generate avatars: %w: script missing", ErrPrecondition)
	}
	if !o.state.TryBeginOp() {
		o.logger.Info("ignoring avatar generation: operation in progress")
		return ErrBusy
	}
	defer o.state.EndOp()

	o.state.ClearError()
	o.state.AppendLog(run.LevelInfo, "Generating avatar variants...")
	resp, err := o.service.GenerateAvatars(ctx, studio.AvatarRequest{
		RunID:             runID,
		AvatarProfile:     script.AvatarProfile,
		NumVariants:       o.cfg.Avatar.Variants,
		CustomPrompt:      opts.CustomPrompt,
		ReferenceImageURL: opts.ReferenceImageURL,
		OverrideGender:    opts.OverrideGender,
		OverrideAgeRange:  opts.OverrideAgeRange,
		OverrideEthnicity: opts.OverrideEthnicity,
		AspectRatio:       o.cfg.Avatar.AspectRatio,
		ImageSize:         o.cfg.Avatar.ImageSize,
	})
	if err != nil {
		o.fail(err)
		return fmt.Errorf("generate avatars: %w", err)
	}
	if !o.sameRun(runID) {
		return fmt.Errorf("generate avatars: run superseded")
	}
	o.state.ReplaceAvatars(resp.Variants)
	o.state.AppendLog(run.LevelSuccess, fmt.Sprintf("Generated %d avatar variants", len(resp.Variants)))
	o.persist(ctx)
	return nil
}

// ConfirmAvatarSelection commits the chosen variant and chains into full
// storyboard generation. The commit is two-phase: once the selection is
// confirmed server-side the run advances to the storyboard stage, so a
// failure in the chained generation leaves the selection intact and the
// storyboard stage reachable for a manual retry.
func (o *Orchestrator) ConfirmAvatarSelection(ctx context.Context, variantIndex int, opts StoryboardOptions) error {
	runID := o.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	if !o.state.TryBeginOp() {
		o.logger.Info("ignoring avatar selection: operation in progress")
		return ErrBusy
	}
	defer o.state.EndOp()

	if err := o.state.SelectAvatar(variantIndex); err != nil {
		return fmt.Errorf("select avatar: %w", err)
	}
	o.state.ClearError()
	o.state.AppendLog(run.LevelInfo, fmt.Sprintf("Selecting avatar variant %d...", variantIndex))
	selection, err := o.service.SelectAvatar(ctx, runID, variantIndex)
	if err != nil {
		o.fail(err)
		return fmt.Errorf("select avatar: %w", err)
	}
	if !o.sameRun(runID) {
		return fmt.Errorf("select avatar: run superseded")
	}
	o.state.ConfirmAvatarPath(selection.SelectedPath)
	o.state.SetStage(run.StageStoryboard)
	o.state.AppendLog(run.LevelSuccess, "Avatar selected")
	o.persist(ctx)

	if err := o.generateStoryboard(ctx, runID, opts); err != nil {
		return fmt.Errorf("storyboard after avatar selection: %w", err)
	}
	return nil
}

// StoryboardOptions tune storyboard generation.
type StoryboardOptions struct {
	CustomPrompts map[int]string
}

// GenerateStoryboard renders one QC-checked frame per scripted scene.
// Existing results are cleared first so progressive scene_progress events
// repopulate the collection while the call is in flight.
func (o *Orchestrator) GenerateStoryboard(ctx context.Context, opts StoryboardOptions) error {
	runID := o.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	if !o.state.TryBeginOp() {
		o.logger.Info("ignoring storyboard generation: operation in progress")
		return ErrBusy
	}
	defer o.state.EndOp()
	return o.generateStoryboard(ctx, runID, opts)
}

// generateStoryboard assumes the busy flag is held.
func (o *Orchestrator) generateStoryboard(ctx context.Context, runID string, opts StoryboardOptions) error {
	script := o.state.Script()
	if script == nil {
		return fmt.Errorf("generate storyboard: %w: script missing", ErrPrecondition)
	}
	o.state.ClearError()
	o.state.ClearStoryboard()
	o.state.AppendLog(run.LevelInfo, fmt.Sprintf("Generating storyboard with QC for %d scenes...", len(script.Scenes)))

	started := time.Now()
	resp, err := o.service.GenerateStoryboard(ctx, studio.StoryboardRequest{
		RunID:            runID,
		Scenes:           script.Scenes,
		AspectRatio:      o.cfg.Avatar.AspectRatio,
		QCThreshold:      o.cfg.Storyboard.QCThreshold,
		MaxRegenAttempts: o.cfg.Storyboard.MaxRegenAttempts,
		CustomPrompts:    opts.CustomPrompts,
		ImageSize:        o.cfg.Storyboard.ImageSize,
	})
	if err != nil {
		o.fail(err)
		return fmt.Errorf("generate storyboard: %w", err)
	}
	if !o.sameRun(runID) {
		return fmt.Errorf("generate storyboard: run superseded")
	}
	o.state.ReplaceStoryboard(resp.Results)
	o.state.AppendLog(run.LevelSuccess, fmt.Sprintf("Storyboard generated: %d scenes in %.1fs",
		len(resp.Results), time.Since(started).Seconds()))
	o.persist(ctx)
	return nil
}

// VideoOptions tune video generation.
type VideoOptions struct {
	Seed                int
	NegativePromptExtra string
}

// GenerateVideos renders clip variants for every storyboard scene and
// advances the run to the video stage.
func (o *Orchestrator) GenerateVideos(ctx context.Context, opts VideoOptions) error {
	runID := o.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	script := o.state.Script()
	storyboard := o.state.StoryboardResults()
	if script == nil || len(storyboard) == 0 {
		return fmt.Errorf("generate videos: %w: storyboard missing", ErrPrecondition)
	}
	if !o.state.TryBeginOp() {
		o.logger.Info("ignoring video generation: operation in progress")
		return ErrBusy
	}
	defer o.state.EndOp()

	o.state.ClearError()
	o.state.ClearVideos()
	o.state.AppendLog(run.LevelInfo, fmt.Sprintf("Generating video variants with %s for %d scenes...",
		o.cfg.Video.Model, len(storyboard)))

	started := time.Now()
	seed := opts.Seed
	if seed == 0 {
		seed = o.cfg.Video.Seed
	}
	resp, err := o.service.GenerateVideos(ctx, studio.VideoRequest{
		RunID:               runID,
		ScenesData:          storyboard,
		ScriptScenes:        script.Scenes,
		AvatarProfile:       script.AvatarProfile,
		Seed:                seed,
		Resolution:          o.cfg.Video.Resolution,
		Model:               o.cfg.Video.Model,
		AspectRatio:         o.cfg.Avatar.AspectRatio,
		NumVariants:         o.cfg.Video.Variants,
		QCThreshold:         o.cfg.Video.QCThreshold,
		MaxQCRegenAttempts:  o.cfg.Video.MaxRegenAttempts,
		NegativePromptExtra: opts.NegativePromptExtra,
		GenerateAudio:       o.cfg.Video.GenerateAudio,
	})
	if err != nil {
		o.fail(err)
		return fmt.Errorf("generate videos: %w", err)
	}
	if !o.sameRun(runID) {
		return fmt.Errorf("generate videos: run superseded")
	}
	o.state.ReplaceVideos(resp.Results)
	o.state.SetStage(run.StageVideo)
	o.state.AppendLog(run.LevelSuccess, fmt.Sprintf("Videos generated for %d scenes in %.1fs",
		len(resp.Results), time.Since(started).Seconds()))
	o.persist(ctx)
	return nil
}

// SelectVideoVariant confirms a per-scene clip choice. The index is
// validated locally before any network call so an invalid selection never
// leaves the run half-committed.
func (o *Orchestrator) SelectVideoVariant(ctx context.Context, sceneNumber, variantIndex int) error {
	runID := o.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	result, ok := o.state.VideoScene(sceneNumber)
	if !ok {
		return fmt.Errorf("select video variant: %w", run.ErrUnknownScene)
	}
	if !variantExists(result.Variants, variantIndex) {
		return fmt.Errorf("select video variant: %w", run.ErrUnknownVariant)
	}
	if !o.state.TryBeginOp() {
		o.logger.Info("ignoring variant selection: operation in progress")
		return ErrBusy
	}
	defer o.state.EndOp()

	o.state.ClearError()
	if _, err := o.service.SelectVideoVariant(ctx, runID, sceneNumber, variantIndex); err != nil {
		o.fail(err)
		return fmt.Errorf("select video variant: %w", err)
	}
	if !o.sameRun(runID) {
		return fmt.Errorf("select video variant: run superseded")
	}
	if err := o.state.SelectVideoVariant(sceneNumber, variantIndex); err != nil {
		return fmt.Errorf("select video variant: %w", err)
	}
	o.state.AppendLog(run.LevelSuccess, fmt.Sprintf("Scene %d: selected variant %d", sceneNumber, variantIndex+1))
	o.persist(ctx)
	return nil
}

// StitchFinalVideo assembles the selected clips into the final video using
// per-boundary transitions derived from the script, then advances to the
// stitch stage.
func (o *Orchestrator) StitchFinalVideo(ctx context.Context) error {
	runID := o.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	script := o.state.Script()
	if script == nil || len(o.state.VideoResults()) == 0 {
		return fmt.Errorf("stitch: %w: videos missing", ErrPrecondition)
	}
	if !o.state.TryBeginOp() {
		o.logger.Info("ignoring stitch: operation in progress")
		return ErrBusy
	}
	defer o.state.EndOp()

	o.state.ClearError()
	o.state.AppendLog(run.LevelInfo, fmt.Sprintf("Stitching %d scenes into final video...", len(script.Scenes)))
	transitions := script.TransitionCues(o.cfg.Stitch.TransitionType, o.cfg.Stitch.TransitionDuration)

	started := time.Now()
	resp, err := o.service.Stitch(ctx, runID, transitions)
	if err != nil {
		o.fail(err)
		return fmt.Errorf("stitch: %w", err)
	}
	if !o.sameRun(runID) {
		return fmt.Errorf("stitch: run superseded")
	}
	o.state.SetFinalVideo(resp.Path)
	o.state.SetStage(run.StageStitch)
	o.state.AppendLog(run.LevelSuccess, fmt.Sprintf("Final video ready in %.1fs", time.Since(started).Seconds()))
	o.persist(ctx)
	return nil
}

// SubmitForReview moves the run to the review stage. When a decision is
// given it is recorded server-side as well.
func (o *Orchestrator) SubmitForReview(ctx context.Context, decision *run.ReviewDecision, notes string) error {
	runID := o.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	if o.state.FinalVideoPath() == "" {
		return fmt.Errorf("submit for review: %w: final video missing", ErrPrecondition)
	}
	if !o.state.TryBeginOp() {
		o.logger.Info("ignoring review submission: operation in progress")
		return ErrBusy
	}
	defer o.state.EndOp()

	o.state.SetStage(run.StageReview)
	o.state.AppendLog(run.LevelInfo, "Submitted for review")
	if decision != nil {
		if err := o.service.SubmitReview(ctx, runID, *decision, notes); err != nil {
			o.fail(err)
			return fmt.Errorf("submit for review: %w", err)
		}
		o.state.AppendLog(run.LevelSuccess, fmt.Sprintf("Review decision recorded: %s", *decision))
	}
	o.persist(ctx)
	return nil
}

// Reset abandons the current run: the event subscription is torn down and
// the state returns to a blank input stage.
func (o *Orchestrator) Reset() {
	if o.stopStream != nil {
		o.stopStream()
		o.stopStream = nil
	}
	o.state.Reset()
	o.logger.Info("run state reset")
}

// fail records the error on the run state and in the run log.
func (o *Orchestrator) fail(err error) {
	o.state.SetError(err.Error())
	o.state.AppendLog(run.LevelError, err.Error())
}

// sameRun guards completion handlers against results from a superseded run.
func (o *Orchestrator) sameRun(runID string) bool {
	if o.state.RunID() == runID {
		return true
	}
	o.logger.Warn("discarding stale completion",
		logging.String(logging.FieldRunID, runID))
	return false
}

func (o *Orchestrator) persist(ctx context.Context) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveSnapshot(ctx, o.state.Snapshot()); err != nil {
		o.logger.Warn("persist snapshot", logging.Error(err))
	}
}

func variantExists(variants []run.VideoVariant, index int) bool {
	for _, v := range variants {
		if v.Index == index {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

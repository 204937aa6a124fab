package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"genflow/internal/config"
	"genflow/internal/logging"
	"genflow/internal/run"
	"genflow/internal/services/studio"
)

// Regenerator retries individual scenes that failed quality control. Each
// scene regenerates under its own lock so work on one scene never blocks
// another, and every call counts as exactly one attempt whether or not the
// new result clears the threshold. A scene keeps its best result: a failed
// regeneration bumps the attempt counter but never discards what is there.
type Regenerator struct {
	cfg     *config.Config
	state   *run.State
	service Service
	store   SnapshotStore
	logger  *slog.Logger
}

// NewRegenerator assembles a regenerator over shared run state.
func NewRegenerator(cfg *config.Config, state *run.State, service Service, store SnapshotStore, logger *slog.Logger) *Regenerator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Regenerator{
		cfg:     cfg,
		state:   state,
		service: service,
		store:   store,
		logger:  logger,
	}
}

// StoryboardSceneOptions tune a single-scene storyboard regeneration.
// CustomPrompt replaces the generated prompt for this attempt only.
type StoryboardSceneOptions struct {
	CustomPrompt string
}

// RegenerateStoryboardScene regenerates one storyboard frame. The image QC
// threshold runs on the 0-100 scale.
func (r *Regenerator) RegenerateStoryboardScene(ctx context.Context, sceneNumber int, opts StoryboardSceneOptions) error {
	runID := r.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	script := r.state.Script()
	if script == nil {
		return fmt.Errorf("regen storyboard scene: %w: script missing", ErrPrecondition)
	}
	scene, ok := script.SceneByNumber(sceneNumber)
	if !ok {
		return fmt.Errorf("regen storyboard scene: %w", run.ErrUnknownScene)
	}
	if !r.state.TryBeginScene(sceneNumber) {
		r.logger.Info("ignoring regeneration: scene busy",
			logging.Int(logging.FieldScene, sceneNumber))
		return ErrSceneBusy
	}
	defer r.state.EndScene(sceneNumber)

	attempts := 1
	previous, hadResult := r.state.StoryboardScene(sceneNumber)
	if hadResult {
		attempts = previous.RegenAttempts + 1
	}
	if limit := r.cfg.Storyboard.MaxRegenAttempts; attempts > limit {
		r.logger.Warn("storyboard regen past advisory attempt cap",
			logging.Int(logging.FieldScene, sceneNumber),
			logging.Int("attempt", attempts),
			logging.Int("cap", limit))
	}
	r.state.ClearError()
	r.state.AppendLog(run.LevelInfo, fmt.Sprintf("Regenerating storyboard for scene %d...", sceneNumber))

	result, err := r.service.RegenStoryboardScene(ctx, studio.StoryboardRegenRequest{
		RunID:            runID,
		SceneNumber:      sceneNumber,
		Scene:            scene,
		AspectRatio:      r.cfg.Avatar.AspectRatio,
		QCThreshold:      r.cfg.Storyboard.QCThreshold,
		MaxRegenAttempts: r.cfg.Storyboard.MaxRegenAttempts,
		CustomPrompt:     opts.CustomPrompt,
		ImageSize:        r.cfg.Storyboard.ImageSize,
	})
	if err != nil {
		r.recordFailure(sceneNumber, err)
		if hadResult {
			previous.RegenAttempts = attempts
			if updateErr := r.state.UpdateStoryboardScene(previous); updateErr != nil {
				r.logger.Warn("record failed attempt", logging.Error(updateErr))
			}
			r.persist(ctx)
		}
		return fmt.Errorf("regen storyboard scene: %w", err)
	}
	if r.state.RunID() != runID {
		return fmt.Errorf("regen storyboard scene: run superseded")
	}
	result.SceneNumber = sceneNumber
	result.RegenAttempts = attempts
	if err := r.applyStoryboard(result); err != nil {
		return fmt.Errorf("regen storyboard scene: %w", err)
	}
	r.state.AppendLog(run.LevelSuccess, fmt.Sprintf("Scene %d storyboard regenerated", sceneNumber))
	if result.QCReport.MinScore() < r.cfg.Storyboard.QCThreshold {
		r.state.AppendLog(run.LevelWarn, fmt.Sprintf("Scene %d still below QC threshold (%.0f < %.0f)",
			sceneNumber, result.QCReport.MinScore(), r.cfg.Storyboard.QCThreshold))
	}
	r.persist(ctx)
	return nil
}

// VideoSceneOptions tune a single-scene video regeneration.
type VideoSceneOptions struct {
	Seed                int
	NegativePromptExtra string
}

// RegenerateVideoScene regenerates the clips for one scene. The video QC
// threshold runs on the 0-10 scale. The selected variant's QC report is sent
// along so the server can rewrite the generation prompt against the prior
// failures; any rewrite context it returns is kept for display.
func (r *Regenerator) RegenerateVideoScene(ctx context.Context, sceneNumber int, opts VideoSceneOptions) error {
	runID := r.state.RunID()
	if runID == "" {
		return ErrNoRun
	}
	script := r.state.Script()
	if script == nil {
		return fmt.Errorf("regen video scene: %w: script missing", ErrPrecondition)
	}
	scene, ok := script.SceneByNumber(sceneNumber)
	if !ok {
		return fmt.Errorf("regen video scene: %w", run.ErrUnknownScene)
	}
	storyboard, ok := r.state.StoryboardScene(sceneNumber)
	if !ok {
		return fmt.Errorf("regen video scene: %w: storyboard result missing", ErrPrecondition)
	}
	if !r.state.TryBeginScene(sceneNumber) {
		r.logger.Info("ignoring regeneration: scene busy",
			logging.Int(logging.FieldScene, sceneNumber))
		return ErrSceneBusy
	}
	defer r.state.EndScene(sceneNumber)

	attempts := 1
	var previousQC *run.VideoQC
	previous, hadResult := r.state.VideoScene(sceneNumber)
	if hadResult {
		attempts = previous.RegenAttempts + 1
		if variant, ok := previous.SelectedVariant(); ok {
			previousQC = variant.QCReport
		}
	}
	if limit := r.cfg.Video.MaxRegenAttempts; attempts > limit {
		r.logger.Warn("video regen past advisory attempt cap",
			logging.Int(logging.FieldScene, sceneNumber),
			logging.Int("attempt", attempts),
			logging.Int("cap", limit))
	}
	r.state.ClearError()
	detail := ""
	if previousQC != nil {
		detail = " (with QC feedback)"
	}
	r.state.AppendLog(run.LevelInfo, fmt.Sprintf("Regenerating video for scene %d%s...", sceneNumber, detail))

	seed := opts.Seed
	if seed == 0 {
		seed = r.cfg.Video.Seed
	}
	resp, err := r.service.RegenVideoScene(ctx, studio.VideoRegenRequest{
		RunID:               runID,
		SceneNumber:         sceneNumber,
		Scene:               scene,
		StoryboardResult:    storyboard,
		AvatarProfile:       script.AvatarProfile,
		Seed:                seed,
		Resolution:          r.cfg.Video.Resolution,
		Model:               r.cfg.Video.Model,
		AspectRatio:         r.cfg.Avatar.AspectRatio,
		NumVariants:         r.cfg.Video.Variants,
		QCThreshold:         r.cfg.Video.QCThreshold,
		MaxQCRegenAttempts:  r.cfg.Video.MaxRegenAttempts,
		NegativePromptExtra: opts.NegativePromptExtra,
		GenerateAudio:       r.cfg.Video.GenerateAudio,
		PreviousQCReport:    previousQC,
	})
	if err != nil {
		r.recordFailure(sceneNumber, err)
		if hadResult {
			previous.RegenAttempts = attempts
			if updateErr := r.state.UpdateVideoScene(previous); updateErr != nil {
				r.logger.Warn("record failed attempt", logging.Error(updateErr))
			}
			r.persist(ctx)
		}
		return fmt.Errorf("regen video scene: %w", err)
	}
	if r.state.RunID() != runID {
		return fmt.Errorf("regen video scene: run superseded")
	}
	result := resp.Result
	result.SceneNumber = sceneNumber
	result.RegenAttempts = attempts
	if err := r.applyVideo(result); err != nil {
		return fmt.Errorf("regen video scene: %w", err)
	}
	r.state.AppendLog(run.LevelSuccess, fmt.Sprintf("Scene %d video regenerated", sceneNumber))
	r.persist(ctx)
	return nil
}

// applyStoryboard routes the regenerated result through the sealed-stage
// update when a full set exists, falling back to an upsert mid-generation.
func (r *Regenerator) applyStoryboard(result run.StoryboardResult) error {
	if err := r.state.UpdateStoryboardScene(result); err == nil {
		return nil
	}
	return r.state.UpsertStoryboardScene(result)
}

func (r *Regenerator) applyVideo(result run.VideoResult) error {
	if err := r.state.UpdateVideoScene(result); err == nil {
		return nil
	}
	return r.state.UpsertVideoScene(result)
}

func (r *Regenerator) recordFailure(sceneNumber int, err error) {
	r.state.SetError(err.Error())
	r.state.AppendLog(run.LevelError, fmt.Sprintf("Scene %d: %v", sceneNumber, err))
}

func (r *Regenerator) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveSnapshot(ctx, r.state.Snapshot()); err != nil {
		r.logger.Warn("persist snapshot", logging.Error(err))
	}
}

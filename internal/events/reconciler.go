package events

import (
	"errors"
	"fmt"
	"log/slog"

	"genflow/internal/logging"
	"genflow/internal/run"
)

// Reconciler folds decoded events into run state. Applying the same event
// twice leaves the state unchanged, and events for a different run are
// discarded, so a replayed or reconnected stream is always safe to drain.
type Reconciler struct {
	state  *run.State
	logger *slog.Logger
}

// NewReconciler binds a reconciler to the given state.
func NewReconciler(state *run.State, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{state: state, logger: logger}
}

// Apply folds one event. Rejected or stale events are logged and dropped;
// they never corrupt state, so the stream loop keeps running regardless.
func (r *Reconciler) Apply(ev Event) {
	if runID := r.state.RunID(); runID != "" && ev.RunID != "" && ev.RunID != runID {
		r.logger.Debug("discarding event for different run",
			logging.String(logging.FieldEventType, string(ev.Kind)),
			logging.String(logging.FieldRunID, ev.RunID))
		return
	}

	switch ev.Kind {
	case KindStepUpdate:
		r.applyStepUpdate(ev)
	case KindScriptReady:
		if err := r.state.SetScript(*ev.Script); err != nil {
			r.warn(ev, err)
			return
		}
		r.state.AppendLog(run.LevelSuccess, "Script generated successfully")
	case KindAvatarsReady:
		r.state.ReplaceAvatars(ev.Avatars)
		r.state.AppendLog(run.LevelSuccess, "Avatar variants generated")
	case KindSceneProgress:
		r.applySceneProgress(ev)
	case KindStoryboardReady:
		r.state.ReplaceStoryboard(ev.Storyboard)
		r.state.AppendLog(run.LevelSuccess, "Storyboard generation complete")
	case KindVideoReady:
		r.state.ReplaceVideos(ev.Videos)
		r.state.AppendLog(run.LevelSuccess, "Video generation complete")
	case KindStitchReady:
		r.state.SetFinalVideo(ev.FinalVideoPath)
		r.state.AppendLog(run.LevelSuccess, "Final video stitched")
	case KindError:
		r.state.SetError(ev.Message)
		r.state.AppendLog(run.LevelError, ev.Message)
	case KindLog:
		r.state.AppendLog(ev.Level, ev.Message)
	default:
		if ev.Detail != "" {
			r.state.AppendLog(run.LevelDim, ev.Detail)
		} else {
			r.logger.Debug("ignoring unknown event kind",
				logging.String(logging.FieldEventType, string(ev.Kind)))
		}
	}
}

func (r *Reconciler) applyStepUpdate(ev Event) {
	if ev.StepUpdate.StepIndex != nil {
		stage := run.Stage(*ev.StepUpdate.StepIndex)
		if stage >= run.StageInput && stage <= run.StageReview {
			r.state.SetStage(stage)
		} else {
			r.logger.Warn("step_update with out-of-range stage",
				logging.Int(logging.FieldStage, *ev.StepUpdate.StepIndex))
		}
	}
	if ev.StepUpdate.Detail != "" {
		r.state.SetActivity(ev.StepUpdate.Detail)
		r.state.AppendLog(run.LevelInfo, ev.StepUpdate.Detail)
	}
}

func (r *Reconciler) applySceneProgress(ev Event) {
	var err error
	switch {
	case ev.StoryboardScene != nil:
		err = r.state.UpsertStoryboardScene(*ev.StoryboardScene)
	case ev.VideoScene != nil:
		err = r.state.UpsertVideoScene(*ev.VideoScene)
	}
	if err != nil {
		if errors.Is(err, run.ErrStalePartial) {
			r.logger.Debug("dropping stale scene partial",
				logging.Int(logging.FieldScene, ev.SceneNumber))
			return
		}
		r.warn(ev, err)
		return
	}
	r.state.AppendLog(run.LevelInfo, fmt.Sprintf("Scene %d completed", ev.SceneNumber))
}

func (r *Reconciler) warn(ev Event, err error) {
	r.logger.Warn("rejected event",
		logging.String(logging.FieldEventType, string(ev.Kind)),
		logging.Error(err))
}

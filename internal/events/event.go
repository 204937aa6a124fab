package events

import (
	"encoding/json"
	"fmt"
	"time"

	"genflow/internal/run"
)

// Kind identifies a pipeline event type on the wire.
type Kind string

const (
	KindStepUpdate      Kind = "step_update"
	KindScriptReady     Kind = "script_ready"
	KindAvatarsReady    Kind = "avatars_ready"
	KindSceneProgress   Kind = "scene_progress"
	KindStoryboardReady Kind = "storyboard_ready"
	KindVideoReady      Kind = "video_ready"
	KindStitchReady     Kind = "stitch_ready"
	KindError           Kind = "error"
	KindLog             Kind = "log"
)

// Event is one decoded pipeline event. Exactly one payload field is non-nil
// for known kinds; unknown kinds carry only the envelope plus Detail.
type Event struct {
	Kind      Kind
	RunID     string
	Timestamp time.Time

	StepUpdate      *StepUpdate
	Script          *run.Script
	Avatars         []run.AvatarVariant
	StoryboardScene *run.StoryboardResult
	VideoScene      *run.VideoResult
	SceneNumber     int
	Storyboard      []run.StoryboardResult
	Videos          []run.VideoResult
	FinalVideoPath  string
	Message         string
	Level           run.LogLevel
	Detail          string
}

// StepUpdate reports orchestrator progress: the active stage index and an
// optional human-readable detail line.
type StepUpdate struct {
	StepIndex *int   `json:"step_index"`
	Detail    string `json:"detail"`
}

// Known reports whether the event kind is part of the closed union.
func (e Event) Known() bool {
	switch e.Kind {
	case KindStepUpdate, KindScriptReady, KindAvatarsReady, KindSceneProgress,
		KindStoryboardReady, KindVideoReady, KindStitchReady, KindError, KindLog:
		return true
	default:
		return false
	}
}

type envelope struct {
	Event     string          `json:"event"`
	JobID     string          `json:"job_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode parses one wire envelope into a typed Event. Envelope-level failures
// return an error; unknown kinds decode successfully with Known() == false so
// the caller can surface them as dim log lines instead of dropping them.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if env.Event == "" {
		return Event{}, fmt.Errorf("decode event: missing event kind")
	}
	ev := Event{
		Kind:      Kind(env.Event),
		RunID:     env.JobID,
		Timestamp: env.Timestamp,
	}
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("{}")
	}
	switch ev.Kind {
	case KindStepUpdate:
		var payload StepUpdate
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode step_update: %w", err)
		}
		ev.StepUpdate = &payload
	case KindScriptReady:
		var payload struct {
			Script *run.Script `json:"script"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode script_ready: %w", err)
		}
		if payload.Script == nil {
			return Event{}, fmt.Errorf("decode script_ready: missing script")
		}
		ev.Script = payload.Script
	case KindAvatarsReady:
		var payload struct {
			Variants []run.AvatarVariant `json:"variants"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode avatars_ready: %w", err)
		}
		if len(payload.Variants) == 0 {
			return Event{}, fmt.Errorf("decode avatars_ready: missing variants")
		}
		ev.Avatars = payload.Variants
	case KindSceneProgress:
		if err := decodeSceneProgress(env.Data, &ev); err != nil {
			return Event{}, err
		}
	case KindStoryboardReady:
		var payload struct {
			Results []run.StoryboardResult `json:"results"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode storyboard_ready: %w", err)
		}
		if len(payload.Results) == 0 {
			return Event{}, fmt.Errorf("decode storyboard_ready: missing results")
		}
		ev.Storyboard = payload.Results
	case KindVideoReady:
		var payload struct {
			Results []run.VideoResult `json:"results"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode video_ready: %w", err)
		}
		if len(payload.Results) == 0 {
			return Event{}, fmt.Errorf("decode video_ready: missing results")
		}
		ev.Videos = payload.Results
	case KindStitchReady:
		var payload struct {
			FinalVideoPath string `json:"final_video_path"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode stitch_ready: %w", err)
		}
		if payload.FinalVideoPath == "" {
			return Event{}, fmt.Errorf("decode stitch_ready: missing final_video_path")
		}
		ev.FinalVideoPath = payload.FinalVideoPath
	case KindError:
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode error event: %w", err)
		}
		if payload.Message == "" {
			return Event{}, fmt.Errorf("decode error event: missing message")
		}
		ev.Message = payload.Message
	case KindLog:
		var payload struct {
			Message string `json:"message"`
			Level   string `json:"level"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode log event: %w", err)
		}
		if payload.Message == "" {
			return Event{}, fmt.Errorf("decode log event: missing message")
		}
		ev.Message = payload.Message
		ev.Level = run.ParseLogLevel(payload.Level)
	default:
		var payload struct {
			Detail string `json:"detail"`
		}
		// Ignore decode failures here: the detail line is best-effort.
		_ = json.Unmarshal(env.Data, &payload)
		ev.Detail = payload.Detail
	}
	return ev, nil
}

// decodeSceneProgress handles the shape-discriminated scene payload: a
// storyboard result carries image_path, a video result carries variants.
func decodeSceneProgress(data json.RawMessage, ev *Event) error {
	var payload struct {
		SceneNumber int             `json:"scene_number"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode scene_progress: %w", err)
	}
	if len(payload.Result) == 0 {
		return fmt.Errorf("decode scene_progress: missing result")
	}
	var probe struct {
		ImagePath *string         `json:"image_path"`
		Variants  json.RawMessage `json:"variants"`
	}
	if err := json.Unmarshal(payload.Result, &probe); err != nil {
		return fmt.Errorf("decode scene_progress result: %w", err)
	}
	ev.SceneNumber = payload.SceneNumber
	switch {
	case probe.ImagePath != nil:
		var result run.StoryboardResult
		if err := json.Unmarshal(payload.Result, &result); err != nil {
			return fmt.Errorf("decode scene_progress storyboard: %w", err)
		}
		if ev.SceneNumber == 0 {
			ev.SceneNumber = result.SceneNumber
		}
		ev.StoryboardScene = &result
	case len(probe.Variants) > 0:
		var result run.VideoResult
		if err := json.Unmarshal(payload.Result, &result); err != nil {
			return fmt.Errorf("decode scene_progress video: %w", err)
		}
		if ev.SceneNumber == 0 {
			ev.SceneNumber = result.SceneNumber
		}
		ev.VideoScene = &result
	default:
		return fmt.Errorf("decode scene_progress: unrecognized result shape")
	}
	return nil
}

package run

import (
	"strings"
	"time"
)

// Stage indexes the seven ordered pipeline phases.
type Stage int

const (
	StageInput Stage = iota
	StageScript
	StageAvatar
	StageStoryboard
	StageVideo
	StageStitch
	StageReview
)

var stageNames = [...]string{
	StageInput:      "input",
	StageScript:     "script",
	StageAvatar:     "avatar",
	StageStoryboard: "storyboard",
	StageVideo:      "video",
	StageStitch:     "stitch",
	StageReview:     "review",
}

// String returns the lowercase stage name.
func (s Stage) String() string {
	if s < StageInput || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// ParseStage converts a stage name into a Stage index.
func ParseStage(value string) (Stage, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for i, name := range stageNames {
		if name == normalized {
			return Stage(i), true
		}
	}
	return StageInput, false
}

// AvatarProfile describes the presenter the script writer designed.
type AvatarProfile struct {
	Gender            string `json:"gender"`
	AgeRange          string `json:"age_range"`
	Attire            string `json:"attire"`
	ToneOfVoice       string `json:"tone_of_voice"`
	VisualDescription string `json:"visual_description"`
	VoiceStyle        string `json:"voice_style,omitempty"`
	Ethnicity         string `json:"ethnicity,omitempty"`
}

// Scene is one scripted scene. SceneNumber values are stable keys used by
// every downstream stage and are never renumbered.
type Scene struct {
	SceneNumber               int     `json:"scene_number"`
	DurationSeconds           float64 `json:"duration_seconds"`
	SceneType                 string  `json:"scene_type"`
	ShotType                  string  `json:"shot_type"`
	CameraMovement            string  `json:"camera_movement"`
	Lighting                  string  `json:"lighting"`
	VisualBackground          string  `json:"visual_background"`
	AvatarAction              string  `json:"avatar_action"`
	AvatarEmotion             string  `json:"avatar_emotion"`
	ProductVisualIntegration  string  `json:"product_visual_integration"`
	ScriptDialogue            string  `json:"script_dialogue"`
	SoundDesign               string  `json:"sound_design"`
	VoiceStyle                string  `json:"voice_style,omitempty"`
	DetailedAvatarDescription string  `json:"detailed_avatar_description,omitempty"`
	NegativeElements          string  `json:"negative_elements,omitempty"`
	TransitionType            string  `json:"transition_type,omitempty"`
	TransitionDuration        float64 `json:"transition_duration,omitempty"`
	AudioContinuity           string  `json:"audio_continuity,omitempty"`
}

// Script is the generated video script for a run.
type Script struct {
	VideoTitle       string        `json:"video_title"`
	TotalDuration    float64       `json:"total_duration"`
	AvatarProfile    AvatarProfile `json:"avatar_profile"`
	Scenes           []Scene       `json:"scenes"`
	NegativeElements string        `json:"negative_elements,omitempty"`
	VoiceStyle       string        `json:"voice_style,omitempty"`
}

// AvatarVariant is one generated presenter candidate.
type AvatarVariant struct {
	Index     int    `json:"index"`
	ImagePath string `json:"image_path"`
}

// QCScore is one scored quality dimension with free-text reasoning.
type QCScore struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// StoryboardQC is the image-stage quality report. Scores run 0-100.
type StoryboardQC struct {
	AvatarValidation   QCScore  `json:"avatar_validation"`
	ProductValidation  QCScore  `json:"product_validation"`
	CompositionQuality *QCScore `json:"composition_quality,omitempty"`
}

// MinScore returns the lowest scored dimension, the value compared against
// the storyboard QC threshold.
func (qc StoryboardQC) MinScore() float64 {
	min := qc.AvatarValidation.Score
	if qc.ProductValidation.Score < min {
		min = qc.ProductValidation.Score
	}
	if qc.CompositionQuality != nil && qc.CompositionQuality.Score < min {
		min = qc.CompositionQuality.Score
	}
	return min
}

// StoryboardResult is one scene's generated frame keyed by scene number.
type StoryboardResult struct {
	SceneNumber   int          `json:"scene_number"`
	ImagePath     string       `json:"image_path"`
	QCReport      StoryboardQC `json:"qc_report"`
	RegenAttempts int          `json:"regen_attempts"`
	PromptUsed    string       `json:"prompt_used,omitempty"`
}

// VideoQCDimension is one scored video quality dimension. Scores run 0-10.
type VideoQCDimension struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// VideoQC is the seven-dimension video quality report.
type VideoQC struct {
	TechnicalDistortion    VideoQCDimension `json:"technical_distortion"`
	CinematicImperfections VideoQCDimension `json:"cinematic_imperfections"`
	AvatarConsistency      VideoQCDimension `json:"avatar_consistency"`
	ProductConsistency     VideoQCDimension `json:"product_consistency"`
	TemporalCoherence      VideoQCDimension `json:"temporal_coherence"`
	HandBodyIntegrity      VideoQCDimension `json:"hand_body_integrity"`
	BrandTextAccuracy      VideoQCDimension `json:"brand_text_accuracy"`
	OverallVerdict         string           `json:"overall_verdict"`
}

// MinScore returns the lowest scored dimension across the seven.
func (qc VideoQC) MinScore() float64 {
	min := qc.TechnicalDistortion.Score
	for _, dim := range []VideoQCDimension{
		qc.CinematicImperfections,
		qc.AvatarConsistency,
		qc.ProductConsistency,
		qc.TemporalCoherence,
		qc.HandBodyIntegrity,
		qc.BrandTextAccuracy,
	} {
		if dim.Score < min {
			min = dim.Score
		}
	}
	return min
}

// VideoVariant is one generated clip candidate for a scene.
type VideoVariant struct {
	Index     int      `json:"index"`
	VideoPath string   `json:"video_path"`
	QCReport  *VideoQC `json:"qc_report,omitempty"`
}

// VideoResult is one scene's generated clip set keyed by scene number.
// SelectedIndex always references an existing variant and SelectedVideoPath
// always equals that variant's path.
type VideoResult struct {
	SceneNumber       int            `json:"scene_number"`
	Variants          []VideoVariant `json:"variants"`
	SelectedIndex     int            `json:"selected_index"`
	SelectedVideoPath string         `json:"selected_video_path"`
	RegenAttempts     int            `json:"regen_attempts,omitempty"`
	PromptUsed        string         `json:"prompt_used,omitempty"`
	QCRewriteContext  string         `json:"qc_rewrite_context,omitempty"`
}

// SelectedVariant returns the currently selected variant.
func (r VideoResult) SelectedVariant() (VideoVariant, bool) {
	for _, v := range r.Variants {
		if v.Index == r.SelectedIndex {
			return v, true
		}
	}
	return VideoVariant{}, false
}

// LogLevel classifies run log entries.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarn    LogLevel = "warn"
	LevelError   LogLevel = "error"
	LevelDim     LogLevel = "dim"
)

// ParseLogLevel converts a string into a known LogLevel, defaulting to info.
func ParseLogLevel(value string) LogLevel {
	switch normalized := LogLevel(strings.ToLower(strings.TrimSpace(value))); normalized {
	case LevelInfo, LevelSuccess, LevelWarn, LevelError, LevelDim:
		return normalized
	default:
		return LevelInfo
	}
}

// LogEntry is one timestamped line in a run's append-only log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// ReviewDecision is the human review outcome for a completed run.
type ReviewDecision string

const (
	ReviewApproved         ReviewDecision = "approved"
	ReviewRejected         ReviewDecision = "rejected"
	ReviewChangesRequested ReviewDecision = "changes_requested"
)

// ParseReviewDecision converts a string into a known ReviewDecision.
func ParseReviewDecision(value string) (ReviewDecision, bool) {
	normalized := ReviewDecision(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ReviewApproved, ReviewRejected, ReviewChangesRequested:
		return normalized, true
	default:
		return "", false
	}
}

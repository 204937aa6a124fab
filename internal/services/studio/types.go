package studio

import (
	"time"

	"genflow/internal/run"
)

// ScriptRequest starts a new pipeline run from product input. RunID is chosen
// by the caller so that the event stream can be attached before the request
// is sent.
type ScriptRequest struct {
	ProductName              string `json:"product_name"`
	Specifications           string `json:"specifications"`
	ImageURL                 string `json:"image_url"`
	SceneCount               int    `json:"scene_count,omitempty"`
	AdTone                   string `json:"ad_tone,omitempty"`
	Model                    string `json:"gemini_model,omitempty"`
	MaxDialogueWordsPerScene int    `json:"max_dialogue_words_per_scene,omitempty"`
	CustomInstructions       string `json:"custom_instructions,omitempty"`
	RunID                    string `json:"run_id,omitempty"`
}

// ScriptResponse is the synchronous result of script generation.
type ScriptResponse struct {
	Status           string     `json:"status"`
	RunID            string     `json:"run_id"`
	ProductImagePath string     `json:"product_image_path"`
	Script           run.Script `json:"script"`
}

// AvatarRequest generates presenter candidates from the script's profile.
type AvatarRequest struct {
	RunID             string            `json:"run_id"`
	AvatarProfile     run.AvatarProfile `json:"avatar_profile"`
	NumVariants       int               `json:"num_variants,omitempty"`
	ImageModel        string            `json:"image_model,omitempty"`
	CustomPrompt      string            `json:"custom_prompt,omitempty"`
	ReferenceImageURL string            `json:"reference_image_url,omitempty"`
	OverrideEthnicity string            `json:"override_ethnicity,omitempty"`
	OverrideGender    string            `json:"override_gender,omitempty"`
	OverrideAgeRange  string            `json:"override_age_range,omitempty"`
	AspectRatio       string            `json:"aspect_ratio,omitempty"`
	ImageSize         string            `json:"image_size,omitempty"`
}

// AvatarResponse is the synchronous result of avatar generation.
type AvatarResponse struct {
	Status   string              `json:"status"`
	RunID    string              `json:"run_id"`
	Variants []run.AvatarVariant `json:"variants"`
}

// AvatarSelection confirms a variant choice server-side.
type AvatarSelection struct {
	Status       string `json:"status"`
	SelectedPath string `json:"selected_path"`
}

// StoryboardRequest renders one frame per scripted scene.
type StoryboardRequest struct {
	RunID                string         `json:"run_id"`
	Scenes               []run.Scene    `json:"scenes"`
	ImageModel           string         `json:"image_model,omitempty"`
	AspectRatio          string         `json:"aspect_ratio,omitempty"`
	QCThreshold          float64        `json:"qc_threshold,omitempty"`
	MaxRegenAttempts     int            `json:"max_regen_attempts,omitempty"`
	IncludeCompositionQC bool           `json:"include_composition_qc,omitempty"`
	CustomPrompts        map[int]string `json:"custom_prompts,omitempty"`
	ImageSize            string         `json:"image_size,omitempty"`
}

// StoryboardResponse is the final result set after server-side QC retries.
type StoryboardResponse struct {
	Status  string                 `json:"status"`
	Results []run.StoryboardResult `json:"results"`
}

// StoryboardRegenRequest regenerates a single storyboard scene.
type StoryboardRegenRequest struct {
	RunID                string    `json:"run_id"`
	SceneNumber          int       `json:"scene_number"`
	Scene                run.Scene `json:"scene"`
	ImageModel           string    `json:"image_model,omitempty"`
	AspectRatio          string    `json:"aspect_ratio,omitempty"`
	QCThreshold          float64   `json:"qc_threshold,omitempty"`
	MaxRegenAttempts     int       `json:"max_regen_attempts,omitempty"`
	IncludeCompositionQC bool      `json:"include_composition_qc,omitempty"`
	CustomPrompt         string    `json:"custom_prompt,omitempty"`
	ImageSize            string    `json:"image_size,omitempty"`
}

// VideoRequest renders clip variants for every storyboard scene.
type VideoRequest struct {
	RunID               string                 `json:"run_id"`
	ScenesData          []run.StoryboardResult `json:"scenes_data"`
	ScriptScenes        []run.Scene            `json:"script_scenes"`
	AvatarProfile       run.AvatarProfile      `json:"avatar_profile"`
	Seed                int                    `json:"seed,omitempty"`
	Resolution          string                 `json:"resolution,omitempty"`
	Model               string                 `json:"veo_model,omitempty"`
	AspectRatio         string                 `json:"aspect_ratio,omitempty"`
	DurationSeconds     float64                `json:"duration_seconds,omitempty"`
	NumVariants         int                    `json:"num_variants,omitempty"`
	CompressionQuality  string                 `json:"compression_quality,omitempty"`
	QCThreshold         float64                `json:"qc_threshold,omitempty"`
	MaxQCRegenAttempts  int                    `json:"max_qc_regen_attempts,omitempty"`
	UseReferenceImages  bool                   `json:"use_reference_images,omitempty"`
	NegativePromptExtra string                 `json:"negative_prompt_extra,omitempty"`
	GenerateAudio       bool                   `json:"generate_audio,omitempty"`
}

// VideoResponse is the final per-scene variant set after server-side QC.
type VideoResponse struct {
	Status  string            `json:"status"`
	Results []run.VideoResult `json:"results"`
}

// VideoRegenRequest regenerates clips for a single scene. PreviousQCReport
// lets the server rewrite the generation prompt against the prior failures.
type VideoRegenRequest struct {
	RunID               string               `json:"run_id"`
	SceneNumber         int                  `json:"scene_number"`
	Scene               run.Scene            `json:"scene"`
	StoryboardResult    run.StoryboardResult `json:"storyboard_result"`
	AvatarProfile       run.AvatarProfile    `json:"avatar_profile"`
	Seed                int                  `json:"seed,omitempty"`
	Resolution          string               `json:"resolution,omitempty"`
	Model               string               `json:"veo_model,omitempty"`
	AspectRatio         string               `json:"aspect_ratio,omitempty"`
	DurationSeconds     float64              `json:"duration_seconds,omitempty"`
	NumVariants         int                  `json:"num_variants,omitempty"`
	CompressionQuality  string               `json:"compression_quality,omitempty"`
	QCThreshold         float64              `json:"qc_threshold,omitempty"`
	MaxQCRegenAttempts  int                  `json:"max_qc_regen_attempts,omitempty"`
	UseReferenceImages  bool                 `json:"use_reference_images,omitempty"`
	NegativePromptExtra string               `json:"negative_prompt_extra,omitempty"`
	GenerateAudio       bool                 `json:"generate_audio,omitempty"`
	PreviousQCReport    *run.VideoQC         `json:"previous_qc_report,omitempty"`
}

// VideoRegenResponse carries the server's best attempt for the scene.
type VideoRegenResponse struct {
	Status string          `json:"status"`
	Result run.VideoResult `json:"result"`
}

// VideoSelection confirms a per-scene variant choice server-side.
type VideoSelection struct {
	Status            string `json:"status"`
	SelectedVideoPath string `json:"selected_video_path"`
}

// StitchResponse carries the assembled final video path.
type StitchResponse struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

// JobProgress mirrors the server's step pointer for a stored job.
type JobProgress struct {
	CurrentStep string `json:"current_step"`
	StepIndex   int    `json:"step_index"`
	TotalSteps  int    `json:"total_steps"`
	Detail      string `json:"detail"`
}

// Job is the server's stored view of a run, returned by the jobs endpoints.
type Job struct {
	JobID             string                 `json:"job_id"`
	Status            string                 `json:"status"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	Progress          *JobProgress           `json:"progress,omitempty"`
	Script            *run.Script            `json:"script,omitempty"`
	AvatarVariants    []run.AvatarVariant    `json:"avatar_variants,omitempty"`
	SelectedAvatar    string                 `json:"selected_avatar,omitempty"`
	StoryboardResults []run.StoryboardResult `json:"storyboard_results,omitempty"`
	VideoResults      []run.VideoResult      `json:"video_results,omitempty"`
	FinalVideoPath    string                 `json:"final_video_path,omitempty"`
	Error             string                 `json:"error,omitempty"`
}

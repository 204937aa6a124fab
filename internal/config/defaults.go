package config

const (
	defaultDataDir                 = "~/.local/share/genflow/data"
	defaultLogDir                  = "~/.local/share/genflow/logs"
	defaultServiceBaseURL          = "http://127.0.0.1:8000"
	defaultServiceTimeoutSeconds   = 600
	defaultSceneCount              = 5
	defaultAdTone                  = "energetic"
	defaultScriptModel             = "gemini-3-flash-preview"
	defaultAvatarVariants          = 4
	defaultAspectRatio             = "9:16"
	defaultImageSize               = "1K"
	defaultStoryboardQCThreshold   = 75
	defaultStoryboardRegenAttempts = 2
	defaultVideoVariants           = 2
	defaultVideoResolution         = "720p"
	defaultVideoModel              = "veo-3.1"
	defaultVideoQCThreshold        = 7.0
	defaultVideoRegenAttempts      = 2
	defaultStitchTransitionType    = "cut"
	defaultStitchTransitionDur     = 0.5
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	storyboardQCScaleMax           = 100
	videoQCScaleMax                = 10
)

// Scene count bounds enforced on both config and per-run overrides.
const (
	MinSceneCount = 1
	MaxSceneCount = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Service: Service{
			BaseURL:        defaultServiceBaseURL,
			TimeoutSeconds: defaultServiceTimeoutSeconds,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Script: Script{
			SceneCount: defaultSceneCount,
			AdTone:     defaultAdTone,
			Model:      defaultScriptModel,
		},
		Avatar: Avatar{
			Variants:    defaultAvatarVariants,
			AspectRatio: defaultAspectRatio,
			ImageSize:   defaultImageSize,
		},
		Storyboard: Storyboard{
			QCThreshold:      defaultStoryboardQCThreshold,
			MaxRegenAttempts: defaultStoryboardRegenAttempts,
			ImageSize:        defaultImageSize,
		},
		Video: Video{
			Variants:         defaultVideoVariants,
			Resolution:       defaultVideoResolution,
			Model:            defaultVideoModel,
			QCThreshold:      defaultVideoQCThreshold,
			MaxRegenAttempts: defaultVideoRegenAttempts,
			GenerateAudio:    true,
		},
		Stitch: Stitch{
			TransitionType:     defaultStitchTransitionType,
			TransitionDuration: defaultStitchTransitionDur,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeService()
	c.normalizeStageDefaults()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeService() {
	c.Service.BaseURL = strings.TrimRight(strings.TrimSpace(c.Service.BaseURL), "/")
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = defaultServiceBaseURL
	}
	c.Service.APIKey = strings.TrimSpace(c.Service.APIKey)
	if c.Service.APIKey == "" {
		c.Service.APIKey = strings.TrimSpace(os.Getenv("GENFLOW_API_KEY"))
	}
	if c.Service.TimeoutSeconds <= 0 {
		c.Service.TimeoutSeconds = defaultServiceTimeoutSeconds
	}
}

func (c *Config) normalizeStageDefaults() {
	c.Script.AdTone = strings.TrimSpace(c.Script.AdTone)
	if c.Script.AdTone == "" {
		c.Script.AdTone = defaultAdTone
	}
	c.Script.Model = strings.TrimSpace(c.Script.Model)
	if c.Script.Model == "" {
		c.Script.Model = defaultScriptModel
	}
	if c.Script.SceneCount == 0 {
		c.Script.SceneCount = defaultSceneCount
	}
	if c.Avatar.Variants == 0 {
		c.Avatar.Variants = defaultAvatarVariants
	}
	c.Avatar.AspectRatio = strings.TrimSpace(c.Avatar.AspectRatio)
	if c.Avatar.AspectRatio == "" {
		c.Avatar.AspectRatio = defaultAspectRatio
	}
	if c.Storyboard.MaxRegenAttempts == 0 {
		c.Storyboard.MaxRegenAttempts = defaultStoryboardRegenAttempts
	}
	if c.Video.Variants == 0 {
		c.Video.Variants = defaultVideoVariants
	}
	if c.Video.MaxRegenAttempts == 0 {
		c.Video.MaxRegenAttempts = defaultVideoRegenAttempts
	}
	c.Video.Model = strings.TrimSpace(c.Video.Model)
	if c.Video.Model == "" {
		c.Video.Model = defaultVideoModel
	}
	c.Stitch.TransitionType = strings.TrimSpace(c.Stitch.TransitionType)
	if c.Stitch.TransitionType == "" {
		c.Stitch.TransitionType = defaultStitchTransitionType
	}
	if c.Stitch.TransitionDuration <= 0 {
		c.Stitch.TransitionDuration = defaultStitchTransitionDur
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

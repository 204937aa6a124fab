package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateScript(); err != nil {
		return err
	}
	if err := c.validateAvatar(); err != nil {
		return err
	}
	if err := c.validateThresholds(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateService() error {
	parsed, err := url.Parse(c.Service.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("service.base_url %q must be an absolute URL", c.Service.BaseURL)
	}
	if c.Service.TimeoutSeconds <= 0 {
		return errors.New("service.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateScript() error {
	if c.Script.SceneCount < MinSceneCount || c.Script.SceneCount > MaxSceneCount {
		return fmt.Errorf("script.scene_count must be between %d and %d", MinSceneCount, MaxSceneCount)
	}
	return nil
}

func (c *Config) validateAvatar() error {
	if c.Avatar.Variants <= 0 {
		return errors.New("avatar.variants must be positive")
	}
	switch c.Avatar.AspectRatio {
	case "9:16", "16:9":
		return nil
	default:
		return fmt.Errorf("avatar.aspect_ratio %q must be 9:16 or 16:9", c.Avatar.AspectRatio)
	}
}

// validateThresholds guards the two QC scales. Storyboard scores run 0-100,
// video scores 0-10; a threshold configured on the wrong scale would either
// always pass or always fail, so both ranges are enforced here.
func (c *Config) validateThresholds() error {
	if c.Storyboard.QCThreshold < 0 || c.Storyboard.QCThreshold > storyboardQCScaleMax {
		return fmt.Errorf("storyboard.qc_threshold must be between 0 and %d", storyboardQCScaleMax)
	}
	if c.Storyboard.MaxRegenAttempts < 0 {
		return errors.New("storyboard.max_regen_attempts must not be negative")
	}
	if c.Video.QCThreshold < 0 || c.Video.QCThreshold > videoQCScaleMax {
		return fmt.Errorf("video.qc_threshold must be between 0 and %d", videoQCScaleMax)
	}
	if c.Video.MaxRegenAttempts < 0 {
		return errors.New("video.max_regen_attempts must not be negative")
	}
	if c.Video.Variants <= 0 {
		return errors.New("video.variants must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

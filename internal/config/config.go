package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Service contains connection settings for the remote generation service.
type Service struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Paths contains local directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Script contains defaults for the script generation stage.
type Script struct {
	SceneCount int    `toml:"scene_count"`
	AdTone     string `toml:"ad_tone"`
	Model      string `toml:"model"`
}

// Avatar contains defaults for the avatar generation stage.
type Avatar struct {
	Variants    int    `toml:"variants"`
	AspectRatio string `toml:"aspect_ratio"`
	ImageSize   string `toml:"image_size"`
}

// Storyboard contains defaults for the storyboard generation stage.
// QCThreshold uses the image-stage 0-100 scale.
type Storyboard struct {
	QCThreshold      float64 `toml:"qc_threshold"`
	MaxRegenAttempts int     `toml:"max_regen_attempts"`
	ImageSize        string  `toml:"image_size"`
}

// Video contains defaults for the video generation stage.
// QCThreshold uses the video-stage 0-10 scale.
type Video struct {
	Variants         int     `toml:"variants"`
	Resolution       string  `toml:"resolution"`
	Model            string  `toml:"model"`
	QCThreshold      float64 `toml:"qc_threshold"`
	MaxRegenAttempts int     `toml:"max_regen_attempts"`
	Seed             int     `toml:"seed"`
	GenerateAudio    bool    `toml:"generate_audio"`
}

// Stitch contains defaults for final assembly.
type Stitch struct {
	TransitionType     string  `toml:"transition_type"`
	TransitionDuration float64 `toml:"transition_duration"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for genflow.
//
// Configuration sections by subsystem:
//   - Service: generation service URL, credentials, and call timeout
//   - Paths: local data and log directories
//   - Script/Avatar/Storyboard/Video/Stitch: per-stage generation defaults
//   - Logging: log format and level
type Config struct {
	Service    Service    `toml:"service"`
	Paths      Paths      `toml:"paths"`
	Script     Script     `toml:"script"`
	Avatar     Avatar     `toml:"avatar"`
	Storyboard Storyboard `toml:"storyboard"`
	Video      Video      `toml:"video"`
	Stitch     Stitch     `toml:"stitch"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/genflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return value is the
// resolved path, the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("genflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories required for operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

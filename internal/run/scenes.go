package run

import "fmt"

// ValidateScenes enforces the scene-key invariant: scene numbers are unique
// and contiguous starting at 1.
func ValidateScenes(scenes []Scene) error {
	if len(scenes) == 0 {
		return fmt.Errorf("script has no scenes")
	}
	seen := make(map[int]struct{}, len(scenes))
	for _, scene := range scenes {
		if scene.SceneNumber < 1 || scene.SceneNumber > len(scenes) {
			return fmt.Errorf("scene_number %d out of range 1..%d", scene.SceneNumber, len(scenes))
		}
		if _, ok := seen[scene.SceneNumber]; ok {
			return fmt.Errorf("duplicate scene_number %d", scene.SceneNumber)
		}
		seen[scene.SceneNumber] = struct{}{}
	}
	return nil
}

// SceneByNumber returns the scene with the given stable key.
func (s *Script) SceneByNumber(number int) (Scene, bool) {
	if s == nil {
		return Scene{}, false
	}
	for _, scene := range s.Scenes {
		if scene.SceneNumber == number {
			return scene, true
		}
	}
	return Scene{}, false
}

// TransitionCue pairs a transition type with its duration for the stitcher.
type TransitionCue struct {
	Type     string  `json:"transition_type"`
	Duration float64 `json:"transition_duration"`
}

// TransitionCues derives per-scene transition parameters from the script.
// Every scene except the last contributes one cue; scenes without explicit
// transition fields fall back to the provided defaults.
func (s *Script) TransitionCues(defaultType string, defaultDuration float64) []TransitionCue {
	if s == nil || len(s.Scenes) < 2 {
		return nil
	}
	cues := make([]TransitionCue, 0, len(s.Scenes)-1)
	for _, scene := range s.Scenes[:len(s.Scenes)-1] {
		cue := TransitionCue{Type: scene.TransitionType, Duration: scene.TransitionDuration}
		if cue.Type == "" {
			cue.Type = defaultType
		}
		if cue.Duration <= 0 {
			cue.Duration = defaultDuration
		}
		cues = append(cues, cue)
	}
	return cues
}

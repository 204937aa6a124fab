package run_test

import (
	"testing"

	"genflow/internal/run"
)

func TestMaxReachableStageFromData(t *testing.T) {
	script := testScript(2)
	tests := []struct {
		name string
		snap run.Snapshot
		want run.Stage
	}{
		{"empty", run.Snapshot{}, run.StageInput},
		{"run id only", run.Snapshot{RunID: "r"}, run.StageScript},
		{"script present", run.Snapshot{RunID: "r", Script: &script}, run.StageAvatar},
		{
			"avatars present",
			run.Snapshot{RunID: "r", Script: &script, AvatarVariants: []run.AvatarVariant{{Index: 0}}},
			run.StageStoryboard,
		},
		{
			"storyboard present",
			run.Snapshot{
				RunID:      "r",
				Script:     &script,
				Storyboard: []run.StoryboardResult{storyboardResult(1, 80)},
			},
			run.StageVideo,
		},
		{
			"videos present",
			run.Snapshot{RunID: "r", Videos: []run.VideoResult{videoResult(1, 1)}},
			run.StageStitch,
		},
		{
			"final video present",
			run.Snapshot{RunID: "r", FinalVideoPath: "/final.mp4"},
			run.StageReview,
		},
		{
			"active stage widens",
			run.Snapshot{RunID: "r", ActiveStage: run.StageVideo},
			run.StageVideo,
		},
		{
			"recorded high-water widens",
			run.Snapshot{RunID: "r", Reached: run.StageStitch},
			run.StageStitch,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := run.MaxReachableStage(tc.snap); got != tc.want {
				t.Fatalf("MaxReachableStage = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMaxReachableStageNeverDecreases(t *testing.T) {
	state := newStateWithScript(t, 2)
	state.ReplaceAvatars([]run.AvatarVariant{{Index: 0, ImagePath: "/a.png"}})
	state.ReplaceStoryboard([]run.StoryboardResult{
		storyboardResult(1, 80),
		storyboardResult(2, 80),
	})
	if got := state.MaxReachableStage(); got != run.StageVideo {
		t.Fatalf("after storyboard, reachable = %v, want %v", got, run.StageVideo)
	}

	// Clearing the collection for a fresh generation attempt must not lock the
	// user out of a stage they already reached.
	state.ClearStoryboard()
	if got := state.MaxReachableStage(); got != run.StageVideo {
		t.Fatalf("after clear, reachable = %v, want %v", got, run.StageVideo)
	}

	// The recorded high-water survives a snapshot round trip.
	restored := run.NewState()
	restored.Restore(state.Snapshot())
	if got := restored.MaxReachableStage(); got != run.StageVideo {
		t.Fatalf("after restore, reachable = %v, want %v", got, run.StageVideo)
	}
}

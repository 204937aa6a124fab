package run

// MaxReachableStage derives the highest stage index the user may navigate to
// from data completeness: producing stage N's data unlocks stage N+1. The
// value is widened to the orchestrator's active stage (a stage that is in
// progress but has produced nothing yet still shows its loading state) and
// to the snapshot's recorded high-water mark, which keeps it monotonically
// non-decreasing even when a stage's collection is cleared for progressive
// re-population.
func MaxReachableStage(snap Snapshot) Stage {
	reached := reachableFromData(snap)
	if snap.ActiveStage > reached {
		reached = snap.ActiveStage
	}
	if snap.Reached > reached {
		reached = snap.Reached
	}
	return reached
}

func reachableFromData(snap Snapshot) Stage {
	reached := StageInput
	if snap.RunID != "" {
		reached = StageScript
	}
	if snap.Script != nil && len(snap.Script.Scenes) > 0 {
		reached = StageAvatar
	}
	if len(snap.AvatarVariants) > 0 {
		reached = StageStoryboard
	}
	if len(snap.Storyboard) > 0 {
		reached = StageVideo
	}
	if len(snap.Videos) > 0 {
		reached = StageStitch
	}
	if snap.FinalVideoPath != "" {
		reached = StageReview
	}
	return reached
}

// MaxReachableStage reports the live state's navigation bound and records it
// as the new high-water mark.
func (s *State) MaxReachableStage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateReachedLocked()
	return s.reached
}

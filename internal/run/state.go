package run

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Merge errors surfaced to callers applying responses or stream events.
var (
	// ErrStalePartial reports a partial scene update that arrived after the
	// stage was sealed by an authoritative full replace.
	ErrStalePartial = errors.New("stale partial update for sealed stage")
	// ErrUnknownScene reports a scene_number with no corresponding entry.
	ErrUnknownScene = errors.New("unknown scene number")
	// ErrUnknownVariant reports a variant index with no corresponding variant.
	ErrUnknownVariant = errors.New("unknown variant index")
	// ErrNoScript reports an operation that requires a generated script.
	ErrNoScript = errors.New("no script present")
)

// State is the canonical mutable state of one pipeline run. All writes go
// through its methods; the zero value is not usable, construct with NewState.
type State struct {
	mu sync.Mutex

	runID       string
	activeStage Stage
	busy        bool
	sceneBusy   map[int]bool
	lastError   string
	activity    string

	script             *Script
	avatarVariants     []AvatarVariant
	selectedAvatar     int
	selectedAvatarPath string

	storyboard       []StoryboardResult
	storyboardSealed bool
	videos           []VideoResult
	videosSealed     bool
	finalVideoPath   string

	log     []LogEntry
	reached Stage

	now func() time.Time
}

// NewState constructs an empty run state.
func NewState() *State {
	return &State{
		selectedAvatar: -1,
		sceneBusy:      make(map[int]bool),
		now:            time.Now,
	}
}

// Snapshot is a deep, serializable copy of State for presentation and
// persistence. Mutating a Snapshot never affects the live State.
type Snapshot struct {
	RunID              string             `json:"run_id,omitempty"`
	ActiveStage        Stage              `json:"active_stage"`
	Busy               bool               `json:"is_busy,omitempty"`
	LastError          string             `json:"last_error,omitempty"`
	Activity           string             `json:"activity,omitempty"`
	Script             *Script            `json:"script,omitempty"`
	AvatarVariants     []AvatarVariant    `json:"avatar_variants,omitempty"`
	SelectedAvatar     *int               `json:"selected_avatar,omitempty"`
	SelectedAvatarPath string             `json:"selected_avatar_path,omitempty"`
	Storyboard         []StoryboardResult `json:"storyboard_results,omitempty"`
	StoryboardSealed   bool               `json:"storyboard_sealed,omitempty"`
	Videos             []VideoResult      `json:"video_results,omitempty"`
	VideosSealed       bool               `json:"videos_sealed,omitempty"`
	FinalVideoPath     string             `json:"final_video_path,omitempty"`
	Reached            Stage              `json:"reached_stage"`
	Log                []LogEntry         `json:"log,omitempty"`
}

// Snapshot returns a deep copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		RunID:              s.runID,
		ActiveStage:        s.activeStage,
		Busy:               s.busy,
		LastError:          s.lastError,
		Activity:           s.activity,
		SelectedAvatarPath: s.selectedAvatarPath,
		StoryboardSealed:   s.storyboardSealed,
		VideosSealed:       s.videosSealed,
		FinalVideoPath:     s.finalVideoPath,
		Reached:            s.reached,
	}
	if s.script != nil {
		cp := *s.script
		cp.Scenes = append([]Scene(nil), s.script.Scenes...)
		snap.Script = &cp
	}
	if s.selectedAvatar >= 0 {
		idx := s.selectedAvatar
		snap.SelectedAvatar = &idx
	}
	snap.AvatarVariants = append([]AvatarVariant(nil), s.avatarVariants...)
	snap.Storyboard = copyStoryboard(s.storyboard)
	snap.Videos = copyVideos(s.videos)
	snap.Log = append([]LogEntry(nil), s.log...)
	return snap
}

// Restore loads a persisted snapshot into the state, replacing everything.
// Busy flags are never restored; a resumed run always starts idle.
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = snap.RunID
	s.activeStage = snap.ActiveStage
	s.busy = false
	s.sceneBusy = make(map[int]bool)
	s.lastError = snap.LastError
	s.activity = snap.Activity
	s.script = nil
	if snap.Script != nil {
		cp := *snap.Script
		cp.Scenes = append([]Scene(nil), snap.Script.Scenes...)
		s.script = &cp
	}
	s.avatarVariants = append([]AvatarVariant(nil), snap.AvatarVariants...)
	s.selectedAvatar = -1
	if snap.SelectedAvatar != nil {
		s.selectedAvatar = *snap.SelectedAvatar
	}
	s.selectedAvatarPath = snap.SelectedAvatarPath
	s.storyboard = copyStoryboard(snap.Storyboard)
	s.storyboardSealed = snap.StoryboardSealed
	s.videos = copyVideos(snap.Videos)
	s.videosSealed = snap.VideosSealed
	s.finalVideoPath = snap.FinalVideoPath
	s.log = append([]LogEntry(nil), snap.Log...)
	s.reached = snap.Reached
	s.updateReachedLocked()
}

// Reset clears the run back to its initial empty state. This is the only
// destructive operation and corresponds to the explicit "start new run"
// user action.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = ""
	s.activeStage = StageInput
	s.busy = false
	s.sceneBusy = make(map[int]bool)
	s.lastError = ""
	s.activity = ""
	s.script = nil
	s.avatarVariants = nil
	s.selectedAvatar = -1
	s.selectedAvatarPath = ""
	s.storyboard = nil
	s.storyboardSealed = false
	s.videos = nil
	s.videosSealed = false
	s.finalVideoPath = ""
	s.log = nil
	s.reached = StageInput
}

// BeginRun clears all data left by a previous run and seeds the state with a
// freshly assigned run id at the script stage. Unlike Reset it preserves the
// caller's busy flag, so it is safe to call from inside a stage operation.
func (s *State) BeginRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = id
	s.activeStage = StageScript
	s.sceneBusy = make(map[int]bool)
	s.lastError = ""
	s.activity = ""
	s.script = nil
	s.avatarVariants = nil
	s.selectedAvatar = -1
	s.selectedAvatarPath = ""
	s.storyboard = nil
	s.storyboardSealed = false
	s.videos = nil
	s.videosSealed = false
	s.finalVideoPath = ""
	s.log = nil
	s.reached = StageScript
}

// RunID returns the current run identifier, empty before the first stage call.
func (s *State) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// SetRunID records the run identifier.
func (s *State) SetRunID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = id
	s.updateReachedLocked()
}

// TryBeginOp acquires the global stage-operation busy flag. It returns false
// when another stage operation is already in flight.
func (s *State) TryBeginOp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// EndOp releases the global stage-operation busy flag.
func (s *State) EndOp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Busy reports whether a stage operation is in flight.
func (s *State) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// TryBeginScene acquires the per-scene regeneration flag for sceneNumber.
// Scene flags are independent of each other and of the global busy flag.
func (s *State) TryBeginScene(sceneNumber int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sceneBusy[sceneNumber] {
		return false
	}
	s.sceneBusy[sceneNumber] = true
	return true
}

// EndScene releases the per-scene regeneration flag.
func (s *State) EndScene(sceneNumber int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sceneBusy, sceneNumber)
}

// SceneBusy reports whether sceneNumber has a regeneration in flight.
func (s *State) SceneBusy(sceneNumber int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sceneBusy[sceneNumber]
}

// ActiveStage returns the orchestrator's current stage index.
func (s *State) ActiveStage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeStage
}

// SetStage moves the active stage.
func (s *State) SetStage(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeStage = stage
	s.updateReachedLocked()
}

// LastError returns the most recent operation failure message.
func (s *State) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// SetError records a failure message, replacing any previous one.
func (s *State) SetError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = message
}

// ClearError clears the current failure message.
func (s *State) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// SetActivity updates the transient "current activity" label carried by
// stage progress events. It never touches substantive stage data.
func (s *State) SetActivity(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = label
}

// AppendLog appends one entry to the run's append-only log and returns it.
func (s *State) AppendLog(level LogLevel, message string) LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := LogEntry{Timestamp: s.now().UTC(), Level: level, Message: message}
	s.log = append(s.log, entry)
	return entry
}

// Log returns a copy of the run log.
func (s *State) Log() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.log...)
}

// Script returns a copy of the current script, or nil.
func (s *State) Script() *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script == nil {
		return nil
	}
	cp := *s.script
	cp.Scenes = append([]Scene(nil), s.script.Scenes...)
	return &cp
}

// SetScript replaces the script with a server-confirmed version.
func (s *State) SetScript(script Script) error {
	if err := ValidateScenes(script.Scenes); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := script
	cp.Scenes = append([]Scene(nil), script.Scenes...)
	s.script = &cp
	s.updateReachedLocked()
	return nil
}

// AvatarVariants returns a copy of the current avatar variant set.
func (s *State) AvatarVariants() []AvatarVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AvatarVariant(nil), s.avatarVariants...)
}

// ReplaceAvatars replaces the full avatar variant set and clears any
// previous selection that no longer references an existing variant.
func (s *State) ReplaceAvatars(variants []AvatarVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avatarVariants = append([]AvatarVariant(nil), variants...)
	if s.selectedAvatar >= 0 && !avatarIndexExists(s.avatarVariants, s.selectedAvatar) {
		s.selectedAvatar = -1
		s.selectedAvatarPath = ""
	}
	s.updateReachedLocked()
}

// SelectAvatar records the chosen variant index.
func (s *State) SelectAvatar(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !avatarIndexExists(s.avatarVariants, index) {
		return ErrUnknownVariant
	}
	s.selectedAvatar = index
	return nil
}

// SelectedAvatar returns the chosen variant index, if any.
func (s *State) SelectedAvatar() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedAvatar < 0 {
		return 0, false
	}
	return s.selectedAvatar, true
}

// ConfirmAvatarPath records the service-confirmed path of the selection.
func (s *State) ConfirmAvatarPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedAvatarPath = path
}

// StoryboardResults returns a copy of the storyboard results ordered by
// scene number.
func (s *State) StoryboardResults() []StoryboardResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyStoryboard(s.storyboard)
}

// StoryboardScene returns one scene's storyboard result.
func (s *State) StoryboardScene(sceneNumber int) (StoryboardResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range s.storyboard {
		if res.SceneNumber == sceneNumber {
			return res, true
		}
	}
	return StoryboardResult{}, false
}

// ClearStoryboard empties the storyboard collection and unseals it so a new
// generation attempt can stream partial results in.
func (s *State) ClearStoryboard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storyboard = nil
	s.storyboardSealed = false
}

// UpsertStoryboardScene inserts or replaces one scene's result by its stable
// key. Partial upserts are rejected once the stage has been sealed by a full
// replace; the late event is stale by definition.
func (s *State) UpsertStoryboardScene(res StoryboardResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storyboardSealed {
		return ErrStalePartial
	}
	if s.script != nil && !sceneExists(s.script.Scenes, res.SceneNumber) {
		return ErrUnknownScene
	}
	s.storyboard = upsertStoryboard(s.storyboard, res)
	s.updateReachedLocked()
	return nil
}

// ReplaceStoryboard atomically substitutes the whole storyboard collection
// and seals it: the full set is authoritative over any earlier partials.
func (s *State) ReplaceStoryboard(results []StoryboardResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storyboard = copyStoryboard(results)
	sortStoryboard(s.storyboard)
	s.storyboardSealed = true
	s.updateReachedLocked()
}

// UpdateStoryboardScene replaces one existing scene's result with a
// response-correlated regeneration outcome. Unlike UpsertStoryboardScene it
// applies after sealing, because the caller holds the direct response for
// exactly this scene.
func (s *State) UpdateStoryboardScene(res StoryboardResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.storyboard {
		if existing.SceneNumber == res.SceneNumber {
			s.storyboard[i] = res
			return nil
		}
	}
	return ErrUnknownScene
}

// VideoResults returns a copy of the video results ordered by scene number.
func (s *State) VideoResults() []VideoResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyVideos(s.videos)
}

// VideoScene returns one scene's video result.
func (s *State) VideoScene(sceneNumber int) (VideoResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range s.videos {
		if res.SceneNumber == sceneNumber {
			return cloneVideoResult(res), true
		}
	}
	return VideoResult{}, false
}

// ClearVideos empties the video collection and unseals it.
func (s *State) ClearVideos() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = nil
	s.videosSealed = false
}

// UpsertVideoScene inserts or replaces one scene's video result by key,
// rejected once the stage is sealed.
func (s *State) UpsertVideoScene(res VideoResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videosSealed {
		return ErrStalePartial
	}
	if s.script != nil && !sceneExists(s.script.Scenes, res.SceneNumber) {
		return ErrUnknownScene
	}
	s.videos = upsertVideos(s.videos, cloneVideoResult(res))
	s.updateReachedLocked()
	return nil
}

// ReplaceVideos atomically substitutes the whole video collection and seals it.
func (s *State) ReplaceVideos(results []VideoResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = copyVideos(results)
	sortVideos(s.videos)
	s.videosSealed = true
	s.updateReachedLocked()
}

// UpdateVideoScene replaces one existing scene's video result with a
// response-correlated regeneration outcome.
func (s *State) UpdateVideoScene(res VideoResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.videos {
		if existing.SceneNumber == res.SceneNumber {
			s.videos[i] = cloneVideoResult(res)
			return nil
		}
	}
	return ErrUnknownScene
}

// SelectVideoVariant records the chosen variant for a scene. The selected
// path is taken from the variant itself so SelectedVideoPath always matches
// the variant at SelectedIndex.
func (s *State) SelectVideoVariant(sceneNumber, variantIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, res := range s.videos {
		if res.SceneNumber != sceneNumber {
			continue
		}
		for _, variant := range res.Variants {
			if variant.Index == variantIndex {
				s.videos[i].SelectedIndex = variantIndex
				s.videos[i].SelectedVideoPath = variant.VideoPath
				return nil
			}
		}
		return ErrUnknownVariant
	}
	return ErrUnknownScene
}

// FinalVideoPath returns the assembled video path, empty until stitching.
func (s *State) FinalVideoPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalVideoPath
}

// SetFinalVideo records the assembled video path.
func (s *State) SetFinalVideo(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalVideoPath = path
	s.updateReachedLocked()
}

func (s *State) updateReachedLocked() {
	reached := reachableFromData(s.snapshotDataLocked())
	if s.activeStage > reached {
		reached = s.activeStage
	}
	if reached > s.reached {
		s.reached = reached
	}
}

// snapshotDataLocked builds the minimal data view reachableFromData needs.
func (s *State) snapshotDataLocked() Snapshot {
	return Snapshot{
		RunID:          s.runID,
		Script:         s.script,
		AvatarVariants: s.avatarVariants,
		Storyboard:     s.storyboard,
		Videos:         s.videos,
		FinalVideoPath: s.finalVideoPath,
	}
}

func avatarIndexExists(variants []AvatarVariant, index int) bool {
	for _, v := range variants {
		if v.Index == index {
			return true
		}
	}
	return false
}

func sceneExists(scenes []Scene, number int) bool {
	for _, scene := range scenes {
		if scene.SceneNumber == number {
			return true
		}
	}
	return false
}

func copyStoryboard(results []StoryboardResult) []StoryboardResult {
	if results == nil {
		return nil
	}
	cp := make([]StoryboardResult, len(results))
	copy(cp, results)
	for i := range cp {
		if cp[i].QCReport.CompositionQuality != nil {
			comp := *cp[i].QCReport.CompositionQuality
			cp[i].QCReport.CompositionQuality = &comp
		}
	}
	return cp
}

func copyVideos(results []VideoResult) []VideoResult {
	if results == nil {
		return nil
	}
	cp := make([]VideoResult, len(results))
	for i, res := range results {
		cp[i] = cloneVideoResult(res)
	}
	return cp
}

func cloneVideoResult(res VideoResult) VideoResult {
	cp := res
	cp.Variants = make([]VideoVariant, len(res.Variants))
	for i, variant := range res.Variants {
		cp.Variants[i] = variant
		if variant.QCReport != nil {
			qc := *variant.QCReport
			cp.Variants[i].QCReport = &qc
		}
	}
	return cp
}

func upsertStoryboard(results []StoryboardResult, res StoryboardResult) []StoryboardResult {
	for i, existing := range results {
		if existing.SceneNumber == res.SceneNumber {
			results[i] = res
			return results
		}
	}
	results = append(results, res)
	sortStoryboard(results)
	return results
}

func upsertVideos(results []VideoResult, res VideoResult) []VideoResult {
	for i, existing := range results {
		if existing.SceneNumber == res.SceneNumber {
			results[i] = res
			return results
		}
	}
	results = append(results, res)
	sortVideos(results)
	return results
}

func sortStoryboard(results []StoryboardResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].SceneNumber < results[j].SceneNumber
	})
}

func sortVideos(results []VideoResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].SceneNumber < results[j].SceneNumber
	})
}

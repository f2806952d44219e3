package types

import "time"

// AssetKind identifies what a SceneAsset holds.
type AssetKind string

const (
	AssetAudio  AssetKind = "audio"
	AssetImage  AssetKind = "image"
	AssetMotion AssetKind = "motion"
)

// AssetStatus tracks how a SceneAsset came to be.
type AssetStatus string

const (
	AssetPending     AssetStatus = "pending"
	AssetSuccess     AssetStatus = "success"
	AssetPlaceholder AssetStatus = "placeholder"
	AssetFailed      AssetStatus = "failed"
)

// RunStatus is the overall state of a pipeline run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// ContentRequest is the immutable input to one pipeline run.
// Topic and Script are mutually exclusive: when Script is set, the
// script-generation stage (and any battle) is skipped entirely.
type ContentRequest struct {
	Topic  string `json:"topic,omitempty"`
	Script string `json:"script,omitempty"`

	// Providers lists the script providers to battle. A single entry
	// means a direct call with no battle.
	Providers []string `json:"providers,omitempty"`

	VisualStyle string `json:"visual_style,omitempty"`
	VoiceStyle  string `json:"voice_style,omitempty"`
	Tone        string `json:"tone,omitempty"`

	Platforms    []string   `json:"platforms,omitempty"`
	ScheduleTime *time.Time `json:"schedule_time,omitempty"`
	MusicPath    string     `json:"music_path,omitempty"`
}

// ScriptCandidate is one provider's attempt in a script battle.
// Immutable once produced; all candidates are retained in the
// BattleResult even when only one wins.
type ScriptCandidate struct {
	Provider     string   `json:"provider"`
	Success      bool     `json:"success"`
	ScriptText   string   `json:"script_text,omitempty"`
	Title        string   `json:"title,omitempty"`
	Hook         string   `json:"hook,omitempty"`
	Hashtags     []string `json:"hashtags,omitempty"`
	ViralScore   float64  `json:"viral_score,omitempty"`
	EstimatedSec float64  `json:"estimated_sec,omitempty"`
	Scenes       []Scene  `json:"scenes,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// BattleResult is the outcome of one script battle.
type BattleResult struct {
	Success    bool              `json:"success"`
	Winner     string            `json:"winner,omitempty"`
	Candidates []ScriptCandidate `json:"candidates"`
	Error      string            `json:"error,omitempty"`
}

// WinningCandidate returns the candidate named by Winner, or nil.
func (b *BattleResult) WinningCandidate() *ScriptCandidate {
	for i := range b.Candidates {
		if b.Candidates[i].Provider == b.Winner {
			return &b.Candidates[i]
		}
	}
	return nil
}

// Scene is a single narrated segment of the target video. Start, End
// and DurationSec hold authoring estimates until the timing resolver
// overwrites them with measured audio durations.
type Scene struct {
	Index        int     `json:"index"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	DurationSec  float64 `json:"duration_sec"`
	Narration    string  `json:"narration"`
	ImagePrompt  string  `json:"image_prompt,omitempty"`
	MotionPrompt string  `json:"motion_prompt,omitempty"`
}

// SceneAsset is one generated artifact for one scene. A failed
// generation is recorded as-is and a placeholder asset takes its
// place; assets are never deleted during a run.
type SceneAsset struct {
	SceneIndex  int         `json:"scene_index"`
	Kind        AssetKind   `json:"kind"`
	Status      AssetStatus `json:"status"`
	Path        string      `json:"path,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	DurationSec float64     `json:"duration_sec,omitempty"`
	Error       string      `json:"error,omitempty"`
	CacheHit    bool        `json:"cache_hit,omitempty"`
}

// PipelineRun is the aggregate root for one production run.
// Assets is indexed by scene: Assets[i] holds every asset produced for
// scene i, so concurrent stage workers never touch a sibling's slice.
type PipelineRun struct {
	ID          string            `json:"id"`
	Request     ContentRequest    `json:"request"`
	Battle      *BattleResult     `json:"battle,omitempty"`
	Title       string            `json:"title,omitempty"`
	Scenes      []Scene           `json:"scenes"`
	Assets      [][]SceneAsset    `json:"assets"`
	Status      RunStatus         `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
	OutputPath  string            `json:"output_path,omitempty"`
	Publish     map[string]string `json:"publish_results,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// AddAsset records an asset under its scene index.
func (r *PipelineRun) AddAsset(a SceneAsset) {
	r.Assets[a.SceneIndex] = append(r.Assets[a.SceneIndex], a)
}

// SceneAssets returns the authoritative asset of the given kind for a
// scene: the most recently recorded non-failed one, or nil.
func (r *PipelineRun) SceneAsset(sceneIndex int, kind AssetKind) *SceneAsset {
	list := r.Assets[sceneIndex]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Kind == kind && list[i].Status != AssetFailed {
			return &list[i]
		}
	}
	return nil
}

// AssetsOfKind returns the authoritative assets of one kind across all
// scenes, in scene order. Scenes without one yield a zero-value entry
// with status pending.
func (r *PipelineRun) AssetsOfKind(kind AssetKind) []SceneAsset {
	out := make([]SceneAsset, len(r.Scenes))
	for i := range r.Scenes {
		out[i] = SceneAsset{SceneIndex: i, Kind: kind, Status: AssetPending}
		if a := r.SceneAsset(i, kind); a != nil {
			out[i] = *a
		}
	}
	return out
}

// Summary is the write-once record persisted after a run finishes.
type Summary struct {
	RunID             string            `json:"run_id"`
	Status            RunStatus         `json:"status"`
	Title             string            `json:"title,omitempty"`
	Topic             string            `json:"topic,omitempty"`
	Winner            string            `json:"winner,omitempty"`
	SceneCount        int               `json:"scene_count"`
	TotalSec          float64           `json:"total_sec"`
	PlaceholderScenes []int             `json:"placeholder_scenes,omitempty"`
	OutputPath        string            `json:"output_path,omitempty"`
	Publish           map[string]string `json:"publish_results,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       time.Time         `json:"completed_at"`
	ProcessingSec     float64           `json:"processing_sec"`
	Error             string            `json:"error,omitempty"`
}

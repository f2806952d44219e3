// Package timing re-anchors scene windows on measured audio durations.
// Word-count estimates are unreliable predictors of spoken length,
// especially outside English with variable TTS rate settings, so every
// downstream clip request uses the measured timeline instead.
package timing

import (
	"strings"

	"viral-content-pipeline/types"
)

// Fallback configures duration estimation for scenes whose TTS failed.
type Fallback struct {
	// WordsPerMinute converts narration length into seconds.
	WordsPerMinute float64
	// PlaceholderSec applies when a scene has no narration to count.
	PlaceholderSec float64
}

// Duration estimates how long a narration takes to speak.
func (f Fallback) Duration(narration string) float64 {
	words := len(strings.Fields(narration))
	if words == 0 {
		return f.PlaceholderSec
	}
	return float64(words) / f.WordsPerMinute * 60.0
}

// Resolve rebuilds each scene's time window from the measured duration
// of its audio asset, producing a continuous, gap-free timeline. Scenes
// whose audio carries no measured duration fall back to the configured
// estimate. Pure: the input slice is not mutated; the output has the
// same length and order, with only Start, End and DurationSec changed.
func Resolve(scenes []types.Scene, audioAssets []types.SceneAsset, fb Fallback) []types.Scene {
	byScene := make(map[int]types.SceneAsset, len(audioAssets))
	for _, a := range audioAssets {
		if a.Kind == types.AssetAudio {
			byScene[a.SceneIndex] = a
		}
	}

	out := make([]types.Scene, len(scenes))
	var elapsed float64
	for i, s := range scenes {
		dur := fb.Duration(s.Narration)
		if a, ok := byScene[s.Index]; ok && a.DurationSec > 0 {
			dur = a.DurationSec
		}

		resolved := s
		resolved.Start = elapsed
		resolved.End = elapsed + dur
		resolved.DurationSec = dur
		out[i] = resolved
		elapsed += dur
	}
	return out
}

// TotalDuration sums the resolved scene windows.
func TotalDuration(scenes []types.Scene) float64 {
	if len(scenes) == 0 {
		return 0
	}
	return scenes[len(scenes)-1].End
}

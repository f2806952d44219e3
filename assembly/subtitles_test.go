package assembly

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viral-content-pipeline/types"
)

func TestCuesFromScenesTrackSceneWindows(t *testing.T) {
	scenes := []types.Scene{
		{Index: 0, Start: 0, End: 4, Narration: "The harbor went quiet at dawn and nobody noticed the missing boat until noon."},
		{Index: 1, Start: 4, End: 7, Narration: "By nightfall the search had begun."},
	}

	cues := CuesFromScenes(scenes, 30)
	require.NotEmpty(t, cues)

	// Cues are contiguous within each scene and end exactly on the
	// scene boundary.
	var sceneOne []SubtitleCue
	for _, cue := range cues {
		if cue.End <= 4+1e-9 {
			sceneOne = append(sceneOne, cue)
		}
	}
	require.NotEmpty(t, sceneOne)
	assert.InDelta(t, 0, sceneOne[0].Start, 1e-9)
	for i := 1; i < len(sceneOne); i++ {
		assert.InDelta(t, sceneOne[i-1].End, sceneOne[i].Start, 1e-9)
	}
	assert.InDelta(t, 4.0, sceneOne[len(sceneOne)-1].End, 1e-9)
	assert.InDelta(t, 7.0, cues[len(cues)-1].End, 1e-9)

	// Rejoined cue text preserves every spoken word.
	var joined []string
	for _, cue := range cues {
		assert.LessOrEqual(t, len(cue.Text), 30)
		joined = append(joined, cue.Text)
	}
	assert.Equal(t,
		strings.Fields(scenes[0].Narration+" "+scenes[1].Narration),
		strings.Fields(strings.Join(joined, " ")))
}

func TestCuesFromScenesSkipsEmptyScenes(t *testing.T) {
	scenes := []types.Scene{
		{Index: 0, Start: 0, End: 5, Narration: "   "},
		{Index: 1, Start: 5, End: 8, Narration: "Only this speaks."},
	}

	cues := CuesFromScenes(scenes, 38)
	require.Len(t, cues, 1)
	assert.InDelta(t, 5.0, cues[0].Start, 1e-9)
	assert.InDelta(t, 8.0, cues[0].End, 1e-9)
}

func TestCuesFromScenesEmpty(t *testing.T) {
	assert.Empty(t, CuesFromScenes(nil, 38))
}

func TestWrapCaption(t *testing.T) {
	chunks := wrapCaption("one two three four five six", 13)
	assert.Equal(t, []string{"one two three", "four five six"}, chunks)

	// A single oversized word is kept whole.
	long := wrapCaption("supercalifragilistic", 10)
	assert.Equal(t, []string{"supercalifragilistic"}, long)

	assert.Empty(t, wrapCaption("", 38))
}

func TestSRTTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00,000", srtTimestamp(0))
	assert.Equal(t, "00:00:03,250", srtTimestamp(3.25))
	assert.Equal(t, "00:01:01,500", srtTimestamp(61.5))
	assert.Equal(t, "01:00:00,001", srtTimestamp(3600.001))
	assert.Equal(t, "00:00:00,000", srtTimestamp(-2))
}

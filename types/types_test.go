package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSceneAssetPrefersLatestNonFailed(t *testing.T) {
	run := &PipelineRun{
		Scenes: []Scene{{Index: 0}},
		Assets: make([][]SceneAsset, 1),
	}
	run.AddAsset(SceneAsset{SceneIndex: 0, Kind: AssetAudio, Status: AssetPlaceholder, Path: "silent.mp3"})
	run.AddAsset(SceneAsset{SceneIndex: 0, Kind: AssetAudio, Status: AssetSuccess, Path: "real.mp3"})
	run.AddAsset(SceneAsset{SceneIndex: 0, Kind: AssetAudio, Status: AssetFailed})

	a := run.SceneAsset(0, AssetAudio)
	require.NotNil(t, a)
	assert.Equal(t, "real.mp3", a.Path)

	assert.Nil(t, run.SceneAsset(0, AssetMotion))
}

func TestAssetsOfKindFillsGaps(t *testing.T) {
	run := &PipelineRun{
		Scenes: []Scene{{Index: 0}, {Index: 1}, {Index: 2}},
		Assets: make([][]SceneAsset, 3),
	}
	run.AddAsset(SceneAsset{SceneIndex: 0, Kind: AssetAudio, Status: AssetSuccess, DurationSec: 2})
	run.AddAsset(SceneAsset{SceneIndex: 2, Kind: AssetAudio, Status: AssetSuccess, DurationSec: 4})

	audio := run.AssetsOfKind(AssetAudio)
	require.Len(t, audio, 3)
	assert.Equal(t, AssetSuccess, audio[0].Status)
	assert.Equal(t, AssetPending, audio[1].Status)
	assert.Equal(t, 1, audio[1].SceneIndex)
	assert.Equal(t, AssetSuccess, audio[2].Status)
}

func TestWinningCandidate(t *testing.T) {
	b := &BattleResult{
		Winner: "claude",
		Candidates: []ScriptCandidate{
			{Provider: "gemini"},
			{Provider: "claude", Title: "winning title"},
		},
	}
	w := b.WinningCandidate()
	require.NotNil(t, w)
	assert.Equal(t, "winning title", w.Title)

	assert.Nil(t, (&BattleResult{Winner: "nobody"}).WinningCandidate())
}

package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viral-content-pipeline/assembly"
	"viral-content-pipeline/battle"
	"viral-content-pipeline/cache"
	"viral-content-pipeline/config"
	"viral-content-pipeline/providers"
	"viral-content-pipeline/types"
)

type scriptStub struct {
	name  string
	fail  bool
	calls atomic.Int32

	mu        sync.Mutex
	lastTopic string
}

func (s *scriptStub) Name() string { return s.name }

func (s *scriptStub) GenerateScript(ctx context.Context, req providers.ScriptRequest) (*providers.ScriptResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastTopic = req.Topic
	s.mu.Unlock()
	if s.fail {
		return nil, errors.New(s.name + " unavailable")
	}
	return &providers.ScriptResult{
		Title: "The Missing Boat",
		Hook:  "Nobody saw it leave.",
		Scenes: []providers.SceneDraft{
			{Narration: "The harbor went quiet at dawn.", ImagePrompt: "empty harbor at dawn", MotionPrompt: "slow push in"},
			{Narration: "Nobody noticed the missing boat until noon.", ImagePrompt: "an empty mooring"},
			{Narration: "By nightfall the search had begun.", ImagePrompt: "searchlights over dark water"},
		},
	}, nil
}

type ttsStub struct {
	failAll  bool
	failText string
	calls    atomic.Int32
}

func (s *ttsStub) Name() string { return "elevenlabs" }

func (s *ttsStub) Synthesize(ctx context.Context, text string, voice providers.VoiceSettings, outPath string) (*providers.AudioResult, error) {
	s.calls.Add(1)
	if s.failAll || (s.failText != "" && text == s.failText) {
		return nil, errors.New("voice service down")
	}
	words := len(strings.Fields(text))
	return &providers.AudioResult{Path: outPath, DurationSec: float64(words) * 0.5}, nil
}

type imageStub struct {
	fail  bool
	calls atomic.Int32
}

func (s *imageStub) Name() string { return "pollinations" }

func (s *imageStub) GenerateImage(ctx context.Context, prompt string, style providers.ImageStyle, outPath string) (string, error) {
	s.calls.Add(1)
	if s.fail {
		return "", errors.New("image service down")
	}
	return outPath, nil
}

type motionStub struct {
	fail  bool
	calls atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (s *motionStub) Name() string { return "leonardo" }

func (s *motionStub) Animate(ctx context.Context, imagePath, prompt string, targetSec float64, outPath string) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.fail {
		return "", errors.New("motion service down")
	}
	return outPath, nil
}

type assemblerStub struct {
	composeErr  error
	subtitleErr error

	mu         sync.Mutex
	composed   []assembly.SceneCut
	burnedCues []assembly.SubtitleCue
}

func (a *assemblerStub) Compose(ctx context.Context, cuts []assembly.SceneCut, musicPath, outPath string) (string, error) {
	if a.composeErr != nil {
		return "", a.composeErr
	}
	a.mu.Lock()
	a.composed = cuts
	a.mu.Unlock()
	return outPath, nil
}

func (a *assemblerStub) BurnSubtitles(ctx context.Context, videoPath string, cues []assembly.SubtitleCue, outPath string) (string, error) {
	if a.subtitleErr != nil {
		return "", a.subtitleErr
	}
	a.mu.Lock()
	a.burnedCues = cues
	a.mu.Unlock()
	return outPath, nil
}

func (a *assemblerStub) PlaceholderAudio(ctx context.Context, durationSec float64, outPath string) (string, error) {
	return outPath, nil
}

func (a *assemblerStub) PlaceholderImage(ctx context.Context, outPath string) (string, error) {
	return outPath, nil
}

func (a *assemblerStub) StaticMotion(ctx context.Context, imagePath string, durationSec float64, outPath string) (string, error) {
	return outPath, nil
}

type fixture struct {
	cfg       *config.Config
	registry  *providers.Registry
	script    *scriptStub
	script2   *scriptStub
	tts       *ttsStub
	image     *imageStub
	motion    *motionStub
	assembler *assemblerStub
	cache     *cache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()
	cfg.Paths.CacheManifest = ""
	cfg.Battle.Seed = 1

	f := &fixture{
		cfg:       cfg,
		registry:  providers.NewRegistry(),
		script:    &scriptStub{name: "gemini"},
		script2:   &scriptStub{name: "claude"},
		tts:       &ttsStub{},
		image:     &imageStub{},
		motion:    &motionStub{},
		assembler: &assemblerStub{},
		cache:     cache.New(""),
	}
	f.registry.RegisterScript(f.script)
	f.registry.RegisterScript(f.script2)
	f.registry.RegisterTTS(f.tts)
	f.registry.RegisterImage(f.image)
	f.registry.RegisterMotion(f.motion)
	return f
}

func (f *fixture) sequencer(opts ...Option) *Sequencer {
	coordinator := battle.New(f.registry, battle.RandomSelection(f.cfg.Battle.Seed), 4, time.Minute, f.cfg.Audio.FallbackWordsPerMinute)
	return New(f.cfg, f.registry, coordinator, f.cache, f.assembler, opts...)
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)

	assert.Equal(t, "The Missing Boat", run.Title)
	require.Len(t, run.Scenes, 3)
	assert.NotEmpty(t, run.OutputPath)
	require.NotNil(t, run.Battle)
	assert.True(t, run.Battle.Success)

	// Exactly one asset of each kind per scene, recorded under its own
	// scene index.
	for i := range run.Scenes {
		for _, kind := range []types.AssetKind{types.AssetAudio, types.AssetImage, types.AssetMotion} {
			count := 0
			for _, a := range run.Assets[i] {
				if a.Kind == kind {
					count++
					assert.Equal(t, i, a.SceneIndex)
					assert.Equal(t, types.AssetSuccess, a.Status)
				}
			}
			assert.Equal(t, 1, count, "scene %d kind %s", i, kind)
		}
	}

	// Timeline is rebuilt from measured durations: 6, 7, 6 words at
	// half a second per word.
	assert.InDelta(t, 3.0, run.Scenes[0].DurationSec, 1e-9)
	assert.InDelta(t, 3.5, run.Scenes[1].DurationSec, 1e-9)
	assert.InDelta(t, 3.0, run.Scenes[2].DurationSec, 1e-9)
	assert.Zero(t, run.Scenes[0].Start)
	for i := 1; i < 3; i++ {
		assert.InDelta(t, run.Scenes[i-1].End, run.Scenes[i].Start, 1e-9)
	}

	// Assembly received one cut per scene, preferring motion clips.
	require.Len(t, f.assembler.composed, 3)
	for i, cut := range f.assembler.composed {
		assert.Contains(t, cut.VisualPath, "motion")
		assert.NotEmpty(t, cut.AudioPath)
		assert.InDelta(t, run.Scenes[i].Start, cut.Start, 1e-9)
		assert.InDelta(t, run.Scenes[i].End, cut.End, 1e-9)
	}
}

func TestRunDegradedSceneCompletesWithPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.tts.failText = "Nobody noticed the missing boat until noon."
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.OutputPath)

	degraded := run.SceneAsset(1, types.AssetAudio)
	require.NotNil(t, degraded)
	assert.Equal(t, types.AssetPlaceholder, degraded.Status)
	assert.NotEmpty(t, degraded.Path)
	assert.Contains(t, degraded.Error, "voice service down")

	// Placeholder duration comes from the word-count fallback: 7 words
	// at 150 wpm. The timeline stays continuous around it.
	assert.InDelta(t, 2.8, degraded.DurationSec, 1e-9)
	assert.InDelta(t, 2.8, run.Scenes[1].DurationSec, 1e-9)
	assert.InDelta(t, run.Scenes[0].End, run.Scenes[1].Start, 1e-9)
	assert.InDelta(t, run.Scenes[1].End, run.Scenes[2].Start, 1e-9)

	// Untouched scenes keep their measured durations.
	assert.InDelta(t, 3.0, run.Scenes[0].DurationSec, 1e-9)
	assert.InDelta(t, 3.0, run.Scenes[2].DurationSec, 1e-9)
}

func TestRunAudioStageExhaustedHaltsPipeline(t *testing.T) {
	f := newFixture(t)
	f.tts.failAll = true
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageExhausted)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Empty(t, run.OutputPath)

	// Nothing downstream of the exhausted stage runs.
	assert.Zero(t, f.image.calls.Load())
	assert.Zero(t, f.motion.calls.Load())
	assert.Empty(t, f.assembler.composed)
}

func TestRunBattleExhaustedHaltsPipeline(t *testing.T) {
	f := newFixture(t)
	f.script.fail = true
	f.script2.fail = true
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBattleExhausted)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Zero(t, f.tts.calls.Load())

	// Both failed candidates are retained for inspection.
	require.NotNil(t, run.Battle)
	assert.Len(t, run.Battle.Candidates, 2)
}

func TestRunSecondRunServedFromCache(t *testing.T) {
	f := newFixture(t)
	f.cfg.Battle.Participants = []string{"gemini"}

	_, err := f.sequencer().Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)

	ttsCalls := f.tts.calls.Load()
	imageCalls := f.image.calls.Load()
	motionCalls := f.motion.calls.Load()

	// Same fixture, fresh sequencer, shared cache.
	run, err := f.sequencer().Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.OutputPath)

	assert.Equal(t, ttsCalls, f.tts.calls.Load())
	assert.Equal(t, imageCalls, f.image.calls.Load())
	assert.Equal(t, motionCalls, f.motion.calls.Load())

	for i := range run.Scenes {
		for _, kind := range []types.AssetKind{types.AssetAudio, types.AssetImage, types.AssetMotion} {
			a := run.SceneAsset(i, kind)
			require.NotNil(t, a)
			assert.True(t, a.CacheHit, "scene %d kind %s", i, kind)
			assert.Equal(t, i, a.SceneIndex)
		}
	}
}

func TestRunCustomScriptSkipsGeneration(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer()

	script := "The first thing happened here.\n\nThe second thing happened later."
	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "custom", Script: script})
	require.NoError(t, err)

	assert.Zero(t, f.script.calls.Load())
	assert.Zero(t, f.script2.calls.Load())
	assert.Nil(t, run.Battle)
	require.Len(t, run.Scenes, 2)
	assert.Equal(t, "The first thing happened here.", run.Scenes[0].Narration)
	assert.NotEmpty(t, run.OutputPath)
}

func TestRunSingleProviderFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	f.script2.fail = true
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{
		Topic:     "the missing boat",
		Providers: []string{"claude"},
	})
	require.NoError(t, err)

	// The named provider failed, so the first configured participant
	// took over.
	assert.Equal(t, int32(1), f.script2.calls.Load())
	assert.Equal(t, int32(1), f.script.calls.Load())
	require.NotNil(t, run.Battle)
	assert.Equal(t, "gemini", run.Battle.Winner)
}

type topicStub struct{ topic string }

func (s *topicStub) TrendingTopic(ctx context.Context) (string, error) {
	if s.topic == "" {
		return "", errors.New("no trends")
	}
	return s.topic, nil
}

func TestRunAutomaticTopicMode(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer(WithTopicSource(&topicStub{topic: "why lighthouses are disappearing"}))

	_, err := seq.Run(context.Background(), types.ContentRequest{})
	require.NoError(t, err)

	f.script.mu.Lock()
	topic := f.script.lastTopic
	f.script.mu.Unlock()
	if topic == "" {
		f.script2.mu.Lock()
		topic = f.script2.lastTopic
		f.script2.mu.Unlock()
	}
	assert.Equal(t, "why lighthouses are disappearing", topic)
}

func TestRunNoTopicNoSource(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTopic)
	assert.Equal(t, types.RunFailed, run.Status)
}

func TestRunAssemblyFailure(t *testing.T) {
	f := newFixture(t)
	f.assembler.composeErr = errors.New("ffmpeg exited 1")
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssemblyFailed)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Empty(t, run.OutputPath)
}

func TestRunMotionFallsBackToLocalClip(t *testing.T) {
	f := newFixture(t)
	f.motion.fail = true
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)

	for i := range run.Scenes {
		a := run.SceneAsset(i, types.AssetMotion)
		require.NotNil(t, a)
		assert.Equal(t, types.AssetPlaceholder, a.Status)
		assert.Contains(t, a.Path, "local")
	}

	// Assembly still uses the locally generated clips.
	require.Len(t, f.assembler.composed, 3)
	for _, cut := range f.assembler.composed {
		assert.Contains(t, cut.VisualPath, "local")
	}
}

type publisherStub struct {
	result map[string]string
	err    error
	calls  atomic.Int32
}

func (p *publisherStub) Publish(ctx context.Context, videoPath string, run *types.PipelineRun) (map[string]string, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func TestRunPublishResultRecorded(t *testing.T) {
	f := newFixture(t)
	pub := &publisherStub{result: map[string]string{"youtube": "https://youtu.be/stub"}}
	seq := f.sequencer(WithPublisher("youtube", pub))

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), pub.calls.Load())
	assert.Equal(t, "https://youtu.be/stub", run.Publish["youtube"])
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	pub := &publisherStub{err: errors.New("upload quota exceeded")}
	seq := f.sequencer(WithPublisher("youtube", pub))

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.OutputPath)
	assert.Contains(t, run.Publish["youtube"], "upload quota exceeded")
}

func TestRunPublishRespectsRequestedPlatforms(t *testing.T) {
	f := newFixture(t)
	yt := &publisherStub{result: map[string]string{"youtube": "https://youtu.be/stub"}}
	tk := &publisherStub{result: map[string]string{"tiktok": "https://tiktok.com/stub"}}
	seq := f.sequencer(WithPublisher("youtube", yt), WithPublisher("tiktok", tk))

	run, err := seq.Run(context.Background(), types.ContentRequest{
		Topic:     "the missing boat",
		Platforms: []string{"tiktok"},
	})
	require.NoError(t, err)

	assert.Zero(t, yt.calls.Load())
	assert.Equal(t, int32(1), tk.calls.Load())
	assert.Equal(t, "https://tiktok.com/stub", run.Publish["tiktok"])
	assert.NotContains(t, run.Publish, "youtube")
}

func TestRunPublishAllPlatformsByDefault(t *testing.T) {
	f := newFixture(t)
	yt := &publisherStub{result: map[string]string{"youtube": "https://youtu.be/stub"}}
	tk := &publisherStub{result: map[string]string{"tiktok": "https://tiktok.com/stub"}}
	seq := f.sequencer(WithPublisher("youtube", yt), WithPublisher("tiktok", tk))

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), yt.calls.Load())
	assert.Equal(t, int32(1), tk.calls.Load())
	assert.Len(t, run.Publish, 2)
}

func TestRunPublishUnconfiguredPlatformSkipped(t *testing.T) {
	f := newFixture(t)
	yt := &publisherStub{result: map[string]string{"youtube": "https://youtu.be/stub"}}
	seq := f.sequencer(WithPublisher("youtube", yt))

	run, err := seq.Run(context.Background(), types.ContentRequest{
		Topic:     "the missing boat",
		Platforms: []string{"instagram"},
	})
	require.NoError(t, err)

	assert.Zero(t, yt.calls.Load())
	assert.Contains(t, run.Publish["instagram"], "skipped")
}

func TestRunMotionPromptFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer()

	_, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)

	// Scene 0 carries an authored motion prompt; the rest get the
	// shared default.
	f.motion.mu.Lock()
	prompts := append([]string(nil), f.motion.prompts...)
	f.motion.mu.Unlock()
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts, "slow push in")
	defaults := 0
	for _, p := range prompts {
		if p == defaultMotionPrompt {
			defaults++
		}
	}
	assert.Equal(t, 2, defaults)
}

func TestRunSubtitlesBurnedIntoOutput(t *testing.T) {
	f := newFixture(t)
	f.cfg.Subtitles.Enabled = true
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)

	assert.Contains(t, run.OutputPath, "subtitled")
	require.NotEmpty(t, f.assembler.burnedCues)

	// Cues stay inside the resolved timeline and carry the narrations.
	total := run.Scenes[len(run.Scenes)-1].End
	var joined []string
	for _, cue := range f.assembler.burnedCues {
		assert.GreaterOrEqual(t, cue.Start, 0.0)
		assert.LessOrEqual(t, cue.End, total+1e-9)
		joined = append(joined, cue.Text)
	}
	assert.Contains(t, strings.Join(joined, " "), "harbor went quiet")
}

func TestRunSubtitleFailureKeepsCleanVideo(t *testing.T) {
	f := newFixture(t)
	f.cfg.Subtitles.Enabled = true
	f.assembler.subtitleErr = errors.New("libass missing")
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)

	assert.NotEmpty(t, run.OutputPath)
	assert.NotContains(t, run.OutputPath, "subtitled")
}

func TestRunSubtitlesDisabledByDefault(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer()

	run, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.NoError(t, err)
	assert.Empty(t, f.assembler.burnedCues)
	assert.NotContains(t, run.OutputPath, "subtitled")
}

func TestRunUnknownStageProvider(t *testing.T) {
	f := newFixture(t)
	f.cfg.Audio.Provider = "missing"
	seq := f.sequencer()

	_, err := seq.Run(context.Background(), types.ContentRequest{Topic: "the missing boat"})
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrUnknownProvider)
}

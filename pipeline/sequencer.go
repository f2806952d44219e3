// Package pipeline sequences the content generation stages:
// script → audio → timing → images → motion → assembly → publish.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"viral-content-pipeline/assembly"
	"viral-content-pipeline/battle"
	"viral-content-pipeline/cache"
	"viral-content-pipeline/config"
	"viral-content-pipeline/providers"
	"viral-content-pipeline/timing"
	"viral-content-pipeline/types"
)

// TopicSource supplies a trending topic for requests that carry
// neither a topic nor a script.
type TopicSource interface {
	TrendingTopic(ctx context.Context) (string, error)
}

// Publisher pushes the finished video to external platforms and
// reports a result per platform.
type Publisher interface {
	Publish(ctx context.Context, videoPath string, run *types.PipelineRun) (map[string]string, error)
}

// Sequencer runs the ordered stages of one pipeline run. Within a
// stage, scenes are processed concurrently up to the configured limit;
// results are recorded by scene index, never by completion order.
type Sequencer struct {
	cfg        *config.Config
	registry   *providers.Registry
	battle     *battle.Coordinator
	cache      *cache.Cache
	assembler  assembly.Assembler
	publishers map[string]Publisher
	topics     TopicSource
}

type Option func(*Sequencer)

// WithPublisher registers a publisher for one platform. Requests can
// narrow the upload to a subset via ContentRequest.Platforms.
func WithPublisher(platform string, p Publisher) Option {
	return func(s *Sequencer) {
		if s.publishers == nil {
			s.publishers = make(map[string]Publisher)
		}
		s.publishers[platform] = p
	}
}

func WithTopicSource(t TopicSource) Option {
	return func(s *Sequencer) { s.topics = t }
}

func New(cfg *config.Config, registry *providers.Registry, coordinator *battle.Coordinator,
	assetCache *cache.Cache, assembler assembly.Assembler, opts ...Option) *Sequencer {
	s := &Sequencer{
		cfg:       cfg,
		registry:  registry,
		battle:    coordinator,
		cache:     assetCache,
		assembler: assembler,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the full pipeline for one request. The returned run
// always carries everything produced so far, whatever the outcome;
// the error reports stage- or assembly-level failures only (per-scene
// degradation is recorded in the run, not raised).
func (s *Sequencer) Run(ctx context.Context, req types.ContentRequest) (*types.PipelineRun, error) {
	run := &types.PipelineRun{
		ID:        uuid.NewString()[:8],
		Request:   req,
		Status:    types.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	log := logrus.WithField("run", run.ID)
	log.Info("pipeline starting")

	runDir := filepath.Join(s.cfg.Paths.Output, run.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		run.Status = types.RunFailed
		run.Error = err.Error()
		return run, fmt.Errorf("create run dir: %w", err)
	}

	err := s.execute(ctx, run, runDir)
	run.CompletedAt = time.Now().UTC()
	if err != nil {
		run.Status = types.RunFailed
		run.Error = err.Error()
		log.WithError(err).Error("pipeline failed")
		return run, err
	}
	log.WithField("output", run.OutputPath).Info("pipeline finished")
	return run, nil
}

func (s *Sequencer) execute(ctx context.Context, run *types.PipelineRun, runDir string) error {
	if err := s.scriptStage(ctx, run); err != nil {
		return err
	}

	if err := s.audioStage(ctx, run, runDir); err != nil {
		return err
	}

	// Re-anchor the timeline on measured audio before any stage that
	// needs a target duration.
	run.Scenes = timing.Resolve(run.Scenes, run.AssetsOfKind(types.AssetAudio), s.fallback())

	if err := s.imageStage(ctx, run, runDir); err != nil {
		return err
	}

	if err := s.motionStage(ctx, run, runDir); err != nil {
		return err
	}

	if err := s.assemblyStage(ctx, run, runDir); err != nil {
		return err
	}

	s.subtitleStage(ctx, run, runDir)
	s.publishStage(ctx, run)
	return nil
}

func (s *Sequencer) fallback() timing.Fallback {
	return timing.Fallback{
		WordsPerMinute: s.cfg.Audio.FallbackWordsPerMinute,
		PlaceholderSec: s.cfg.Audio.PlaceholderSec,
	}
}

// scriptStage produces the run's scenes: from the supplied script, a
// direct provider call, or a battle.
func (s *Sequencer) scriptStage(ctx context.Context, run *types.PipelineRun) error {
	req := run.Request
	log := logrus.WithFields(logrus.Fields{"run": run.ID, "stage": "script"})

	if req.Script != "" {
		log.Info("custom script supplied, skipping generation")
		run.Scenes = battle.SegmentDrafts(SegmentText(req.Script), s.cfg.Audio.FallbackWordsPerMinute)
		run.Title = req.Topic
		run.Assets = make([][]types.SceneAsset, len(run.Scenes))
		if len(run.Scenes) == 0 {
			return fmt.Errorf("supplied script segmented into zero scenes")
		}
		return nil
	}

	topic := req.Topic
	if topic == "" {
		if s.topics == nil {
			return ErrNoTopic
		}
		var err error
		topic, err = s.topics.TrendingTopic(ctx)
		if err != nil {
			return fmt.Errorf("trending topic: %w", err)
		}
		log.WithField("topic", topic).Info("topic selected from trends")
	}

	scriptReq := providers.ScriptRequest{
		Topic:    topic,
		Style:    firstNonEmpty(req.VisualStyle, s.cfg.Script.Style),
		Tone:     firstNonEmpty(req.Tone, s.cfg.Script.Tone),
		Language: s.cfg.Script.Language,
	}

	participants := req.Providers
	if len(participants) == 0 {
		participants = s.cfg.Battle.Participants
	}

	var winner *types.ScriptCandidate
	if len(participants) == 1 {
		cand := s.battle.Generate(ctx, participants[0], scriptReq)
		if !cand.Success && len(s.cfg.Battle.Participants) > 0 && participants[0] != s.cfg.Battle.Participants[0] {
			// Unknown or broken single provider: fall back to the
			// first configured participant before giving up.
			log.WithField("provider", participants[0]).Warn("provider failed, falling back to default")
			cand = s.battle.Generate(ctx, s.cfg.Battle.Participants[0], scriptReq)
		}
		if !cand.Success {
			return fmt.Errorf("%w: %s", ErrBattleExhausted, cand.Error)
		}
		winner = &cand
		run.Battle = &types.BattleResult{
			Success:    true,
			Winner:     cand.Provider,
			Candidates: []types.ScriptCandidate{cand},
		}
	} else {
		result := s.battle.RunBattle(ctx, scriptReq, participants)
		run.Battle = &result
		if !result.Success {
			return fmt.Errorf("%w: %s", ErrBattleExhausted, result.Error)
		}
		winner = result.WinningCandidate()
	}

	run.Title = winner.Title
	run.Scenes = append([]types.Scene(nil), winner.Scenes...)
	run.Assets = make([][]types.SceneAsset, len(run.Scenes))
	log.WithFields(logrus.Fields{"winner": winner.Provider, "scenes": len(run.Scenes)}).
		Info("script ready")
	return nil
}

// sceneWorker produces exactly one asset for one scene. It never
// returns an error: provider failures become placeholder assets.
type sceneWorker func(ctx context.Context, scene types.Scene) types.SceneAsset

// runSceneStage fans a worker out over all scenes, bounded by the
// configured concurrency, and escalates when too few scenes succeed.
func (s *Sequencer) runSceneStage(ctx context.Context, run *types.PipelineRun, stage string, worker sceneWorker) error {
	log := logrus.WithFields(logrus.Fields{"run": run.ID, "stage": stage})
	log.WithField("scenes", len(run.Scenes)).Info("stage starting")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Pipeline.SceneConcurrency)
	for _, scene := range run.Scenes {
		scene := scene
		g.Go(func() error {
			asset := worker(gctx, scene)
			asset.SceneIndex = scene.Index
			// Assets[i] is owned by this worker; sibling scenes
			// never touch it.
			run.Assets[scene.Index] = append(run.Assets[scene.Index], asset)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	successes := 0
	for i := range run.Scenes {
		if a := run.SceneAsset(i, stageKind(stage)); a != nil && a.Status == types.AssetSuccess {
			successes++
		}
	}

	required := s.requiredSuccesses(len(run.Scenes))
	if successes < required {
		log.WithFields(logrus.Fields{"successes": successes, "required": required}).
			Error("stage exhausted")
		return fmt.Errorf("%s stage: %w (%d/%d scenes succeeded)", stage, ErrStageExhausted, successes, len(run.Scenes))
	}
	log.WithField("successes", successes).Info("stage finished")
	return nil
}

func (s *Sequencer) requiredSuccesses(sceneCount int) int {
	required := int(math.Ceil(s.cfg.Pipeline.MinStageSuccessRatio * float64(sceneCount)))
	if required < 1 {
		required = 1
	}
	return required
}

func stageKind(stage string) types.AssetKind {
	switch stage {
	case "audio":
		return types.AssetAudio
	case "images":
		return types.AssetImage
	default:
		return types.AssetMotion
	}
}

func (s *Sequencer) audioStage(ctx context.Context, run *types.PipelineRun, runDir string) error {
	providerName := s.cfg.Audio.Provider
	tts, err := s.registry.TTS(providerName)
	if err != nil {
		return fmt.Errorf("audio stage: %w", err)
	}
	voice := providers.VoiceSettings{
		VoiceID: s.cfg.Audio.VoiceID,
		Style:   firstNonEmpty(run.Request.VoiceStyle, s.cfg.Audio.VoiceStyle),
	}
	audioDir := filepath.Join(runDir, "audio")

	return s.runSceneStage(ctx, run, "audio", func(ctx context.Context, scene types.Scene) types.SceneAsset {
		key := cache.Fingerprint(types.AssetAudio, scene.Narration, voice.VoiceID+"|"+voice.Style, providerName)
		asset, hit, _ := s.cache.Do(key, func() (types.SceneAsset, error) {
			outPath := filepath.Join(audioDir, fmt.Sprintf("scene_%03d.mp3", scene.Index))
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout())
			defer cancel()

			result, err := tts.Synthesize(callCtx, scene.Narration, voice, outPath)
			if err == nil {
				return types.SceneAsset{
					Kind:        types.AssetAudio,
					Status:      types.AssetSuccess,
					Path:        result.Path,
					Provider:    providerName,
					DurationSec: result.DurationSec,
				}, nil
			}
			return s.placeholderAudio(ctx, scene, audioDir, err), nil
		})
		asset.CacheHit = hit
		return asset
	})
}

// placeholderAudio synthesizes silence at the fallback duration so the
// timeline and downstream stages stay complete.
func (s *Sequencer) placeholderAudio(ctx context.Context, scene types.Scene, audioDir string, cause error) types.SceneAsset {
	logrus.WithFields(logrus.Fields{"stage": "audio", "scene": scene.Index}).
		WithError(cause).Warn("TTS failed, substituting silent placeholder")

	dur := s.fallback().Duration(scene.Narration)
	asset := types.SceneAsset{
		Kind:        types.AssetAudio,
		Status:      types.AssetPlaceholder,
		DurationSec: dur,
		Error:       cause.Error(),
	}
	outPath := filepath.Join(audioDir, fmt.Sprintf("scene_%03d_placeholder.mp3", scene.Index))
	if path, err := s.assembler.PlaceholderAudio(ctx, dur, outPath); err == nil {
		asset.Path = path
	}
	return asset
}

func (s *Sequencer) imageStage(ctx context.Context, run *types.PipelineRun, runDir string) error {
	providerName := s.cfg.Images.Provider
	imager, err := s.registry.Image(providerName)
	if err != nil {
		return fmt.Errorf("image stage: %w", err)
	}
	style := providers.ImageStyle{
		Style:  firstNonEmpty(run.Request.VisualStyle, s.cfg.Images.Style),
		Width:  s.cfg.Images.Width,
		Height: s.cfg.Images.Height,
	}
	imageDir := filepath.Join(runDir, "images")

	return s.runSceneStage(ctx, run, "images", func(ctx context.Context, scene types.Scene) types.SceneAsset {
		prompt := firstNonEmpty(scene.ImagePrompt, scene.Narration)
		key := cache.Fingerprint(types.AssetImage, prompt, style.Style, providerName)
		asset, hit, _ := s.cache.Do(key, func() (types.SceneAsset, error) {
			outPath := filepath.Join(imageDir, fmt.Sprintf("scene_%03d.jpg", scene.Index))
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout())
			defer cancel()

			path, err := imager.GenerateImage(callCtx, prompt, style, outPath)
			if err == nil {
				return types.SceneAsset{
					Kind:     types.AssetImage,
					Status:   types.AssetSuccess,
					Path:     path,
					Provider: providerName,
				}, nil
			}

			logrus.WithFields(logrus.Fields{"stage": "images", "scene": scene.Index}).
				WithError(err).Warn("image generation failed, substituting placeholder")
			placeholder := types.SceneAsset{
				Kind:   types.AssetImage,
				Status: types.AssetPlaceholder,
				Error:  err.Error(),
			}
			phPath := filepath.Join(imageDir, fmt.Sprintf("scene_%03d_placeholder.jpg", scene.Index))
			if p, phErr := s.assembler.PlaceholderImage(ctx, phPath); phErr == nil {
				placeholder.Path = p
			}
			return placeholder, nil
		})
		asset.CacheHit = hit
		return asset
	})
}

func (s *Sequencer) motionStage(ctx context.Context, run *types.PipelineRun, runDir string) error {
	providerName := s.cfg.Motion.Provider
	motion, err := s.registry.Motion(providerName)
	if err != nil {
		return fmt.Errorf("motion stage: %w", err)
	}
	motionDir := filepath.Join(runDir, "motion")
	visualStyle := firstNonEmpty(run.Request.VisualStyle, s.cfg.Images.Style)

	return s.runSceneStage(ctx, run, "motion", func(ctx context.Context, scene types.Scene) types.SceneAsset {
		image := run.SceneAsset(scene.Index, types.AssetImage)
		if image == nil || image.Path == "" {
			return types.SceneAsset{
				Kind:   types.AssetMotion,
				Status: types.AssetFailed,
				Error:  "no image available to animate",
			}
		}

		prompt := firstNonEmpty(scene.MotionPrompt, defaultMotionPrompt)
		content := prompt + "|" + firstNonEmpty(scene.ImagePrompt, scene.Narration)
		styleKey := fmt.Sprintf("%s|%.1fs", visualStyle, scene.DurationSec)
		key := cache.Fingerprint(types.AssetMotion, content, styleKey, providerName)

		asset, hit, _ := s.cache.Do(key, func() (types.SceneAsset, error) {
			outPath := filepath.Join(motionDir, fmt.Sprintf("scene_%03d.mp4", scene.Index))
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout())
			defer cancel()

			path, err := motion.Animate(callCtx, image.Path, prompt, scene.DurationSec, outPath)
			if err == nil {
				return types.SceneAsset{
					Kind:        types.AssetMotion,
					Status:      types.AssetSuccess,
					Path:        path,
					Provider:    providerName,
					DurationSec: scene.DurationSec,
				}, nil
			}

			logrus.WithFields(logrus.Fields{"stage": "motion", "scene": scene.Index}).
				WithError(err).Warn("motion provider failed, generating local motion")
			placeholder := types.SceneAsset{
				Kind:        types.AssetMotion,
				Status:      types.AssetPlaceholder,
				DurationSec: scene.DurationSec,
				Error:       err.Error(),
			}
			localPath := filepath.Join(motionDir, fmt.Sprintf("scene_%03d_local.mp4", scene.Index))
			if p, localErr := s.assembler.StaticMotion(ctx, image.Path, scene.DurationSec, localPath); localErr == nil {
				placeholder.Path = p
			}
			return placeholder, nil
		})
		asset.CacheHit = hit
		return asset
	})
}

// assemblyStage composes the final video. No placeholder policy here:
// no video is better than a corrupt one.
func (s *Sequencer) assemblyStage(ctx context.Context, run *types.PipelineRun, runDir string) error {
	log := logrus.WithFields(logrus.Fields{"run": run.ID, "stage": "assembly"})

	cuts := make([]assembly.SceneCut, len(run.Scenes))
	for i, scene := range run.Scenes {
		cut := assembly.SceneCut{Start: scene.Start, End: scene.End}
		if motion := run.SceneAsset(i, types.AssetMotion); motion != nil && motion.Path != "" {
			cut.VisualPath = motion.Path
		} else if image := run.SceneAsset(i, types.AssetImage); image != nil && image.Path != "" {
			cut.VisualPath = image.Path
		}
		if audio := run.SceneAsset(i, types.AssetAudio); audio != nil {
			cut.AudioPath = audio.Path
		}
		cuts[i] = cut
	}

	outPath := filepath.Join(runDir, "final_video.mp4")
	path, err := s.assembler.Compose(ctx, cuts, run.Request.MusicPath, outPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssemblyFailed, err)
	}
	run.OutputPath = path
	log.WithField("output", path).Info("final video composed")
	return nil
}

// subtitleStage burns scene narrations into the composed video as
// timed captions. Never fatal: a failed burn keeps the clean video.
func (s *Sequencer) subtitleStage(ctx context.Context, run *types.PipelineRun, runDir string) {
	if !s.cfg.Subtitles.Enabled {
		return
	}
	log := logrus.WithFields(logrus.Fields{"run": run.ID, "stage": "subtitles"})

	cues := assembly.CuesFromScenes(run.Scenes, s.cfg.Subtitles.MaxLineChars)
	if len(cues) == 0 {
		log.Warn("no caption cues to burn")
		return
	}

	outPath := filepath.Join(runDir, "final_video_subtitled.mp4")
	path, err := s.assembler.BurnSubtitles(ctx, run.OutputPath, cues, outPath)
	if err != nil {
		log.WithError(err).Warn("subtitle burn failed, keeping clean video")
		return
	}
	run.OutputPath = path
	log.WithField("cues", len(cues)).Info("subtitles burned in")
}

// publishStage is optional and never fatal: the artifact exists even
// when publishing fails. ContentRequest.Platforms narrows the targets;
// empty means every configured publisher.
func (s *Sequencer) publishStage(ctx context.Context, run *types.PipelineRun) {
	if len(s.publishers) == 0 {
		return
	}
	log := logrus.WithFields(logrus.Fields{"run": run.ID, "stage": "publish"})

	targets := run.Request.Platforms
	if len(targets) == 0 {
		for platform := range s.publishers {
			targets = append(targets, platform)
		}
		sort.Strings(targets)
	}

	results := make(map[string]string, len(targets))
	for _, platform := range targets {
		pub, ok := s.publishers[platform]
		if !ok {
			log.WithField("platform", platform).Warn("no publisher configured for platform")
			results[platform] = "skipped: no publisher configured"
			continue
		}
		res, err := pub.Publish(ctx, run.OutputPath, run)
		if err != nil {
			log.WithField("platform", platform).WithError(err).
				Warn("publish failed, keeping local artifact")
			results[platform] = "failed: " + err.Error()
			continue
		}
		for k, v := range res {
			results[k] = v
		}
	}
	run.Publish = results
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"viral-content-pipeline/assembly"
	"viral-content-pipeline/battle"
	"viral-content-pipeline/cache"
	"viral-content-pipeline/config"
	"viral-content-pipeline/pipeline"
	"viral-content-pipeline/providers"
	"viral-content-pipeline/publish"
	"viral-content-pipeline/summary"
	"viral-content-pipeline/trending"
	"viral-content-pipeline/types"
)

func main() {
	// Local dev only — CI injects secrets directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to YAML config")
	topic := flag.String("topic", "", "topic to produce a video about (empty = trending)")
	scriptPath := flag.String("script", "", "path to a pre-written script (skips generation)")
	providerList := flag.String("providers", "", "comma-separated script providers (overrides config)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Fatal("failed to load config")
		}
		logrus.WithField("path", *configPath).Warn("config not found, using defaults")
		cfg = config.Default()
	}

	for _, dir := range []string{cfg.Paths.Output, cfg.Paths.CacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logrus.WithError(err).Fatalf("failed to create dir %s", dir)
		}
	}

	req := types.ContentRequest{Topic: *topic}
	if *scriptPath != "" {
		data, err := os.ReadFile(*scriptPath)
		if err != nil {
			logrus.WithError(err).Fatal("failed to read script file")
		}
		req.Script = string(data)
	}
	if *providerList != "" {
		req.Providers = strings.Split(*providerList, ",")
	}
	req.MusicPath = cfg.Paths.Music

	registry := providers.NewRegistry()
	registry.RegisterScript(providers.NewGemini(cfg.Script.GeminiModel, cfg.Audio.FallbackWordsPerMinute, cfg.Pipeline.MaxRetries))
	registry.RegisterScript(providers.NewClaude(cfg.Script.ClaudeModel, cfg.Audio.FallbackWordsPerMinute, cfg.Pipeline.MaxRetries))
	registry.RegisterTTS(providers.NewElevenLabs(cfg.Pipeline.MaxRetries))
	registry.RegisterImage(providers.NewPollinations(cfg.Pipeline.MaxRetries))
	registry.RegisterMotion(providers.NewLeonardo(cfg.Motion.Strength))

	coordinator := battle.New(
		registry,
		battle.RandomSelection(cfg.Battle.Seed),
		cfg.Pipeline.SceneConcurrency,
		cfg.ProviderTimeout(),
		cfg.Audio.FallbackWordsPerMinute,
	)
	assetCache := cache.New(cfg.Paths.CacheManifest)
	composer := assembly.NewFFmpegComposer(cfg.Images.Width, cfg.Images.Height, cfg.Motion.FPS)

	var opts []pipeline.Option
	if source, err := trending.NewRedditSource(cfg.Trending.Subreddits, cfg.Trending.MinScore); err != nil {
		logrus.WithError(err).Warn("trending source unavailable, automatic mode disabled")
	} else {
		opts = append(opts, pipeline.WithTopicSource(source))
	}
	if cfg.Publish.Enabled {
		opts = append(opts, pipeline.WithPublisher("youtube", publish.NewYouTube(&cfg.Publish)))
	}

	sequencer := pipeline.New(cfg, registry, coordinator, assetCache, composer, opts...)
	aggregator := summary.New(cfg.Paths.Output)

	run, runErr := sequencer.Run(context.Background(), req)
	sum, sumErr := aggregator.Finalize(run)
	if sumErr != nil {
		logrus.WithError(sumErr).Warn("could not persist run summary")
	}

	log := logrus.WithFields(logrus.Fields{"run": run.ID, "status": sum.Status})
	switch sum.Status {
	case types.RunSuccess:
		log.WithField("output", sum.OutputPath).Info("done")
	case types.RunPartial:
		log.WithFields(logrus.Fields{"output": sum.OutputPath, "placeholder_scenes": sum.PlaceholderScenes}).
			Warn("done with degraded scenes — review before publishing")
	default:
		log.WithError(runErr).Error("run failed")
		os.Exit(1)
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Battle    BattleConfig    `yaml:"battle"`
	Script    ScriptConfig    `yaml:"script"`
	Audio     AudioConfig     `yaml:"audio"`
	Images    ImagesConfig    `yaml:"images"`
	Motion    MotionConfig    `yaml:"motion"`
	Subtitles SubtitlesConfig `yaml:"subtitles"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Trending  TrendingConfig  `yaml:"trending"`
	Publish   PublishConfig   `yaml:"publish"`
	Paths     PathsConfig     `yaml:"paths"`
}

type TrendingConfig struct {
	Subreddits []string `yaml:"subreddits"`
	MinScore   int      `yaml:"min_score"`
}

type BattleConfig struct {
	Participants []string `yaml:"participants"`
	// Seed for the random winner selection; 0 means time-seeded.
	Seed int64 `yaml:"seed"`
}

type ScriptConfig struct {
	Style       string `yaml:"style"`
	Tone        string `yaml:"tone"`
	Language    string `yaml:"language"`
	GeminiModel string `yaml:"gemini_model"`
	ClaudeModel string `yaml:"claude_model"`
}

type AudioConfig struct {
	Provider   string `yaml:"provider"`
	VoiceID    string `yaml:"voice_id"`
	VoiceStyle string `yaml:"voice_style"`
	// FallbackWordsPerMinute estimates a scene's duration from its
	// narration when no measured audio duration exists.
	FallbackWordsPerMinute float64 `yaml:"fallback_words_per_minute"`
	// PlaceholderSec is the silent-audio length for scenes whose TTS
	// failed and whose narration is empty.
	PlaceholderSec float64 `yaml:"placeholder_sec"`
}

type ImagesConfig struct {
	Provider string `yaml:"provider"`
	Style    string `yaml:"style"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
}

type MotionConfig struct {
	Provider string `yaml:"provider"`
	Strength int    `yaml:"strength"`
	FPS      int    `yaml:"fps"`
}

type SubtitlesConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxLineChars caps the length of one burned caption line.
	MaxLineChars int `yaml:"max_line_chars"`
}

type PipelineConfig struct {
	SceneConcurrency   int `yaml:"scene_concurrency"`
	ProviderTimeoutSec int `yaml:"provider_timeout_sec"`
	MaxRetries         int `yaml:"max_retries"`
	// MinStageSuccessRatio is the fraction of scenes that must succeed
	// for a stage to pass. 0 means at least one scene.
	MinStageSuccessRatio float64 `yaml:"min_stage_success_ratio"`
}

type PublishConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	DefaultLanguage   string `yaml:"default_language"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
}

type PathsConfig struct {
	Output        string `yaml:"output"`
	CacheDir      string `yaml:"cache_dir"`
	CacheManifest string `yaml:"cache_manifest"`
	Music         string `yaml:"music"`
}

// ProviderTimeout returns the per-call timeout for external providers.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Pipeline.ProviderTimeoutSec) * time.Second
}

// Load reads the YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with all defaults applied and no file read.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if len(c.Battle.Participants) == 0 {
		c.Battle.Participants = []string{"gemini", "claude"}
	}
	if c.Script.Language == "" {
		c.Script.Language = "en-US"
	}
	if c.Script.GeminiModel == "" {
		c.Script.GeminiModel = "gemini-1.5-pro"
	}
	if c.Script.ClaudeModel == "" {
		c.Script.ClaudeModel = "claude-sonnet-4-20250514"
	}
	if c.Audio.Provider == "" {
		c.Audio.Provider = "elevenlabs"
	}
	if c.Images.Provider == "" {
		c.Images.Provider = "pollinations"
	}
	if c.Motion.Provider == "" {
		c.Motion.Provider = "leonardo"
	}
	if c.Audio.FallbackWordsPerMinute == 0 {
		c.Audio.FallbackWordsPerMinute = 150
	}
	if c.Audio.PlaceholderSec == 0 {
		c.Audio.PlaceholderSec = 5.0
	}
	if c.Images.Width == 0 {
		c.Images.Width = 1080
	}
	if c.Images.Height == 0 {
		c.Images.Height = 1920
	}
	if c.Motion.Strength == 0 {
		c.Motion.Strength = 8
	}
	if c.Motion.FPS == 0 {
		c.Motion.FPS = 30
	}
	if c.Subtitles.MaxLineChars == 0 {
		c.Subtitles.MaxLineChars = 38
	}
	if c.Pipeline.SceneConcurrency == 0 {
		c.Pipeline.SceneConcurrency = 3
	}
	if c.Pipeline.ProviderTimeoutSec == 0 {
		c.Pipeline.ProviderTimeoutSec = 120
	}
	if c.Pipeline.MaxRetries == 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Publish.Visibility == "" {
		c.Publish.Visibility = "private"
	}
	if c.Publish.CategoryID == "" {
		c.Publish.CategoryID = "24"
	}
	if c.Publish.DefaultLanguage == "" {
		c.Publish.DefaultLanguage = "en"
	}
	if c.Paths.Output == "" {
		c.Paths.Output = "output"
	}
	if c.Paths.CacheDir == "" {
		c.Paths.CacheDir = "cache"
	}
	if c.Paths.CacheManifest == "" {
		c.Paths.CacheManifest = "cache/manifest.json"
	}
}

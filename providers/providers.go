package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnknownProvider is returned when a capability lookup misses.
var ErrUnknownProvider = errors.New("provider not registered")

// ScriptRequest carries the settings every battle participant receives.
type ScriptRequest struct {
	Topic    string
	Style    string
	Tone     string
	Language string
}

// ScriptResult is a structured script as returned by a provider.
type ScriptResult struct {
	ScriptText   string
	Title        string
	Hook         string
	Hashtags     []string
	ViralScore   float64
	EstimatedSec float64
	Scenes       []SceneDraft
}

// SceneDraft is one authored scene before segmentation into the run.
type SceneDraft struct {
	Narration    string
	ImagePrompt  string
	MotionPrompt string
}

// VoiceSettings are passed through to TTS providers.
type VoiceSettings struct {
	VoiceID string
	Style   string
}

// AudioResult is a synthesized narration file. DurationSec is measured
// from the produced file, never estimated.
type AudioResult struct {
	Path        string
	DurationSec float64
}

// ImageStyle tunes image generation.
type ImageStyle struct {
	Style  string
	Width  int
	Height int
}

// ScriptProvider generates a structured script for a topic.
type ScriptProvider interface {
	Name() string
	GenerateScript(ctx context.Context, req ScriptRequest) (*ScriptResult, error)
}

// TTSProvider synthesizes narration audio to outPath.
type TTSProvider interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice VoiceSettings, outPath string) (*AudioResult, error)
}

// ImageProvider generates one image to outPath.
type ImageProvider interface {
	Name() string
	GenerateImage(ctx context.Context, prompt string, style ImageStyle, outPath string) (string, error)
}

// MotionProvider animates a still image into a clip of roughly
// targetSec seconds, written to outPath.
type MotionProvider interface {
	Name() string
	Animate(ctx context.Context, imagePath, prompt string, targetSec float64, outPath string) (string, error)
}

// Registry maps provider identifiers to capability implementations.
// Adding a provider means registering it here, never branching on its
// name at call sites.
type Registry struct {
	scripts map[string]ScriptProvider
	tts     map[string]TTSProvider
	images  map[string]ImageProvider
	motions map[string]MotionProvider
}

func NewRegistry() *Registry {
	return &Registry{
		scripts: make(map[string]ScriptProvider),
		tts:     make(map[string]TTSProvider),
		images:  make(map[string]ImageProvider),
		motions: make(map[string]MotionProvider),
	}
}

func (r *Registry) RegisterScript(p ScriptProvider) { r.scripts[p.Name()] = p }
func (r *Registry) RegisterTTS(p TTSProvider)       { r.tts[p.Name()] = p }
func (r *Registry) RegisterImage(p ImageProvider)   { r.images[p.Name()] = p }
func (r *Registry) RegisterMotion(p MotionProvider) { r.motions[p.Name()] = p }

func (r *Registry) Script(name string) (ScriptProvider, error) {
	p, ok := r.scripts[name]
	if !ok {
		return nil, fmt.Errorf("script %s: %w", name, ErrUnknownProvider)
	}
	return p, nil
}

// ScriptNames lists registered script providers. Map order; callers
// sort when order matters.
func (r *Registry) ScriptNames() []string {
	names := make([]string, 0, len(r.scripts))
	for name := range r.scripts {
		names = append(names, name)
	}
	return names
}

func (r *Registry) TTS(name string) (TTSProvider, error) {
	p, ok := r.tts[name]
	if !ok {
		return nil, fmt.Errorf("tts %s: %w", name, ErrUnknownProvider)
	}
	return p, nil
}

func (r *Registry) Image(name string) (ImageProvider, error) {
	p, ok := r.images[name]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", name, ErrUnknownProvider)
	}
	return p, nil
}

func (r *Registry) Motion(name string) (MotionProvider, error) {
	p, ok := r.motions[name]
	if !ok {
		return nil, fmt.Errorf("motion %s: %w", name, ErrUnknownProvider)
	}
	return p, nil
}

// retry runs op with exponential backoff, honoring ctx cancellation.
// Providers wrap non-retryable failures in backoff.Permanent.
func retry(ctx context.Context, maxRetries int, op backoff.Operation) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries)), ctx))
}

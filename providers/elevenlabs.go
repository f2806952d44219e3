package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"viral-content-pipeline/assembly"
)

const elevenTTSEndpointFmt = "https://api.elevenlabs.io/v1/text-to-speech/%s"
const elevenModelID = "eleven_multilingual_v2"

// ElevenLabs synthesizes narration via the ElevenLabs TTS API and
// measures the real duration of the produced file with ffprobe.
type ElevenLabs struct {
	maxRetries int
	httpClient *http.Client
}

func NewElevenLabs(maxRetries int) *ElevenLabs {
	return &ElevenLabs{
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

type elevenRequest struct {
	Text          string              `json:"text"`
	ModelID       string              `json:"model_id"`
	VoiceSettings elevenVoiceSettings `json:"voice_settings"`
}

type elevenVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string, voice VoiceSettings, outPath string) (*AudioResult, error) {
	apiKey := os.Getenv("ELEVEN_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ELEVEN_API_KEY not set")
	}
	if text == "" {
		return nil, fmt.Errorf("empty narration text")
	}

	settings := elevenVoiceSettings{
		Stability:       0.35,
		SimilarityBoost: 0.85,
		UseSpeakerBoost: true,
	}
	if voice.Style == "dramatic" || voice.Style == "enthusiastic" {
		settings.Style = 0.4
	}

	body, err := json.Marshal(elevenRequest{
		Text:          text,
		ModelID:       elevenModelID,
		VoiceSettings: settings,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	err = retry(ctx, e.maxRetries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf(elevenTTSEndpointFmt, voice.VoiceID), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("xi-api-key", apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("elevenlabs request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
			err := fmt.Errorf("elevenlabs HTTP %d: %s", resp.StatusCode, msg)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return os.WriteFile(outPath, data, 0644)
	})
	if err != nil {
		return nil, err
	}

	dur, err := assembly.MeasureAudioDuration(outPath)
	if err != nil {
		return nil, fmt.Errorf("measure audio duration: %w", err)
	}

	logrus.WithFields(logrus.Fields{"provider": e.Name(), "duration": dur, "path": outPath}).
		Info("narration synthesized")
	return &AudioResult{Path: outPath, DurationSec: dur}, nil
}

package assembly

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"viral-content-pipeline/types"
)

// SubtitleCue is one timed caption in the final video.
type SubtitleCue struct {
	Start float64
	End   float64
	Text  string
}

// CuesFromScenes turns scene narrations into caption cues. Each
// narration is wrapped into chunks of at most maxLineChars and the
// scene's resolved window is split across its chunks in proportion to
// word count, so captions track the spoken audio without transcription.
func CuesFromScenes(scenes []types.Scene, maxLineChars int) []SubtitleCue {
	if maxLineChars <= 0 {
		maxLineChars = 38
	}

	var cues []SubtitleCue
	for _, scene := range scenes {
		chunks := wrapCaption(scene.Narration, maxLineChars)
		if len(chunks) == 0 {
			continue
		}

		totalWords := 0
		for _, chunk := range chunks {
			totalWords += len(strings.Fields(chunk))
		}
		window := scene.End - scene.Start
		if totalWords == 0 || window <= 0 {
			continue
		}

		start := scene.Start
		for _, chunk := range chunks {
			share := float64(len(strings.Fields(chunk))) / float64(totalWords)
			end := start + window*share
			cues = append(cues, SubtitleCue{Start: start, End: end, Text: chunk})
			start = end
		}
		// Absorb float drift so the scene's last cue ends on its window.
		cues[len(cues)-1].End = scene.End
	}
	return cues
}

// wrapCaption splits text into word-wrapped chunks of at most maxChars.
// A single word longer than maxChars becomes its own chunk.
func wrapCaption(text string, maxChars int) []string {
	words := strings.Fields(text)
	var chunks []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// BurnSubtitles renders the cues into the video as an SRT track burned
// into the frames. Audio streams are copied untouched.
func (c *FFmpegComposer) BurnSubtitles(ctx context.Context, videoPath string, cues []SubtitleCue, outPath string) (string, error) {
	if len(cues) == 0 {
		return "", fmt.Errorf("no subtitle cues")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", err
	}

	srtPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".srt"
	if err := writeSRT(srtPath, cues); err != nil {
		return "", fmt.Errorf("write srt: %w", err)
	}

	logrus.WithFields(logrus.Fields{"cues": len(cues), "out": outPath}).
		Info("burning subtitles")

	style := fmt.Sprintf("FontSize=%d,Bold=1,Outline=2,MarginV=60,Alignment=2", c.SubtitleFontSize)
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("subtitles=%s:force_style='%s'", srtPath, style),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-c:a", "copy",
		"-movflags", "+faststart",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg subtitles: %w: %s", err, tail(out))
	}
	return outPath, nil
}

func writeSRT(path string, cues []SubtitleCue) error {
	var sb strings.Builder
	for i, cue := range cues {
		sb.WriteString(fmt.Sprintf("%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(cue.Start), srtTimestamp(cue.End), cue.Text))
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int(sec*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

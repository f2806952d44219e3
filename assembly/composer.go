package assembly

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// SceneCut is one scene's contribution to the final composition.
type SceneCut struct {
	VisualPath string
	AudioPath  string
	Start      float64
	End        float64
}

// Assembler composes per-scene assets into the final vertical video
// and synthesizes placeholder assets when a generation stage fails.
type Assembler interface {
	Compose(ctx context.Context, cuts []SceneCut, musicPath, outPath string) (string, error)
	BurnSubtitles(ctx context.Context, videoPath string, cues []SubtitleCue, outPath string) (string, error)
	PlaceholderAudio(ctx context.Context, durationSec float64, outPath string) (string, error)
	PlaceholderImage(ctx context.Context, outPath string) (string, error)
	StaticMotion(ctx context.Context, imagePath string, durationSec float64, outPath string) (string, error)
}

// FFmpegComposer drives ffmpeg/ffprobe for all local media work.
type FFmpegComposer struct {
	Width  int
	Height int
	FPS    int
	// MusicVolume scales the background track under the narration.
	MusicVolume float64
	// SubtitleFontSize is the ASS force_style font size for burned
	// captions.
	SubtitleFontSize int
}

func NewFFmpegComposer(width, height, fps int) *FFmpegComposer {
	return &FFmpegComposer{Width: width, Height: height, FPS: fps, MusicVolume: 0.22, SubtitleFontSize: 18}
}

// Compose trims each scene clip to its resolved window, concatenates
// them, mixes optional music and muxes the narration.
func (c *FFmpegComposer) Compose(ctx context.Context, cuts []SceneCut, musicPath, outPath string) (string, error) {
	if len(cuts) == 0 {
		return "", fmt.Errorf("no scene cuts to compose")
	}
	workDir := filepath.Dir(outPath)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	logrus.WithFields(logrus.Fields{"scenes": len(cuts), "out": outPath}).
		Info("composing final video")

	// Per-scene trimmed segments with narration muxed in.
	var segments []string
	for i, cut := range cuts {
		if cut.VisualPath == "" {
			return "", fmt.Errorf("scene %d has no visual", i)
		}
		seg := filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i))
		if err := c.buildSegment(ctx, cut, seg); err != nil {
			return "", fmt.Errorf("scene %d segment: %w", i, err)
		}
		segments = append(segments, seg)
	}

	// Concat list like the audio pipeline uses.
	listFile := filepath.Join(workDir, "compose_concat.txt")
	var lines []string
	for _, seg := range segments {
		lines = append(lines, fmt.Sprintf("file '%s'", seg))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return "", err
	}

	joined := outPath
	if musicPath != "" {
		joined = filepath.Join(workDir, "joined_nomusic.mp4")
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "22",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		joined,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg concat: %w: %s", err, tail(out))
	}

	if musicPath == "" {
		return outPath, nil
	}

	mixCmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-i", joined,
		"-i", musicPath,
		"-filter_complex",
		fmt.Sprintf("[1:a]volume=%.2f[bg];[0:a][bg]amix=inputs=2:duration=first:normalize=0[aout]", c.MusicVolume),
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		outPath,
	)
	if out, err := mixCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg music mix: %w: %s", err, tail(out))
	}
	return outPath, nil
}

// buildSegment scales a clip to the vertical frame, loops it if it is
// shorter than the scene window and muxes the scene narration.
func (c *FFmpegComposer) buildSegment(ctx context.Context, cut SceneCut, outPath string) error {
	dur := cut.End - cut.Start
	if dur <= 0 {
		dur = 0.5
	}

	args := []string{"-y", "-stream_loop", "-1", "-i", cut.VisualPath}
	hasAudio := cut.AudioPath != ""
	if hasAudio {
		args = append(args, "-i", cut.AudioPath)
	}
	args = append(args,
		"-t", fmt.Sprintf("%.3f", dur),
		"-vf", fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,fps=%d",
			c.Width, c.Height, c.Width, c.Height, c.FPS),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
	)
	if hasAudio {
		args = append(args, "-map", "0:v", "-map", "1:a", "-c:a", "aac", "-b:a", "192k", "-shortest")
	} else {
		args = append(args, "-an")
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg segment: %w: %s", err, tail(out))
	}
	return nil
}

// PlaceholderAudio writes silence of the given length so downstream
// stages always have an audio input to consume.
func (c *FFmpegComposer) PlaceholderAudio(ctx context.Context, durationSec float64, outPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=mono:sample_rate=44100",
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-c:a", "libmp3lame",
		"-q:a", "4",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg silent audio: %w: %s", err, tail(out))
	}
	return outPath, nil
}

// PlaceholderImage writes a plain dark frame at the target resolution.
func (c *FFmpegComposer) PlaceholderImage(ctx context.Context, outPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=0x101018:s=%dx%d", c.Width, c.Height),
		"-frames:v", "1",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg placeholder image: %w: %s", err, tail(out))
	}
	return outPath, nil
}

// StaticMotion turns a still image into a clip with a slow Ken Burns
// zoom, used when the motion provider is unavailable.
func (c *FFmpegComposer) StaticMotion(ctx context.Context, imagePath string, durationSec float64, outPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", err
	}
	if durationSec < 0.5 {
		durationSec = 0.5
	}
	frames := int(durationSec * float64(c.FPS))
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-loop", "1",
		"-i", imagePath,
		"-vf", fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
				"zoompan=z='min(zoom+0.0005,1.05)':d=%d:s=%dx%d:fps=%d",
			c.Width, c.Height, c.Width, c.Height, frames, c.Width, c.Height, c.FPS),
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-an",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg ken burns: %w: %s", err, tail(out))
	}
	return outPath, nil
}

// MeasureAudioDuration reads the real duration of an audio file via
// ffprobe, in seconds.
func MeasureAudioDuration(path string) (float64, error) {
	out, err := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, err
	}
	var dur float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &dur); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return dur, nil
}

// tail keeps the last chunk of ffmpeg output for error messages.
func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 400 {
		s = s[len(s)-400:]
	}
	return s
}

package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// storyboardJSON is the raw JSON structure every script provider is
// prompted to return.
type storyboardJSON struct {
	Title      string      `json:"title"`
	Hook       string      `json:"hook"`
	Hashtags   []string    `json:"hashtags"`
	ViralScore float64     `json:"viral_score"`
	Scenes     []sceneJSON `json:"scenes"`
}

type sceneJSON struct {
	Narration    string `json:"narration"`
	ImagePrompt  string `json:"image_prompt"`
	MotionPrompt string `json:"motion_prompt"`
}

const scriptSystemPrompt = `You are a short-form video scriptwriter for vertical social platforms.

You MUST respond with ONLY valid JSON — no preamble, no markdown, no explanation:
{
  "title": "...",
  "hook": "first-line hook spoken in the opening second",
  "hashtags": ["...", "..."],
  "viral_score": 0.0,
  "scenes": [
    {
      "narration": "exact words to be spoken (1-3 sentences)",
      "image_prompt": "detailed vertical 9:16 image generation prompt",
      "motion_prompt": "camera motion for the image, e.g. slow cinematic zoom in"
    }
  ]
}

Keep the script between 30 and 60 seconds when read aloud at natural pace.`

func buildScriptUserPrompt(req ScriptRequest) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Write a vertical short-form video script about: %s\n", req.Topic))
	if req.Style != "" {
		sb.WriteString(fmt.Sprintf("Visual style: %s\n", req.Style))
	}
	if req.Tone != "" {
		sb.WriteString(fmt.Sprintf("Tone: %s\n", req.Tone))
	}
	if req.Language != "" {
		sb.WriteString(fmt.Sprintf("Language: %s\n", req.Language))
	}
	sb.WriteString("Respond ONLY with valid JSON. No markdown. No explanation.")
	return sb.String()
}

// parseStoryboard turns a model's raw completion into a ScriptResult,
// estimating duration from word count until real audio exists.
func parseStoryboard(content string, wordsPerMinute float64) (*ScriptResult, error) {
	content = cleanJSON(content)

	var raw storyboardJSON
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse storyboard JSON: %w", err)
	}
	if len(raw.Scenes) == 0 {
		return nil, fmt.Errorf("storyboard has no scenes")
	}

	res := &ScriptResult{
		Title:      raw.Title,
		Hook:       raw.Hook,
		Hashtags:   raw.Hashtags,
		ViralScore: raw.ViralScore,
	}

	var full []string
	for _, s := range raw.Scenes {
		narration := strings.TrimSpace(s.Narration)
		if narration == "" {
			continue
		}
		full = append(full, narration)
		res.Scenes = append(res.Scenes, SceneDraft{
			Narration:    narration,
			ImagePrompt:  strings.TrimSpace(s.ImagePrompt),
			MotionPrompt: strings.TrimSpace(s.MotionPrompt),
		})
		words := len(strings.Fields(narration))
		res.EstimatedSec += float64(words) / wordsPerMinute * 60.0
	}
	if len(res.Scenes) == 0 {
		return nil, fmt.Errorf("storyboard has no narrated scenes")
	}
	res.ScriptText = strings.Join(full, "\n")
	return res, nil
}

// cleanJSON strips markdown fences when a model wraps its response in
// ```json ... ```.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

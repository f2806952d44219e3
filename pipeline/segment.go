package pipeline

import (
	"strings"

	"viral-content-pipeline/providers"
)

const defaultMotionPrompt = "slow cinematic zoom in, subtle parallax"

// SegmentText splits a user-supplied script into scene drafts: one
// scene per paragraph, or groups of up to two sentences when the
// script is a single block. The narration doubles as the image prompt
// since a custom script carries no authored visual cues.
func SegmentText(script string) []providers.SceneDraft {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil
	}

	paragraphs := splitParagraphs(script)
	var chunks []string
	if len(paragraphs) > 1 {
		chunks = paragraphs
	} else {
		chunks = groupSentences(splitSentences(script), 2)
	}

	drafts := make([]providers.SceneDraft, 0, len(chunks))
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		drafts = append(drafts, providers.SceneDraft{
			Narration:    chunk,
			ImagePrompt:  chunk,
			MotionPrompt: defaultMotionPrompt,
		})
	}
	return drafts
}

func splitParagraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(s string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range s {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if sentence := strings.TrimSpace(current.String()); sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func groupSentences(sentences []string, perGroup int) []string {
	var out []string
	for i := 0; i < len(sentences); i += perGroup {
		end := i + perGroup
		if end > len(sentences) {
			end = len(sentences)
		}
		out = append(out, strings.Join(sentences[i:end], " "))
	}
	return out
}

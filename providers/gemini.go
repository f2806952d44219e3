package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const geminiEndpointFmt = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// Gemini generates scripts via the Gemini generateContent API.
type Gemini struct {
	model      string
	wpm        float64
	maxRetries int
	httpClient *http.Client
}

func NewGemini(model string, wordsPerMinute float64, maxRetries int) *Gemini {
	return &Gemini{
		model:      model,
		wpm:        wordsPerMinute,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) GenerateScript(ctx context.Context, req ScriptRequest) (*ScriptResult, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	body := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: scriptSystemPrompt}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: buildScriptUserPrompt(req)}}},
		},
		GenerationConfig: geminiGenConfig{Temperature: 0.8, MaxOutputTokens: 4096},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	logrus.WithFields(logrus.Fields{"provider": g.Name(), "topic": req.Topic}).
		Info("generating script")

	var content string
	err = retry(ctx, g.maxRetries, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf(geminiEndpointFmt, g.model), bytes.NewReader(bodyBytes))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", apiKey)

		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("gemini request: %w", err)
		}
		defer resp.Body.Close()

		respBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("gemini HTTP %d", resp.StatusCode)
		}

		var parsed geminiResponse
		if err := json.Unmarshal(respBytes, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("parse gemini response: %w", err))
		}
		if parsed.Error != nil {
			return backoff.Permanent(fmt.Errorf("gemini error: %s", parsed.Error.Message))
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini returned no candidates"))
		}
		content = parsed.Candidates[0].Content.Parts[0].Text
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parseStoryboard(content, g.wpm)
}

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

const anthropicEndpoint = "https://api.anthropic.com/v1/messages"

// Claude generates scripts via the Anthropic messages API.
type Claude struct {
	model      string
	wpm        float64
	maxRetries int
	httpClient *http.Client
}

func NewClaude(model string, wordsPerMinute float64, maxRetries int) *Claude {
	return &Claude{
		model:      model,
		wpm:        wordsPerMinute,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *Claude) Name() string { return "claude" }

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Claude) GenerateScript(ctx context.Context, req ScriptRequest) (*ScriptResult, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	body := claudeRequest{
		Model:     c.model,
		MaxTokens: 4096,
		System:    scriptSystemPrompt,
		Messages: []claudeMessage{
			{Role: "user", Content: buildScriptUserPrompt(req)},
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	logrus.WithFields(logrus.Fields{"provider": c.Name(), "topic": req.Topic}).
		Info("generating script")

	var content string
	err = retry(ctx, c.maxRetries, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicEndpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("claude request: %w", err)
		}
		defer resp.Body.Close()

		respBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("claude HTTP %d", resp.StatusCode)
		}

		var parsed claudeResponse
		if err := json.Unmarshal(respBytes, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("parse claude response: %w", err))
		}
		if parsed.Error != nil {
			return backoff.Permanent(fmt.Errorf("claude error: %s", parsed.Error.Message))
		}
		if len(parsed.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("claude returned no content"))
		}
		content = parsed.Content[0].Text
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parseStoryboard(content, c.wpm)
}

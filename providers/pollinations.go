package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Pollinations generates images via the keyless Pollinations.ai API.
type Pollinations struct {
	maxRetries int
	httpClient *http.Client
}

func NewPollinations(maxRetries int) *Pollinations {
	return &Pollinations{
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *Pollinations) Name() string { return "pollinations" }

func (p *Pollinations) GenerateImage(ctx context.Context, prompt string, style ImageStyle, outPath string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("empty image prompt")
	}

	full := prompt
	if style.Style != "" {
		full = fmt.Sprintf("%s, %s style, vertical composition, no text, no watermark", prompt, style.Style)
	}

	// Deterministic seed per prompt so identical prompts reproduce.
	h := fnv.New32a()
	h.Write([]byte(full))
	imageURL := fmt.Sprintf(
		"https://image.pollinations.ai/prompt/%s?width=%d&height=%d&nologo=true&model=flux&seed=%d",
		url.PathEscape(full), style.Width, style.Height, h.Sum32(),
	)

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	logrus.WithFields(logrus.Fields{"provider": p.Name(), "prompt": truncate(prompt, 60)}).
		Info("generating image")

	err := retry(ctx, p.maxRetries, func() error {
		return p.download(ctx, imageURL, outPath)
	})
	if err != nil {
		return "", fmt.Errorf("pollinations fetch: %w", err)
	}
	return outPath, nil
}

func (p *Pollinations) download(ctx context.Context, imageURL, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ViralContentPipeline/1.0)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from Pollinations", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	// An error HTML page is smaller than any real image.
	if len(data) < 100 {
		return fmt.Errorf("response too small (%d bytes)", len(data))
	}
	return os.WriteFile(outPath, data, 0644)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

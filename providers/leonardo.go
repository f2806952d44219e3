package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const leonardoBase = "https://cloud.leonardo.ai/api/rest/v1"

// Leonardo animates still images via the Leonardo motion API:
// init-image upload → motion job → poll → download.
type Leonardo struct {
	strength     int
	pollInterval time.Duration
	httpClient   *http.Client
}

func NewLeonardo(motionStrength int) *Leonardo {
	return &Leonardo{
		strength:     motionStrength,
		pollInterval: 3 * time.Second,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (l *Leonardo) Name() string { return "leonardo" }

func (l *Leonardo) Animate(ctx context.Context, imagePath, prompt string, targetSec float64, outPath string) (string, error) {
	apiKey := os.Getenv("LEONARDO_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("LEONARDO_API_KEY not set")
	}

	log := logrus.WithFields(logrus.Fields{"provider": l.Name(), "image": filepath.Base(imagePath), "target_sec": targetSec})
	log.Info("animating image")

	imageID, err := l.uploadImage(ctx, apiKey, imagePath)
	if err != nil {
		return "", fmt.Errorf("init-image upload: %w", err)
	}

	jobID, err := l.createMotionJob(ctx, apiKey, imageID)
	if err != nil {
		return "", fmt.Errorf("create motion job: %w", err)
	}

	videoURL, err := l.pollMotion(ctx, apiKey, jobID)
	if err != nil {
		return "", fmt.Errorf("poll motion job %s: %w", jobID, err)
	}

	if err := l.download(ctx, videoURL, outPath); err != nil {
		return "", fmt.Errorf("download motion clip: %w", err)
	}
	log.WithField("path", outPath).Info("motion clip ready")
	return outPath, nil
}

type leonardoInitImage struct {
	UploadInitImage *leonardoUpload `json:"uploadInitImage"`
}

type leonardoUpload struct {
	ID     string          `json:"id"`
	URL    string          `json:"url"`
	Fields json.RawMessage `json:"fields"`
}

// uploadImage requests a presigned URL, then multipart-uploads the
// image to it. Returns the Leonardo image ID.
func (l *Leonardo) uploadImage(ctx context.Context, apiKey, imagePath string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(imagePath)), ".")
	body, _ := json.Marshal(map[string]string{"extension": ext})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, leonardoBase+"/init-image", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", fmt.Errorf("init-image HTTP %d: %s", resp.StatusCode, msg)
	}

	var init leonardoInitImage
	if err := json.Unmarshal(mustReadAll(resp.Body), &init); err != nil {
		return "", fmt.Errorf("parse init-image response: %w", err)
	}
	up := init.UploadInitImage
	if up == nil || up.ID == "" || up.URL == "" {
		return "", fmt.Errorf("unexpected init-image response")
	}

	// Fields may arrive as an object or a JSON-encoded string.
	fields := make(map[string]string)
	raw := up.Fields
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		raw = json.RawMessage(asString)
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("parse upload fields: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return "", err
	}
	f, err := os.Open(imagePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(fw, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	upReq, err := http.NewRequestWithContext(ctx, http.MethodPost, up.URL, &buf)
	if err != nil {
		return "", err
	}
	upReq.Header.Set("Content-Type", mw.FormDataContentType())

	upResp, err := l.httpClient.Do(upReq)
	if err != nil {
		return "", err
	}
	defer upResp.Body.Close()
	if upResp.StatusCode >= 300 {
		return "", fmt.Errorf("presigned upload HTTP %d", upResp.StatusCode)
	}
	return up.ID, nil
}

func (l *Leonardo) createMotionJob(ctx context.Context, apiKey, imageID string) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"imageId":        imageID,
		"motionStrength": l.strength,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, leonardoBase+"/generations-motion-svd", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", fmt.Errorf("motion job HTTP %d: %s", resp.StatusCode, msg)
	}

	var job struct {
		MotionSvdGenerationJob struct {
			GenerationID string `json:"generationId"`
		} `json:"motionSvdGenerationJob"`
		GenerationID string `json:"generationId"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(mustReadAll(resp.Body), &job); err != nil {
		return "", fmt.Errorf("parse motion job response: %w", err)
	}
	for _, id := range []string{job.MotionSvdGenerationJob.GenerationID, job.GenerationID, job.ID} {
		if id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("motion job response has no generation id")
}

func (l *Leonardo) pollMotion(ctx context.Context, apiKey, jobID string) (string, error) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, leonardoBase+"/generations/"+jobID, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := l.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		data := mustReadAll(resp.Body)
		resp.Body.Close()

		var parsed struct {
			GenerationsByPK struct {
				Status          string `json:"status"`
				GeneratedImages []struct {
					URL          string `json:"url"`
					MotionMP4URL string `json:"motionMP4URL"`
				} `json:"generated_images"`
			} `json:"generations_by_pk"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return "", fmt.Errorf("parse poll response: %w", err)
		}

		switch strings.ToLower(parsed.GenerationsByPK.Status) {
		case "complete", "completed", "succeeded":
			for _, img := range parsed.GenerationsByPK.GeneratedImages {
				if img.MotionMP4URL != "" {
					return img.MotionMP4URL, nil
				}
				if img.URL != "" {
					return img.URL, nil
				}
			}
			return "", fmt.Errorf("job finished without a video URL")
		case "failed", "error":
			return "", fmt.Errorf("job failed")
		}
	}
}

func (l *Leonardo) download(ctx context.Context, rawURL, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func mustReadAll(r io.Reader) []byte {
	data, _ := io.ReadAll(r)
	return data
}

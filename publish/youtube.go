// Package publish pushes finished videos to external platforms.
package publish

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"viral-content-pipeline/config"
	"viral-content-pipeline/types"
)

// YouTube uploads the final video as a Short via the Data API v3.
type YouTube struct {
	cfg *config.PublishConfig
}

func NewYouTube(cfg *config.PublishConfig) *YouTube {
	return &YouTube{cfg: cfg}
}

// Publish uploads the video and returns a per-platform result map.
func (y *YouTube) Publish(ctx context.Context, videoPath string, run *types.PipelineRun) (map[string]string, error) {
	log := logrus.WithFields(logrus.Fields{"run": run.ID, "platform": "youtube"})
	log.Info("authenticating with YouTube API")

	client, err := y.oauthClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube auth: %w", err)
	}

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}

	title := run.Title
	if title == "" {
		title = run.Request.Topic
	}
	description := run.Request.Topic
	var tags []string
	if run.Battle != nil {
		if winner := run.Battle.WinningCandidate(); winner != nil {
			for _, h := range winner.Hashtags {
				tags = append(tags, strings.TrimPrefix(h, "#"))
			}
			if winner.Hook != "" {
				description = winner.Hook + "\n\n" + description
			}
		}
	}

	status := &youtube.VideoStatus{
		PrivacyStatus:           y.cfg.Visibility,
		SelfDeclaredMadeForKids: y.cfg.MadeForKids,
	}
	if run.Request.ScheduleTime != nil && y.cfg.Visibility == "public" {
		// Scheduled videos must start private.
		status.PrivacyStatus = "private"
		status.PublishAt = run.Request.ScheduleTime.UTC().Format(time.RFC3339)
		log.WithField("publish_at", status.PublishAt).Info("upload scheduled")
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                title,
			Description:          description,
			Tags:                 tags,
			CategoryId:           y.cfg.CategoryID,
			DefaultLanguage:      y.cfg.DefaultLanguage,
			DefaultAudioLanguage: y.cfg.DefaultLanguage,
		},
		Status: status,
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	call := svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.NotifySubscribers(y.cfg.NotifySubscribers)
	call.Media(f)

	uploaded, err := call.Context(ctx).Do()
	if err != nil {
		return map[string]string{"youtube": "failed"}, fmt.Errorf("youtube upload: %w", err)
	}

	url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id)
	log.WithField("url", url).Info("upload complete")
	return map[string]string{"youtube": url}, nil
}

func (y *YouTube) oauthClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}

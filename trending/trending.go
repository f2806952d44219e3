// Package trending supplies topics for automatic mode, pulled from
// what is currently rising on Reddit.
package trending

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vartanbeno/go-reddit/v2/reddit"
)

// hookKeywords boost a post's score when present in its title.
var hookKeywords = []string{
	"secret", "revealed", "shocking", "nobody", "truth", "hidden",
	"mystery", "banned", "exposed", "warning", "finally", "insane",
}

// RedditSource picks a trending topic from configured subreddits.
type RedditSource struct {
	client     *reddit.Client
	subreddits []string
	minScore   int
}

// NewRedditSource builds a source. With REDDIT_CLIENT_ID/SECRET set it
// authenticates; otherwise it uses the readonly public client.
func NewRedditSource(subreddits []string, minScore int) (*RedditSource, error) {
	if len(subreddits) == 0 {
		subreddits = []string{"todayilearned", "interestingasfuck", "Damnthatsinteresting"}
	}

	var client *reddit.Client
	var err error
	if id := os.Getenv("REDDIT_CLIENT_ID"); id != "" {
		client, err = reddit.NewClient(reddit.Credentials{
			ID:       id,
			Secret:   os.Getenv("REDDIT_CLIENT_SECRET"),
			Username: os.Getenv("REDDIT_USERNAME"),
			Password: os.Getenv("REDDIT_PASSWORD"),
		})
	} else {
		client, err = reddit.NewReadonlyClient()
	}
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}

	return &RedditSource{client: client, subreddits: subreddits, minScore: minScore}, nil
}

// TrendingTopic returns the highest-scoring recent post title across
// the configured subreddits.
func (r *RedditSource) TrendingTopic(ctx context.Context) (string, error) {
	type scored struct {
		title string
		score int
	}
	var candidates []scored

	for _, sub := range r.subreddits {
		posts, _, err := r.client.Subreddit.TopPosts(ctx, sub, &reddit.ListPostOptions{
			ListOptions: reddit.ListOptions{Limit: 25},
			Time:        "day",
		})
		if err != nil {
			logrus.WithField("subreddit", sub).WithError(err).Warn("subreddit fetch failed")
			continue
		}
		for _, post := range posts {
			if post.Score < r.minScore || post.NSFW || post.Stickied {
				continue
			}
			candidates = append(candidates, scored{
				title: post.Title,
				score: post.Score + hookBonus(post.Title),
			})
		}
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("no trending topics found in %s", strings.Join(r.subreddits, ", "))
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	top := candidates[0]
	logrus.WithFields(logrus.Fields{"topic": top.title, "score": top.score}).
		Info("trending topic selected")
	return top.title, nil
}

func hookBonus(title string) int {
	lower := strings.ToLower(title)
	bonus := 0
	for _, kw := range hookKeywords {
		if strings.Contains(lower, kw) {
			bonus += 250
		}
	}
	return bonus
}

// Package battle runs several script providers against the same topic
// and picks one winner among those that produced a valid script.
package battle

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"viral-content-pipeline/providers"
	"viral-content-pipeline/types"
)

// ErrNoValidScript is the message carried by an exhausted battle.
const ErrNoValidScript = "no provider produced a valid script"

// SelectionStrategy picks a winner from the successful candidates.
// It is only called with a non-empty slice.
type SelectionStrategy func(successful []types.ScriptCandidate) types.ScriptCandidate

// RandomSelection picks uniformly at random, favoring diversity over a
// fixed ranking. A non-zero seed makes the pick sequence reproducible.
func RandomSelection(seed int64) SelectionStrategy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	var mu sync.Mutex
	return func(successful []types.ScriptCandidate) types.ScriptCandidate {
		mu.Lock()
		defer mu.Unlock()
		return successful[rng.Intn(len(successful))]
	}
}

// HighestViralScore is the deterministic alternative: best self-rated
// script wins, candidate order breaks ties.
func HighestViralScore(successful []types.ScriptCandidate) types.ScriptCandidate {
	best := successful[0]
	for _, c := range successful[1:] {
		if c.ViralScore > best.ViralScore {
			best = c
		}
	}
	return best
}

// Coordinator fans the same request out to every participant and
// collects one ScriptCandidate per provider, success or not.
type Coordinator struct {
	registry    *providers.Registry
	strategy    SelectionStrategy
	concurrency int
	callTimeout time.Duration
	wpm         float64
}

func New(registry *providers.Registry, strategy SelectionStrategy, concurrency int, callTimeout time.Duration, wordsPerMinute float64) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		registry:    registry,
		strategy:    strategy,
		concurrency: concurrency,
		callTimeout: callTimeout,
		wpm:         wordsPerMinute,
	}
}

// RunBattle invokes every participant exactly once with identical
// settings. Provider failures are recorded, never propagated; the
// result is a failure only when zero candidates succeed.
func (c *Coordinator) RunBattle(ctx context.Context, req providers.ScriptRequest, participants []string) types.BattleResult {
	log := logrus.WithField("topic", req.Topic)
	log.WithField("participants", strings.Join(participants, ",")).Info("starting script battle")

	candidates := make([]types.ScriptCandidate, len(participants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, name := range participants {
		i, name := i, name
		g.Go(func() error {
			candidates[i] = c.generate(gctx, name, req)
			return nil
		})
	}
	_ = g.Wait()

	var successful []types.ScriptCandidate
	for _, cand := range candidates {
		if cand.Success {
			successful = append(successful, cand)
		}
	}

	if len(successful) == 0 {
		log.Warn("battle exhausted: every participant failed")
		return types.BattleResult{
			Success:    false,
			Candidates: candidates,
			Error:      ErrNoValidScript,
		}
	}

	winner := c.strategy(successful)
	log.WithField("winner", winner.Provider).Info("battle finished")
	return types.BattleResult{
		Success:    true,
		Winner:     winner.Provider,
		Candidates: candidates,
	}
}

// Generate calls a single provider outside any battle, for requests
// that name exactly one participant.
func (c *Coordinator) Generate(ctx context.Context, name string, req providers.ScriptRequest) types.ScriptCandidate {
	return c.generate(ctx, name, req)
}

func (c *Coordinator) generate(ctx context.Context, name string, req providers.ScriptRequest) types.ScriptCandidate {
	cand := types.ScriptCandidate{Provider: name}

	provider, err := c.registry.Script(name)
	if err != nil {
		cand.Error = err.Error()
		logrus.WithField("provider", name).Warn("battle participant not configured")
		return cand
	}

	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	result, err := provider.GenerateScript(callCtx, req)
	if err != nil {
		cand.Error = err.Error()
		logrus.WithField("provider", name).WithError(err).Warn("script generation failed")
		return cand
	}

	cand.Success = true
	cand.ScriptText = result.ScriptText
	cand.Title = result.Title
	cand.Hook = result.Hook
	cand.Hashtags = result.Hashtags
	cand.ViralScore = result.ViralScore
	cand.EstimatedSec = result.EstimatedSec
	cand.Scenes = SegmentDrafts(result.Scenes, c.wpm)
	return cand
}

// SegmentDrafts turns authored scene drafts into ordered scenes with
// contiguous estimated time windows. The estimates hold only until the
// timing resolver replaces them with measured audio durations.
func SegmentDrafts(drafts []providers.SceneDraft, wordsPerMinute float64) []types.Scene {
	scenes := make([]types.Scene, 0, len(drafts))
	var elapsed float64
	for i, d := range drafts {
		words := len(strings.Fields(d.Narration))
		dur := float64(words) / wordsPerMinute * 60.0
		scenes = append(scenes, types.Scene{
			Index:        i,
			Start:        elapsed,
			End:          elapsed + dur,
			DurationSec:  dur,
			Narration:    d.Narration,
			ImagePrompt:  d.ImagePrompt,
			MotionPrompt: d.MotionPrompt,
		})
		elapsed += dur
	}
	return scenes
}

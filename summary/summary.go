// Package summary rolls a finished pipeline run up into a write-once
// record a human reviewer can act on.
package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"viral-content-pipeline/timing"
	"viral-content-pipeline/types"
)

// requiredKinds are the asset kinds every scene must achieve without
// placeholders for the run to count as a full success.
var requiredKinds = []types.AssetKind{types.AssetAudio, types.AssetImage, types.AssetMotion}

// Aggregator finalizes runs and persists their summaries.
type Aggregator struct {
	outputDir string
}

func New(outputDir string) *Aggregator {
	return &Aggregator{outputDir: outputDir}
}

// Finalize computes the run's final status, builds its summary and
// persists it. Status rules: success only when assembly produced an
// output and every scene has a non-placeholder asset of every required
// kind; partial when assembly succeeded but some scenes degraded;
// failed otherwise.
func (a *Aggregator) Finalize(run *types.PipelineRun) (*types.Summary, error) {
	placeholders := PlaceholderScenes(run)

	switch {
	case run.Error != "" || run.OutputPath == "":
		run.Status = types.RunFailed
	case len(placeholders) > 0:
		run.Status = types.RunPartial
	default:
		run.Status = types.RunSuccess
	}

	sum := &types.Summary{
		RunID:             run.ID,
		Status:            run.Status,
		Title:             run.Title,
		Topic:             run.Request.Topic,
		SceneCount:        len(run.Scenes),
		TotalSec:          timing.TotalDuration(run.Scenes),
		PlaceholderScenes: placeholders,
		OutputPath:        run.OutputPath,
		Publish:           run.Publish,
		StartedAt:         run.StartedAt,
		CompletedAt:       run.CompletedAt,
		ProcessingSec:     run.CompletedAt.Sub(run.StartedAt).Seconds(),
		Error:             run.Error,
	}
	if run.Battle != nil {
		sum.Winner = run.Battle.Winner
	}

	if err := a.persist(sum); err != nil {
		return sum, err
	}
	return sum, nil
}

// PlaceholderScenes lists the scenes that lack a clean asset of any
// required kind, in scene order.
func PlaceholderScenes(run *types.PipelineRun) []int {
	var out []int
	for i := range run.Scenes {
		for _, kind := range requiredKinds {
			a := run.SceneAsset(i, kind)
			if a == nil || a.Status != types.AssetSuccess {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// persist writes the summary exactly once; an existing file for the
// same run is an error, never overwritten.
func (a *Aggregator) persist(sum *types.Summary) error {
	if err := os.MkdirAll(a.outputDir, 0755); err != nil {
		return fmt.Errorf("create summary dir: %w", err)
	}
	path := filepath.Join(a.outputDir, fmt.Sprintf("summary_%s.json", sum.RunID))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("summary already written or not writable: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	logrus.WithFields(logrus.Fields{"run": sum.RunID, "status": sum.Status, "path": path}).
		Info("run summary saved")
	return nil
}

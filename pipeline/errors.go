package pipeline

import "errors"

var (
	// ErrBattleExhausted means every script participant failed; no
	// downstream stage is attempted without a script.
	ErrBattleExhausted = errors.New("every script provider failed")

	// ErrStageExhausted means a stage produced too few successful
	// scenes: the whole capability is unavailable, not just degraded.
	ErrStageExhausted = errors.New("stage exhausted")

	// ErrAssemblyFailed means the final composition step failed. No
	// placeholder policy applies to the terminal artifact.
	ErrAssemblyFailed = errors.New("assembly failed")

	// ErrNoTopic means the request had neither topic nor script and
	// no topic source was configured.
	ErrNoTopic = errors.New("request has no topic, no script, and no topic source")
)

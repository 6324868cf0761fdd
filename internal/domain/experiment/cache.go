package experiment

import (
	"context"
	"time"
)

// RunningExperimentCache caches the running experiment set per experiment
// type. The assignment hot path hits this on every lookup; lifecycle
// transitions invalidate it.
type RunningExperimentCache interface {
	// GetRunningByType returns the cached running experiments for a type.
	// The second return value is false on a cache miss.
	GetRunningByType(ctx context.Context, expType ExperimentType) ([]Experiment, bool)

	// SetRunningByType stores the running experiments for a type
	SetRunningByType(ctx context.Context, expType ExperimentType, experiments []Experiment, ttl time.Duration)

	// InvalidateType drops the cached entry for one type
	InvalidateType(ctx context.Context, expType ExperimentType)

	// InvalidateAll drops every cached entry
	InvalidateAll(ctx context.Context)
}

package experiment

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ExperimentRepository defines the interface for experiment persistence.
// Experiments are loaded with their variants; variants have no life of
// their own outside the aggregate.
type ExperimentRepository interface {
	// Create persists a new experiment together with its variants
	Create(ctx context.Context, exp *Experiment) error

	// Update updates the experiment's scalar fields using optimistic locking.
	// The caller must increment the version before calling Update.
	Update(ctx context.Context, exp *Experiment) error

	// ReplaceVariants deletes the stored variant set and writes the
	// experiment's current variants in its place
	ReplaceVariants(ctx context.Context, exp *Experiment) error

	// UpdateVariant updates a single variant row (cached counters, winner flag)
	UpdateVariant(ctx context.Context, variant *Variant) error

	// FindByID finds an experiment with its variants
	// Returns shared.ErrNotFound if not found
	FindByID(ctx context.Context, id uuid.UUID) (*Experiment, error)

	// FindAll retrieves experiments with optional filtering, variants included
	FindAll(ctx context.Context, filter shared.Filter) ([]Experiment, error)

	// FindByStatus finds all experiments with a specific status
	FindByStatus(ctx context.Context, status ExperimentStatus, filter shared.Filter) ([]Experiment, error)

	// FindRunningByType finds all running experiments of the given type,
	// variants included. This is the assignment hot path.
	FindRunningByType(ctx context.Context, expType ExperimentType) ([]Experiment, error)

	// Delete deletes the experiment and its variants
	Delete(ctx context.Context, id uuid.UUID) error

	// Count counts experiments matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)
}

// AssignmentRepository defines the interface for assignment persistence.
//
// Create must be conflict-safe: the table carries uniqueness over
// (user_id, experiment_id) and (session_id, experiment_id), and a create
// that loses the first-assignment race returns shared.ErrAlreadyExists so
// the caller can re-read the winning row.
type AssignmentRepository interface {
	// Create inserts a new assignment, returning shared.ErrAlreadyExists
	// when the subject is already bound to the experiment
	Create(ctx context.Context, assignment *Assignment) error

	// Save updates the observation flags of an existing assignment
	Save(ctx context.Context, assignment *Assignment) error

	// FindByID finds an assignment by its ID
	// Returns shared.ErrNotFound if not found
	FindByID(ctx context.Context, id uuid.UUID) (*Assignment, error)

	// FindBySubject finds the assignment binding a subject to an experiment.
	// User identity takes precedence over session identity.
	// Returns nil, nil when no binding exists.
	FindBySubject(ctx context.Context, experimentID uuid.UUID, userID, sessionID *string) (*Assignment, error)

	// FindAllBySubject lists every assignment for a subject across experiments
	FindAllBySubject(ctx context.Context, userID, sessionID *string) ([]Assignment, error)

	// DeleteByExperiment removes all assignments of an experiment
	DeleteByExperiment(ctx context.Context, experimentID uuid.UUID) error

	// CountByExperiment counts assignments of an experiment
	CountByExperiment(ctx context.Context, experimentID uuid.UUID) (int64, error)
}

// PeriodCount is one time bucket of a grouped result count
type PeriodCount struct {
	Period string
	Count  int64
}

// ResultRepository defines the interface for the append-only result log
// and its aggregations
type ResultRepository interface {
	// Create appends a single result row
	Create(ctx context.Context, result *Result) error

	// CreateBatch appends multiple result rows in one transaction
	CreateBatch(ctx context.Context, results []*Result) error

	// CountByVariantAndType counts rows of one type for a variant
	CountByVariantAndType(ctx context.Context, variantID uuid.UUID, resultType ResultType) (int64, error)

	// SumValueByVariantAndType sums the value column of one type for a
	// variant. Revenue totals are summed as decimals.
	SumValueByVariantAndType(ctx context.Context, variantID uuid.UUID, resultType ResultType) (decimal.Decimal, error)

	// CountByPeriod groups rows of one type for a variant into period
	// buckets using the interval's date format, ordered by period
	CountByPeriod(ctx context.Context, variantID uuid.UUID, resultType ResultType, interval MetricInterval) ([]PeriodCount, error)
}

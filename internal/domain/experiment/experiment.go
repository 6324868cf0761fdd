package experiment

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeExperiment = "Experiment"

// Experiment is the aggregate root for an A/B test. It owns its variants
// and enforces the lifecycle state machine:
//
//	draft -> running <-> paused -> completed -> archived
//
// Archiving is never allowed while the experiment is running; terminal
// states reject every transition.
type Experiment struct {
	shared.BaseAggregateRoot
	Name               string           `json:"name"`
	Description        string           `json:"description,omitempty"`
	Type               ExperimentType   `json:"type"`
	Status             ExperimentStatus `json:"status"`
	Hypothesis         string           `json:"hypothesis,omitempty"`
	PrimaryMetric      string           `json:"primary_metric,omitempty"`
	SecondaryMetrics   []string         `json:"secondary_metrics,omitempty"`
	TargetAudience     map[string]any   `json:"target_audience,omitempty"`
	AudiencePercentage *float64         `json:"audience_percentage,omitempty"`
	Segmentation       map[string]any   `json:"segmentation,omitempty"`
	StartDate          *time.Time       `json:"start_date,omitempty"`
	EndDate            *time.Time       `json:"end_date,omitempty"`
	HasWinner          bool             `json:"has_winner"`
	WinningVariantID   *uuid.UUID       `json:"winning_variant_id,omitempty"`
	Variants           []Variant        `json:"variants,omitempty"`
}

// NewExperiment creates a new experiment in draft status with its variants.
// At least one variant must be marked as control.
func NewExperiment(name, description string, expType ExperimentType, variants []*Variant) (*Experiment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if !expType.IsValid() {
		return nil, shared.NewDomainError("INVALID_EXPERIMENT_TYPE", "Invalid experiment type")
	}
	if err := validateVariantSet(variants); err != nil {
		return nil, err
	}

	exp := &Experiment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Description:       description,
		Type:              expType,
		Status:            StatusDraft,
		Variants:          make([]Variant, 0, len(variants)),
	}
	for _, v := range variants {
		v.BindToExperiment(exp.ID)
		exp.Variants = append(exp.Variants, *v)
	}

	exp.AddDomainEvent(NewExperimentCreatedEvent(exp))

	return exp, nil
}

// ControlVariant returns the control variant, or nil if none exists
func (e *Experiment) ControlVariant() *Variant {
	for i := range e.Variants {
		if e.Variants[i].IsControl {
			return &e.Variants[i]
		}
	}
	return nil
}

// VariantByID returns the variant with the given ID, or nil if it does not belong
func (e *Experiment) VariantByID(variantID uuid.UUID) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == variantID {
			return &e.Variants[i]
		}
	}
	return nil
}

// IsRunning returns true if the experiment is currently serving traffic
func (e *Experiment) IsRunning() bool {
	return e.Status == StatusRunning
}

// Start transitions the experiment to running and stamps the start date.
// Only draft and paused experiments can be started.
func (e *Experiment) Start() error {
	if e.Status == StatusRunning {
		return shared.NewDomainError("INVALID_STATE", "Experiment is already running")
	}
	if e.Status != StatusDraft && e.Status != StatusPaused {
		return shared.NewDomainError("INVALID_STATE", "Only draft or paused experiments can be started")
	}

	oldStatus := e.Status
	e.Status = StatusRunning
	now := time.Now()
	e.StartDate = &now
	e.UpdatedAt = time.Now()
	e.IncrementVersion()

	e.AddDomainEvent(NewExperimentStartedEvent(e, oldStatus))

	return nil
}

// Pause suspends a running experiment
func (e *Experiment) Pause() error {
	if e.Status != StatusRunning {
		return shared.NewDomainError("INVALID_STATE", "Only running experiments can be paused")
	}

	e.Status = StatusPaused
	e.UpdatedAt = time.Now()
	e.IncrementVersion()

	e.AddDomainEvent(NewExperimentPausedEvent(e))

	return nil
}

// Complete ends the experiment and stamps the end date.
// Running and paused experiments can be completed.
func (e *Experiment) Complete() error {
	if e.Status != StatusRunning && e.Status != StatusPaused {
		return shared.NewDomainError("INVALID_STATE", "Only running or paused experiments can be completed")
	}

	oldStatus := e.Status
	e.Status = StatusCompleted
	now := time.Now()
	e.EndDate = &now
	e.UpdatedAt = now
	e.IncrementVersion()

	e.AddDomainEvent(NewExperimentCompletedEvent(e, oldStatus))

	return nil
}

// Archive retires the experiment. A running experiment must be paused or
// completed first.
func (e *Experiment) Archive() error {
	if e.Status == StatusRunning {
		return shared.NewDomainError("INVALID_STATE", "Cannot archive a running experiment")
	}
	if e.Status == StatusArchived {
		return shared.NewDomainError("INVALID_STATE", "Experiment is already archived")
	}

	oldStatus := e.Status
	e.Status = StatusArchived
	e.UpdatedAt = time.Now()
	e.IncrementVersion()

	e.AddDomainEvent(NewExperimentArchivedEvent(e, oldStatus))

	return nil
}

// DeclareWinner marks the given variant as the experiment winner.
// The variant must belong to this experiment.
func (e *Experiment) DeclareWinner(variantID uuid.UUID) error {
	variant := e.VariantByID(variantID)
	if variant == nil {
		return shared.NewDomainError("VARIANT_NOT_FOUND", "Variant does not belong to this experiment")
	}

	e.HasWinner = true
	e.WinningVariantID = &variantID
	variant.MarkWinner()
	e.UpdatedAt = time.Now()
	e.IncrementVersion()

	e.AddDomainEvent(NewWinnerDeclaredEvent(e, variantID))

	return nil
}

// UpdateDetails merges scalar fields of the experiment. Zero values are
// skipped so partial updates leave existing data untouched.
func (e *Experiment) UpdateDetails(name, description, hypothesis, primaryMetric string,
	secondaryMetrics []string, targetAudience map[string]any, audiencePercentage *float64,
	segmentation map[string]any) error {

	if name != "" {
		if err := validateName(name); err != nil {
			return err
		}
		e.Name = name
	}
	if description != "" {
		e.Description = description
	}
	if hypothesis != "" {
		e.Hypothesis = hypothesis
	}
	if primaryMetric != "" {
		e.PrimaryMetric = primaryMetric
	}
	if secondaryMetrics != nil {
		e.SecondaryMetrics = secondaryMetrics
	}
	if targetAudience != nil {
		e.TargetAudience = targetAudience
	}
	if audiencePercentage != nil {
		if *audiencePercentage < 0 || *audiencePercentage > 100 {
			return shared.NewDomainError("INVALID_INPUT", "Audience percentage must be between 0 and 100")
		}
		e.AudiencePercentage = audiencePercentage
	}
	if segmentation != nil {
		e.Segmentation = segmentation
	}

	e.UpdatedAt = time.Now()
	e.IncrementVersion()

	return nil
}

// ReplaceVariants swaps the full variant list, re-validating the control
// invariant. Used by full updates that redefine the experiment arms.
func (e *Experiment) ReplaceVariants(variants []*Variant) error {
	if err := validateVariantSet(variants); err != nil {
		return err
	}

	e.Variants = make([]Variant, 0, len(variants))
	for _, v := range variants {
		v.BindToExperiment(e.ID)
		e.Variants = append(e.Variants, *v)
	}
	e.UpdatedAt = time.Now()
	e.IncrementVersion()

	return nil
}

// validateVariantSet checks the variant list invariants shared by
// creation and replacement
func validateVariantSet(variants []*Variant) error {
	if len(variants) == 0 {
		return shared.NewDomainError("INVALID_VARIANTS", "Experiment must have at least one variant")
	}
	hasControl := false
	for _, v := range variants {
		if v == nil {
			return shared.NewDomainError("INVALID_VARIANTS", "Variant cannot be nil")
		}
		if v.IsControl {
			hasControl = true
		}
	}
	if !hasControl {
		return shared.NewDomainError("NO_CONTROL_VARIANT", "Experiment must have at least one control variant")
	}
	return nil
}

// validateName validates the experiment name
func validateName(name string) error {
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Experiment name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Experiment name cannot exceed 200 characters")
	}
	return nil
}

package experiment

import (
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
)

// Event type constants
const (
	EventTypeExperimentCreated   = "ExperimentCreated"
	EventTypeExperimentStarted   = "ExperimentStarted"
	EventTypeExperimentPaused    = "ExperimentPaused"
	EventTypeExperimentCompleted = "ExperimentCompleted"
	EventTypeExperimentArchived  = "ExperimentArchived"
	EventTypeWinnerDeclared      = "ExperimentWinnerDeclared"
)

// ExperimentCreatedEvent is published when a new experiment is created
type ExperimentCreatedEvent struct {
	shared.BaseDomainEvent
	ExperimentID uuid.UUID      `json:"experiment_id"`
	Name         string         `json:"name"`
	Type         ExperimentType `json:"experiment_type"`
	VariantCount int            `json:"variant_count"`
}

// NewExperimentCreatedEvent creates a new ExperimentCreatedEvent
func NewExperimentCreatedEvent(exp *Experiment) *ExperimentCreatedEvent {
	return &ExperimentCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeExperimentCreated,
			AggregateTypeExperiment,
			exp.ID,
		),
		ExperimentID: exp.ID,
		Name:         exp.Name,
		Type:         exp.Type,
		VariantCount: len(exp.Variants),
	}
}

// ExperimentStartedEvent is published when an experiment starts serving traffic
type ExperimentStartedEvent struct {
	shared.BaseDomainEvent
	ExperimentID uuid.UUID        `json:"experiment_id"`
	Name         string           `json:"name"`
	OldStatus    ExperimentStatus `json:"old_status"`
}

// NewExperimentStartedEvent creates a new ExperimentStartedEvent
func NewExperimentStartedEvent(exp *Experiment, oldStatus ExperimentStatus) *ExperimentStartedEvent {
	return &ExperimentStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeExperimentStarted,
			AggregateTypeExperiment,
			exp.ID,
		),
		ExperimentID: exp.ID,
		Name:         exp.Name,
		OldStatus:    oldStatus,
	}
}

// ExperimentPausedEvent is published when a running experiment is paused
type ExperimentPausedEvent struct {
	shared.BaseDomainEvent
	ExperimentID uuid.UUID `json:"experiment_id"`
	Name         string    `json:"name"`
}

// NewExperimentPausedEvent creates a new ExperimentPausedEvent
func NewExperimentPausedEvent(exp *Experiment) *ExperimentPausedEvent {
	return &ExperimentPausedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeExperimentPaused,
			AggregateTypeExperiment,
			exp.ID,
		),
		ExperimentID: exp.ID,
		Name:         exp.Name,
	}
}

// ExperimentCompletedEvent is published when an experiment ends
type ExperimentCompletedEvent struct {
	shared.BaseDomainEvent
	ExperimentID uuid.UUID        `json:"experiment_id"`
	Name         string           `json:"name"`
	OldStatus    ExperimentStatus `json:"old_status"`
}

// NewExperimentCompletedEvent creates a new ExperimentCompletedEvent
func NewExperimentCompletedEvent(exp *Experiment, oldStatus ExperimentStatus) *ExperimentCompletedEvent {
	return &ExperimentCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeExperimentCompleted,
			AggregateTypeExperiment,
			exp.ID,
		),
		ExperimentID: exp.ID,
		Name:         exp.Name,
		OldStatus:    oldStatus,
	}
}

// ExperimentArchivedEvent is published when an experiment is retired
type ExperimentArchivedEvent struct {
	shared.BaseDomainEvent
	ExperimentID uuid.UUID        `json:"experiment_id"`
	Name         string           `json:"name"`
	OldStatus    ExperimentStatus `json:"old_status"`
}

// NewExperimentArchivedEvent creates a new ExperimentArchivedEvent
func NewExperimentArchivedEvent(exp *Experiment, oldStatus ExperimentStatus) *ExperimentArchivedEvent {
	return &ExperimentArchivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeExperimentArchived,
			AggregateTypeExperiment,
			exp.ID,
		),
		ExperimentID: exp.ID,
		Name:         exp.Name,
		OldStatus:    oldStatus,
	}
}

// WinnerDeclaredEvent is published when a winning variant is declared
type WinnerDeclaredEvent struct {
	shared.BaseDomainEvent
	ExperimentID uuid.UUID `json:"experiment_id"`
	VariantID    uuid.UUID `json:"variant_id"`
}

// NewWinnerDeclaredEvent creates a new WinnerDeclaredEvent
func NewWinnerDeclaredEvent(exp *Experiment, variantID uuid.UUID) *WinnerDeclaredEvent {
	return &WinnerDeclaredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeWinnerDeclared,
			AggregateTypeExperiment,
			exp.ID,
		),
		ExperimentID: exp.ID,
		VariantID:    variantID,
	}
}

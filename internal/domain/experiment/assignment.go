package experiment

import (
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
)

// Assignment binds a subject (user or anonymous session) to exactly one
// variant of an experiment. The binding is immutable for the lifetime of
// the experiment; only the observation flags ever change, and each flips
// one way from false to true.
type Assignment struct {
	shared.BaseEntity
	ExperimentID   uuid.UUID `json:"experiment_id"`
	VariantID      uuid.UUID `json:"variant_id"`
	UserID         *string   `json:"user_id,omitempty"`
	SessionID      *string   `json:"session_id,omitempty"`
	HasImpression  bool      `json:"has_impression"`
	HasInteraction bool      `json:"has_interaction"`
	HasConversion  bool      `json:"has_conversion"`
}

// NewAssignment creates a new assignment. At least one of userID or
// sessionID must identify the subject.
func NewAssignment(experimentID, variantID uuid.UUID, userID, sessionID *string) (*Assignment, error) {
	if isEmpty(userID) && isEmpty(sessionID) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Either user ID or session ID must be provided")
	}
	return &Assignment{
		BaseEntity:   shared.NewBaseEntity(),
		ExperimentID: experimentID,
		VariantID:    variantID,
		UserID:       userID,
		SessionID:    sessionID,
	}, nil
}

// MarkImpression flips the impression flag on first observation.
// Returns true if the flag changed.
func (a *Assignment) MarkImpression() bool {
	if a.HasImpression {
		return false
	}
	a.HasImpression = true
	a.Touch()
	return true
}

// MarkInteraction flips the interaction flag on first observation.
// Returns true if the flag changed.
func (a *Assignment) MarkInteraction() bool {
	if a.HasInteraction {
		return false
	}
	a.HasInteraction = true
	a.Touch()
	return true
}

// MarkConversion flips the conversion flag on first observation.
// Returns true if the flag changed.
func (a *Assignment) MarkConversion() bool {
	if a.HasConversion {
		return false
	}
	a.HasConversion = true
	a.Touch()
	return true
}

func isEmpty(s *string) bool {
	return s == nil || *s == ""
}

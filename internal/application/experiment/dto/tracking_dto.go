package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/experiment"
)

// SubjectIdentity carries the caller's identity for assignment and
// tracking requests. At least one of the two fields must be set.
type SubjectIdentity struct {
	UserID    *string `json:"user_id"`
	SessionID *string `json:"session_id"`
}

// AssignRequest binds a subject to an experiment
type AssignRequest struct {
	ExperimentID string  `json:"experiment_id" binding:"required,uuid"`
	UserID       *string `json:"user_id"`
	SessionID    *string `json:"session_id"`
}

// TrackInteractionRequest reports a click-level interaction
type TrackInteractionRequest struct {
	Context  string         `json:"context"`
	Metadata map[string]any `json:"metadata"`
}

// TrackConversionRequest reports a conversion, optionally with a revenue
// value and free-form context
type TrackConversionRequest struct {
	Value    *float64       `json:"value"`
	Context  string         `json:"context"`
	Metadata map[string]any `json:"metadata"`
}

// TrackCustomEventRequest reports a named custom event
type TrackCustomEventRequest struct {
	EventType string         `json:"event_type" binding:"required,max=100"`
	Value     *float64       `json:"value"`
	Context   string         `json:"context"`
	Metadata  map[string]any `json:"metadata"`
}

// AssignmentResponse is the API representation of a subject's binding
type AssignmentResponse struct {
	ID             uuid.UUID `json:"id"`
	ExperimentID   uuid.UUID `json:"experiment_id"`
	VariantID      uuid.UUID `json:"variant_id"`
	UserID         *string   `json:"user_id,omitempty"`
	SessionID      *string   `json:"session_id,omitempty"`
	HasImpression  bool      `json:"has_impression"`
	HasInteraction bool      `json:"has_interaction"`
	HasConversion  bool      `json:"has_conversion"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToAssignmentResponse converts a domain assignment to its API representation
func ToAssignmentResponse(a *experiment.Assignment) *AssignmentResponse {
	return &AssignmentResponse{
		ID:             a.ID,
		ExperimentID:   a.ExperimentID,
		VariantID:      a.VariantID,
		UserID:         a.UserID,
		SessionID:      a.SessionID,
		HasImpression:  a.HasImpression,
		HasInteraction: a.HasInteraction,
		HasConversion:  a.HasConversion,
		CreatedAt:      a.CreatedAt,
	}
}

// VariantConfiguration is one entry of the bulk configuration lookup: the
// variant a subject sees for an experiment and the payload to render it
type VariantConfiguration struct {
	VariantID     uuid.UUID      `json:"variant_id"`
	Configuration map[string]any `json:"configuration"`
	AssignmentID  uuid.UUID      `json:"assignment_id"`
}

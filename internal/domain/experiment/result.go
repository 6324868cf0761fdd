package experiment

import (
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
)

// Result is one append-only row in the experiment event log. Rows are
// never updated or deleted while an experiment lives; every aggregate the
// analysis engine reports is derived from them.
type Result struct {
	shared.BaseEntity
	VariantID  uuid.UUID      `json:"variant_id"`
	UserID     *string        `json:"user_id,omitempty"`
	SessionID  *string        `json:"session_id,omitempty"`
	ResultType ResultType     `json:"result_type"`
	Value      *float64       `json:"value,omitempty"`
	Context    *string        `json:"context,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewResult creates a new result row. The timestamp is the server-side
// creation time of the base entity.
func NewResult(variantID uuid.UUID, userID, sessionID *string, resultType ResultType) (*Result, error) {
	if !resultType.IsValid() {
		return nil, shared.NewDomainError("INVALID_RESULT_TYPE", "Invalid result type")
	}
	return &Result{
		BaseEntity: shared.NewBaseEntity(),
		VariantID:  variantID,
		UserID:     userID,
		SessionID:  sessionID,
		ResultType: resultType,
	}, nil
}

// WithValue attaches a numeric value to the result
func (r *Result) WithValue(value float64) *Result {
	r.Value = &value
	return r
}

// WithContext attaches a context string to the result
func (r *Result) WithContext(context string) *Result {
	if context != "" {
		r.Context = &context
	}
	return r
}

// WithMetadata attaches structured metadata to the result
func (r *Result) WithMetadata(metadata map[string]any) *Result {
	if len(metadata) > 0 {
		r.Metadata = metadata
	}
	return r
}

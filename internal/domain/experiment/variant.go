package experiment

import (
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
)

// Variant is a child entity of Experiment describing one arm of the test.
// The counter and rate fields are denormalized caches refreshed by the
// results and significance computations; the results table is the source
// of truth.
type Variant struct {
	shared.BaseEntity
	ExperimentID    uuid.UUID      `json:"experiment_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	IsControl       bool           `json:"is_control"`
	Configuration   map[string]any `json:"configuration,omitempty"`
	Impressions     int64          `json:"impressions"`
	Conversions     int64          `json:"conversions"`
	ConversionRate  float64        `json:"conversion_rate"`
	ImprovementRate float64        `json:"improvement_rate"`
	ConfidenceLevel float64        `json:"confidence_level"`
	IsWinner        bool           `json:"is_winner"`
}

// NewVariant creates a new variant
func NewVariant(name, description string, isControl bool, configuration map[string]any) (*Variant, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_VARIANT", "Variant name cannot be empty")
	}
	if len(name) > 200 {
		return nil, shared.NewDomainError("INVALID_VARIANT", "Variant name cannot exceed 200 characters")
	}
	return &Variant{
		BaseEntity:    shared.NewBaseEntity(),
		Name:          name,
		Description:   description,
		IsControl:     isControl,
		Configuration: configuration,
	}, nil
}

// BindToExperiment attaches the variant to its parent experiment
func (v *Variant) BindToExperiment(experimentID uuid.UUID) {
	v.ExperimentID = experimentID
}

// MarkWinner flags this variant as the declared winner
func (v *Variant) MarkWinner() {
	v.IsWinner = true
	v.Touch()
}

// CacheCounters refreshes the denormalized impression/conversion counters
func (v *Variant) CacheCounters(impressions, conversions int64) {
	v.Impressions = impressions
	v.Conversions = conversions
	if impressions > 0 {
		v.ConversionRate = float64(conversions) / float64(impressions)
	} else {
		v.ConversionRate = 0
	}
	v.Touch()
}

// CacheSignificance refreshes the denormalized significance fields
func (v *Variant) CacheSignificance(confidenceLevel, improvementRate float64) {
	v.ConfidenceLevel = confidenceLevel
	v.ImprovementRate = improvementRate
	v.Touch()
}

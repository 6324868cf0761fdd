package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/experiment"
)

// VariantRequest describes one experiment arm in create/update requests
type VariantRequest struct {
	Name          string         `json:"name" binding:"required,max=200"`
	Description   string         `json:"description"`
	IsControl     bool           `json:"is_control"`
	Configuration map[string]any `json:"configuration"`
}

// ToDomain converts the request to a domain variant
func (r *VariantRequest) ToDomain() (*experiment.Variant, error) {
	return experiment.NewVariant(r.Name, r.Description, r.IsControl, r.Configuration)
}

// CreateExperimentRequest is the payload for creating an experiment
type CreateExperimentRequest struct {
	Name               string           `json:"name" binding:"required,max=200"`
	Description        string           `json:"description"`
	Type               string           `json:"type" binding:"required"`
	Hypothesis         string           `json:"hypothesis"`
	PrimaryMetric      string           `json:"primary_metric"`
	SecondaryMetrics   []string         `json:"secondary_metrics"`
	TargetAudience     map[string]any   `json:"target_audience"`
	AudiencePercentage *float64         `json:"audience_percentage" binding:"omitempty,min=0,max=100"`
	Segmentation       map[string]any   `json:"segmentation"`
	Variants           []VariantRequest `json:"variants" binding:"required,min=1,dive"`
}

// UpdateExperimentRequest is the payload for a partial experiment update.
// A nil variant list leaves the stored variants untouched; a non-nil list
// replaces them entirely.
type UpdateExperimentRequest struct {
	Name               *string           `json:"name" binding:"omitempty,max=200"`
	Description        *string           `json:"description"`
	Hypothesis         *string           `json:"hypothesis"`
	PrimaryMetric      *string           `json:"primary_metric"`
	SecondaryMetrics   *[]string         `json:"secondary_metrics"`
	TargetAudience     *map[string]any   `json:"target_audience"`
	AudiencePercentage *float64          `json:"audience_percentage" binding:"omitempty,min=0,max=100"`
	Segmentation       *map[string]any   `json:"segmentation"`
	Variants           *[]VariantRequest `json:"variants" binding:"omitempty,min=1,dive"`
}

// DeclareWinnerRequest names the winning variant
type DeclareWinnerRequest struct {
	VariantID string `json:"variant_id" binding:"required,uuid"`
}

// VariantResponse is the API representation of a variant
type VariantResponse struct {
	ID              uuid.UUID      `json:"id"`
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
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ExperimentResponse is the API representation of an experiment
type ExperimentResponse struct {
	ID                 uuid.UUID         `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	Type               string            `json:"type"`
	Status             string            `json:"status"`
	Hypothesis         string            `json:"hypothesis,omitempty"`
	PrimaryMetric      string            `json:"primary_metric,omitempty"`
	SecondaryMetrics   []string          `json:"secondary_metrics,omitempty"`
	TargetAudience     map[string]any    `json:"target_audience,omitempty"`
	AudiencePercentage *float64          `json:"audience_percentage,omitempty"`
	Segmentation       map[string]any    `json:"segmentation,omitempty"`
	StartDate          *time.Time        `json:"start_date,omitempty"`
	EndDate            *time.Time        `json:"end_date,omitempty"`
	HasWinner          bool              `json:"has_winner"`
	WinningVariantID   *uuid.UUID        `json:"winning_variant_id,omitempty"`
	Variants           []VariantResponse `json:"variants"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// ToVariantResponse converts a domain variant to its API representation
func ToVariantResponse(v *experiment.Variant) VariantResponse {
	return VariantResponse{
		ID:              v.ID,
		ExperimentID:    v.ExperimentID,
		Name:            v.Name,
		Description:     v.Description,
		IsControl:       v.IsControl,
		Configuration:   v.Configuration,
		Impressions:     v.Impressions,
		Conversions:     v.Conversions,
		ConversionRate:  v.ConversionRate,
		ImprovementRate: v.ImprovementRate,
		ConfidenceLevel: v.ConfidenceLevel,
		IsWinner:        v.IsWinner,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

// ToExperimentResponse converts a domain experiment to its API representation
func ToExperimentResponse(e *experiment.Experiment) *ExperimentResponse {
	variants := make([]VariantResponse, 0, len(e.Variants))
	for i := range e.Variants {
		variants = append(variants, ToVariantResponse(&e.Variants[i]))
	}
	return &ExperimentResponse{
		ID:                 e.ID,
		Name:               e.Name,
		Description:        e.Description,
		Type:               e.Type.String(),
		Status:             e.Status.String(),
		Hypothesis:         e.Hypothesis,
		PrimaryMetric:      e.PrimaryMetric,
		SecondaryMetrics:   e.SecondaryMetrics,
		TargetAudience:     e.TargetAudience,
		AudiencePercentage: e.AudiencePercentage,
		Segmentation:       e.Segmentation,
		StartDate:          e.StartDate,
		EndDate:            e.EndDate,
		HasWinner:          e.HasWinner,
		WinningVariantID:   e.WinningVariantID,
		Variants:           variants,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

// VariantResults is the aggregated event log summary of one variant
type VariantResults struct {
	VariantID       uuid.UUID `json:"variant_id"`
	VariantName     string    `json:"variant_name"`
	IsControl       bool      `json:"is_control"`
	IsWinner        bool      `json:"is_winner"`
	Impressions     int64     `json:"impressions"`
	Clicks          int64     `json:"clicks"`
	Conversions     int64     `json:"conversions"`
	ClickRate       float64   `json:"click_rate"`
	ConversionRate  float64   `json:"conversion_rate"`
	TotalRevenue    string    `json:"total_revenue"`
	AverageRevenue  string    `json:"average_revenue"`
	ImprovementRate float64   `json:"improvement_rate"`
}

// ExperimentResultsResponse is the aggregated event log summary of an experiment
type ExperimentResultsResponse struct {
	ExperimentID   uuid.UUID        `json:"experiment_id"`
	ExperimentName string           `json:"experiment_name"`
	Status         string           `json:"status"`
	Results        []VariantResults `json:"results"`
}

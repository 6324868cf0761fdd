package dto

import (
	"time"

	"github.com/google/uuid"
)

// VariantSignificance is one row of a significance report. The control
// variant appears first with zeroed comparison fields; every other row
// compares that variant against the control.
type VariantSignificance struct {
	VariantID       uuid.UUID `json:"variant_id"`
	VariantName     string    `json:"variant_name"`
	IsControl       bool      `json:"is_control"`
	Impressions     int64     `json:"impressions"`
	Conversions     int64     `json:"conversions"`
	ConversionRate  float64   `json:"conversion_rate"`
	Improvement     float64   `json:"improvement"`
	ZScore          float64   `json:"z_score"`
	PValue          float64   `json:"p_value"`
	ConfidenceLevel float64   `json:"confidence_level"`
	Significant     bool      `json:"significant"`
}

// SignificanceResponse is the statistical report of an experiment
type SignificanceResponse struct {
	ExperimentID uuid.UUID             `json:"experiment_id"`
	Variants     []VariantSignificance `json:"variants"`
}

// SampleSizeRequest parameterizes a sample size estimate
type SampleSizeRequest struct {
	BaselineConversionRate  float64  `json:"baseline_conversion_rate" binding:"required,gt=0,lt=1"`
	MinimumDetectableEffect float64  `json:"minimum_detectable_effect" binding:"required,gt=0"`
	SignificanceLevel       *float64 `json:"significance_level" binding:"omitempty,gt=0,lt=1"`
	Power                   *float64 `json:"power" binding:"omitempty,gt=0,lt=1"`
}

// SampleSizeResponse is the per-variant sample size estimate
type SampleSizeResponse struct {
	RequiredSampleSize      int     `json:"required_sample_size"`
	BaselineConversionRate  float64 `json:"baseline_conversion_rate"`
	MinimumDetectableEffect float64 `json:"minimum_detectable_effect"`
	SignificanceLevel       float64 `json:"significance_level"`
	Power                   float64 `json:"power"`
}

// CompletionEstimateResponse projects when an experiment will reach its
// required sample size. DaysRemaining is nil when the daily traffic is
// zero or negative and the experiment can never complete at current pace.
type CompletionEstimateResponse struct {
	ExperimentID            uuid.UUID  `json:"experiment_id"`
	RequiredSampleSize      int        `json:"required_sample_size"`
	CurrentSampleSize       int64      `json:"current_sample_size"`
	RemainingSampleSize     int64      `json:"remaining_sample_size"`
	DailyTraffic            float64    `json:"daily_traffic"`
	DaysRemaining           *int       `json:"days_remaining"`
	EstimatedCompletionDate *time.Time `json:"estimated_completion_date"`
}

// VariantMetricPoint is one time bucket of a variant's metric series
type VariantMetricPoint struct {
	Period      string `json:"period"`
	Impressions int64  `json:"impressions"`
	Conversions int64  `json:"conversions"`
}

// VariantMetricSeries is the full metric series of one variant
type VariantMetricSeries struct {
	VariantID   uuid.UUID            `json:"variant_id"`
	VariantName string               `json:"variant_name"`
	IsControl   bool                 `json:"is_control"`
	Points      []VariantMetricPoint `json:"points"`
}

// MetricsOverTimeResponse groups impression and conversion counts into
// day, week or month buckets per variant
type MetricsOverTimeResponse struct {
	ExperimentID uuid.UUID             `json:"experiment_id"`
	Interval     string                `json:"interval"`
	Series       []VariantMetricSeries `json:"series"`
}

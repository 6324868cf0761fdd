package experiment

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// ExperimentStatus represents the lifecycle state of an experiment
type ExperimentStatus string

const (
	// StatusDraft means the experiment is being configured and does not serve traffic
	StatusDraft ExperimentStatus = "draft"
	// StatusRunning means the experiment is live and assigning subjects
	StatusRunning ExperimentStatus = "running"
	// StatusPaused means assignment is suspended but the experiment can resume
	StatusPaused ExperimentStatus = "paused"
	// StatusCompleted means the experiment has ended and keeps its data for analysis
	StatusCompleted ExperimentStatus = "completed"
	// StatusArchived means the experiment is retired
	StatusArchived ExperimentStatus = "archived"
)

// AllStatuses returns all valid experiment statuses
func AllStatuses() []ExperimentStatus {
	return []ExperimentStatus{
		StatusDraft,
		StatusRunning,
		StatusPaused,
		StatusCompleted,
		StatusArchived,
	}
}

// IsValid checks if the status is valid
func (s ExperimentStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted, StatusArchived:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status
func (s ExperimentStatus) String() string {
	return string(s)
}

// Scan implements the sql.Scanner interface
func (s *ExperimentStatus) Scan(value any) error {
	if value == nil {
		return nil
	}
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("experiment: cannot scan type %T into ExperimentStatus", value)
	}
	*s = ExperimentStatus(strings.ToLower(str))
	if !s.IsValid() {
		return fmt.Errorf("experiment: invalid experiment status: %s", str)
	}
	return nil
}

// Value implements the driver.Valuer interface
func (s ExperimentStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// ExperimentType classifies what part of the marketplace an experiment targets
type ExperimentType string

const (
	// TypeSearchAlgorithm experiments compare search ranking strategies
	TypeSearchAlgorithm ExperimentType = "search_algorithm"
	// TypeUIComponent experiments compare user interface variations
	TypeUIComponent ExperimentType = "ui_component"
	// TypePersonalization experiments compare personalization strategies
	TypePersonalization ExperimentType = "personalization"
	// TypeRecommendation experiments compare recommendation models
	TypeRecommendation ExperimentType = "recommendation"
	// TypePricing experiments compare pricing presentations
	TypePricing ExperimentType = "pricing"
	// TypeContent experiments compare content variations
	TypeContent ExperimentType = "content"
	// TypeFeatureFlag experiments gate features behind a rollout
	TypeFeatureFlag ExperimentType = "feature_flag"
)

// AllTypes returns all valid experiment types
func AllTypes() []ExperimentType {
	return []ExperimentType{
		TypeSearchAlgorithm,
		TypeUIComponent,
		TypePersonalization,
		TypeRecommendation,
		TypePricing,
		TypeContent,
		TypeFeatureFlag,
	}
}

// IsValid checks if the experiment type is valid
func (t ExperimentType) IsValid() bool {
	switch t {
	case TypeSearchAlgorithm, TypeUIComponent, TypePersonalization,
		TypeRecommendation, TypePricing, TypeContent, TypeFeatureFlag:
		return true
	default:
		return false
	}
}

// String returns the string representation of the experiment type
func (t ExperimentType) String() string {
	return string(t)
}

// Scan implements the sql.Scanner interface
func (t *ExperimentType) Scan(value any) error {
	if value == nil {
		return nil
	}
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("experiment: cannot scan type %T into ExperimentType", value)
	}
	*t = ExperimentType(strings.ToLower(str))
	if !t.IsValid() {
		return fmt.Errorf("experiment: invalid experiment type: %s", str)
	}
	return nil
}

// Value implements the driver.Valuer interface
func (t ExperimentType) Value() (driver.Value, error) {
	return string(t), nil
}

// ResultType classifies a recorded experiment event
type ResultType string

const (
	// ResultImpression records that a subject was exposed to a variant
	ResultImpression ResultType = "impression"
	// ResultClick records a click interaction with a variant
	ResultClick ResultType = "click"
	// ResultConversion records a conversion attributed to a variant
	ResultConversion ResultType = "conversion"
	// ResultRevenue records the monetary value of a conversion
	ResultRevenue ResultType = "revenue"
	// ResultEngagement records an engagement signal
	ResultEngagement ResultType = "engagement"
	// ResultCustom records a caller-defined event
	ResultCustom ResultType = "custom"
)

// AllResultTypes returns all valid result types
func AllResultTypes() []ResultType {
	return []ResultType{
		ResultImpression,
		ResultClick,
		ResultConversion,
		ResultRevenue,
		ResultEngagement,
		ResultCustom,
	}
}

// IsValid checks if the result type is valid
func (t ResultType) IsValid() bool {
	switch t {
	case ResultImpression, ResultClick, ResultConversion,
		ResultRevenue, ResultEngagement, ResultCustom:
		return true
	default:
		return false
	}
}

// String returns the string representation of the result type
func (t ResultType) String() string {
	return string(t)
}

// Scan implements the sql.Scanner interface
func (t *ResultType) Scan(value any) error {
	if value == nil {
		return nil
	}
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("experiment: cannot scan type %T into ResultType", value)
	}
	*t = ResultType(strings.ToLower(str))
	if !t.IsValid() {
		return fmt.Errorf("experiment: invalid result type: %s", str)
	}
	return nil
}

// Value implements the driver.Valuer interface
func (t ResultType) Value() (driver.Value, error) {
	return string(t), nil
}

// MetricInterval is the bucketing granularity for metrics-over-time series
type MetricInterval string

const (
	// IntervalDay buckets metrics by calendar day
	IntervalDay MetricInterval = "day"
	// IntervalWeek buckets metrics by week of year
	IntervalWeek MetricInterval = "week"
	// IntervalMonth buckets metrics by calendar month
	IntervalMonth MetricInterval = "month"
)

// IsValid checks if the interval is valid
func (i MetricInterval) IsValid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth:
		return true
	default:
		return false
	}
}

// String returns the string representation of the interval
func (i MetricInterval) String() string {
	return string(i)
}

// DateFormat returns the postgres TO_CHAR format used to label period buckets.
// Labels are zero padded so lexicographic order equals chronological order.
func (i MetricInterval) DateFormat() string {
	switch i {
	case IntervalWeek:
		return "YYYY-WW"
	case IntervalMonth:
		return "YYYY-MM"
	default:
		return "YYYY-MM-DD"
	}
}

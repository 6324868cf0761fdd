package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// logger for model conversion errors (silent failures are logged for debugging)
var modelLogger = zap.L().Named("experiment.models")

// ExperimentModel is the persistence model for the Experiment aggregate root
type ExperimentModel struct {
	AggregateModel
	Name                 string                      `gorm:"type:varchar(200);not null"`
	Description          string                      `gorm:"type:text"`
	Type                 experiment.ExperimentType   `gorm:"type:varchar(30);not null;index"`
	Status               experiment.ExperimentStatus `gorm:"type:varchar(20);not null;index"`
	Hypothesis           string                      `gorm:"type:text"`
	PrimaryMetric        string                      `gorm:"type:varchar(100)"`
	SecondaryMetricsJSON string                      `gorm:"column:secondary_metrics;type:jsonb;default:'[]'"`
	TargetAudienceJSON   string                      `gorm:"column:target_audience;type:jsonb"`
	AudiencePercentage   *float64                    `gorm:"type:decimal(5,2)"`
	SegmentationJSON     string                      `gorm:"column:segmentation;type:jsonb"`
	StartDate            *time.Time                  `gorm:"index"`
	EndDate              *time.Time
	HasWinner            bool       `gorm:"not null;default:false"`
	WinningVariantID     *uuid.UUID `gorm:"type:uuid"`

	Variants []VariantModel `gorm:"foreignKey:ExperimentID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ExperimentModel) TableName() string {
	return "experiments"
}

// ToDomain converts the persistence model to a domain Experiment
func (m *ExperimentModel) ToDomain() *experiment.Experiment {
	exp := &experiment.Experiment{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: m.BaseModel.ToDomain(),
			Version:    m.Version,
		},
		Name:               m.Name,
		Description:        m.Description,
		Type:               m.Type,
		Status:             m.Status,
		Hypothesis:         m.Hypothesis,
		PrimaryMetric:      m.PrimaryMetric,
		AudiencePercentage: m.AudiencePercentage,
		StartDate:          m.StartDate,
		EndDate:            m.EndDate,
		HasWinner:          m.HasWinner,
		WinningVariantID:   m.WinningVariantID,
	}

	if m.SecondaryMetricsJSON != "" && m.SecondaryMetricsJSON != "[]" {
		var metrics []string
		if err := json.Unmarshal([]byte(m.SecondaryMetricsJSON), &metrics); err != nil {
			modelLogger.Warn("failed to parse secondary_metrics JSON",
				zap.String("experiment_id", m.ID.String()),
				zap.Error(err))
		} else {
			exp.SecondaryMetrics = metrics
		}
	}
	exp.TargetAudience = parseJSONMap(m.TargetAudienceJSON, m.ID, "target_audience")
	exp.Segmentation = parseJSONMap(m.SegmentationJSON, m.ID, "segmentation")

	exp.Variants = make([]experiment.Variant, 0, len(m.Variants))
	for i := range m.Variants {
		exp.Variants = append(exp.Variants, *m.Variants[i].ToDomain())
	}

	return exp
}

// FromDomain populates the persistence model from a domain Experiment.
// Variants are converted separately; the aggregate's variant rows are
// written through their own model.
func (m *ExperimentModel) FromDomain(e *experiment.Experiment) {
	m.FromDomainAggregateRoot(e.BaseAggregateRoot)
	m.Name = e.Name
	m.Description = e.Description
	m.Type = e.Type
	m.Status = e.Status
	m.Hypothesis = e.Hypothesis
	m.PrimaryMetric = e.PrimaryMetric
	m.AudiencePercentage = e.AudiencePercentage
	m.StartDate = e.StartDate
	m.EndDate = e.EndDate
	m.HasWinner = e.HasWinner
	m.WinningVariantID = e.WinningVariantID

	m.SecondaryMetricsJSON = marshalJSONSlice(e.SecondaryMetrics)
	m.TargetAudienceJSON = marshalJSONMap(e.TargetAudience)
	m.SegmentationJSON = marshalJSONMap(e.Segmentation)
}

// VariantModel is the persistence model for experiment variants
type VariantModel struct {
	BaseModel
	ExperimentID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Name              string    `gorm:"type:varchar(200);not null"`
	Description       string    `gorm:"type:text"`
	IsControl         bool      `gorm:"not null;default:false"`
	ConfigurationJSON string    `gorm:"column:configuration;type:jsonb"`
	Impressions       int64     `gorm:"not null;default:0"`
	Conversions       int64     `gorm:"not null;default:0"`
	ConversionRate    float64   `gorm:"type:decimal(10,6);not null;default:0"`
	ImprovementRate   float64   `gorm:"type:decimal(10,6);not null;default:0"`
	ConfidenceLevel   float64   `gorm:"type:decimal(10,6);not null;default:0"`
	IsWinner          bool      `gorm:"not null;default:false"`

	Results []ResultModel `gorm:"foreignKey:VariantID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (VariantModel) TableName() string {
	return "experiment_variants"
}

// ToDomain converts the persistence model to a domain Variant
func (m *VariantModel) ToDomain() *experiment.Variant {
	return &experiment.Variant{
		BaseEntity:      m.BaseModel.ToDomain(),
		ExperimentID:    m.ExperimentID,
		Name:            m.Name,
		Description:     m.Description,
		IsControl:       m.IsControl,
		Configuration:   parseJSONMap(m.ConfigurationJSON, m.ID, "configuration"),
		Impressions:     m.Impressions,
		Conversions:     m.Conversions,
		ConversionRate:  m.ConversionRate,
		ImprovementRate: m.ImprovementRate,
		ConfidenceLevel: m.ConfidenceLevel,
		IsWinner:        m.IsWinner,
	}
}

// FromDomain populates the persistence model from a domain Variant
func (m *VariantModel) FromDomain(v *experiment.Variant) {
	m.FromDomainBaseEntity(v.BaseEntity)
	m.ExperimentID = v.ExperimentID
	m.Name = v.Name
	m.Description = v.Description
	m.IsControl = v.IsControl
	m.ConfigurationJSON = marshalJSONMap(v.Configuration)
	m.Impressions = v.Impressions
	m.Conversions = v.Conversions
	m.ConversionRate = v.ConversionRate
	m.ImprovementRate = v.ImprovementRate
	m.ConfidenceLevel = v.ConfidenceLevel
	m.IsWinner = v.IsWinner
}

// AssignmentModel is the persistence model for subject-variant bindings.
// The unique indexes enforce one binding per subject per experiment; the
// first insert wins and every concurrent loser sees a conflict.
type AssignmentModel struct {
	BaseModel
	ExperimentID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_user,priority:2;uniqueIndex:idx_assignment_session,priority:2"`
	VariantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID         *string   `gorm:"type:varchar(100);uniqueIndex:idx_assignment_user,priority:1"`
	SessionID      *string   `gorm:"type:varchar(100);uniqueIndex:idx_assignment_session,priority:1"`
	HasImpression  bool      `gorm:"not null"`
	HasInteraction bool      `gorm:"not null"`
	HasConversion  bool      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AssignmentModel) TableName() string {
	return "experiment_assignments"
}

// ToDomain converts the persistence model to a domain Assignment
func (m *AssignmentModel) ToDomain() *experiment.Assignment {
	return &experiment.Assignment{
		BaseEntity:     m.BaseModel.ToDomain(),
		ExperimentID:   m.ExperimentID,
		VariantID:      m.VariantID,
		UserID:         m.UserID,
		SessionID:      m.SessionID,
		HasImpression:  m.HasImpression,
		HasInteraction: m.HasInteraction,
		HasConversion:  m.HasConversion,
	}
}

// FromDomain populates the persistence model from a domain Assignment
func (m *AssignmentModel) FromDomain(a *experiment.Assignment) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.ExperimentID = a.ExperimentID
	m.VariantID = a.VariantID
	m.UserID = a.UserID
	m.SessionID = a.SessionID
	m.HasImpression = a.HasImpression
	m.HasInteraction = a.HasInteraction
	m.HasConversion = a.HasConversion
}

// ResultModel is the persistence model for the append-only result log
type ResultModel struct {
	BaseModel
	VariantID    uuid.UUID             `gorm:"type:uuid;not null;index:idx_result_variant_type,priority:1"`
	UserID       *string               `gorm:"type:varchar(100);index"`
	SessionID    *string               `gorm:"type:varchar(100);index"`
	ResultType   experiment.ResultType `gorm:"type:varchar(20);not null;index:idx_result_variant_type,priority:2"`
	Value        *float64              `gorm:"type:decimal(15,2)"`
	Context      *string               `gorm:"type:varchar(255)"`
	MetadataJSON string                `gorm:"column:metadata;type:jsonb"`
}

// TableName returns the table name for GORM
func (ResultModel) TableName() string {
	return "experiment_results"
}

// ToDomain converts the persistence model to a domain Result
func (m *ResultModel) ToDomain() *experiment.Result {
	return &experiment.Result{
		BaseEntity: m.BaseModel.ToDomain(),
		VariantID:  m.VariantID,
		UserID:     m.UserID,
		SessionID:  m.SessionID,
		ResultType: m.ResultType,
		Value:      m.Value,
		Context:    m.Context,
		Metadata:   parseJSONMap(m.MetadataJSON, m.ID, "metadata"),
	}
}

// FromDomain populates the persistence model from a domain Result
func (m *ResultModel) FromDomain(r *experiment.Result) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.VariantID = r.VariantID
	m.UserID = r.UserID
	m.SessionID = r.SessionID
	m.ResultType = r.ResultType
	m.Value = r.Value
	m.Context = r.Context
	m.MetadataJSON = marshalJSONMap(r.Metadata)
}

// parseJSONMap deserializes a jsonb column into a map, logging and
// returning nil on malformed data
func parseJSONMap(raw string, id uuid.UUID, column string) map[string]any {
	if raw == "" || raw == "null" {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		modelLogger.Warn("failed to parse jsonb column",
			zap.String("id", id.String()),
			zap.String("column", column),
			zap.Error(err))
		return nil
	}
	return parsed
}

// marshalJSONMap serializes a map for a jsonb column; empty maps store as
// the JSON null literal so the column always holds valid JSON
func marshalJSONMap(data map[string]any) string {
	if len(data) == 0 {
		return "null"
	}
	if jsonBytes, err := json.Marshal(data); err == nil {
		return string(jsonBytes)
	}
	return "null"
}

// marshalJSONSlice serializes a string slice for a jsonb column
func marshalJSONSlice(data []string) string {
	if len(data) == 0 {
		return "[]"
	}
	if jsonBytes, err := json.Marshal(data); err == nil {
		return string(jsonBytes)
	}
	return "[]"
}

package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormExperimentRepository implements ExperimentRepository using GORM
type GormExperimentRepository struct {
	db *gorm.DB
}

// NewGormExperimentRepository creates a new GORM-based experiment repository
func NewGormExperimentRepository(db *gorm.DB) *GormExperimentRepository {
	return &GormExperimentRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormExperimentRepository) WithTx(tx *gorm.DB) experiment.ExperimentRepository {
	return &GormExperimentRepository{db: tx}
}

// Create persists a new experiment together with its variants
func (r *GormExperimentRepository) Create(ctx context.Context, exp *experiment.Experiment) error {
	var model models.ExperimentModel
	model.FromDomain(exp)

	model.Variants = make([]models.VariantModel, len(exp.Variants))
	for i := range exp.Variants {
		model.Variants[i].FromDomain(&exp.Variants[i])
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&model)

	if result.Error != nil {
		return fmt.Errorf("failed to create experiment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrAlreadyExists
	}
	return nil
}

// Update updates the experiment's scalar fields using optimistic locking.
// The domain has already incremented the version, so the stored row is
// matched against the previous one.
func (r *GormExperimentRepository) Update(ctx context.Context, exp *experiment.Experiment) error {
	var model models.ExperimentModel
	model.FromDomain(exp)

	previousVersion := exp.Version - 1

	result := r.db.WithContext(ctx).
		Model(&models.ExperimentModel{}).
		Where("id = ? AND version = ?", exp.ID, previousVersion).
		Updates(map[string]any{
			"name":                model.Name,
			"description":         model.Description,
			"status":              model.Status,
			"hypothesis":          model.Hypothesis,
			"primary_metric":      model.PrimaryMetric,
			"secondary_metrics":   model.SecondaryMetricsJSON,
			"target_audience":     model.TargetAudienceJSON,
			"audience_percentage": model.AudiencePercentage,
			"segmentation":        model.SegmentationJSON,
			"start_date":          model.StartDate,
			"end_date":            model.EndDate,
			"has_winner":          model.HasWinner,
			"winning_variant_id":  model.WinningVariantID,
			"version":             exp.Version,
			"updated_at":          model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update experiment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&models.ExperimentModel{}).
			Where("id = ?", exp.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check experiment existence: %w", err)
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED",
			"experiment was modified by another process")
	}
	return nil
}

// ReplaceVariants deletes the stored variant set and writes the
// experiment's current variants in its place
func (r *GormExperimentRepository) ReplaceVariants(ctx context.Context, exp *experiment.Experiment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("experiment_id = ?", exp.ID).
			Delete(&models.VariantModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete variants: %w", err)
		}

		if len(exp.Variants) == 0 {
			return nil
		}

		variantModels := make([]models.VariantModel, len(exp.Variants))
		for i := range exp.Variants {
			variantModels[i].FromDomain(&exp.Variants[i])
		}
		if err := tx.Create(&variantModels).Error; err != nil {
			return fmt.Errorf("failed to create variants: %w", err)
		}
		return nil
	})
}

// UpdateVariant updates a single variant row (cached counters, winner flag)
func (r *GormExperimentRepository) UpdateVariant(ctx context.Context, variant *experiment.Variant) error {
	var model models.VariantModel
	model.FromDomain(variant)

	result := r.db.WithContext(ctx).
		Model(&models.VariantModel{}).
		Where("id = ?", variant.ID).
		Updates(map[string]any{
			"impressions":      model.Impressions,
			"conversions":      model.Conversions,
			"conversion_rate":  model.ConversionRate,
			"improvement_rate": model.ImprovementRate,
			"confidence_level": model.ConfidenceLevel,
			"is_winner":        model.IsWinner,
			"updated_at":       model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update variant: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds an experiment with its variants
func (r *GormExperimentRepository) FindByID(ctx context.Context, id uuid.UUID) (*experiment.Experiment, error) {
	var model models.ExperimentModel
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("experiment_variants.created_at ASC")
		}).
		First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find experiment: %w", err)
	}
	return model.ToDomain(), nil
}

// FindAll retrieves experiments with optional filtering, variants included
func (r *GormExperimentRepository) FindAll(ctx context.Context, filter shared.Filter) ([]experiment.Experiment, error) {
	var experimentModels []models.ExperimentModel

	query := r.db.WithContext(ctx).Model(&models.ExperimentModel{}).
		Preload("Variants")
	query = r.applyFilter(query, filter)

	if err := query.Find(&experimentModels).Error; err != nil {
		return nil, err
	}

	experiments := make([]experiment.Experiment, len(experimentModels))
	for i, model := range experimentModels {
		experiments[i] = *model.ToDomain()
	}
	return experiments, nil
}

// FindByStatus finds all experiments with a specific status
func (r *GormExperimentRepository) FindByStatus(ctx context.Context, status experiment.ExperimentStatus, filter shared.Filter) ([]experiment.Experiment, error) {
	var experimentModels []models.ExperimentModel

	query := r.db.WithContext(ctx).Model(&models.ExperimentModel{}).
		Preload("Variants").
		Where("status = ?", status)
	query = r.applyFilter(query, filter)

	if err := query.Find(&experimentModels).Error; err != nil {
		return nil, err
	}

	experiments := make([]experiment.Experiment, len(experimentModels))
	for i, model := range experimentModels {
		experiments[i] = *model.ToDomain()
	}
	return experiments, nil
}

// FindRunningByType finds all running experiments of the given type,
// variants included. This is the assignment hot path.
func (r *GormExperimentRepository) FindRunningByType(ctx context.Context, expType experiment.ExperimentType) ([]experiment.Experiment, error) {
	var experimentModels []models.ExperimentModel

	err := r.db.WithContext(ctx).Model(&models.ExperimentModel{}).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("experiment_variants.created_at ASC")
		}).
		Where("status = ? AND type = ?", experiment.StatusRunning, expType).
		Order("created_at ASC").
		Find(&experimentModels).Error
	if err != nil {
		return nil, err
	}

	experiments := make([]experiment.Experiment, len(experimentModels))
	for i, model := range experimentModels {
		experiments[i] = *model.ToDomain()
	}
	return experiments, nil
}

// Delete deletes the experiment; variants and results cascade through
// their foreign keys
func (r *GormExperimentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.ExperimentModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts experiments matching the filter
func (r *GormExperimentRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.ExperimentModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies filtering, sorting and pagination to the query
func (r *GormExperimentRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	sortField := ValidateSortField(filter.OrderBy, ExperimentSortFields, "created_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)
	query = query.Order(fmt.Sprintf("%s %s", sortField, sortOrder))

	if filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		if offset < 0 {
			offset = 0
		}
		query = query.Offset(offset).Limit(filter.PageSize)
	}
	return query
}

// applyFilterWithoutPagination applies search and field filters only
func (r *GormExperimentRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + strings.TrimSpace(filter.Search) + "%"
		query = query.Where("name ILIKE ? OR description ILIKE ?", pattern, pattern)
	}

	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}
	if expType, ok := filter.Filters["type"]; ok {
		query = query.Where("type = ?", expType)
	}
	return query
}

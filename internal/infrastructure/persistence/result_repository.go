package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormResultRepository implements ResultRepository using GORM.
// The result table is append-only; rows are never updated or deleted
// individually.
type GormResultRepository struct {
	db *gorm.DB
}

// NewGormResultRepository creates a new GORM-based result repository
func NewGormResultRepository(db *gorm.DB) *GormResultRepository {
	return &GormResultRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormResultRepository) WithTx(tx *gorm.DB) experiment.ResultRepository {
	return &GormResultRepository{db: tx}
}

// Create appends a single result row
func (r *GormResultRepository) Create(ctx context.Context, result *experiment.Result) error {
	var model models.ResultModel
	model.FromDomain(result)

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}
	return nil
}

// CreateBatch appends multiple result rows in one insert
func (r *GormResultRepository) CreateBatch(ctx context.Context, results []*experiment.Result) error {
	if len(results) == 0 {
		return nil
	}

	resultModels := make([]models.ResultModel, len(results))
	for i, result := range results {
		resultModels[i].FromDomain(result)
	}

	if err := r.db.WithContext(ctx).Create(&resultModels).Error; err != nil {
		return fmt.Errorf("failed to create results: %w", err)
	}
	return nil
}

// CountByVariantAndType counts rows of one type for a variant
func (r *GormResultRepository) CountByVariantAndType(ctx context.Context, variantID uuid.UUID, resultType experiment.ResultType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ResultModel{}).
		Where("variant_id = ? AND result_type = ?", variantID, resultType).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SumValueByVariantAndType sums the value column of one type for a
// variant. The sum is scanned as a decimal to avoid float drift on
// revenue totals.
func (r *GormResultRepository) SumValueByVariantAndType(ctx context.Context, variantID uuid.UUID, resultType experiment.ResultType) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).Model(&models.ResultModel{}).
		Select("COALESCE(SUM(value), 0)").
		Where("variant_id = ? AND result_type = ?", variantID, resultType).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// CountByPeriod groups rows of one type for a variant into period
// buckets using the interval's date format, ordered by period
func (r *GormResultRepository) CountByPeriod(ctx context.Context, variantID uuid.UUID, resultType experiment.ResultType, interval experiment.MetricInterval) ([]experiment.PeriodCount, error) {
	var counts []experiment.PeriodCount
	err := r.db.WithContext(ctx).Model(&models.ResultModel{}).
		Select("TO_CHAR(created_at, ?) AS period, COUNT(*) AS count", interval.DateFormat()).
		Where("variant_id = ? AND result_type = ?", variantID, resultType).
		Group("period").
		Order("period ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

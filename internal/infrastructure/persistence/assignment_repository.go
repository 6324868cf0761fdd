package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAssignmentRepository implements AssignmentRepository using GORM
type GormAssignmentRepository struct {
	db *gorm.DB
}

// NewGormAssignmentRepository creates a new GORM-based assignment repository
func NewGormAssignmentRepository(db *gorm.DB) *GormAssignmentRepository {
	return &GormAssignmentRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormAssignmentRepository) WithTx(tx *gorm.DB) experiment.AssignmentRepository {
	return &GormAssignmentRepository{db: tx}
}

// Create inserts a new assignment. The unique indexes over
// (user_id, experiment_id) and (session_id, experiment_id) make the
// insert conflict-safe: the loser of a concurrent first assignment
// gets shared.ErrAlreadyExists and re-reads the winning row.
func (r *GormAssignmentRepository) Create(ctx context.Context, assignment *experiment.Assignment) error {
	var model models.AssignmentModel
	model.FromDomain(assignment)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)

	if result.Error != nil {
		return fmt.Errorf("failed to create assignment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrAlreadyExists
	}
	return nil
}

// Save updates the observation flags of an existing assignment
func (r *GormAssignmentRepository) Save(ctx context.Context, assignment *experiment.Assignment) error {
	var model models.AssignmentModel
	model.FromDomain(assignment)

	result := r.db.WithContext(ctx).
		Model(&models.AssignmentModel{}).
		Where("id = ?", assignment.ID).
		Updates(map[string]any{
			"has_impression":  model.HasImpression,
			"has_interaction": model.HasInteraction,
			"has_conversion":  model.HasConversion,
			"updated_at":      model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to save assignment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds an assignment by its ID
func (r *GormAssignmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*experiment.Assignment, error) {
	var model models.AssignmentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return model.ToDomain(), nil
}

// FindBySubject finds the assignment binding a subject to an experiment.
// User identity takes precedence over session identity. Returns nil, nil
// when no binding exists.
func (r *GormAssignmentRepository) FindBySubject(ctx context.Context, experimentID uuid.UUID, userID, sessionID *string) (*experiment.Assignment, error) {
	query := r.db.WithContext(ctx).Where("experiment_id = ?", experimentID)
	switch {
	case userID != nil && *userID != "":
		query = query.Where("user_id = ?", *userID)
	case sessionID != nil && *sessionID != "":
		query = query.Where("session_id = ?", *sessionID)
	default:
		return nil, nil
	}

	var model models.AssignmentModel
	err := query.First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return model.ToDomain(), nil
}

// FindAllBySubject lists every assignment for a subject across experiments
func (r *GormAssignmentRepository) FindAllBySubject(ctx context.Context, userID, sessionID *string) ([]experiment.Assignment, error) {
	query := r.db.WithContext(ctx).Model(&models.AssignmentModel{})
	switch {
	case userID != nil && *userID != "":
		query = query.Where("user_id = ?", *userID)
	case sessionID != nil && *sessionID != "":
		query = query.Where("session_id = ?", *sessionID)
	default:
		return []experiment.Assignment{}, nil
	}

	var assignmentModels []models.AssignmentModel
	if err := query.Order("created_at DESC").Find(&assignmentModels).Error; err != nil {
		return nil, err
	}

	assignments := make([]experiment.Assignment, len(assignmentModels))
	for i, model := range assignmentModels {
		assignments[i] = *model.ToDomain()
	}
	return assignments, nil
}

// DeleteByExperiment removes all assignments of an experiment
func (r *GormAssignmentRepository) DeleteByExperiment(ctx context.Context, experimentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Delete(&models.AssignmentModel{}).Error
}

// CountByExperiment counts assignments of an experiment
func (r *GormAssignmentRepository) CountByExperiment(ctx context.Context, experimentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AssignmentModel{}).
		Where("experiment_id = ?", experimentID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

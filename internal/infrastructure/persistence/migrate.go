package persistence

import (
	"fmt"

	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
)

// Migrate creates or updates the experiment tables. Order matters: the
// result and assignment tables carry foreign keys into variants and
// experiments.
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(
		&models.ExperimentModel{},
		&models.VariantModel{},
		&models.AssignmentModel{},
		&models.ResultModel{},
	); err != nil {
		return fmt.Errorf("failed to migrate experiment tables: %w", err)
	}
	return nil
}

package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockExperimentRepository creates a GormExperimentRepository with a mocked SQL connection
func newMockExperimentRepository(t *testing.T) (*GormExperimentRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormExperimentRepository(gormDB), mock, mockDB
}

// startedExperiment builds a running pricing experiment with one control variant
func startedExperiment(t *testing.T) *experiment.Experiment {
	t.Helper()
	control, err := experiment.NewVariant("Control", "", true, nil)
	require.NoError(t, err)
	exp, err := experiment.NewExperiment("Checkout test", "", experiment.TypePricing, []*experiment.Variant{control})
	require.NoError(t, err)
	require.NoError(t, exp.Start())
	return exp
}

func TestNewGormExperimentRepository(t *testing.T) {
	t.Run("creates repository with valid DB", func(t *testing.T) {
		repo, _, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		assert.NotNil(t, repo)
		assert.NotNil(t, repo.db)
	})
}

func TestGormExperimentRepository_FindByID(t *testing.T) {
	t.Run("finds experiment with variants", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		experimentID := uuid.New()
		variantID := uuid.New()

		experimentRows := sqlmock.NewRows([]string{
			"id", "version", "name", "type", "status",
		}).AddRow(experimentID, 1, "Homepage banner test", "ui_component", "running")

		variantRows := sqlmock.NewRows([]string{
			"id", "experiment_id", "name", "is_control",
		}).AddRow(variantID, experimentID, "Control", true)

		mock.ExpectQuery(`SELECT \* FROM "experiments" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(experimentID, 1).
			WillReturnRows(experimentRows)
		mock.ExpectQuery(`SELECT \* FROM "experiment_variants" WHERE "experiment_variants"\."experiment_id" = \$1`).
			WithArgs(experimentID).
			WillReturnRows(variantRows)

		exp, err := repo.FindByID(context.Background(), experimentID)

		assert.NoError(t, err)
		assert.NotNil(t, exp)
		assert.Equal(t, experimentID, exp.ID)
		assert.Equal(t, experiment.StatusRunning, exp.Status)
		require.Len(t, exp.Variants, 1)
		assert.True(t, exp.Variants[0].IsControl)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing experiment", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		experimentID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "experiments" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(experimentID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		exp, err := repo.FindByID(context.Background(), experimentID)

		assert.Error(t, err)
		assert.Nil(t, exp)
		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormExperimentRepository_Update(t *testing.T) {
	t.Run("updates experiment matching the previous version", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		exp := startedExperiment(t)

		mock.ExpectExec(`UPDATE "experiments" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Update(context.Background(), exp)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when the row is gone", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		exp := startedExperiment(t)

		mock.ExpectExec(`UPDATE "experiments" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "experiments" WHERE id = \$1`).
			WithArgs(exp.ID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		err := repo.Update(context.Background(), exp)

		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns lock error when another process won", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		exp := startedExperiment(t)

		mock.ExpectExec(`UPDATE "experiments" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "experiments" WHERE id = \$1`).
			WithArgs(exp.ID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := repo.Update(context.Background(), exp)

		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "OPTIMISTIC_LOCK_FAILED", domainErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormExperimentRepository_UpdateVariant(t *testing.T) {
	t.Run("writes cached counters", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		variant, err := experiment.NewVariant("Control", "", true, nil)
		require.NoError(t, err)
		variant.CacheCounters(100, 10)

		mock.ExpectExec(`UPDATE "experiment_variants" SET .* WHERE id = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.UpdateVariant(context.Background(), variant)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing variant", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		variant, err := experiment.NewVariant("Control", "", true, nil)
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE "experiment_variants" SET .* WHERE id = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = repo.UpdateVariant(context.Background(), variant)

		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormExperimentRepository_Delete(t *testing.T) {
	t.Run("deletes existing experiment", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		experimentID := uuid.New()

		mock.ExpectExec(`DELETE FROM "experiments" WHERE id = \$1`).
			WithArgs(experimentID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Delete(context.Background(), experimentID)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing experiment", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		experimentID := uuid.New()

		mock.ExpectExec(`DELETE FROM "experiments" WHERE id = \$1`).
			WithArgs(experimentID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.Background(), experimentID)

		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormExperimentRepository_Count(t *testing.T) {
	t.Run("counts with status filter", func(t *testing.T) {
		repo, mock, mockDB := newMockExperimentRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "experiments" WHERE status = \$1`).
			WithArgs("running").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		filter := shared.DefaultFilter()
		filter.Filters = map[string]any{"status": "running"}
		count, err := repo.Count(context.Background(), filter)

		assert.NoError(t, err)
		assert.Equal(t, int64(3), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

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

// newMockAssignmentRepository creates a GormAssignmentRepository with a mocked SQL connection
func newMockAssignmentRepository(t *testing.T) (*GormAssignmentRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormAssignmentRepository(gormDB), mock, mockDB
}

func testAssignment(t *testing.T, userID, sessionID *string) *experiment.Assignment {
	t.Helper()
	assignment, err := experiment.NewAssignment(uuid.New(), uuid.New(), userID, sessionID)
	require.NoError(t, err)
	return assignment
}

func TestGormAssignmentRepository_Create(t *testing.T) {
	userID := "user-1"

	t.Run("inserts new assignment", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		assignment := testAssignment(t, &userID, nil)

		mock.ExpectExec(`INSERT INTO "experiment_assignments" .* ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), assignment)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports conflict when the subject is already bound", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		assignment := testAssignment(t, &userID, nil)

		mock.ExpectExec(`INSERT INTO "experiment_assignments" .* ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Create(context.Background(), assignment)

		assert.Equal(t, shared.ErrAlreadyExists, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormAssignmentRepository_Save(t *testing.T) {
	userID := "user-1"

	t.Run("updates observation flags", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		assignment := testAssignment(t, &userID, nil)
		assignment.MarkImpression()

		mock.ExpectExec(`UPDATE "experiment_assignments" SET .* WHERE id = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Save(context.Background(), assignment)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing assignment", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		assignment := testAssignment(t, &userID, nil)

		mock.ExpectExec(`UPDATE "experiment_assignments" SET .* WHERE id = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Save(context.Background(), assignment)

		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormAssignmentRepository_FindBySubject(t *testing.T) {
	userID := "user-1"
	sessionID := "session-1"

	t.Run("prefers user identity over session identity", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		experimentID := uuid.New()
		assignmentID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "experiment_id", "variant_id", "user_id"}).
			AddRow(assignmentID, experimentID, uuid.New(), userID)

		mock.ExpectQuery(`SELECT \* FROM "experiment_assignments" WHERE experiment_id = \$1 AND user_id = \$2 ORDER BY .* LIMIT .*`).
			WithArgs(experimentID, userID, 1).
			WillReturnRows(rows)

		assignment, err := repo.FindBySubject(context.Background(), experimentID, &userID, &sessionID)

		assert.NoError(t, err)
		require.NotNil(t, assignment)
		assert.Equal(t, assignmentID, assignment.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to session identity", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		experimentID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "experiment_id", "variant_id", "session_id"}).
			AddRow(uuid.New(), experimentID, uuid.New(), sessionID)

		mock.ExpectQuery(`SELECT \* FROM "experiment_assignments" WHERE experiment_id = \$1 AND session_id = \$2 ORDER BY .* LIMIT .*`).
			WithArgs(experimentID, sessionID, 1).
			WillReturnRows(rows)

		assignment, err := repo.FindBySubject(context.Background(), experimentID, nil, &sessionID)

		assert.NoError(t, err)
		assert.NotNil(t, assignment)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil without error when no binding exists", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		experimentID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "experiment_assignments" WHERE experiment_id = \$1 AND user_id = \$2 ORDER BY .* LIMIT .*`).
			WithArgs(experimentID, userID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		assignment, err := repo.FindBySubject(context.Background(), experimentID, &userID, nil)

		assert.NoError(t, err)
		assert.Nil(t, assignment)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when no identity is given", func(t *testing.T) {
		repo, _, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		assignment, err := repo.FindBySubject(context.Background(), uuid.New(), nil, nil)

		assert.NoError(t, err)
		assert.Nil(t, assignment)
	})
}

func TestGormAssignmentRepository_FindAllBySubject(t *testing.T) {
	userID := "user-1"

	t.Run("lists assignments across experiments", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		rows := sqlmock.NewRows([]string{"id", "experiment_id", "variant_id", "user_id"}).
			AddRow(uuid.New(), uuid.New(), uuid.New(), userID).
			AddRow(uuid.New(), uuid.New(), uuid.New(), userID)

		mock.ExpectQuery(`SELECT \* FROM "experiment_assignments" WHERE user_id = \$1 ORDER BY created_at DESC`).
			WithArgs(userID).
			WillReturnRows(rows)

		assignments, err := repo.FindAllBySubject(context.Background(), &userID, nil)

		assert.NoError(t, err)
		assert.Len(t, assignments, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns empty slice when no identity is given", func(t *testing.T) {
		repo, _, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		assignments, err := repo.FindAllBySubject(context.Background(), nil, nil)

		assert.NoError(t, err)
		assert.Empty(t, assignments)
	})
}

func TestGormAssignmentRepository_DeleteByExperiment(t *testing.T) {
	t.Run("removes all assignments of an experiment", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		experimentID := uuid.New()

		mock.ExpectExec(`DELETE FROM "experiment_assignments" WHERE experiment_id = \$1`).
			WithArgs(experimentID).
			WillReturnResult(sqlmock.NewResult(0, 5))

		err := repo.DeleteByExperiment(context.Background(), experimentID)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormAssignmentRepository_CountByExperiment(t *testing.T) {
	t.Run("counts assignments", func(t *testing.T) {
		repo, mock, mockDB := newMockAssignmentRepository(t)
		defer mockDB.Close()

		experimentID := uuid.New()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "experiment_assignments" WHERE experiment_id = \$1`).
			WithArgs(experimentID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

		count, err := repo.CountByExperiment(context.Background(), experimentID)

		assert.NoError(t, err)
		assert.Equal(t, int64(42), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

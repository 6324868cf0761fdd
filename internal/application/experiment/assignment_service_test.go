package experiment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func newAssignmentService() (*AssignmentService, *MockExperimentRepository, *MockAssignmentRepository, *MockResultRepository, *MockRunningExperimentCache) {
	expRepo := new(MockExperimentRepository)
	assignmentRepo := new(MockAssignmentRepository)
	resultRepo := new(MockResultRepository)
	cache := new(MockRunningExperimentCache)
	tracking := NewTrackingService(assignmentRepo, resultRepo, zap.NewNop())
	svc := NewAssignmentService(expRepo, assignmentRepo, cache, tracking, 0, zap.NewNop())
	return svc, expRepo, assignmentRepo, resultRepo, cache
}

func runningExperiment(t *testing.T) *experiment.Experiment {
	t.Helper()
	exp := storedExperiment(t)
	require.NoError(t, exp.Start())
	exp.ClearDomainEvents()
	return exp
}

func TestAssignmentServiceGetOrCreateAssignment(t *testing.T) {
	ctx := context.Background()
	userID := strPtr("user-1")

	t.Run("returns existing assignment unchanged", func(t *testing.T) {
		svc, expRepo, assignmentRepo, _, _ := newAssignmentService()
		exp := runningExperiment(t)
		existing, err := experiment.NewAssignment(exp.ID, exp.Variants[0].ID, userID, nil)
		require.NoError(t, err)

		expRepo.On("FindByID", ctx, exp.ID).Return(exp, nil)
		assignmentRepo.On("FindBySubject", ctx, exp.ID, userID, (*string)(nil)).Return(existing, nil)

		resp, err := svc.GetOrCreateAssignment(ctx, exp.ID, userID, nil)

		require.NoError(t, err)
		assert.Equal(t, existing.ID, resp.ID)
		assert.Equal(t, existing.VariantID, resp.VariantID)
		assignmentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("creates assignment on first contact", func(t *testing.T) {
		svc, expRepo, assignmentRepo, _, _ := newAssignmentService()
		exp := runningExperiment(t)

		expRepo.On("FindByID", ctx, exp.ID).Return(exp, nil)
		assignmentRepo.On("FindBySubject", ctx, exp.ID, userID, (*string)(nil)).Return(nil, nil)
		assignmentRepo.On("Create", ctx, mock.AnythingOfType("*experiment.Assignment")).Return(nil)

		resp, err := svc.GetOrCreateAssignment(ctx, exp.ID, userID, nil)

		require.NoError(t, err)
		assert.Equal(t, exp.ID, resp.ExperimentID)
		assert.NotNil(t, exp.VariantByID(resp.VariantID))
		assignmentRepo.AssertExpectations(t)
	})

	t.Run("rejects non-running experiment", func(t *testing.T) {
		svc, expRepo, _, _, _ := newAssignmentService()
		exp := storedExperiment(t)

		expRepo.On("FindByID", ctx, exp.ID).Return(exp, nil)

		_, err := svc.GetOrCreateAssignment(ctx, exp.ID, userID, nil)

		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "EXPERIMENT_NOT_RUNNING", domainErr.Code)
	})

	t.Run("subjects outside the audience get the control variant", func(t *testing.T) {
		svc, expRepo, assignmentRepo, _, _ := newAssignmentService()
		exp := runningExperiment(t)
		pct := 20.0
		exp.AudiencePercentage = &pct
		svc.draw = func() float64 { return 0.9 } // 90 > 20

		expRepo.On("FindByID", ctx, exp.ID).Return(exp, nil)
		assignmentRepo.On("FindBySubject", ctx, exp.ID, userID, (*string)(nil)).Return(nil, nil)
		assignmentRepo.On("Create", ctx, mock.Anything).Return(nil)

		resp, err := svc.GetOrCreateAssignment(ctx, exp.ID, userID, nil)

		require.NoError(t, err)
		assert.Equal(t, exp.ControlVariant().ID, resp.VariantID)
	})

	t.Run("subjects inside the audience draw a uniform variant", func(t *testing.T) {
		svc, expRepo, assignmentRepo, _, _ := newAssignmentService()
		exp := runningExperiment(t)
		pct := 80.0
		exp.AudiencePercentage = &pct
		svc.draw = func() float64 { return 0.5 } // 50 <= 80, then index 1 of 2

		expRepo.On("FindByID", ctx, exp.ID).Return(exp, nil)
		assignmentRepo.On("FindBySubject", ctx, exp.ID, userID, (*string)(nil)).Return(nil, nil)
		assignmentRepo.On("Create", ctx, mock.Anything).Return(nil)

		resp, err := svc.GetOrCreateAssignment(ctx, exp.ID, userID, nil)

		require.NoError(t, err)
		assert.Equal(t, exp.Variants[1].ID, resp.VariantID)
	})

	t.Run("lost first-assignment race re-reads the winning row", func(t *testing.T) {
		svc, expRepo, assignmentRepo, _, _ := newAssignmentService()
		exp := runningExperiment(t)
		winner, err := experiment.NewAssignment(exp.ID, exp.Variants[1].ID, userID, nil)
		require.NoError(t, err)

		expRepo.On("FindByID", ctx, exp.ID).Return(exp, nil)
		assignmentRepo.On("FindBySubject", ctx, exp.ID, userID, (*string)(nil)).Return(nil, nil).Once()
		assignmentRepo.On("Create", ctx, mock.Anything).Return(shared.ErrAlreadyExists)
		assignmentRepo.On("FindBySubject", ctx, exp.ID, userID, (*string)(nil)).Return(winner, nil).Once()

		resp, err := svc.GetOrCreateAssignment(ctx, exp.ID, userID, nil)

		require.NoError(t, err)
		assert.Equal(t, winner.ID, resp.ID)
		assert.Equal(t, winner.VariantID, resp.VariantID)
	})
}

func TestAssignmentServiceGetActiveExperiments(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid type yields empty slice without storage access", func(t *testing.T) {
		svc, expRepo, _, _, _ := newAssignmentService()

		experiments, err := svc.GetActiveExperiments(ctx, "mystery")

		require.NoError(t, err)
		assert.Empty(t, experiments)
		expRepo.AssertNotCalled(t, "FindRunningByType", mock.Anything, mock.Anything)
	})

	t.Run("cache hit skips the repository", func(t *testing.T) {
		svc, expRepo, _, _, cache := newAssignmentService()
		exp := runningExperiment(t)

		cache.On("GetRunningByType", ctx, experiment.TypeUIComponent).Return([]experiment.Experiment{*exp}, true)

		experiments, err := svc.GetActiveExperiments(ctx, "ui_component")

		require.NoError(t, err)
		assert.Len(t, experiments, 1)
		expRepo.AssertNotCalled(t, "FindRunningByType", mock.Anything, mock.Anything)
	})

	t.Run("cache miss loads and populates", func(t *testing.T) {
		svc, expRepo, _, _, cache := newAssignmentService()
		exp := runningExperiment(t)

		cache.On("GetRunningByType", ctx, experiment.TypeUIComponent).Return(nil, false)
		expRepo.On("FindRunningByType", ctx, experiment.TypeUIComponent).Return([]experiment.Experiment{*exp}, nil)
		cache.On("SetRunningByType", ctx, experiment.TypeUIComponent, mock.Anything, defaultRunningCacheTTL).Return()

		experiments, err := svc.GetActiveExperiments(ctx, "ui_component")

		require.NoError(t, err)
		assert.Len(t, experiments, 1)
		cache.AssertExpectations(t)
	})
}

func TestAssignmentServiceGetVariantConfiguration(t *testing.T) {
	ctx := context.Background()
	userID := strPtr("user-1")

	t.Run("resolves configurations and tracks impressions", func(t *testing.T) {
		svc, expRepo, assignmentRepo, resultRepo, cache := newAssignmentService()
		exp := runningExperiment(t)
		assignment, err := experiment.NewAssignment(exp.ID, exp.Variants[1].ID, userID, nil)
		require.NoError(t, err)

		cache.On("GetRunningByType", ctx, experiment.TypeUIComponent).Return([]experiment.Experiment{*exp}, true)
		expRepo.On("FindByID", ctx, exp.ID).Return(exp, nil)
		assignmentRepo.On("FindBySubject", ctx, exp.ID, userID, (*string)(nil)).Return(assignment, nil)
		assignmentRepo.On("FindByID", ctx, assignment.ID).Return(assignment, nil)
		assignmentRepo.On("Save", ctx, assignment).Return(nil)
		resultRepo.On("Create", ctx, mock.AnythingOfType("*experiment.Result")).Return(nil)

		configurations := svc.GetVariantConfiguration(ctx, "ui_component", userID, nil)

		require.NotNil(t, configurations)
		entry, ok := configurations[exp.ID.String()]
		require.True(t, ok)
		assert.Equal(t, exp.Variants[1].ID, entry.VariantID)
		assert.Equal(t, assignment.ID, entry.AssignmentID)
		resultRepo.AssertExpectations(t)
	})

	t.Run("no running experiments degrades to nil", func(t *testing.T) {
		svc, _, _, _, cache := newAssignmentService()

		cache.On("GetRunningByType", ctx, experiment.TypeUIComponent).Return([]experiment.Experiment{}, true)

		assert.Nil(t, svc.GetVariantConfiguration(ctx, "ui_component", userID, nil))
	})

	t.Run("missing identity degrades to nil", func(t *testing.T) {
		svc, _, _, _, _ := newAssignmentService()

		assert.Nil(t, svc.GetVariantConfiguration(ctx, "ui_component", nil, nil))
	})
}

func TestAssignmentServiceGetSubjectAssignments(t *testing.T) {
	ctx := context.Background()
	userID := strPtr("user-1")

	t.Run("lists assignments across experiments", func(t *testing.T) {
		svc, _, assignmentRepo, _, _ := newAssignmentService()
		a1, err := experiment.NewAssignment(uuid.New(), uuid.New(), userID, nil)
		require.NoError(t, err)
		a2, err := experiment.NewAssignment(uuid.New(), uuid.New(), userID, nil)
		require.NoError(t, err)

		assignmentRepo.On("FindAllBySubject", ctx, userID, (*string)(nil)).Return([]experiment.Assignment{*a1, *a2}, nil)

		responses, err := svc.GetSubjectAssignments(ctx, userID, nil)

		require.NoError(t, err)
		assert.Len(t, responses, 2)
	})

	t.Run("requires an identity", func(t *testing.T) {
		svc, _, _, _, _ := newAssignmentService()

		_, err := svc.GetSubjectAssignments(ctx, nil, nil)

		assert.Error(t, err)
	})
}

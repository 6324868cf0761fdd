package experiment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/application/experiment/dto"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTrackingService() (*TrackingService, *MockAssignmentRepository, *MockResultRepository) {
	assignmentRepo := new(MockAssignmentRepository)
	resultRepo := new(MockResultRepository)
	svc := NewTrackingService(assignmentRepo, resultRepo, zap.NewNop())
	return svc, assignmentRepo, resultRepo
}

func testAssignment(t *testing.T) *experiment.Assignment {
	t.Helper()
	a, err := experiment.NewAssignment(uuid.New(), uuid.New(), strPtr("user-1"), nil)
	require.NoError(t, err)
	return a
}

func TestTrackingServiceTrackImpression(t *testing.T) {
	ctx := context.Background()

	t.Run("first impression flips the flag and appends a row", func(t *testing.T) {
		svc, assignmentRepo, resultRepo := newTrackingService()
		assignment := testAssignment(t)

		assignmentRepo.On("FindByID", ctx, assignment.ID).Return(assignment, nil)
		assignmentRepo.On("Save", ctx, assignment).Return(nil)
		resultRepo.On("Create", ctx, mock.MatchedBy(func(r *experiment.Result) bool {
			return r.ResultType == experiment.ResultImpression && r.VariantID == assignment.VariantID
		})).Return(nil)

		err := svc.TrackImpression(ctx, assignment.ID)

		require.NoError(t, err)
		assert.True(t, assignment.HasImpression)
		assignmentRepo.AssertExpectations(t)
		resultRepo.AssertExpectations(t)
	})

	t.Run("repeat impression appends a row without saving the flag again", func(t *testing.T) {
		svc, assignmentRepo, resultRepo := newTrackingService()
		assignment := testAssignment(t)
		assignment.MarkImpression()

		assignmentRepo.On("FindByID", ctx, assignment.ID).Return(assignment, nil)
		resultRepo.On("Create", ctx, mock.Anything).Return(nil)

		err := svc.TrackImpression(ctx, assignment.ID)

		require.NoError(t, err)
		assignmentRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		resultRepo.AssertNumberOfCalls(t, "Create", 1)
	})

	t.Run("unknown assignment surfaces", func(t *testing.T) {
		svc, assignmentRepo, _ := newTrackingService()
		id := uuid.New()

		assignmentRepo.On("FindByID", ctx, id).Return(nil, shared.ErrNotFound)

		err := svc.TrackImpression(ctx, id)

		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "ASSIGNMENT_NOT_FOUND", domainErr.Code)
	})
}

func TestTrackingServiceTrackInteraction(t *testing.T) {
	ctx := context.Background()

	t.Run("records a click row with context", func(t *testing.T) {
		svc, assignmentRepo, resultRepo := newTrackingService()
		assignment := testAssignment(t)

		assignmentRepo.On("FindByID", ctx, assignment.ID).Return(assignment, nil)
		assignmentRepo.On("Save", ctx, assignment).Return(nil)
		resultRepo.On("Create", ctx, mock.MatchedBy(func(r *experiment.Result) bool {
			return r.ResultType == experiment.ResultClick && r.Context != nil && *r.Context == "search_results"
		})).Return(nil)

		err := svc.TrackInteraction(ctx, assignment.ID, dto.TrackInteractionRequest{Context: "search_results"})

		require.NoError(t, err)
		assert.True(t, assignment.HasInteraction)
	})
}

func TestTrackingServiceTrackConversion(t *testing.T) {
	ctx := context.Background()

	t.Run("without value appends only the conversion row", func(t *testing.T) {
		svc, assignmentRepo, resultRepo := newTrackingService()
		assignment := testAssignment(t)

		assignmentRepo.On("FindByID", ctx, assignment.ID).Return(assignment, nil)
		assignmentRepo.On("Save", ctx, assignment).Return(nil)
		resultRepo.On("CreateBatch", ctx, mock.MatchedBy(func(rows []*experiment.Result) bool {
			return len(rows) == 1 && rows[0].ResultType == experiment.ResultConversion
		})).Return(nil)

		err := svc.TrackConversion(ctx, assignment.ID, dto.TrackConversionRequest{})

		require.NoError(t, err)
		assert.True(t, assignment.HasConversion)
	})

	t.Run("with value appends conversion and revenue rows", func(t *testing.T) {
		svc, assignmentRepo, resultRepo := newTrackingService()
		assignment := testAssignment(t)
		value := 49.99

		assignmentRepo.On("FindByID", ctx, assignment.ID).Return(assignment, nil)
		assignmentRepo.On("Save", ctx, assignment).Return(nil)
		resultRepo.On("CreateBatch", ctx, mock.MatchedBy(func(rows []*experiment.Result) bool {
			if len(rows) != 2 {
				return false
			}
			revenue := rows[1]
			return rows[0].ResultType == experiment.ResultConversion &&
				revenue.ResultType == experiment.ResultRevenue &&
				revenue.Value != nil && *revenue.Value == value
		})).Return(nil)

		err := svc.TrackConversion(ctx, assignment.ID, dto.TrackConversionRequest{Value: &value, Context: "checkout"})

		require.NoError(t, err)
		resultRepo.AssertExpectations(t)
	})

	t.Run("repeat conversion keeps the flag but still appends rows", func(t *testing.T) {
		svc, assignmentRepo, resultRepo := newTrackingService()
		assignment := testAssignment(t)
		assignment.MarkConversion()

		assignmentRepo.On("FindByID", ctx, assignment.ID).Return(assignment, nil)
		resultRepo.On("CreateBatch", ctx, mock.Anything).Return(nil)

		err := svc.TrackConversion(ctx, assignment.ID, dto.TrackConversionRequest{})

		require.NoError(t, err)
		assignmentRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestTrackingServiceTrackCustomEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("folds event type and context into metadata", func(t *testing.T) {
		svc, assignmentRepo, resultRepo := newTrackingService()
		assignment := testAssignment(t)

		assignmentRepo.On("FindByID", ctx, assignment.ID).Return(assignment, nil)
		resultRepo.On("Create", ctx, mock.MatchedBy(func(r *experiment.Result) bool {
			return r.ResultType == experiment.ResultCustom &&
				r.Context != nil && *r.Context == "wishlist_add" &&
				r.Metadata["eventType"] == "wishlist_add" &&
				r.Metadata["customContext"] == "product_page" &&
				r.Metadata["sku"] == "A1"
		})).Return(nil)

		err := svc.TrackCustomEvent(ctx, assignment.ID, dto.TrackCustomEventRequest{
			EventType: "wishlist_add",
			Context:   "product_page",
			Metadata:  map[string]any{"sku": "A1"},
		})

		require.NoError(t, err)
		resultRepo.AssertExpectations(t)
	})

	t.Run("never touches assignment flags", func(t *testing.T) {
		svc, assignmentRepo, resultRepo := newTrackingService()
		assignment := testAssignment(t)

		assignmentRepo.On("FindByID", ctx, assignment.ID).Return(assignment, nil)
		resultRepo.On("Create", ctx, mock.Anything).Return(nil)

		err := svc.TrackCustomEvent(ctx, assignment.ID, dto.TrackCustomEventRequest{EventType: "scroll_depth"})

		require.NoError(t, err)
		assert.False(t, assignment.HasImpression)
		assert.False(t, assignment.HasInteraction)
		assert.False(t, assignment.HasConversion)
		assignmentRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

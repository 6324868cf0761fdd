package experiment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockExperimentRepository is a mock implementation of ExperimentRepository
type MockExperimentRepository struct {
	mock.Mock
}

func (m *MockExperimentRepository) Create(ctx context.Context, exp *experiment.Experiment) error {
	args := m.Called(ctx, exp)
	return args.Error(0)
}

func (m *MockExperimentRepository) Update(ctx context.Context, exp *experiment.Experiment) error {
	args := m.Called(ctx, exp)
	return args.Error(0)
}

func (m *MockExperimentRepository) ReplaceVariants(ctx context.Context, exp *experiment.Experiment) error {
	args := m.Called(ctx, exp)
	return args.Error(0)
}

func (m *MockExperimentRepository) UpdateVariant(ctx context.Context, variant *experiment.Variant) error {
	args := m.Called(ctx, variant)
	return args.Error(0)
}

func (m *MockExperimentRepository) FindByID(ctx context.Context, id uuid.UUID) (*experiment.Experiment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*experiment.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) FindAll(ctx context.Context, filter shared.Filter) ([]experiment.Experiment, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]experiment.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) FindByStatus(ctx context.Context, status experiment.ExperimentStatus, filter shared.Filter) ([]experiment.Experiment, error) {
	args := m.Called(ctx, status, filter)
	return args.Get(0).([]experiment.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) FindRunningByType(ctx context.Context, expType experiment.ExperimentType) ([]experiment.Experiment, error) {
	args := m.Called(ctx, expType)
	return args.Get(0).([]experiment.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockExperimentRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

// MockAssignmentRepository is a mock implementation of AssignmentRepository
type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) Create(ctx context.Context, assignment *experiment.Assignment) error {
	args := m.Called(ctx, assignment)
	return args.Error(0)
}

func (m *MockAssignmentRepository) Save(ctx context.Context, assignment *experiment.Assignment) error {
	args := m.Called(ctx, assignment)
	return args.Error(0)
}

func (m *MockAssignmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*experiment.Assignment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*experiment.Assignment), args.Error(1)
}

func (m *MockAssignmentRepository) FindBySubject(ctx context.Context, experimentID uuid.UUID, userID, sessionID *string) (*experiment.Assignment, error) {
	args := m.Called(ctx, experimentID, userID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*experiment.Assignment), args.Error(1)
}

func (m *MockAssignmentRepository) FindAllBySubject(ctx context.Context, userID, sessionID *string) ([]experiment.Assignment, error) {
	args := m.Called(ctx, userID, sessionID)
	return args.Get(0).([]experiment.Assignment), args.Error(1)
}

func (m *MockAssignmentRepository) DeleteByExperiment(ctx context.Context, experimentID uuid.UUID) error {
	args := m.Called(ctx, experimentID)
	return args.Error(0)
}

func (m *MockAssignmentRepository) CountByExperiment(ctx context.Context, experimentID uuid.UUID) (int64, error) {
	args := m.Called(ctx, experimentID)
	return args.Get(0).(int64), args.Error(1)
}

// MockResultRepository is a mock implementation of ResultRepository
type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) Create(ctx context.Context, result *experiment.Result) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockResultRepository) CreateBatch(ctx context.Context, results []*experiment.Result) error {
	args := m.Called(ctx, results)
	return args.Error(0)
}

func (m *MockResultRepository) CountByVariantAndType(ctx context.Context, variantID uuid.UUID, resultType experiment.ResultType) (int64, error) {
	args := m.Called(ctx, variantID, resultType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockResultRepository) SumValueByVariantAndType(ctx context.Context, variantID uuid.UUID, resultType experiment.ResultType) (decimal.Decimal, error) {
	args := m.Called(ctx, variantID, resultType)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockResultRepository) CountByPeriod(ctx context.Context, variantID uuid.UUID, resultType experiment.ResultType, interval experiment.MetricInterval) ([]experiment.PeriodCount, error) {
	args := m.Called(ctx, variantID, resultType, interval)
	return args.Get(0).([]experiment.PeriodCount), args.Error(1)
}

// MockRunningExperimentCache is a mock implementation of RunningExperimentCache
type MockRunningExperimentCache struct {
	mock.Mock
}

func (m *MockRunningExperimentCache) GetRunningByType(ctx context.Context, expType experiment.ExperimentType) ([]experiment.Experiment, bool) {
	args := m.Called(ctx, expType)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).([]experiment.Experiment), args.Bool(1)
}

func (m *MockRunningExperimentCache) SetRunningByType(ctx context.Context, expType experiment.ExperimentType, experiments []experiment.Experiment, ttl time.Duration) {
	m.Called(ctx, expType, experiments, ttl)
}

func (m *MockRunningExperimentCache) InvalidateType(ctx context.Context, expType experiment.ExperimentType) {
	m.Called(ctx, expType)
}

func (m *MockRunningExperimentCache) InvalidateAll(ctx context.Context) {
	m.Called(ctx)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

package experiment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/application/experiment/dto"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegistryService manages the experiment catalog and lifecycle
type RegistryService struct {
	expRepo        experiment.ExperimentRepository
	assignmentRepo experiment.AssignmentRepository
	resultRepo     experiment.ResultRepository
	cache          experiment.RunningExperimentCache
	publisher      shared.EventPublisher
	logger         *zap.Logger
}

// NewRegistryService creates a new registry service
func NewRegistryService(
	expRepo experiment.ExperimentRepository,
	assignmentRepo experiment.AssignmentRepository,
	resultRepo experiment.ResultRepository,
	cache experiment.RunningExperimentCache,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *RegistryService {
	return &RegistryService{
		expRepo:        expRepo,
		assignmentRepo: assignmentRepo,
		resultRepo:     resultRepo,
		cache:          cache,
		publisher:      publisher,
		logger:         logger,
	}
}

// CreateExperiment creates a new experiment in draft status
func (s *RegistryService) CreateExperiment(ctx context.Context, req dto.CreateExperimentRequest) (*dto.ExperimentResponse, error) {
	s.logger.Info("Creating experiment",
		zap.String("name", req.Name),
		zap.String("type", req.Type))

	variants := make([]*experiment.Variant, 0, len(req.Variants))
	for _, vReq := range req.Variants {
		v, err := vReq.ToDomain()
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}

	exp, err := experiment.NewExperiment(req.Name, req.Description, experiment.ExperimentType(req.Type), variants)
	if err != nil {
		return nil, err
	}

	if err := exp.UpdateDetails("", "", req.Hypothesis, req.PrimaryMetric,
		req.SecondaryMetrics, req.TargetAudience, req.AudiencePercentage, req.Segmentation); err != nil {
		return nil, err
	}

	if err := s.expRepo.Create(ctx, exp); err != nil {
		s.logger.Error("Failed to create experiment", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to create experiment")
	}

	s.publishEvents(ctx, exp)

	s.logger.Info("Experiment created",
		zap.String("id", exp.ID.String()),
		zap.String("name", exp.Name))

	return dto.ToExperimentResponse(exp), nil
}

// GetExperiment retrieves an experiment with its variants
func (s *RegistryService) GetExperiment(ctx context.Context, id uuid.UUID) (*dto.ExperimentResponse, error) {
	exp, err := s.expRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("EXPERIMENT_NOT_FOUND", "Experiment not found")
		}
		s.logger.Error("Failed to get experiment", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to get experiment")
	}
	return dto.ToExperimentResponse(exp), nil
}

// ListExperiments retrieves experiments with pagination. An empty status
// lists every experiment regardless of lifecycle state.
func (s *RegistryService) ListExperiments(ctx context.Context, status string, filter shared.Filter) (*shared.Paginated[dto.ExperimentResponse], error) {
	var (
		experiments []experiment.Experiment
		err         error
	)
	if status != "" {
		expStatus := experiment.ExperimentStatus(status)
		if !expStatus.IsValid() {
			return nil, shared.NewDomainError("INVALID_STATUS", "Invalid experiment status")
		}
		experiments, err = s.expRepo.FindByStatus(ctx, expStatus, filter)
		if filter.Filters == nil {
			filter.Filters = make(map[string]interface{})
		}
		filter.Filters["status"] = status
	} else {
		experiments, err = s.expRepo.FindAll(ctx, filter)
	}
	if err != nil {
		s.logger.Error("Failed to list experiments", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list experiments")
	}

	total, err := s.expRepo.Count(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to count experiments", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to count experiments")
	}

	responses := make([]dto.ExperimentResponse, 0, len(experiments))
	for i := range experiments {
		responses = append(responses, *dto.ToExperimentResponse(&experiments[i]))
	}

	result := shared.NewPaginated(responses, total, filter.Page, filter.PageSize)
	return &result, nil
}

// UpdateExperiment merges the given fields into an experiment. A non-nil
// variant list replaces the stored variants and re-validates the control
// invariant.
func (s *RegistryService) UpdateExperiment(ctx context.Context, id uuid.UUID, req dto.UpdateExperimentRequest) (*dto.ExperimentResponse, error) {
	exp, err := s.expRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("EXPERIMENT_NOT_FOUND", "Experiment not found")
		}
		s.logger.Error("Failed to load experiment for update", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update experiment")
	}

	if err := exp.UpdateDetails(
		strVal(req.Name),
		strVal(req.Description),
		strVal(req.Hypothesis),
		strVal(req.PrimaryMetric),
		sliceVal(req.SecondaryMetrics),
		mapVal(req.TargetAudience),
		req.AudiencePercentage,
		mapVal(req.Segmentation),
	); err != nil {
		return nil, err
	}

	if req.Variants != nil {
		variants := make([]*experiment.Variant, 0, len(*req.Variants))
		for _, vReq := range *req.Variants {
			v, err := vReq.ToDomain()
			if err != nil {
				return nil, err
			}
			variants = append(variants, v)
		}
		if err := exp.ReplaceVariants(variants); err != nil {
			return nil, err
		}
		if err := s.expRepo.ReplaceVariants(ctx, exp); err != nil {
			s.logger.Error("Failed to replace variants", zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update experiment variants")
		}
	}

	if err := s.expRepo.Update(ctx, exp); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, shared.NewDomainError("CONCURRENCY_CONFLICT", "Experiment was modified concurrently")
		}
		s.logger.Error("Failed to update experiment", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update experiment")
	}

	s.cache.InvalidateType(ctx, exp.Type)

	s.logger.Info("Experiment updated", zap.String("id", exp.ID.String()))

	return dto.ToExperimentResponse(exp), nil
}

// StartExperiment starts a draft or resumes a paused experiment
func (s *RegistryService) StartExperiment(ctx context.Context, id uuid.UUID) (*dto.ExperimentResponse, error) {
	return s.transition(ctx, id, "start", (*experiment.Experiment).Start)
}

// PauseExperiment suspends a running experiment
func (s *RegistryService) PauseExperiment(ctx context.Context, id uuid.UUID) (*dto.ExperimentResponse, error) {
	return s.transition(ctx, id, "pause", (*experiment.Experiment).Pause)
}

// CompleteExperiment ends a running or paused experiment
func (s *RegistryService) CompleteExperiment(ctx context.Context, id uuid.UUID) (*dto.ExperimentResponse, error) {
	return s.transition(ctx, id, "complete", (*experiment.Experiment).Complete)
}

// ArchiveExperiment retires an experiment that is not running
func (s *RegistryService) ArchiveExperiment(ctx context.Context, id uuid.UUID) (*dto.ExperimentResponse, error) {
	return s.transition(ctx, id, "archive", (*experiment.Experiment).Archive)
}

// transition loads, mutates and persists an experiment through one
// lifecycle step, then invalidates the running set cache for its type
func (s *RegistryService) transition(ctx context.Context, id uuid.UUID, action string, mutate func(*experiment.Experiment) error) (*dto.ExperimentResponse, error) {
	exp, err := s.expRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("EXPERIMENT_NOT_FOUND", "Experiment not found")
		}
		s.logger.Error("Failed to load experiment for transition",
			zap.String("action", action), zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load experiment")
	}

	if err := mutate(exp); err != nil {
		return nil, err
	}

	if err := s.expRepo.Update(ctx, exp); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, shared.NewDomainError("CONCURRENCY_CONFLICT", "Experiment was modified concurrently")
		}
		s.logger.Error("Failed to persist experiment transition",
			zap.String("action", action), zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update experiment")
	}

	s.cache.InvalidateType(ctx, exp.Type)
	s.publishEvents(ctx, exp)

	s.logger.Info("Experiment transitioned",
		zap.String("id", exp.ID.String()),
		zap.String("action", action),
		zap.String("status", exp.Status.String()))

	return dto.ToExperimentResponse(exp), nil
}

// DeclareWinner marks a variant as the experiment winner
func (s *RegistryService) DeclareWinner(ctx context.Context, id uuid.UUID, req dto.DeclareWinnerRequest) (*dto.ExperimentResponse, error) {
	variantID, err := uuid.Parse(req.VariantID)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invalid variant ID")
	}

	exp, err := s.expRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("EXPERIMENT_NOT_FOUND", "Experiment not found")
		}
		s.logger.Error("Failed to load experiment for winner declaration", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load experiment")
	}

	if err := exp.DeclareWinner(variantID); err != nil {
		return nil, err
	}

	if err := s.expRepo.Update(ctx, exp); err != nil {
		s.logger.Error("Failed to persist winner declaration", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update experiment")
	}
	if winner := exp.VariantByID(variantID); winner != nil {
		if err := s.expRepo.UpdateVariant(ctx, winner); err != nil {
			s.logger.Error("Failed to persist winning variant flag", zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update variant")
		}
	}

	s.publishEvents(ctx, exp)

	s.logger.Info("Winner declared",
		zap.String("experiment_id", exp.ID.String()),
		zap.String("variant_id", variantID.String()))

	return dto.ToExperimentResponse(exp), nil
}

// DeleteExperiment removes an experiment together with its assignments,
// variants and results
func (s *RegistryService) DeleteExperiment(ctx context.Context, id uuid.UUID) error {
	exp, err := s.expRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError("EXPERIMENT_NOT_FOUND", "Experiment not found")
		}
		s.logger.Error("Failed to load experiment for deletion", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to load experiment")
	}

	if err := s.assignmentRepo.DeleteByExperiment(ctx, id); err != nil {
		s.logger.Error("Failed to delete assignments", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to delete experiment assignments")
	}
	if err := s.expRepo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete experiment", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to delete experiment")
	}

	s.cache.InvalidateType(ctx, exp.Type)

	s.logger.Info("Experiment deleted", zap.String("id", id.String()))

	return nil
}

// GetExperimentResults aggregates the result log per variant and refreshes
// the denormalized variant counters
func (s *RegistryService) GetExperimentResults(ctx context.Context, id uuid.UUID) (*dto.ExperimentResultsResponse, error) {
	exp, err := s.expRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("EXPERIMENT_NOT_FOUND", "Experiment not found")
		}
		s.logger.Error("Failed to load experiment for results", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load experiment")
	}

	results := make([]dto.VariantResults, 0, len(exp.Variants))
	var controlRate float64
	if control := exp.ControlVariant(); control != nil {
		impressions, conversions, err := s.variantCounts(ctx, control.ID)
		if err != nil {
			return nil, err
		}
		controlRate = experiment.ConversionRate(conversions, impressions)
	}

	for i := range exp.Variants {
		v := &exp.Variants[i]

		impressions, conversions, err := s.variantCounts(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		clicks, err := s.resultRepo.CountByVariantAndType(ctx, v.ID, experiment.ResultClick)
		if err != nil {
			s.logger.Error("Failed to count clicks", zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to aggregate results")
		}
		revenue, err := s.resultRepo.SumValueByVariantAndType(ctx, v.ID, experiment.ResultRevenue)
		if err != nil {
			s.logger.Error("Failed to sum revenue", zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to aggregate results")
		}

		conversionRate := experiment.ConversionRate(conversions, impressions)
		avgRevenue := decimal.Zero
		if conversions > 0 {
			avgRevenue = revenue.Div(decimal.NewFromInt(conversions)).Round(2)
		}
		improvement := 0.0
		if !v.IsControl {
			improvement = experiment.Improvement(controlRate, conversionRate)
		}

		// Refresh the denormalized counters; read-only reporting should
		// not fail if the cache write does.
		v.CacheCounters(impressions, conversions)
		if err := s.expRepo.UpdateVariant(ctx, v); err != nil {
			s.logger.Warn("Failed to refresh variant counters",
				zap.String("variant_id", v.ID.String()), zap.Error(err))
		}

		results = append(results, dto.VariantResults{
			VariantID:       v.ID,
			VariantName:     v.Name,
			IsControl:       v.IsControl,
			IsWinner:        v.IsWinner,
			Impressions:     impressions,
			Clicks:          clicks,
			Conversions:     conversions,
			ClickRate:       experiment.ConversionRate(clicks, impressions),
			ConversionRate:  conversionRate,
			TotalRevenue:    revenue.StringFixed(2),
			AverageRevenue:  avgRevenue.StringFixed(2),
			ImprovementRate: improvement,
		})
	}

	return &dto.ExperimentResultsResponse{
		ExperimentID:   exp.ID,
		ExperimentName: exp.Name,
		Status:         exp.Status.String(),
		Results:        results,
	}, nil
}

// variantCounts returns the impression and conversion counts of one variant
func (s *RegistryService) variantCounts(ctx context.Context, variantID uuid.UUID) (int64, int64, error) {
	impressions, err := s.resultRepo.CountByVariantAndType(ctx, variantID, experiment.ResultImpression)
	if err != nil {
		s.logger.Error("Failed to count impressions", zap.Error(err))
		return 0, 0, shared.NewDomainError("INTERNAL_ERROR", "Failed to aggregate results")
	}
	conversions, err := s.resultRepo.CountByVariantAndType(ctx, variantID, experiment.ResultConversion)
	if err != nil {
		s.logger.Error("Failed to count conversions", zap.Error(err))
		return 0, 0, shared.NewDomainError("INTERNAL_ERROR", "Failed to aggregate results")
	}
	return impressions, conversions, nil
}

// publishEvents drains the aggregate's pending events onto the bus.
// Publishing is non-blocking for the caller's operation.
func (s *RegistryService) publishEvents(ctx context.Context, exp *experiment.Experiment) {
	events := exp.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish domain events", zap.Error(err))
	}
	exp.ClearDomainEvents()
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func sliceVal(p *[]string) []string {
	if p == nil {
		return nil
	}
	return *p
}

func mapVal(p *map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	return *p
}

package experiment

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/application/experiment/dto"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// completionMDE is the relative effect the completion estimate assumes the
// experiment is trying to detect
const completionMDE = 0.1

// AnalysisService derives statistical reports from the experiment result
// log. All numbers are recomputed from the log on every call; the
// denormalized variant fields are write-through caches, never inputs.
type AnalysisService struct {
	expRepo    experiment.ExperimentRepository
	resultRepo experiment.ResultRepository
	logger     *zap.Logger

	// useExactSampleSize switches the sample size estimate to the
	// parameter-sensitive formula instead of the fixed 1.96/0.84 constants
	useExactSampleSize bool
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(
	expRepo experiment.ExperimentRepository,
	resultRepo experiment.ResultRepository,
	useExactSampleSize bool,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		expRepo:            expRepo,
		resultRepo:         resultRepo,
		useExactSampleSize: useExactSampleSize,
		logger:             logger,
	}
}

// CalculateStatisticalSignificance runs a two-proportion z-test of every
// variant against the control. The control row comes first with zeroed
// comparison fields. Each variant's confidence and improvement are written
// back to the variant row as a display cache.
func (s *AnalysisService) CalculateStatisticalSignificance(ctx context.Context, experimentID uuid.UUID) (*dto.SignificanceResponse, error) {
	exp, control, err := s.loadWithControl(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	controlImpressions, controlConversions, err := s.variantCounts(ctx, control.ID)
	if err != nil {
		return nil, err
	}
	controlRate := experiment.ConversionRate(controlConversions, controlImpressions)

	rows := make([]dto.VariantSignificance, 0, len(exp.Variants))
	rows = append(rows, dto.VariantSignificance{
		VariantID:      control.ID,
		VariantName:    control.Name,
		IsControl:      true,
		Impressions:    controlImpressions,
		Conversions:    controlConversions,
		ConversionRate: controlRate,
		Improvement:    0,
		ZScore:         0,
		PValue:         1,
		Significant:    false,
	})

	for i := range exp.Variants {
		v := &exp.Variants[i]
		if v.IsControl {
			continue
		}

		impressions, conversions, err := s.variantCounts(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		rate := experiment.ConversionRate(conversions, impressions)
		improvement := experiment.Improvement(controlRate, rate)
		test := experiment.TwoProportionZTest(controlConversions, controlImpressions, conversions, impressions)

		v.CacheCounters(impressions, conversions)
		v.CacheSignificance(test.ConfidenceLevel, improvement)
		if err := s.expRepo.UpdateVariant(ctx, v); err != nil {
			s.logger.Warn("Failed to cache variant significance",
				zap.String("variant_id", v.ID.String()), zap.Error(err))
		}

		rows = append(rows, dto.VariantSignificance{
			VariantID:       v.ID,
			VariantName:     v.Name,
			IsControl:       false,
			Impressions:     impressions,
			Conversions:     conversions,
			ConversionRate:  rate,
			Improvement:     improvement,
			ZScore:          test.ZScore,
			PValue:          test.PValue,
			ConfidenceLevel: test.ConfidenceLevel,
			Significant:     test.Significant,
		})
	}

	return &dto.SignificanceResponse{
		ExperimentID: exp.ID,
		Variants:     rows,
	}, nil
}

// CalculateRequiredSampleSize estimates the per-variant sample size needed
// to detect the requested effect
func (s *AnalysisService) CalculateRequiredSampleSize(req dto.SampleSizeRequest) *dto.SampleSizeResponse {
	significance := experiment.DefaultSignificanceLevel
	if req.SignificanceLevel != nil {
		significance = *req.SignificanceLevel
	}
	power := experiment.DefaultPower
	if req.Power != nil {
		power = *req.Power
	}

	var size int
	if s.useExactSampleSize {
		size = experiment.RequiredSampleSizeExact(req.BaselineConversionRate, req.MinimumDetectableEffect, significance, power)
	} else {
		size = experiment.RequiredSampleSize(req.BaselineConversionRate, req.MinimumDetectableEffect, significance, power)
	}

	return &dto.SampleSizeResponse{
		RequiredSampleSize:      size,
		BaselineConversionRate:  req.BaselineConversionRate,
		MinimumDetectableEffect: req.MinimumDetectableEffect,
		SignificanceLevel:       significance,
		Power:                   power,
	}
}

// EstimateTimeToCompletion projects how many days of traffic the
// experiment still needs before it reaches the required sample size. The
// baseline is the control's current conversion rate and the target effect
// is a fixed 10% lift. A non-positive daily traffic yields a nil
// DaysRemaining, meaning the experiment never completes at current pace.
func (s *AnalysisService) EstimateTimeToCompletion(ctx context.Context, experimentID uuid.UUID, dailyTraffic float64) (*dto.CompletionEstimateResponse, error) {
	exp, control, err := s.loadWithControl(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	controlImpressions, controlConversions, err := s.variantCounts(ctx, control.ID)
	if err != nil {
		return nil, err
	}
	baseline := experiment.ConversionRate(controlConversions, controlImpressions)

	var perVariant int
	if s.useExactSampleSize {
		perVariant = experiment.RequiredSampleSizeExact(baseline, completionMDE, experiment.DefaultSignificanceLevel, experiment.DefaultPower)
	} else {
		perVariant = experiment.RequiredSampleSize(baseline, completionMDE, experiment.DefaultSignificanceLevel, experiment.DefaultPower)
	}
	totalRequired := int64(perVariant) * int64(len(exp.Variants))

	var currentTotal int64
	for i := range exp.Variants {
		impressions, err := s.resultRepo.CountByVariantAndType(ctx, exp.Variants[i].ID, experiment.ResultImpression)
		if err != nil {
			s.logger.Error("Failed to count impressions", zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to estimate completion")
		}
		currentTotal += impressions
	}

	remaining := totalRequired - currentTotal
	if remaining < 0 {
		remaining = 0
	}

	resp := &dto.CompletionEstimateResponse{
		ExperimentID:        exp.ID,
		RequiredSampleSize:  perVariant,
		CurrentSampleSize:   currentTotal,
		RemainingSampleSize: remaining,
		DailyTraffic:        dailyTraffic,
	}
	if dailyTraffic > 0 {
		days := int(math.Ceil(float64(remaining) / dailyTraffic))
		completion := time.Now().AddDate(0, 0, days)
		resp.DaysRemaining = &days
		resp.EstimatedCompletionDate = &completion
	}

	return resp, nil
}

// GetMetricsOverTime buckets each variant's impressions and conversions
// into day, week or month periods. Every period either series observed
// appears in the output, zero-filled on the side that saw nothing.
func (s *AnalysisService) GetMetricsOverTime(ctx context.Context, experimentID uuid.UUID, interval experiment.MetricInterval) (*dto.MetricsOverTimeResponse, error) {
	if !interval.IsValid() {
		return nil, shared.NewDomainError("INVALID_INTERVAL", "Interval must be day, week or month")
	}

	exp, err := s.expRepo.FindByID(ctx, experimentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("EXPERIMENT_NOT_FOUND", "Experiment not found")
		}
		s.logger.Error("Failed to load experiment for metrics", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load experiment")
	}

	series := make([]dto.VariantMetricSeries, 0, len(exp.Variants))
	for i := range exp.Variants {
		v := &exp.Variants[i]

		impressions, err := s.resultRepo.CountByPeriod(ctx, v.ID, experiment.ResultImpression, interval)
		if err != nil {
			s.logger.Error("Failed to group impressions", zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to compute metrics")
		}
		conversions, err := s.resultRepo.CountByPeriod(ctx, v.ID, experiment.ResultConversion, interval)
		if err != nil {
			s.logger.Error("Failed to group conversions", zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to compute metrics")
		}

		series = append(series, dto.VariantMetricSeries{
			VariantID:   v.ID,
			VariantName: v.Name,
			IsControl:   v.IsControl,
			Points:      mergeSeries(impressions, conversions),
		})
	}

	return &dto.MetricsOverTimeResponse{
		ExperimentID: exp.ID,
		Interval:     interval.String(),
		Series:       series,
	}, nil
}

// mergeSeries joins two period-count series on their period labels.
// Labels are zero padded, so lexicographic order is chronological.
func mergeSeries(impressions, conversions []experiment.PeriodCount) []dto.VariantMetricPoint {
	byPeriod := make(map[string]*dto.VariantMetricPoint)
	for _, pc := range impressions {
		byPeriod[pc.Period] = &dto.VariantMetricPoint{Period: pc.Period, Impressions: pc.Count}
	}
	for _, pc := range conversions {
		if point, ok := byPeriod[pc.Period]; ok {
			point.Conversions = pc.Count
		} else {
			byPeriod[pc.Period] = &dto.VariantMetricPoint{Period: pc.Period, Conversions: pc.Count}
		}
	}

	periods := make([]string, 0, len(byPeriod))
	for period := range byPeriod {
		periods = append(periods, period)
	}
	sort.Strings(periods)

	points := make([]dto.VariantMetricPoint, 0, len(periods))
	for _, period := range periods {
		points = append(points, *byPeriod[period])
	}
	return points
}

// loadWithControl loads an experiment and resolves its control variant
func (s *AnalysisService) loadWithControl(ctx context.Context, experimentID uuid.UUID) (*experiment.Experiment, *experiment.Variant, error) {
	exp, err := s.expRepo.FindByID(ctx, experimentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, shared.NewDomainError("EXPERIMENT_NOT_FOUND", "Experiment not found")
		}
		s.logger.Error("Failed to load experiment for analysis", zap.Error(err))
		return nil, nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load experiment")
	}
	control := exp.ControlVariant()
	if control == nil {
		return nil, nil, shared.NewDomainError("NO_CONTROL_VARIANT", "Experiment has no control variant")
	}
	return exp, control, nil
}

// variantCounts returns the impression and conversion counts of one variant
func (s *AnalysisService) variantCounts(ctx context.Context, variantID uuid.UUID) (int64, int64, error) {
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

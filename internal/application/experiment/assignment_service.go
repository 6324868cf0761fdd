package experiment

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/application/experiment/dto"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// defaultRunningCacheTTL bounds how long the assignment hot path serves a
// stale running set after a lifecycle transition on another node
const defaultRunningCacheTTL = 30 * time.Second

// AssignmentService binds subjects to variants. Bindings are sticky: once
// a subject is assigned, every later lookup returns the same variant.
type AssignmentService struct {
	expRepo        experiment.ExperimentRepository
	assignmentRepo experiment.AssignmentRepository
	cache          experiment.RunningExperimentCache
	tracking       *TrackingService
	cacheTTL       time.Duration
	logger         *zap.Logger

	// draw returns a uniform value in [0, 1); injectable for deterministic tests
	draw func() float64
}

// NewAssignmentService creates a new assignment service. A non-positive
// cacheTTL falls back to the default.
func NewAssignmentService(
	expRepo experiment.ExperimentRepository,
	assignmentRepo experiment.AssignmentRepository,
	cache experiment.RunningExperimentCache,
	tracking *TrackingService,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *AssignmentService {
	if cacheTTL <= 0 {
		cacheTTL = defaultRunningCacheTTL
	}
	return &AssignmentService{
		expRepo:        expRepo,
		assignmentRepo: assignmentRepo,
		cache:          cache,
		tracking:       tracking,
		cacheTTL:       cacheTTL,
		logger:         logger,
		draw:           rand.Float64,
	}
}

// GetOrCreateAssignment returns the subject's binding for an experiment,
// creating one on first contact. Audience sampling and variant selection
// only happen on the first call; concurrent first calls are resolved by
// the storage uniqueness constraint and both callers see the same variant.
func (s *AssignmentService) GetOrCreateAssignment(ctx context.Context, experimentID uuid.UUID, userID, sessionID *string) (*dto.AssignmentResponse, error) {
	exp, err := s.expRepo.FindByID(ctx, experimentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("EXPERIMENT_NOT_FOUND", "Experiment not found or not running")
		}
		s.logger.Error("Failed to load experiment for assignment", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load experiment")
	}
	if !exp.IsRunning() {
		return nil, shared.NewDomainError("EXPERIMENT_NOT_RUNNING", "Experiment not found or not running")
	}

	existing, err := s.assignmentRepo.FindBySubject(ctx, experimentID, userID, sessionID)
	if err != nil {
		s.logger.Error("Failed to look up assignment", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to look up assignment")
	}
	if existing != nil {
		return dto.ToAssignmentResponse(existing), nil
	}

	variant, err := s.selectVariant(exp)
	if err != nil {
		return nil, err
	}

	assignment, err := experiment.NewAssignment(exp.ID, variant.ID, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.assignmentRepo.Create(ctx, assignment); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Lost the first-assignment race; the winning row is the binding.
			winner, readErr := s.assignmentRepo.FindBySubject(ctx, experimentID, userID, sessionID)
			if readErr != nil || winner == nil {
				s.logger.Error("Failed to re-read assignment after conflict", zap.Error(readErr))
				return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to resolve assignment")
			}
			return dto.ToAssignmentResponse(winner), nil
		}
		s.logger.Error("Failed to create assignment", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to create assignment")
	}

	s.logger.Debug("Subject assigned",
		zap.String("experiment_id", exp.ID.String()),
		zap.String("variant_id", variant.ID.String()))

	return dto.ToAssignmentResponse(assignment), nil
}

// selectVariant applies audience sampling and uniform variant selection.
// Subjects drawn outside the audience percentage get the control variant
// so they see the baseline experience.
func (s *AssignmentService) selectVariant(exp *experiment.Experiment) (*experiment.Variant, error) {
	if len(exp.Variants) == 0 {
		return nil, shared.NewDomainError("NO_VARIANTS", "Experiment has no variants")
	}

	if exp.AudiencePercentage != nil && *exp.AudiencePercentage < 100 {
		if s.draw()*100 > *exp.AudiencePercentage {
			control := exp.ControlVariant()
			if control == nil {
				return nil, shared.NewDomainError("NO_CONTROL_VARIANT", "Experiment has no control variant")
			}
			return control, nil
		}
	}

	return &exp.Variants[int(s.draw()*float64(len(exp.Variants)))], nil
}

// GetActiveExperiments returns the running experiments of one type.
// An unknown type is logged and yields an empty slice so storefront
// rendering never fails on a bad parameter.
func (s *AssignmentService) GetActiveExperiments(ctx context.Context, expType string) ([]experiment.Experiment, error) {
	typeEnum := experiment.ExperimentType(expType)
	if !typeEnum.IsValid() {
		s.logger.Warn("Invalid experiment type provided", zap.String("type", expType))
		return []experiment.Experiment{}, nil
	}

	if cached, ok := s.cache.GetRunningByType(ctx, typeEnum); ok {
		return cached, nil
	}

	experiments, err := s.expRepo.FindRunningByType(ctx, typeEnum)
	if err != nil {
		s.logger.Error("Failed to get active experiments", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to get active experiments")
	}

	s.cache.SetRunningByType(ctx, typeEnum, experiments, s.cacheTTL)

	return experiments, nil
}

// GetVariantConfiguration resolves, for every running experiment of one
// type, the variant a subject should see and its rendering payload. Each
// resolved assignment is counted as an impression. Any failure degrades
// to nil so callers fall back to the default experience.
func (s *AssignmentService) GetVariantConfiguration(ctx context.Context, expType string, userID, sessionID *string) map[string]dto.VariantConfiguration {
	if isEmptyIdentity(userID) && isEmptyIdentity(sessionID) {
		s.logger.Warn("Variant configuration requested without identity")
		return nil
	}

	active, err := s.GetActiveExperiments(ctx, expType)
	if err != nil {
		s.logger.Error("Failed to resolve variant configuration", zap.Error(err))
		return nil
	}
	if len(active) == 0 {
		return nil
	}

	configurations := make(map[string]dto.VariantConfiguration, len(active))
	for i := range active {
		exp := &active[i]

		assignment, err := s.GetOrCreateAssignment(ctx, exp.ID, userID, sessionID)
		if err != nil {
			s.logger.Error("Failed to resolve variant configuration",
				zap.String("experiment_id", exp.ID.String()), zap.Error(err))
			return nil
		}
		variant := exp.VariantByID(assignment.VariantID)
		if variant == nil {
			s.logger.Error("Assigned variant missing from experiment",
				zap.String("experiment_id", exp.ID.String()),
				zap.String("variant_id", assignment.VariantID.String()))
			return nil
		}

		// Impression tracking is best-effort; serving the configuration wins.
		if err := s.tracking.TrackImpression(ctx, assignment.ID); err != nil {
			s.logger.Warn("Failed to track impression",
				zap.String("assignment_id", assignment.ID.String()), zap.Error(err))
		}

		configuration := variant.Configuration
		if configuration == nil {
			configuration = map[string]any{}
		}
		configurations[exp.ID.String()] = dto.VariantConfiguration{
			VariantID:     variant.ID,
			Configuration: configuration,
			AssignmentID:  assignment.ID,
		}
	}

	return configurations
}

// GetSubjectAssignments lists every assignment of a subject across
// experiments
func (s *AssignmentService) GetSubjectAssignments(ctx context.Context, userID, sessionID *string) ([]dto.AssignmentResponse, error) {
	if isEmptyIdentity(userID) && isEmptyIdentity(sessionID) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Either user ID or session ID must be provided")
	}

	assignments, err := s.assignmentRepo.FindAllBySubject(ctx, userID, sessionID)
	if err != nil {
		s.logger.Error("Failed to list subject assignments", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list assignments")
	}

	responses := make([]dto.AssignmentResponse, 0, len(assignments))
	for i := range assignments {
		responses = append(responses, *dto.ToAssignmentResponse(&assignments[i]))
	}
	return responses, nil
}

func isEmptyIdentity(s *string) bool {
	return s == nil || *s == ""
}

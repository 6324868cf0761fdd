package experiment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/application/experiment/dto"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// TrackingService appends observation events to the experiment result log.
// Each event also flips the matching one-way flag on the assignment the
// first time it is observed; the log itself records every occurrence.
type TrackingService struct {
	assignmentRepo experiment.AssignmentRepository
	resultRepo     experiment.ResultRepository
	logger         *zap.Logger
}

// NewTrackingService creates a new tracking service
func NewTrackingService(
	assignmentRepo experiment.AssignmentRepository,
	resultRepo experiment.ResultRepository,
	logger *zap.Logger,
) *TrackingService {
	return &TrackingService{
		assignmentRepo: assignmentRepo,
		resultRepo:     resultRepo,
		logger:         logger,
	}
}

// TrackImpression records that the subject saw their variant
func (s *TrackingService) TrackImpression(ctx context.Context, assignmentID uuid.UUID) error {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	if assignment.MarkImpression() {
		if err := s.assignmentRepo.Save(ctx, assignment); err != nil {
			s.logger.Error("Failed to save impression flag", zap.Error(err))
			return shared.NewDomainError("INTERNAL_ERROR", "Failed to track impression")
		}
	}

	result, err := experiment.NewResult(assignment.VariantID, assignment.UserID, assignment.SessionID, experiment.ResultImpression)
	if err != nil {
		return err
	}
	if err := s.resultRepo.Create(ctx, result); err != nil {
		s.logger.Error("Failed to record impression", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to track impression")
	}
	return nil
}

// TrackInteraction records a click-level interaction with the variant
func (s *TrackingService) TrackInteraction(ctx context.Context, assignmentID uuid.UUID, req dto.TrackInteractionRequest) error {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	if assignment.MarkInteraction() {
		if err := s.assignmentRepo.Save(ctx, assignment); err != nil {
			s.logger.Error("Failed to save interaction flag", zap.Error(err))
			return shared.NewDomainError("INTERNAL_ERROR", "Failed to track interaction")
		}
	}

	result, err := experiment.NewResult(assignment.VariantID, assignment.UserID, assignment.SessionID, experiment.ResultClick)
	if err != nil {
		return err
	}
	result.WithContext(req.Context).WithMetadata(req.Metadata)

	if err := s.resultRepo.Create(ctx, result); err != nil {
		s.logger.Error("Failed to record interaction", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to track interaction")
	}
	return nil
}

// TrackConversion records a conversion. When a monetary value is given a
// second revenue row is appended alongside the conversion row so revenue
// sums and conversion counts stay independent.
func (s *TrackingService) TrackConversion(ctx context.Context, assignmentID uuid.UUID, req dto.TrackConversionRequest) error {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	if assignment.MarkConversion() {
		if err := s.assignmentRepo.Save(ctx, assignment); err != nil {
			s.logger.Error("Failed to save conversion flag", zap.Error(err))
			return shared.NewDomainError("INTERNAL_ERROR", "Failed to track conversion")
		}
	}

	conversion, err := experiment.NewResult(assignment.VariantID, assignment.UserID, assignment.SessionID, experiment.ResultConversion)
	if err != nil {
		return err
	}
	conversion.WithContext(req.Context).WithMetadata(req.Metadata)

	rows := []*experiment.Result{conversion}
	if req.Value != nil {
		revenue, err := experiment.NewResult(assignment.VariantID, assignment.UserID, assignment.SessionID, experiment.ResultRevenue)
		if err != nil {
			return err
		}
		revenue.WithValue(*req.Value).WithContext(req.Context).WithMetadata(req.Metadata)
		rows = append(rows, revenue)
	}

	if err := s.resultRepo.CreateBatch(ctx, rows); err != nil {
		s.logger.Error("Failed to record conversion", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to track conversion")
	}
	return nil
}

// TrackCustomEvent records a caller-defined event. The event type lands in
// the context column and the caller's context is folded into the metadata,
// so custom events can be grouped by type with the same queries as the
// built-in ones. No assignment flag changes.
func (s *TrackingService) TrackCustomEvent(ctx context.Context, assignmentID uuid.UUID, req dto.TrackCustomEventRequest) error {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	metadata := make(map[string]any, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["eventType"] = req.EventType
	metadata["customContext"] = req.Context

	result, err := experiment.NewResult(assignment.VariantID, assignment.UserID, assignment.SessionID, experiment.ResultCustom)
	if err != nil {
		return err
	}
	result.WithContext(req.EventType).WithMetadata(metadata)
	if req.Value != nil {
		result.WithValue(*req.Value)
	}

	if err := s.resultRepo.Create(ctx, result); err != nil {
		s.logger.Error("Failed to record custom event", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to track custom event")
	}
	return nil
}

// loadAssignment resolves the assignment an event is attributed to
func (s *TrackingService) loadAssignment(ctx context.Context, assignmentID uuid.UUID) (*experiment.Assignment, error) {
	assignment, err := s.assignmentRepo.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("ASSIGNMENT_NOT_FOUND", "Assignment not found")
		}
		s.logger.Error("Failed to load assignment", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load assignment")
	}
	return assignment, nil
}

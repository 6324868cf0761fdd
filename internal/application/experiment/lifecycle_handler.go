package experiment

import (
	"context"

	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LifecycleAuditHandler writes an audit log line for every experiment
// lifecycle event published on the bus
type LifecycleAuditHandler struct {
	logger *zap.Logger
}

// NewLifecycleAuditHandler creates a new lifecycle audit handler
func NewLifecycleAuditHandler(logger *zap.Logger) *LifecycleAuditHandler {
	return &LifecycleAuditHandler{logger: logger}
}

// EventTypes returns the experiment lifecycle event types
func (h *LifecycleAuditHandler) EventTypes() []string {
	return []string{
		experiment.EventTypeExperimentCreated,
		experiment.EventTypeExperimentStarted,
		experiment.EventTypeExperimentPaused,
		experiment.EventTypeExperimentCompleted,
		experiment.EventTypeExperimentArchived,
		experiment.EventTypeWinnerDeclared,
	}
}

// Handle logs the lifecycle event
func (h *LifecycleAuditHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", evt.EventType()),
		zap.String("aggregate_id", evt.AggregateID().String()),
		zap.Time("occurred_at", evt.OccurredAt()),
	}

	switch e := evt.(type) {
	case *experiment.ExperimentCreatedEvent:
		fields = append(fields,
			zap.String("name", e.Name),
			zap.String("experiment_type", string(e.Type)),
			zap.Int("variant_count", e.VariantCount))
	case *experiment.ExperimentStartedEvent:
		fields = append(fields,
			zap.String("name", e.Name),
			zap.String("old_status", string(e.OldStatus)))
	case *experiment.ExperimentPausedEvent:
		fields = append(fields, zap.String("name", e.Name))
	case *experiment.ExperimentCompletedEvent:
		fields = append(fields,
			zap.String("name", e.Name),
			zap.String("old_status", string(e.OldStatus)))
	case *experiment.ExperimentArchivedEvent:
		fields = append(fields,
			zap.String("name", e.Name),
			zap.String("old_status", string(e.OldStatus)))
	case *experiment.WinnerDeclaredEvent:
		fields = append(fields, zap.String("variant_id", e.VariantID.String()))
	}

	h.logger.Info("experiment lifecycle event", fields...)
	return nil
}

// Ensure LifecycleAuditHandler implements EventHandler
var _ shared.EventHandler = (*LifecycleAuditHandler)(nil)

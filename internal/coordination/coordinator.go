// Package coordination реализует cross-workflow операции.
//
// Координатор отображает типизированный запрос на один из четырёх
// примитивов engine: publish state, publish event, transfer resource,
// signal completion. Retry координатор не делает — операции
// publish-and-forget, повтор решает вызывающий по флагу RequiresRetry.
package coordination

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/retry"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Transport — примитивы engine для cross-workflow операций.
// engine.Publisher удовлетворяет интерфейсу.
type Transport interface {
	PublishWorkflowState(ctx context.Context, source, target string, state map[string]any) error
	PublishWorkflowEvent(ctx context.Context, source, target string, event map[string]any) error
	TransferResource(ctx context.Context, source, target, resourceID string, meta map[string]any) error
	SignalCompletion(ctx context.Context, source, target string, result map[string]any) error
}

// Coordinator выполняет cross-workflow операции через Transport.
type Coordinator struct {
	transport Transport
	metrics   *telemetry.Metrics
	logger    *slog.Logger

	// now подменяется в тестах.
	now func() time.Time
}

// NewCoordinator создаёт Coordinator.
func NewCoordinator(transport Transport, metrics *telemetry.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		transport: transport,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Coordinate выполняет cross-workflow операцию от имени sourceWorkflowID.
//
// Нарушенные preconditions (пустой target, неизвестный тип, handoff
// без resource id) — не-retryable отказ БЕЗ обращения к transport.
// Ошибка transport помечается RequiresRetry по общему предикату
// retryability; сам Coordinate не повторяет.
func (c *Coordinator) Coordinate(ctx context.Context, sourceWorkflowID string, req *domain.CoordinationRequest) *domain.CoordinationResult {
	result := &domain.CoordinationResult{
		Type:             req.Type,
		SourceWorkflowID: sourceWorkflowID,
		TargetWorkflowID: req.TargetWorkflowID,
	}

	if precondition := checkPreconditions(req); precondition != "" {
		result.ErrorCode = domain.ErrCodeCoordinationFailed
		result.Error = precondition
		result.CompletedAt = c.now()
		c.record(result)
		return result
	}

	var err error
	switch req.Type {
	case domain.CoordStateSync:
		err = c.transport.PublishWorkflowState(ctx, sourceWorkflowID, req.TargetWorkflowID, req.Payload)
	case domain.CoordEventPropagation:
		err = c.transport.PublishWorkflowEvent(ctx, sourceWorkflowID, req.TargetWorkflowID, req.Payload)
	case domain.CoordResourceHandoff:
		err = c.transport.TransferResource(ctx, sourceWorkflowID, req.TargetWorkflowID, req.ResourceID, req.Payload)
	case domain.CoordCompletionSignal:
		err = c.transport.SignalCompletion(ctx, sourceWorkflowID, req.TargetWorkflowID, req.Payload)
	}

	result.CompletedAt = c.now()

	if err != nil {
		result.ErrorCode = domain.ErrCodeCoordinationFailed
		result.Error = err.Error()
		result.RequiresRetry = retry.DefaultRetryable(err)
		c.logger.Warn("coordination failed",
			"type", req.Type,
			"source", sourceWorkflowID,
			"target", req.TargetWorkflowID,
			"retryable", result.RequiresRetry,
			"error", err,
		)
		c.record(result)
		return result
	}

	result.Success = true
	c.logger.Debug("coordination completed",
		"type", req.Type,
		"source", sourceWorkflowID,
		"target", req.TargetWorkflowID,
	)
	c.record(result)
	return result
}

// checkPreconditions проверяет запрос перед обращением к transport.
// Возвращает описание нарушения или пустую строку.
func checkPreconditions(req *domain.CoordinationRequest) string {
	if !req.Type.Valid() {
		return "unknown coordination type: " + string(req.Type)
	}
	if req.TargetWorkflowID == "" {
		return "target workflow id is required"
	}
	if req.Type == domain.CoordResourceHandoff && req.ResourceID == "" {
		return "resource id is required for resource_handoff"
	}
	return ""
}

// record фиксирует операцию в метриках.
func (c *Coordinator) record(result *domain.CoordinationResult) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCoordination(string(result.Type), result.Success)
}

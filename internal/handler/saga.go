package handler

import (
	"context"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/saga"
)

// CompensationPlanner извлекает compensation data из успешного
// результата шага: ids созданных артефактов, выделенных ресурсов,
// затронутые cache keys.
type CompensationPlanner func(input map[string]any, envelope *domain.TaskEnvelope) domain.CompensationData

// SagaHandler — saga-flavored обёртка над Handler.
//
// Успех шага записывает компенсацию в реестр (перезаписывая запись
// предыдущего шага той же саги) и помечает envelope CanCompensate.
// Упавший шаг НЕ записывает ничего — side effects не случились;
// наружу уходят классификация SAGA_STEP_FAILED, failureReason и
// retryability.
type SagaHandler struct {
	inner    Handler
	registry *saga.Registry
	planner  CompensationPlanner
	logger   *slog.Logger
}

// NewSagaHandler создаёт SagaHandler.
func NewSagaHandler(inner Handler, registry *saga.Registry, planner CompensationPlanner, logger *slog.Logger) *SagaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SagaHandler{
		inner:    inner,
		registry: registry,
		planner:  planner,
		logger:   logger,
	}
}

// Execute выполняет шаг саги.
// Вне саги (пустой sagaId) ведёт себя как обычный handler.
func (h *SagaHandler) Execute(ctx context.Context, input map[string]any, wfctx *domain.WorkflowContext) *domain.TaskEnvelope {
	envelope := h.inner.Execute(ctx, input, wfctx)

	if wfctx == nil || wfctx.SagaID == "" {
		return envelope
	}

	meta := &domain.SagaMetadata{
		SagaID:   wfctx.SagaID,
		StepName: wfctx.StepName,
	}
	envelope.SagaMetadata = meta

	if envelope.IsError() {
		meta.ErrorCode = domain.ErrCodeSagaStepFailed
		if envelope.WorkflowMetadata != nil {
			meta.FailureReason = envelope.WorkflowMetadata.FailureReason
			meta.Retryable = envelope.WorkflowMetadata.CanRetry
		}
		return envelope
	}

	data := h.plan(input, envelope)
	if data.IsEmpty() {
		// Шаг без side effects: компенсировать нечего
		return envelope
	}

	if err := h.registry.RecordStep(ctx, wfctx.SagaID, wfctx.StepName, data); err != nil {
		// Результат шага валиден, но откат недоступен — решает engine
		h.logger.Error("failed to record compensation",
			"saga_id", wfctx.SagaID,
			"step", wfctx.StepName,
			"error", err,
		)
		return envelope
	}

	meta.CanCompensate = true
	meta.CompensationData = &data
	return envelope
}

// plan извлекает compensation data планировщиком шага.
func (h *SagaHandler) plan(input map[string]any, envelope *domain.TaskEnvelope) domain.CompensationData {
	if h.planner != nil {
		return h.planner(input, envelope)
	}
	return DefaultPlanner(input, envelope)
}

// Health делегирует внутреннему handler'у.
func (h *SagaHandler) Health() domain.HandlerHealth {
	return h.inner.Health()
}

// Shutdown делегирует внутреннему handler'у.
func (h *SagaHandler) Shutdown(ctx context.Context) error {
	return h.inner.Shutdown(ctx)
}

// DefaultPlanner извлекает compensation data из параметров результата.
//
// Конвенция: task body кладёт в Parameters поля artifact_ids,
// resource_ids и cache_keys (строки или списки строк).
func DefaultPlanner(_ map[string]any, envelope *domain.TaskEnvelope) domain.CompensationData {
	return domain.CompensationData{
		ArtifactIDs: stringList(envelope.Parameters["artifact_ids"]),
		ResourceIDs: stringList(envelope.Parameters["resource_ids"]),
		CacheKeys:   stringList(envelope.Parameters["cache_keys"]),
	}
}

// stringList приводит значение параметра к списку строк.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

package domain

import "time"

// CoordinationType — тип cross-workflow операции.
//
// Каждый тип отображается ровно на один примитив engine:
// publish state, publish event, transfer resource, signal completion.
type CoordinationType string

const (
	// CoordStateSync — синхронизация состояния между workflows.
	CoordStateSync CoordinationType = "state_sync"

	// CoordEventPropagation — проброс события в другой workflow.
	CoordEventPropagation CoordinationType = "event_propagation"

	// CoordResourceHandoff — передача владения ресурсом.
	CoordResourceHandoff CoordinationType = "resource_handoff"

	// CoordCompletionSignal — сигнал о завершении workflow.
	CoordCompletionSignal CoordinationType = "completion_signal"
)

// Valid проверяет, известен ли тип координации.
func (t CoordinationType) Valid() bool {
	switch t {
	case CoordStateSync, CoordEventPropagation, CoordResourceHandoff, CoordCompletionSignal:
		return true
	}
	return false
}

// CoordinationRequest — запрос на cross-workflow координацию.
type CoordinationRequest struct {
	// Type — тип операции.
	Type CoordinationType `json:"type"`

	// TargetWorkflowID — обязательный идентификатор целевого workflow.
	// Отсутствие target — нарушение precondition, не retryable failure.
	TargetWorkflowID string `json:"target_workflow_id"`

	// ResourceID — идентификатор ресурса (для resource_handoff).
	ResourceID string `json:"resource_id,omitempty"`

	// Payload — передаваемые данные (state, событие, результат).
	Payload map[string]any `json:"payload,omitempty"`
}

// CoordinationResult — результат координации.
type CoordinationResult struct {
	// Success — операция выполнена.
	Success bool `json:"success"`

	// Type — тип операции.
	Type CoordinationType `json:"type"`

	// SourceWorkflowID — инициатор.
	SourceWorkflowID string `json:"source_workflow_id"`

	// TargetWorkflowID — адресат.
	TargetWorkflowID string `json:"target_workflow_id,omitempty"`

	// ErrorCode — код ошибки при неудаче.
	ErrorCode ErrorCode `json:"error_code,omitempty"`

	// Error — описание ошибки.
	Error string `json:"error,omitempty"`

	// RequiresRetry — стоит ли вызывающему повторить операцию.
	// Координатор сам retry НЕ делает: cross-workflow операции —
	// идемпотентные publish-and-forget вызовы.
	RequiresRetry bool `json:"requires_retry,omitempty"`

	// CompletedAt — время завершения операции.
	CompletedAt time.Time `json:"completed_at"`
}

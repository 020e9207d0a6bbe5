package domain

import "time"

// WorkflowContext — контекст вызова task, переданный engine'ом.
//
// Engine вызывает зарегистрированный handler с (input, context).
// Все поля опциональны: task может выполняться и вне workflow.
type WorkflowContext struct {
	// WorkflowID — стабильный идентификатор workflow instance,
	// назначенный engine'ом.
	WorkflowID string `json:"workflow_id,omitempty"`

	// SagaID — идентификатор саги (для saga-flavored tasks).
	SagaID string `json:"saga_id,omitempty"`

	// StepName — имя шага саги.
	StepName string `json:"step_name,omitempty"`

	// TimeoutSec — бюджет времени на task целиком. Retry executor
	// прекращает попытки, когда бюджет был бы превышен.
	TimeoutSec int `json:"timeout_sec,omitempty"`

	// Fields — произвольные поля контекста от engine.
	Fields map[string]any `json:"fields,omitempty"`
}

// TimeBudget возвращает бюджет времени как Duration.
// 0 — бюджет не задан (действует только таймаут engine).
func (c *WorkflowContext) TimeBudget() time.Duration {
	if c == nil || c.TimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// WorkflowState — состояние одного workflow instance на стороне worker'а.
//
// Создаётся при первом выполнении task для данного workflow id,
// мутируется каждым последующим выполнением. Принадлежит исключительно
// Task Execution Core; остальные компоненты читают снапшоты.
type WorkflowState struct {
	// WorkflowID — идентификатор workflow instance.
	WorkflowID string `json:"workflow_id"`

	// CommandHistory — последние N входов в порядке поступления.
	CommandHistory []string `json:"command_history"`

	// ExecutionCount — монотонный счётчик выполнений.
	ExecutionCount int `json:"execution_count"`

	// CreatedAt — время первого выполнения.
	CreatedAt time.Time `json:"created_at"`

	// LastUpdated — время последнего выполнения.
	LastUpdated time.Time `json:"last_updated"`
}

package task

import (
	"context"

	"github.com/shaiso/Conveyor/internal/domain"
)

// CallRequest — запрос к downstream-сервису task body.
type CallRequest struct {
	// Task — имя task, от имени которого идёт вызов.
	Task string `json:"task"`

	// Prompt — нормализованная команда/текст входа.
	Prompt string `json:"prompt"`

	// Model — model hint из execution context ("fast", "standard",
	// "powerful"). Downstream сам решает, как его трактовать.
	Model string `json:"model,omitempty"`

	// Context — поля execution context для task body.
	Context map[string]any `json:"context,omitempty"`
}

// CallResult — типизированный результат downstream-вызова.
//
// Никакого динамического JSON с ad hoc дефолтами: отсутствующие поля
// заполняет только FallbackResult на явной ветке "downstream упал".
type CallResult struct {
	// Intent — классифицированное намерение.
	Intent string `json:"intent"`

	// Confidence — уверенность [0..1].
	Confidence float64 `json:"confidence"`

	// Parameters — извлечённые параметры.
	Parameters map[string]any `json:"parameters,omitempty"`

	// TokenUsage — израсходованные токены/юниты.
	TokenUsage int `json:"token_usage,omitempty"`
}

// Caller — контракт downstream-вызова task body.
//
// Реализация обязана различать retryable и не-retryable ошибки:
// возвращать *domain.TaskError с кодом из таксономии (для HTTP —
// retry.FromStatus). Сетевые ошибки можно отдавать как есть.
type Caller interface {
	Call(ctx context.Context, req *CallRequest) (*CallResult, error)
}

// CallerFunc — адаптер функции к Caller.
type CallerFunc func(ctx context.Context, req *CallRequest) (*CallResult, error)

// Call реализует Caller.
func (f CallerFunc) Call(ctx context.Context, req *CallRequest) (*CallResult, error) {
	return f(ctx, req)
}

// FallbackResult — явный конструктор дефолтного результата.
// Используется ТОЛЬКО на объявленной ветке "downstream вернул пусто".
func FallbackResult(reason string) *CallResult {
	return &CallResult{
		Intent:     domain.IntentUnknown,
		Confidence: 0.1,
		Parameters: map[string]any{"fallback_reason": reason},
	}
}

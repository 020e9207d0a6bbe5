package task

import (
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Пороги complexity по длине нормализованной команды.
const (
	simpleMaxLen  = 40
	complexMinLen = 200
)

// ExecutionContext — контекст одного выполнения task.
//
// Комбинирует поля task, записанное состояние workflow (если
// workflow id известен) и complexity/model hints по размеру входа.
// Hints использует task body, не ядро: по ним downstream выбирает
// более дешёвую или более мощную стратегию.
type ExecutionContext struct {
	// TaskName — имя task.
	TaskName string

	// Command — нормализованная команда из входа.
	Command string

	// WorkflowID — workflow instance (пусто вне workflow).
	WorkflowID string

	// SagaID — сага (пусто для обычных tasks).
	SagaID string

	// CommandHistory — история команд workflow ДО текущего вызова.
	CommandHistory []string

	// ExecutionCount — счётчик выполнений. При построении — до
	// текущего вызова; recordState включает в него текущее выполнение.
	ExecutionCount int

	// Complexity — "simple" | "standard" | "complex".
	Complexity string

	// ModelHint — "fast" | "standard" | "powerful".
	ModelHint string

	// Fields — произвольные поля контекста от engine.
	Fields map[string]any
}

// validateInput проверяет вход task и извлекает команду.
//
// Правила:
//   - вход непустой
//   - есть распознаваемое command/text поле с непустой строкой
//   - workflow_id во входе, если присутствует, — строка
//
// Нарушение — VALIDATION_ERROR сразу: без retry и без кэша.
func validateInput(input map[string]any) (string, error) {
	if len(input) == 0 {
		return "", ErrEmptyInput
	}

	if raw, ok := input["workflow_id"]; ok {
		if _, isString := raw.(string); !isString {
			return "", ErrBadWorkflowID
		}
	}

	for _, field := range []string{"command", "text", "message", "prompt"} {
		raw, ok := input[field]
		if !ok {
			continue
		}
		command, isString := raw.(string)
		if !isString {
			continue
		}
		if normalized := normalizeCommand(command); normalized != "" {
			return normalized, nil
		}
	}

	return "", ErrNoCommand
}

// normalizeCommand приводит команду к каноничному виду:
// trim, схлопывание пробелов, lower case.
func normalizeCommand(command string) string {
	return strings.ToLower(strings.Join(strings.Fields(command), " "))
}

// buildExecutionContext собирает контекст выполнения.
func buildExecutionContext(taskName, command string, wfctx *domain.WorkflowContext, states *StateStore) *ExecutionContext {
	execCtx := &ExecutionContext{
		TaskName:   taskName,
		Command:    command,
		Complexity: complexityOf(command),
	}
	execCtx.ModelHint = modelHintFor(execCtx.Complexity)

	if wfctx != nil {
		execCtx.WorkflowID = wfctx.WorkflowID
		execCtx.SagaID = wfctx.SagaID
		execCtx.Fields = wfctx.Fields
	}

	if execCtx.WorkflowID != "" {
		if state, ok := states.Get(execCtx.WorkflowID); ok {
			execCtx.CommandHistory = state.CommandHistory
			execCtx.ExecutionCount = state.ExecutionCount
		}
	}

	return execCtx
}

// complexityOf оценивает сложность входа по размеру.
func complexityOf(command string) string {
	switch {
	case len(command) <= simpleMaxLen:
		return "simple"
	case len(command) >= complexMinLen:
		return "complex"
	default:
		return "standard"
	}
}

// modelHintFor отображает complexity в model hint.
func modelHintFor(complexity string) string {
	switch complexity {
	case "simple":
		return "fast"
	case "complex":
		return "powerful"
	default:
		return "standard"
	}
}

// callContext сериализует execution context в поля для downstream.
func (e *ExecutionContext) callContext() map[string]any {
	fields := make(map[string]any, len(e.Fields)+4)
	for k, v := range e.Fields {
		fields[k] = v
	}
	if e.WorkflowID != "" {
		fields["workflow_id"] = e.WorkflowID
		fields["execution_count"] = e.ExecutionCount
		fields["command_history"] = e.CommandHistory
	}
	fields["complexity"] = e.Complexity
	return fields
}

// Package handler реализует экземпляры task handlers для оркестратора.
//
// Handler — единица restart'а: оркестратор пересоздаёт экземпляр
// через Factory, когда health-check признал его unhealthy. Каждый
// экземпляр ведёт собственное окно success rate — после restart
// статистика начинается с чистого листа.
package handler

import (
	"context"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/task"
)

// Default configuration values.
const (
	defaultWindowSize   = 50
	defaultRecentErrors = 5
)

// Handler — экземпляр обработчика task.
type Handler interface {
	// Execute выполняет task. Никогда не возвращает ошибку:
	// любой сбой приходит envelope'ом с workflow_error.
	Execute(ctx context.Context, input map[string]any, wfctx *domain.WorkflowContext) *domain.TaskEnvelope

	// Health возвращает самооценку handler'а.
	Health() domain.HandlerHealth

	// Shutdown освобождает ресурсы экземпляра.
	Shutdown(ctx context.Context) error
}

// Factory создаёт новый экземпляр handler (регистрация и restart).
type Factory func() (Handler, error)

// TaskHandler — handler поверх task.Core со скользящим окном
// success rate.
type TaskHandler struct {
	core *task.Core

	mu        sync.Mutex
	window    []bool // кольцо последних исходов
	next      int
	filled    int
	processed int64
	errors    []string
}

// NewTaskHandler создаёт TaskHandler.
// windowSize <= 0 заменяется дефолтом (50).
func NewTaskHandler(core *task.Core, windowSize int) *TaskHandler {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &TaskHandler{
		core:   core,
		window: make([]bool, windowSize),
	}
}

// Execute выполняет task и учитывает исход в окне.
func (h *TaskHandler) Execute(ctx context.Context, input map[string]any, wfctx *domain.WorkflowContext) *domain.TaskEnvelope {
	envelope := h.core.Execute(ctx, input, wfctx)
	h.observe(envelope)
	return envelope
}

// observe записывает исход в кольцо.
func (h *TaskHandler) observe(envelope *domain.TaskEnvelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	success := !envelope.IsError()
	h.window[h.next] = success
	h.next = (h.next + 1) % len(h.window)
	if h.filled < len(h.window) {
		h.filled++
	}
	h.processed++

	if !success && envelope.WorkflowMetadata != nil {
		h.errors = append(h.errors, envelope.WorkflowMetadata.FailureReason)
		if len(h.errors) > defaultRecentErrors {
			h.errors = h.errors[len(h.errors)-defaultRecentErrors:]
		}
	}
}

// Health возвращает success rate по окну.
// Пока окно пустое, handler считается здоровым.
func (h *TaskHandler) Health() domain.HandlerHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	rate := 100.0
	if h.filled > 0 {
		successes := 0
		for i := 0; i < h.filled; i++ {
			if h.window[i] {
				successes++
			}
		}
		rate = float64(successes) / float64(h.filled) * 100
	}

	status := "ok"
	if rate <= 50 {
		status = "degraded"
	}

	return domain.HandlerHealth{
		Status:         status,
		SuccessRate:    rate,
		TasksProcessed: h.processed,
		RecentErrors:   append([]string(nil), h.errors...),
	}
}

// Shutdown освобождает экземпляр. У TaskHandler внешних ресурсов нет.
func (h *TaskHandler) Shutdown(_ context.Context) error {
	return nil
}

package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/cache"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/retry"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// defaultConfidenceThreshold — ниже этого порога результат помечается
// suggested action "needs_clarification".
const defaultConfidenceThreshold = 0.7

// Core — ядро выполнения task.
//
// Один Core на один registered task; потокобезопасен, Execute можно
// звать конкурентно из consumer'ов engine.
type Core struct {
	taskName  string
	cache     *cache.Cache
	states    *StateStore
	metrics   *telemetry.Metrics
	executor  *retry.Executor
	caller    Caller
	logger    *slog.Logger
	threshold float64
}

// Config — конфигурация Core.
type Config struct {
	// TaskName — имя task.
	TaskName string

	// Cache — response cache (nil — кэширование выключено).
	Cache *cache.Cache

	// States — хранилище workflow states.
	States *StateStore

	// Metrics — счётчики выполнения.
	Metrics *telemetry.Metrics

	// Executor — retry executor для downstream-вызовов.
	Executor *retry.Executor

	// Caller — downstream-вызов task body.
	Caller Caller

	// Logger
	Logger *slog.Logger

	// ConfidenceThreshold — порог "needs_clarification".
	// <= 0 заменяется дефолтом (0.7).
	ConfidenceThreshold float64
}

// NewCore создаёт Core.
func NewCore(cfg Config) *Core {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	states := cfg.States
	if states == nil {
		states = NewStateStore(0)
	}

	executor := cfg.Executor
	if executor == nil {
		executor = retry.New(retry.Config{Logger: logger})
	}

	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}

	return &Core{
		taskName:  cfg.TaskName,
		cache:     cfg.Cache,
		states:    states,
		metrics:   cfg.Metrics,
		executor:  executor,
		caller:    cfg.Caller,
		logger:    logger,
		threshold: threshold,
	}
}

// States возвращает хранилище workflow states.
func (c *Core) States() *StateStore {
	return c.states
}

// CacheKey строит ключ response cache для команды task.
// Экспортирован для saga-компенсации: шаг записывает в compensation
// data ключи, которые компенсация потом инвалидирует.
func CacheKey(taskName, command string) string {
	return taskName + "::" + normalizeCommand(command)
}

// Execute выполняет task и возвращает envelope.
//
// Никогда не паникует и не возвращает ошибку: паника и любой сбой
// конвертируются в envelope с intent=workflow_error.
func (c *Core) Execute(ctx context.Context, input map[string]any, wfctx *domain.WorkflowContext) (envelope *domain.TaskEnvelope) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("task panicked",
				"task", c.taskName,
				"panic", r,
			)
			err := domain.NewTaskError(domain.ErrCodeInternal,
				fmt.Sprintf("panic: %v", r), false)
			envelope = c.errorEnvelope(err, wfctx, nil)
		}
		c.observe(envelope, started)
	}()

	command, err := validateInput(input)
	if err != nil {
		// Невалидный вход фатален для вызова: без retry и без кэша
		return c.errorEnvelope(domain.NewValidationError(err.Error()), wfctx, nil)
	}

	execCtx := buildExecutionContext(c.taskName, command, wfctx, c.states)

	key := CacheKey(c.taskName, command)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			if result, isResult := cached.(*CallResult); isResult {
				if c.metrics != nil {
					c.metrics.RecordCacheHit()
				}
				c.recordState(execCtx, command)
				env := c.buildEnvelope(result, execCtx)
				env.Cached = true
				return env
			}
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss()
		}
	}

	// Состояние workflow обновляется ДО task body: упавшее выполнение
	// тоже часть истории
	c.recordState(execCtx, command)

	result, err := c.callDownstream(ctx, execCtx, wfctx)
	if err != nil {
		c.logger.Warn("task execution failed",
			"task", c.taskName,
			"workflow_id", execCtx.WorkflowID,
			"error", err,
		)
		return c.errorEnvelope(err, wfctx, execCtx)
	}

	if result == nil {
		// Downstream отработал, но вернул пусто — единственная ветка
		// дефолтного результата
		result = FallbackResult("downstream returned empty result")
	}

	if c.cache != nil {
		c.cache.Put(key, result)
	}

	return c.buildEnvelope(result, execCtx)
}

// callDownstream выполняет downstream-вызов через retry executor,
// с deadline из бюджета времени task.
func (c *Core) callDownstream(ctx context.Context, execCtx *ExecutionContext, wfctx *domain.WorkflowContext) (*CallResult, error) {
	if c.caller == nil {
		return nil, domain.NewTaskError(domain.ErrCodeInternal,
			"no downstream caller configured", false)
	}

	if budget := wfctx.TimeBudget(); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	req := &CallRequest{
		Task:    c.taskName,
		Prompt:  execCtx.Command,
		Model:   execCtx.ModelHint,
		Context: execCtx.callContext(),
	}

	return retry.Run(ctx, c.executor, func(ctx context.Context) (*CallResult, error) {
		return c.caller.Call(ctx, req)
	})
}

// recordState применяет выполнение к состоянию workflow и обновляет
// счётчик выполнений в execution context.
func (c *Core) recordState(execCtx *ExecutionContext, command string) {
	if execCtx.WorkflowID == "" {
		return
	}
	state := c.states.Record(execCtx.WorkflowID, command)
	execCtx.ExecutionCount = state.ExecutionCount
	if c.metrics != nil {
		c.metrics.SetWorkflowStates(c.states.Len())
	}
}

// buildEnvelope собирает успешный envelope с continuation-метаданными.
func (c *Core) buildEnvelope(result *CallResult, execCtx *ExecutionContext) *domain.TaskEnvelope {
	env := &domain.TaskEnvelope{
		Intent:           result.Intent,
		Confidence:       result.Confidence,
		Parameters:       result.Parameters,
		TokenUsage:       result.TokenUsage,
		SuggestedActions: suggestedActions(result.Confidence, c.threshold),
		NextSteps:        nextStepsFor(result.Intent),
		Insights:         insightsFor(execCtx),
	}

	if execCtx.WorkflowID != "" {
		env.WorkflowMetadata = &domain.WorkflowMetadata{
			WorkflowID:     execCtx.WorkflowID,
			ExecutionCount: execCtx.ExecutionCount,
		}
	}

	return env
}

// errorEnvelope конвертирует ошибку в envelope с intent=workflow_error.
func (c *Core) errorEnvelope(err error, wfctx *domain.WorkflowContext, execCtx *ExecutionContext) *domain.TaskEnvelope {
	code := domain.CodeOf(err)

	meta := &domain.WorkflowMetadata{
		ErrorCode:     code,
		FailureReason: err.Error(),
		CanRetry:      code != domain.ErrCodeValidation && domain.IsRetryable(err),
	}

	if wfctx != nil {
		meta.WorkflowID = wfctx.WorkflowID
		// Компенсация нужна, только если шаг шёл внутри саги и
		// повтор уже не поможет
		meta.CompensationRequired = wfctx.SagaID != "" && !meta.CanRetry
	}
	if execCtx != nil {
		meta.ExecutionCount = execCtx.ExecutionCount
	}

	return &domain.TaskEnvelope{
		Intent:           domain.IntentWorkflowError,
		Confidence:       0,
		Parameters:       map[string]any{"error_code": string(code)},
		WorkflowMetadata: meta,
	}
}

// observe фиксирует завершение task в метриках.
func (c *Core) observe(envelope *domain.TaskEnvelope, started time.Time) {
	if c.metrics == nil || envelope == nil {
		return
	}
	c.metrics.RecordTask(envelope.Intent, !envelope.IsError(),
		envelope.TokenUsage, time.Since(started))
}

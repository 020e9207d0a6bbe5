package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Default configuration values.
const (
	defaultConcurrency = 5
)

// HandlerFunc — зарегистрированный обработчик task.
//
// Контракт границы engine: handler ВСЕГДА возвращает envelope,
// никогда не паникует наружу и не возвращает ошибку — engine ждёт
// result object для штатного продолжения workflow.
type HandlerFunc func(ctx context.Context, input map[string]any, wfctx *domain.WorkflowContext) *domain.TaskEnvelope

// Event — lifecycle-событие engine-клиента.
type Event string

const (
	// EventTaskStarted — начат вызов task.
	EventTaskStarted Event = "task:started"

	// EventTaskCompleted — task завершён успешно.
	EventTaskCompleted Event = "task:completed"

	// EventTaskFailed — task завершён с ошибкой (envelope с workflow_error).
	EventTaskFailed Event = "task:failed"

	// EventError — ошибка соединения/транспорта.
	EventError Event = "error"
)

// TaskEvent — данные lifecycle-события.
type TaskEvent struct {
	// TaskName — имя task (пусто для EventError).
	TaskName string

	// WorkflowID — workflow instance, если известен.
	WorkflowID string

	// ErrorCode — код ошибки для task:failed / error.
	ErrorCode domain.ErrorCode

	// Error — описание ошибки.
	Error string

	// At — время события.
	At time.Time
}

// EventCallback — подписчик на события.
type EventCallback func(event TaskEvent)

// Client — граница с внешним workflow engine.
//
// Реализует контракт: registerTaskHandler, start, stop, reconnect,
// isConnected, подписку на события и координационные примитивы.
// Handler-функции вызываются конкурентно до concurrency ceiling
// (prefetch очереди).
type Client struct {
	conn      *Connection
	publisher *Publisher
	logger    *slog.Logger

	mu        sync.RWMutex
	handlers  map[string]HandlerFunc
	consumers map[string]*Consumer
	callbacks map[Event][]EventCallback

	// concurrency — текущий ceiling. Снижается как backpressure при
	// overload; применяется при следующем (re)setup consumer'ов.
	concurrency int

	started    bool
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ClientConfig — конфигурация Client.
type ClientConfig struct {
	// Conn — соединение с engine.
	Conn *Connection

	// Concurrency — ceiling конкурентных вызовов на очередь (default: 5).
	Concurrency int

	// Logger
	Logger *slog.Logger
}

// NewClient создаёт Client.
func NewClient(cfg ClientConfig) *Client {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		conn:        cfg.Conn,
		publisher:   NewPublisher(cfg.Conn, logger),
		logger:      logger,
		handlers:    make(map[string]HandlerFunc),
		consumers:   make(map[string]*Consumer),
		callbacks:   make(map[Event][]EventCallback),
		concurrency: concurrency,
	}

	// Потеря соединения — ENGINE_CONNECTION_LOST наружу; сам reconnect
	// крутится бесконечно внутри Connection.
	cfg.Conn.OnDisconnect(func(err error) {
		c.emit(EventError, TaskEvent{
			ErrorCode: domain.ErrCodeEngineConnectionLost,
			Error:     err.Error(),
			At:        time.Now(),
		})
	})

	return c
}

// RegisterTaskHandler привязывает handler к имени task.
//
// Повторная регистрация того же имени подменяет handler на месте
// (так оркестратор подставляет новый экземпляр после restart) —
// consumer очереди при этом не пересоздаётся.
func (c *Client) RegisterTaskHandler(name string, fn HandlerFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, replacing := c.handlers[name]
	c.handlers[name] = fn

	if replacing {
		c.logger.Info("task handler replaced", "task", name)
		return nil
	}

	c.logger.Info("task handler registered", "task", name)
	return nil
}

// Start объявляет топологию и запускает consumer на каждую
// зарегистрированную task. Без соединения с engine — фатальная ошибка.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	if !c.conn.IsConnected() {
		c.mu.Unlock()
		return ErrNotConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.started = true

	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	c.mu.Unlock()

	if err := SetupTopology(c.conn); err != nil {
		return err
	}

	for _, name := range names {
		if err := DeclareTaskQueue(c.conn, name); err != nil {
			return err
		}

		taskName := name
		consumer := NewConsumer(c.conn, c.logger, ConsumerConfig{
			Queue: string(TaskQueue(taskName)),
			Handler: func(ctx context.Context, delivery *Delivery) error {
				return c.dispatch(ctx, taskName, delivery)
			},
			Prefetch: c.Concurrency,
		})

		c.mu.Lock()
		c.consumers[taskName] = consumer
		c.mu.Unlock()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("task consumer error", "task", taskName, "error", err)
			}
		}()
	}

	c.logger.Info("engine client started", "tasks", len(names), "concurrency", c.Concurrency())
	return nil
}

// dispatch обрабатывает один вызов task.
func (c *Client) dispatch(ctx context.Context, taskName string, delivery *Delivery) error {
	payload, err := ParsePayload[TaskInvokePayload](&delivery.Message)
	if err != nil {
		c.logger.Error("failed to parse task.invoke payload", "task", taskName, "error", err)
		return err
	}

	c.mu.RLock()
	fn, ok := c.handlers[taskName]
	c.mu.RUnlock()
	if !ok {
		return ErrHandlerNotFound
	}

	workflowID := ""
	if payload.Context != nil {
		workflowID = payload.Context.WorkflowID
	}

	c.emit(EventTaskStarted, TaskEvent{
		TaskName:   taskName,
		WorkflowID: workflowID,
		At:         time.Now(),
	})

	// Handler не возвращает ошибок — любой исход приходит envelope'ом
	envelope := fn(ctx, payload.Input, payload.Context)

	if envelope.IsError() {
		event := TaskEvent{
			TaskName:   taskName,
			WorkflowID: workflowID,
			At:         time.Now(),
		}
		if envelope.WorkflowMetadata != nil {
			event.ErrorCode = envelope.WorkflowMetadata.ErrorCode
			event.Error = envelope.WorkflowMetadata.FailureReason
		}
		c.emit(EventTaskFailed, event)
	} else {
		c.emit(EventTaskCompleted, TaskEvent{
			TaskName:   taskName,
			WorkflowID: workflowID,
			At:         time.Now(),
		})
	}

	if err := c.publisher.PublishTaskResult(ctx, TaskResultPayload{
		InvocationID: payload.InvocationID,
		TaskName:     taskName,
		WorkflowID:   workflowID,
		Envelope:     envelope,
	}); err != nil {
		// Результат не доставлен — nack вернёт вызов в очередь
		return err
	}

	return nil
}

// Stop останавливает consumers. Idempotent.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	consumers := make([]*Consumer, 0, len(c.consumers))
	for _, consumer := range c.consumers {
		consumers = append(consumers, consumer)
	}
	c.consumers = make(map[string]*Consumer)
	c.mu.Unlock()

	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	for _, consumer := range consumers {
		consumer.Stop()
	}
	c.wg.Wait()

	c.logger.Info("engine client stopped")
	return nil
}

// Reconnect принудительно переустанавливает соединение.
func (c *Client) Reconnect() error {
	return c.conn.Reconnect()
}

// IsConnected проверяет соединение с engine.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// On подписывает callback на событие.
func (c *Client) On(event Event, cb EventCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[event] = append(c.callbacks[event], cb)
}

// emit вызывает подписчиков события.
func (c *Client) emit(event Event, data TaskEvent) {
	c.mu.RLock()
	callbacks := c.callbacks[event]
	c.mu.RUnlock()

	for _, cb := range callbacks {
		cb(data)
	}
}

// Concurrency возвращает текущий ceiling.
func (c *Client) Concurrency() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.concurrency
}

// ReduceConcurrency снижает ceiling до fraction от текущего (backpressure
// при overload). Применяется при следующем (re)setup consumer'ов:
// runtime-переконфигурация живого канала у engine-транспорта отсутствует.
func (c *Client) ReduceConcurrency(fraction float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	reduced := int(float64(c.concurrency) * fraction)
	if reduced < 1 {
		reduced = 1
	}
	c.concurrency = reduced

	c.logger.Warn("concurrency ceiling reduced", "concurrency", c.concurrency)
	return c.concurrency
}

// Publisher возвращает publisher для координационных примитивов.
func (c *Client) Publisher() *Publisher {
	return c.publisher
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/handler"
)

// Default configuration values.
const (
	defaultHealthInterval    = 30 * time.Second
	defaultOverloadThreshold = 100
	maxRegistrationErrors    = 10
	timeoutRestartStreak     = 3
	concurrencyReduction     = 0.75 // -25% при overload
)

// Engine — контракт engine-клиента, нужный оркестратору.
// Реализуется engine.Client; в тестах подменяется фейком.
type Engine interface {
	RegisterTaskHandler(name string, fn engine.HandlerFunc) error
	Start(ctx context.Context) error
	Stop() error
	Reconnect() error
	IsConnected() bool
	On(event engine.Event, cb engine.EventCallback)
	ReduceConcurrency(fraction float64) int
}

// registration — живое состояние одной регистрации.
// Доступ только под мьютексом оркестратора.
type registration struct {
	taskName string
	factory  handler.Factory
	handler  handler.Handler

	status        domain.WorkerStatus
	processed     int64
	lastTaskAt    *time.Time
	restarts      int
	errors        []domain.RegistrationError
	timeoutStreak int // подряд идущие timeout-ошибки, сброс успехом
}

// Orchestrator управляет регистрациями task handlers.
type Orchestrator struct {
	eng    Engine
	logger *slog.Logger

	healthInterval    time.Duration
	overloadThreshold int64

	mu            sync.Mutex
	registrations map[string]*registration
	inflight      int64
	started       bool
	stopHealth    context.CancelFunc
	healthDone    chan struct{}
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Engine — engine-клиент.
	Engine Engine

	// HealthInterval — период health-check (default: 30s).
	HealthInterval time.Duration

	// OverloadThreshold — количество одновременных вызовов, выше
	// которого снижается concurrency ceiling (default: 100).
	OverloadThreshold int64

	// Logger
	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	healthInterval := cfg.HealthInterval
	if healthInterval <= 0 {
		healthInterval = defaultHealthInterval
	}

	overload := cfg.OverloadThreshold
	if overload <= 0 {
		overload = defaultOverloadThreshold
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		eng:               cfg.Engine,
		logger:            logger,
		healthInterval:    healthInterval,
		overloadThreshold: overload,
		registrations:     make(map[string]*registration),
	}
}

// Register создаёт handler через factory и привязывает его к task.
// Factory сохраняется: по ней же оркестратор пересоздаёт handler
// при restart.
func (o *Orchestrator) Register(taskName string, factory handler.Factory) error {
	o.mu.Lock()
	if _, exists := o.registrations[taskName]; exists {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskRegistered, taskName)
	}
	o.mu.Unlock()

	h, err := factory()
	if err != nil {
		return fmt.Errorf("create handler %s: %w", taskName, err)
	}

	if err := o.eng.RegisterTaskHandler(taskName, h.Execute); err != nil {
		return fmt.Errorf("register handler %s: %w", taskName, err)
	}

	o.mu.Lock()
	o.registrations[taskName] = &registration{
		taskName: taskName,
		factory:  factory,
		handler:  h,
		status:   domain.WorkerStatusRegistered,
	}
	o.mu.Unlock()

	o.logger.Info("task registered", "task", taskName)
	return nil
}

// Start подписывается на события engine и запускает клиент.
// Ошибка старта фатальна: без engine worker бесполезен.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	o.mu.Unlock()

	o.eng.On(engine.EventTaskStarted, o.onTaskStarted)
	o.eng.On(engine.EventTaskCompleted, o.onTaskCompleted)
	o.eng.On(engine.EventTaskFailed, o.onTaskFailed)
	o.eng.On(engine.EventError, o.onEngineError)

	if err := o.eng.Start(ctx); err != nil {
		o.mu.Lock()
		o.started = false
		o.mu.Unlock()
		return fmt.Errorf("start engine client: %w", err)
	}

	healthCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.stopHealth = cancel
	o.healthDone = make(chan struct{})
	tasks := len(o.registrations)
	o.mu.Unlock()

	go o.healthLoop(healthCtx)

	o.logger.Info("orchestrator started", "tasks", tasks)
	return nil
}

// Shutdown останавливает оркестратор. Idempotent.
//
// Handlers закрываются конкурентно; ошибки собираются, но не
// прерывают остановку остальных.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = false

	stopHealth := o.stopHealth
	healthDone := o.healthDone
	handlers := make([]handler.Handler, 0, len(o.registrations))
	for _, reg := range o.registrations {
		if reg.handler != nil {
			handlers = append(handlers, reg.handler)
		}
	}
	o.registrations = make(map[string]*registration)
	o.mu.Unlock()

	if stopHealth != nil {
		stopHealth()
		<-healthDone
	}

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		errList []error
	)
	for _, h := range handlers {
		wg.Add(1)
		go func(h handler.Handler) {
			defer wg.Done()
			if err := h.Shutdown(ctx); err != nil {
				errMu.Lock()
				errList = append(errList, err)
				errMu.Unlock()
			}
		}(h)
	}
	wg.Wait()

	if err := o.eng.Stop(); err != nil {
		errList = append(errList, err)
	}

	o.logger.Info("orchestrator stopped", "handler_errors", len(errList))
	return errors.Join(errList...)
}

// Status возвращает снапшоты регистраций и агрегированное здоровье.
func (o *Orchestrator) Status() ([]domain.WorkerRegistration, domain.OverallHealth) {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshots := make([]domain.WorkerRegistration, 0, len(o.registrations))
	unhealthy := 0
	for _, reg := range o.registrations {
		health := domain.HandlerHealth{}
		if reg.handler != nil {
			health = reg.handler.Health()
		}
		if isUnhealthy(reg, health) {
			unhealthy++
		}
		snapshots = append(snapshots, domain.WorkerRegistration{
			TaskName:       reg.taskName,
			Status:         reg.status,
			TasksProcessed: reg.processed,
			LastTaskAt:     reg.lastTaskAt,
			Restarts:       reg.restarts,
			Errors:         append([]domain.RegistrationError(nil), reg.errors...),
			Health:         health,
		})
	}

	return snapshots, overallHealth(len(o.registrations), unhealthy)
}

// --- Event handlers ---

func (o *Orchestrator) onTaskStarted(event engine.TaskEvent) {
	o.mu.Lock()
	o.inflight++
	o.mu.Unlock()
}

func (o *Orchestrator) onTaskCompleted(event engine.TaskEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.inflight--
	if reg, ok := o.registrations[event.TaskName]; ok {
		reg.processed++
		at := event.At
		reg.lastTaskAt = &at
		reg.timeoutStreak = 0
	}
}

func (o *Orchestrator) onTaskFailed(event engine.TaskEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.inflight--
	reg, ok := o.registrations[event.TaskName]
	if !ok {
		return
	}

	reg.processed++
	at := event.At
	reg.lastTaskAt = &at

	reg.errors = append(reg.errors, domain.RegistrationError{
		Code:    event.ErrorCode,
		Message: event.Error,
		At:      event.At,
	})
	if len(reg.errors) > maxRegistrationErrors {
		reg.errors = reg.errors[len(reg.errors)-maxRegistrationErrors:]
	}

	if event.ErrorCode == domain.ErrCodeTimeout {
		reg.timeoutStreak++
	} else {
		reg.timeoutStreak = 0
	}
}

func (o *Orchestrator) onEngineError(event engine.TaskEvent) {
	// Reconnect крутится бесконечно внутри Connection; здесь только журнал
	o.logger.Error("engine connection lost",
		"code", event.ErrorCode,
		"error", event.Error,
	)
}

// --- Helpers ---

// isUnhealthy решает, нуждается ли регистрация в restart.
func isUnhealthy(reg *registration, health domain.HandlerHealth) bool {
	if reg.status == domain.WorkerStatusFailed {
		return false // терминальный, restart не поможет
	}
	return health.SuccessRate <= 50
}

// overallHealth агрегирует здоровье процесса.
func overallHealth(total, unhealthy int) domain.OverallHealth {
	switch {
	case total == 0 || unhealthy == 0:
		return domain.HealthHealthy
	case unhealthy*2 <= total:
		return domain.HealthDegraded
	default:
		return domain.HealthCritical
	}
}

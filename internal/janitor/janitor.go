// Package janitor реализует фоновое обслуживание worker'а по cron.
//
// Две периодические работы:
//   - вытеснение workflow states, не обновлявшихся дольше maxIdle
//   - обновление gauges: бэклог компенсаций и количество резидентных
//     workflow states
//
// Обслуживание best-effort: упавший тик логируется и не влияет на
// выполнение tasks.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/saga"
	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Default configuration values.
const (
	defaultEvictSpec = "*/10 * * * *" // каждые 10 минут
	defaultGaugeSpec = "* * * * *"    // каждую минуту
	defaultMaxIdle   = time.Hour
)

// Janitor — планировщик обслуживания.
type Janitor struct {
	cron    *cron.Cron
	states  *task.StateStore
	sagas   *saga.Registry
	metrics *telemetry.Metrics
	logger  *slog.Logger
	maxIdle time.Duration
}

// Config — конфигурация Janitor.
type Config struct {
	// States — хранилище workflow states.
	States *task.StateStore

	// Sagas — реестр компенсаций (nil — gauge бэклога не обновляется).
	Sagas *saga.Registry

	// Metrics
	Metrics *telemetry.Metrics

	// MaxIdle — порог вытеснения workflow states (default: 1h).
	MaxIdle time.Duration

	// EvictSpec — cron-выражение вытеснения (default: каждые 10 минут).
	EvictSpec string

	// GaugeSpec — cron-выражение обновления gauges (default: каждую минуту).
	GaugeSpec string

	// Logger
	Logger *slog.Logger
}

// New создаёт Janitor и регистрирует работы.
func New(cfg Config) (*Janitor, error) {
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}

	evictSpec := cfg.EvictSpec
	if evictSpec == "" {
		evictSpec = defaultEvictSpec
	}

	gaugeSpec := cfg.GaugeSpec
	if gaugeSpec == "" {
		gaugeSpec = defaultGaugeSpec
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	j := &Janitor{
		cron:    cron.New(),
		states:  cfg.States,
		sagas:   cfg.Sagas,
		metrics: cfg.Metrics,
		logger:  logger,
		maxIdle: maxIdle,
	}

	if j.states != nil {
		if _, err := j.cron.AddFunc(evictSpec, j.evictStates); err != nil {
			return nil, err
		}
	}
	if j.metrics != nil {
		if _, err := j.cron.AddFunc(gaugeSpec, j.updateGauges); err != nil {
			return nil, err
		}
	}

	return j, nil
}

// Start запускает планировщик.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("janitor started", "max_idle", j.maxIdle)
}

// Stop останавливает планировщик, дожидаясь текущих работ.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("janitor stopped")
}

// evictStates вытесняет залежавшиеся workflow states.
func (j *Janitor) evictStates() {
	evicted := j.states.EvictIdle(j.maxIdle)
	if evicted > 0 {
		j.logger.Info("idle workflow states evicted",
			"evicted", evicted,
			"resident", j.states.Len(),
		)
	}
	if j.metrics != nil {
		j.metrics.SetWorkflowStates(j.states.Len())
	}
}

// updateGauges обновляет gauges бэклога и workflow states.
func (j *Janitor) updateGauges() {
	if j.states != nil {
		j.metrics.SetWorkflowStates(j.states.Len())
	}
	if j.sagas == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backlog, err := j.sagas.Backlog(ctx)
	if err != nil {
		j.logger.Warn("failed to read saga backlog", "error", err)
		return
	}
	j.metrics.SetSagaBacklog(backlog)
}

package api

import (
	"log/slog"

	"github.com/shaiso/Conveyor/internal/cache"
	"github.com/shaiso/Conveyor/internal/coordination"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/saga"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// StatusSource — снапшот регистраций от оркестратора.
type StatusSource interface {
	Status() ([]domain.WorkerRegistration, domain.OverallHealth)
}

// EngineProbe — проверка соединения с engine.
type EngineProbe interface {
	IsConnected() bool
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orchestrator StatusSource
	engine       EngineProbe
	sagas        *saga.Registry
	coordinator  *coordination.Coordinator
	cache        *cache.Cache
	metrics      *telemetry.Metrics
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orchestrator StatusSource
	Engine       EngineProbe
	Sagas        *saga.Registry
	Coordinator  *coordination.Coordinator
	Cache        *cache.Cache
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orchestrator: cfg.Orchestrator,
		engine:       cfg.Engine,
		sagas:        cfg.Sagas,
		coordinator:  cfg.Coordinator,
		cache:        cfg.Cache,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

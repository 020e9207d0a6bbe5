// Conveyor Worker — выполняет tasks для внешнего workflow engine.
//
// Worker:
//   - Получает вызовы tasks из engine (RabbitMQ)
//   - Выполняет их через downstream-сервис с retry и response cache
//   - Участвует в сагах: записывает и выполняет компенсации
//   - Перезапускает unhealthy handlers по health-check
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/cache"
	"github.com/shaiso/Conveyor/internal/coordination"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/handler"
	"github.com/shaiso/Conveyor/internal/janitor"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/retry"
	"github.com/shaiso/Conveyor/internal/saga"
	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	responseCache := cache.New(0, 0)
	states := task.NewStateStore(0)

	// Хранилище компенсаций: Postgres при DB_URL, иначе in-memory
	var sagaStore saga.Store
	if os.Getenv("DB_URL") != "" {
		pool, err := repo.NewPool(ctx)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		sagaRepo := repo.NewSagaRepo(pool)
		if err := sagaRepo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure saga schema", "error", err)
			os.Exit(1)
		}
		sagaStore = sagaRepo
		logger.Info("database connected, compensation records are durable")
	} else {
		sagaStore = saga.NewMemoryStore()
		logger.Warn("DB_URL not set, compensation records will not survive restarts")
	}

	sagas := saga.NewRegistry(saga.RegistryConfig{
		Store:   sagaStore,
		Cache:   responseCache,
		Metrics: metrics,
		Logger:  logger,
	})

	// Engine: без соединения worker бесполезен
	conn, err := engine.NewConnection(engine.URL(), logger)
	if err != nil {
		logger.Error("failed to connect to workflow engine", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("workflow engine connected")

	client := engine.NewClient(engine.ClientConfig{
		Conn:   conn,
		Logger: logger,
	})

	// Downstream caller с refresh credentials
	downstreamURL := os.Getenv("DOWNSTREAM_URL")
	if downstreamURL == "" {
		downstreamURL = "http://localhost:9090/v1/execute"
	}
	caller := task.NewHTTPCaller(task.HTTPCallerConfig{
		Endpoint: downstreamURL,
		APIKey:   os.Getenv("DOWNSTREAM_API_KEY"),
	})
	executor := retry.New(retry.Config{
		Policy:    retry.DefaultPolicy(),
		Refresher: task.NewEnvKeyRefresher("DOWNSTREAM_API_KEY", caller),
		Logger:    logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Engine: client,
		Logger: logger,
	})

	// Регистрируем tasks. Каждый handler — saga-flavored: вне саги
	// обёртка прозрачна.
	for _, name := range taskNames() {
		taskName := name
		factory := func() (handler.Handler, error) {
			core := task.NewCore(task.Config{
				TaskName: taskName,
				Cache:    responseCache,
				States:   states,
				Metrics:  metrics,
				Executor: executor,
				Caller:   caller,
				Logger:   telemetry.WithTask(logger, taskName),
			})
			return handler.NewSagaHandler(handler.NewTaskHandler(core, 0), sagas, nil, logger), nil
		}
		if err := orch.Register(taskName, factory); err != nil {
			logger.Error("failed to register task", "task", taskName, "error", err)
			os.Exit(1)
		}
	}

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// Фоновое обслуживание
	maintenance, err := janitor.New(janitor.Config{
		States:  states,
		Sagas:   sagas,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create janitor", "error", err)
		os.Exit(1)
	}
	maintenance.Start()

	coordinator := coordination.NewCoordinator(client.Publisher(), metrics, logger)

	// HTTP: operational API + /metrics
	apiHandler := api.NewHandler(api.Config{
		Orchestrator: orch,
		Engine:       client,
		Sagas:        sagas,
		Coordinator:  coordinator,
		Cache:        responseCache,
		Metrics:      metrics,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}
	server := &http.Server{Addr: port, Handler: mux}

	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	maintenance.Stop()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("conveyor-worker stopped")
}

// taskNames возвращает имена tasks из TASKS (csv) или дефолтный набор.
func taskNames() []string {
	raw := os.Getenv("TASKS")
	if raw == "" {
		return []string{"router"}
	}

	var names []string
	for _, name := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	if len(names) == 0 {
		return []string{"router"}
	}
	return names
}

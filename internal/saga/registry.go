package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// ArtifactStore удаляет созданные шагом артефакты.
type ArtifactStore interface {
	DeleteArtifact(ctx context.Context, artifactID string) error
}

// ResourceAllocator освобождает выделенные шагом внешние ресурсы.
type ResourceAllocator interface {
	ReleaseResource(ctx context.Context, resourceID string) error
}

// CacheInvalidator инвалидирует затронутые ключи response cache.
// cache.Cache удовлетворяет интерфейсу.
type CacheInvalidator interface {
	Invalidate(key string) bool
}

// Registry — реестр компенсаций saga-шагов.
//
// Потокобезопасность обеспечивает Store; сам Registry состояния
// не держит.
type Registry struct {
	store     Store
	artifacts ArtifactStore
	resources ResourceAllocator
	cache     CacheInvalidator
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// RegistryConfig — конфигурация Registry.
type RegistryConfig struct {
	// Store — хранилище записей (nil — MemoryStore).
	Store Store

	// Artifacts — удаление артефактов (nil — под-компенсация пропускается).
	Artifacts ArtifactStore

	// Resources — освобождение ресурсов (nil — пропускается).
	Resources ResourceAllocator

	// Cache — инвалидация cache keys (nil — пропускается).
	Cache CacheInvalidator

	// Metrics
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// NewRegistry создаёт Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:     store,
		artifacts: cfg.Artifacts,
		resources: cfg.Resources,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Store возвращает хранилище записей.
func (r *Registry) Store() Store {
	return r.store
}

// RecordStep записывает компенсацию успешного шага.
//
// Вызывается ПОСЛЕ успеха side-effecting шага: упавший шаг ничего
// не записывает. Новый шаг той же саги перезаписывает предыдущую
// запись — живая запись на sagaId всегда одна.
func (r *Registry) RecordStep(ctx context.Context, sagaID, stepName string, data domain.CompensationData) error {
	if sagaID == "" {
		return ErrEmptySagaID
	}

	record := &domain.CompensationRecord{
		SagaID:     sagaID,
		StepName:   stepName,
		Data:       data,
		RecordedAt: time.Now(),
	}
	if err := r.store.Put(ctx, record); err != nil {
		return fmt.Errorf("record compensation: %w", err)
	}

	r.logger.Debug("compensation recorded",
		"saga_id", sagaID,
		"step", stepName,
	)
	return nil
}

// Compensate откатывает записанный шаг саги.
//
// Без записи — идемпотентный no-op. Порядок отката: артефакты,
// ресурсы, cache keys. Успех удаляет запись; частичная неудача
// сохраняет её и помечает для оператора — повторный автоматический
// вызов вернёт ErrManualIntervention.
func (r *Registry) Compensate(ctx context.Context, sagaID string) (*domain.CompensationResult, error) {
	if sagaID == "" {
		return nil, ErrEmptySagaID
	}

	result := &domain.CompensationResult{SagaID: sagaID}

	record, err := r.store.Get(ctx, sagaID)
	if errors.Is(err, ErrRecordNotFound) {
		result.Compensated = true
		result.NoOp = true
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load compensation record: %w", err)
	}

	if record.ManualIntervention {
		result.RequiresManualIntervention = true
		return result, ErrManualIntervention
	}

	for _, id := range record.Data.ArtifactIDs {
		if r.artifacts == nil {
			break
		}
		if err := r.artifacts.DeleteArtifact(ctx, id); err != nil {
			result.Failures = append(result.Failures,
				fmt.Sprintf("delete artifact %s: %v", id, err))
			continue
		}
		result.ArtifactsDeleted++
	}

	for _, id := range record.Data.ResourceIDs {
		if r.resources == nil {
			break
		}
		if err := r.resources.ReleaseResource(ctx, id); err != nil {
			result.Failures = append(result.Failures,
				fmt.Sprintf("release resource %s: %v", id, err))
			continue
		}
		result.ResourcesReleased++
	}

	if r.cache != nil {
		for _, key := range record.Data.CacheKeys {
			// Отсутствие ключа не ошибка: TTL мог сработать раньше
			if r.cache.Invalidate(key) {
				result.KeysInvalidated++
			}
		}
	}

	if len(result.Failures) > 0 {
		reason := fmt.Sprintf("%d of %d sub-compensations failed",
			len(result.Failures), subCompensations(record))
		if err := r.store.MarkManual(ctx, sagaID, reason); err != nil {
			r.logger.Error("failed to mark record for manual intervention",
				"saga_id", sagaID,
				"error", err,
			)
		}
		result.RequiresManualIntervention = true
		if r.metrics != nil {
			r.metrics.RecordCompensation(false)
		}
		r.logger.Warn("compensation partially failed",
			"saga_id", sagaID,
			"step", record.StepName,
			"failures", len(result.Failures),
		)
		return result, domain.NewTaskError(domain.ErrCodeCompensationFailed, reason, false)
	}

	if err := r.store.Delete(ctx, sagaID); err != nil {
		return nil, fmt.Errorf("delete compensation record: %w", err)
	}

	result.Compensated = true
	if r.metrics != nil {
		r.metrics.RecordCompensation(true)
	}
	r.logger.Info("saga compensated",
		"saga_id", sagaID,
		"step", record.StepName,
		"artifacts", result.ArtifactsDeleted,
		"resources", result.ResourcesReleased,
		"cache_keys", result.KeysInvalidated,
	)
	return result, nil
}

// Backlog возвращает количество живых записей компенсаций.
func (r *Registry) Backlog(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

// subCompensations считает количество под-компенсаций записи.
func subCompensations(record *domain.CompensationRecord) int {
	return len(record.Data.ArtifactIDs) + len(record.Data.ResourceIDs) + len(record.Data.CacheKeys)
}

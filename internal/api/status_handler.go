package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/saga"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// StatusDTO — сводный статус worker'а.
type StatusDTO struct {
	Health          domain.OverallHealth        `json:"health"`
	EngineConnected bool                        `json:"engine_connected"`
	Registrations   []domain.WorkerRegistration `json:"registrations"`
	Metrics         telemetry.Snapshot          `json:"metrics"`
	CacheEntries    int                         `json:"cache_entries"`
	CacheUtilized   float64                     `json:"cache_utilization"`
	SagaBacklog     int                         `json:"saga_backlog"`
}

// Healthz обрабатывает GET /healthz.
// Critical — 503: балансировщик уводит трафик, health-check
// оркестратора тем временем перезапускает unhealthy handlers.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	_, overall := h.orchestrator.Status()

	status := http.StatusOK
	if overall == domain.HealthCritical || !h.engine.IsConnected() {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, map[string]any{
		"health":           overall,
		"engine_connected": h.engine.IsConnected(),
	})
}

// GetStatus обрабатывает GET /api/v1/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	registrations, overall := h.orchestrator.Status()

	dto := StatusDTO{
		Health:          overall,
		EngineConnected: h.engine.IsConnected(),
		Registrations:   registrations,
		Metrics:         h.metrics.Snapshot(),
	}
	if h.cache != nil {
		dto.CacheEntries = h.cache.Len()
		dto.CacheUtilized = h.cache.Utilization()
	}
	if h.sagas != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if backlog, err := h.sagas.Backlog(ctx); err == nil {
			dto.SagaBacklog = backlog
		}
	}

	Success(w, dto)
}

// ListRegistrations обрабатывает GET /api/v1/registrations.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	registrations, _ := h.orchestrator.Status()
	Success(w, registrations)
}

// GetSagaRecord обрабатывает GET /api/v1/sagas/{id}.
func (h *Handler) GetSagaRecord(w http.ResponseWriter, r *http.Request) {
	sagaID := r.PathValue("id")

	record, err := h.sagas.Store().Get(r.Context(), sagaID)
	if errors.Is(err, saga.ErrRecordNotFound) {
		NotFound(w, "no compensation record for saga "+sagaID)
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, record)
}

// CompensateSaga обрабатывает POST /api/v1/sagas/{id}/compensate.
//
// Ручной запуск компенсации оператором. Запись, помеченная
// manual_intervention, отдаёт 409: оператор сначала чинит причину.
func (h *Handler) CompensateSaga(w http.ResponseWriter, r *http.Request) {
	sagaID := r.PathValue("id")
	if sagaID == "" {
		BadRequest(w, "saga id is required")
		return
	}

	result, err := h.sagas.Compensate(r.Context(), sagaID)
	switch {
	case errors.Is(err, saga.ErrManualIntervention):
		Conflict(w, "record requires manual intervention")
		return
	case domain.CodeOf(err) == domain.ErrCodeCompensationFailed:
		// Частичная неудача: результат информативен, отдаём его с 500
		JSON(w, http.StatusInternalServerError, DataResponse{Data: result})
		return
	case err != nil:
		InternalError(w, h.logger, err)
		return
	}

	Success(w, result)
}

// Coordinate обрабатывает POST /api/v1/coordination.
func (h *Handler) Coordinate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SourceWorkflowID string                     `json:"source_workflow_id"`
		Request          domain.CoordinationRequest `json:"request"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		BadRequest(w, "invalid json body: "+err.Error())
		return
	}

	result := h.coordinator.Coordinate(r.Context(), body.SourceWorkflowID, &body.Request)
	if !result.Success {
		JSON(w, http.StatusUnprocessableEntity, DataResponse{Data: result})
		return
	}

	Success(w, result)
}

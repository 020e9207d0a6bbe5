package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /healthz", http.HandlerFunc(h.Healthz))

	mux.Handle("GET /api/v1/status", chain(http.HandlerFunc(h.GetStatus)))
	mux.Handle("GET /api/v1/registrations", chain(http.HandlerFunc(h.ListRegistrations)))

	mux.Handle("GET /api/v1/sagas/{id}", chain(http.HandlerFunc(h.GetSagaRecord)))
	mux.Handle("POST /api/v1/sagas/{id}/compensate", chain(http.HandlerFunc(h.CompensateSaga)))

	mux.Handle("POST /api/v1/coordination", chain(http.HandlerFunc(h.Coordinate)))
}

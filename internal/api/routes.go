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

	// Items
	mux.Handle("GET /api/v1/items/{id}", chain(http.HandlerFunc(h.GetItem)))

	// Queue policies
	mux.Handle("GET /api/v1/accounts/{id}/policy", chain(http.HandlerFunc(h.GetPolicy)))
	mux.Handle("PUT /api/v1/accounts/{id}/policy", chain(http.HandlerFunc(h.PutPolicy)))
	mux.Handle("PUT /api/v1/policies/default", chain(http.HandlerFunc(h.PutDefaultPolicy)))

	// Queue
	mux.Handle("GET /api/v1/accounts/{id}/slots", chain(http.HandlerFunc(h.PreviewSlots)))
	mux.Handle("POST /api/v1/accounts/{id}/allocate", chain(http.HandlerFunc(h.Allocate)))
}

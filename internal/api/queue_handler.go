package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// GetPolicy возвращает действующую политику очереди аккаунта.
// GET /api/v1/accounts/{id}/policy
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromPath(w, r)
	if !ok {
		return
	}

	p, err := h.policies.GetQueuePolicy(r.Context(), accountID)
	if HandleError(w, h.logger, err, "policy not found") {
		return
	}

	Success(w, p)
}

// PutPolicy создаёт или заменяет политику аккаунта.
// PUT /api/v1/accounts/{id}/policy
func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromPath(w, r)
	if !ok {
		return
	}
	h.savePolicy(w, r, &accountID)
}

// PutDefaultPolicy заменяет политику по умолчанию.
// PUT /api/v1/policies/default
func (h *Handler) PutDefaultPolicy(w http.ResponseWriter, r *http.Request) {
	h.savePolicy(w, r, nil)
}

func (h *Handler) savePolicy(w http.ResponseWriter, r *http.Request, accountID *uuid.UUID) {
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	p := req.ToDomain(accountID)
	if err := p.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if HandleError(w, h.logger, h.policies.Upsert(r.Context(), p), "") {
		return
	}

	h.logger.Info("queue policy saved", "account_id", accountID, "enabled", p.Enabled)
	Success(w, p)
}

// PreviewSlots возвращает слоты и план распределения без записи.
// GET /api/v1/accounts/{id}/slots
func (h *Handler) PreviewSlots(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromPath(w, r)
	if !ok {
		return
	}

	preview, err := h.allocator.Preview(r.Context(), accountID)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, SlotsFromPreview(preview))
}

// Allocate распределяет очередь аккаунта по слотам.
// POST /api/v1/accounts/{id}/allocate
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromPath(w, r)
	if !ok {
		return
	}

	res, err := h.allocator.AllocateAccount(r.Context(), accountID)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, res)
}

func accountIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid account id")
		return uuid.Nil, false
	}
	return id, true
}


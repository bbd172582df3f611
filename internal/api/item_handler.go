package api

import (
	"net/http"

	"github.com/google/uuid"
)

// GetItem возвращает состояние публикации.
// GET /api/v1/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid item id")
		return
	}

	item, err := h.items.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "item not found") {
		return
	}

	Success(w, ItemFromDomain(item))
}

package handler

import (
	"net/http"

	"github.com/menuqr/tablechat/internal/middleware"
)

// TableHandler serves the table context resolved from the QR route.
type TableHandler struct{}

// NewTableHandler creates a new table handler.
func NewTableHandler() *TableHandler {
	return &TableHandler{}
}

// Get handles GET /api/tables/{hotelID}/{tableID}
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTableContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "table context missing")
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

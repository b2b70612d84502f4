package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/menuqr/tablechat/internal/model"
)

const (
	// TableContextKey is the context key for the resolved table.
	TableContextKey ContextKey = "table_context"
)

// TableContext resolves the {hotelID} and {tableID} route parameters into a
// read-only model.TableContext for downstream handlers.
func TableContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hotelID := chi.URLParam(r, "hotelID")
		tableID := chi.URLParam(r, "tableID")

		if err := ValidatePathParam(hotelID); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid hotel id")
			return
		}
		if err := ValidatePathParam(tableID); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid table id")
			return
		}

		ctx := context.WithValue(r.Context(), TableContextKey, model.NewTableContext(hotelID, tableID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTableContext returns the resolved table, if the route carried one.
func GetTableContext(ctx context.Context) (model.TableContext, bool) {
	tc, ok := ctx.Value(TableContextKey).(model.TableContext)
	return tc, ok
}

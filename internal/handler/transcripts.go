package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/menuqr/tablechat/internal/middleware"
	"github.com/menuqr/tablechat/internal/service"
	"github.com/menuqr/tablechat/pkg/logger"
)

// TranscriptHandler lets a logged-in owner read guest chats for a hotel.
type TranscriptHandler struct {
	transcripts *service.TranscriptService
	logger      *logger.Logger
}

// NewTranscriptHandler creates a new transcript handler.
func NewTranscriptHandler(svc *service.TranscriptService, log *logger.Logger) *TranscriptHandler {
	return &TranscriptHandler{
		transcripts: svc,
		logger:      log,
	}
}

// List handles GET /api/owner/hotels/{hotelID}/transcripts
func (h *TranscriptHandler) List(w http.ResponseWriter, r *http.Request) {
	hotelID := chi.URLParam(r, "hotelID")
	if err := middleware.ValidatePathParam(hotelID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid hotel id")
		return
	}

	q := r.URL.Query()
	uid := q.Get("uid")

	var afterSequence uint64
	if seq := q.Get("after_sequence"); seq != "" {
		if parsed, err := strconv.ParseUint(seq, 10, 64); err == nil {
			afterSequence = parsed
		}
	}

	limit := 50
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	resp, err := h.transcripts.List(r.Context(), hotelID, uid, afterSequence, limit)
	if err != nil {
		if errors.Is(err, service.ErrTranscriptsDisabled) {
			writeError(w, http.StatusServiceUnavailable, "transcripts are disabled")
			return
		}
		h.logger.Error("failed to list transcripts",
			zap.Error(err),
			zap.String("hotel_id", hotelID),
			zap.String("owner_id", middleware.GetOwnerID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/menuqr/tablechat/internal/middleware"
	"github.com/menuqr/tablechat/internal/model"
	"github.com/menuqr/tablechat/internal/service"
	"github.com/menuqr/tablechat/pkg/logger"
)

// Replies for requests rejected before reaching the chat service.
const (
	replyUnreadable = "Sorry, I couldn't read that message. Please try again."
	replyTooLong    = "That message is too long. Please shorten it and try again."
)

// ChatHandler serves the chat completion gateway.
type ChatHandler struct {
	chat        *service.ChatService
	identity    *service.IdentityService
	defaultMode string
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler. defaultMode is service.ModeBuffered
// or service.ModeStream and applies when the request does not choose.
func NewChatHandler(chat *service.ChatService, identity *service.IdentityService, defaultMode string, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat:        chat,
		identity:    identity,
		defaultMode: defaultMode,
		logger:      log,
	}
}

// Chat handles POST /api/chat and POST /api/tables/{hotelID}/{tableID}/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4*middleware.MaxMessageBytes))
	if err != nil || middleware.ValidateBody(body) != nil {
		writeReply(w, http.StatusBadRequest, replyUnreadable)
		return
	}

	var req model.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeReply(w, http.StatusBadRequest, replyUnreadable)
		return
	}

	if err := middleware.ValidateMessage(req.Message); err != nil {
		writeReply(w, http.StatusBadRequest, replyTooLong)
		return
	}

	ex := service.Exchange{
		UID:     h.identity.FromRequest(r),
		Message: req.Message,
	}
	if tc, ok := middleware.GetTableContext(r.Context()); ok {
		ex.HotelID = tc.HotelID
		ex.TableID = tc.TableID
	}

	if h.wantsStream(r) {
		if sse, ok := newSSEWriter(w); ok {
			h.stream(w, r, sse, ex)
			return
		}
		h.logger.Warn("response writer cannot flush, falling back to buffered reply")
	}

	o := h.chat.Reply(r.Context(), ex)
	writeReply(w, o.Status(), o.Reply())
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, sse *sseWriter, ex service.Exchange) {
	defer sse.close()

	var writeErr error
	o := h.chat.Stream(r.Context(), ex, func(chunk string) error {
		writeErr = sse.data(chunk)
		return writeErr
	})

	switch o.(type) {
	case service.Success:
		return
	case service.Prompt, service.Empty:
		// Nothing was streamed; the fixed reply is the whole stream.
		if err := sse.data(o.Reply()); err != nil {
			h.logger.Info("failed to write reply frame", zap.Error(err))
		}
		return
	}

	if !sse.started {
		writeReply(w, o.Status(), o.Reply())
		return
	}
	if writeErr != nil {
		// The client is gone; nothing left to tell it.
		return
	}
	if err := sse.event("error", o.Reply()); err != nil {
		h.logger.Info("failed to write error frame", zap.Error(err))
	}
}

// wantsStream picks the reply mode: ?stream= wins, then the Accept header,
// then the configured default.
func (h *ChatHandler) wantsStream(r *http.Request) bool {
	if v := r.URL.Query().Get("stream"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	return h.defaultMode == service.ModeStream
}

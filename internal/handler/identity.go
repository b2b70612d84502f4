package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/menuqr/tablechat/internal/model"
	"github.com/menuqr/tablechat/internal/service"
	"github.com/menuqr/tablechat/pkg/logger"
)

// IdentityHandler serves the anonymous identity endpoint.
type IdentityHandler struct {
	identity *service.IdentityService
	logger   *logger.Logger
}

// NewIdentityHandler creates a new identity handler.
func NewIdentityHandler(identity *service.IdentityService, log *logger.Logger) *IdentityHandler {
	return &IdentityHandler{
		identity: identity,
		logger:   log,
	}
}

// UID handles GET /api/uid
func (h *IdentityHandler) UID(w http.ResponseWriter, r *http.Request) {
	uid, issued := h.identity.Resolve(h.identity.FromRequest(r))
	if issued {
		http.SetCookie(w, h.identity.Cookie(uid))
		h.logger.Debug("anonymous identity issued", zap.String("uid", uid))
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, &model.AnonymousIdentity{UID: uid})
}

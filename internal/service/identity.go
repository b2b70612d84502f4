// Package service provides the business logic behind the guest chat API.
package service

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/menuqr/tablechat/internal/model"
	"github.com/menuqr/tablechat/pkg/metrics"
)

// IdentityService issues anonymous per-browser identities carried in a cookie.
type IdentityService struct {
	maxAge time.Duration
	secure bool
	newUID func() string
}

// NewIdentityService creates an issuer. secure marks the cookie Secure (production).
func NewIdentityService(maxAge time.Duration, secure bool) *IdentityService {
	return &IdentityService{
		maxAge: maxAge,
		secure: secure,
		newUID: func() string { return uuid.New().String() },
	}
}

// FromRequest returns the caller's uid cookie value, or "" when absent.
func (s *IdentityService) FromRequest(r *http.Request) string {
	c, err := r.Cookie(model.UIDCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// Resolve returns the existing uid unchanged, or mints a new one.
// issued reports whether a new uid was minted.
func (s *IdentityService) Resolve(existing string) (uid string, issued bool) {
	if existing != "" {
		return existing, false
	}
	metrics.IdentitiesIssued.Inc()
	return s.newUID(), true
}

// Cookie builds the cookie that persists uid in the browser.
func (s *IdentityService) Cookie(uid string) *http.Cookie {
	return &http.Cookie{
		Name:     model.UIDCookieName,
		Value:    uid,
		Path:     "/",
		MaxAge:   int(s.maxAge.Seconds()),
		Expires:  time.Now().Add(s.maxAge),
		HttpOnly: false,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

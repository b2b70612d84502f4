package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/menuqr/tablechat/internal/middleware"
	"github.com/menuqr/tablechat/pkg/logger"
)

// Routes holds the handlers and policies mounted by NewRouter.
type Routes struct {
	Identity    *IdentityHandler
	Chat        *ChatHandler
	Table       *TableHandler
	Transcripts *TranscriptHandler
	Health      *HealthHandler

	Logger              *logger.Logger
	JWTSecret           string
	CORSAllowedOrigins  []string
	RateLimitRequests   int
	RateLimitIPRequests int
	RateLimitWindow     time.Duration
}

// NewRouter builds the HTTP API.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	if len(rt.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(rt.CORSAllowedOrigins))
	}

	// Health endpoints
	r.Get("/health", rt.Health.Health)
	r.Get("/ready", rt.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	chatLimit := middleware.ChatRateLimit(rt.RateLimitRequests, rt.RateLimitIPRequests, rt.RateLimitWindow)

	r.Route("/api", func(r chi.Router) {
		r.Get("/uid", rt.Identity.UID)
		r.With(chatLimit).Post("/chat", rt.Chat.Chat)

		r.Route("/tables/{hotelID}/{tableID}", func(r chi.Router) {
			r.Use(middleware.TableContext)
			r.Get("/", rt.Table.Get)
			r.With(chatLimit).Post("/chat", rt.Chat.Chat)
		})

		r.Route("/owner", func(r chi.Router) {
			r.Use(middleware.OwnerAuth(rt.JWTSecret))
			r.Get("/hotels/{hotelID}/transcripts", rt.Transcripts.List)
		})
	})

	return r
}

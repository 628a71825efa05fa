package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mw "github.com/kiranshivaraju/errdigest/internal/api/middleware"
	"github.com/kiranshivaraju/errdigest/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth           *mw.Auth
	RateLimit      *mw.RateLimit
	AllowedOrigins []string

	HealthHandler          http.HandlerFunc
	MetricsHandler         http.Handler
	IntakeHandler          http.HandlerFunc
	ReportHandler          http.HandlerFunc
	InboundMailHandler     http.HandlerFunc
	GetSubscriptionHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check and metrics
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Error intake, posted by browsers and native clients
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: originsOrAny(deps.AllowedOrigins),
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
		r.Use(mw.ClientIP)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		for _, path := range []string{"/", "/api/v1/errors"} {
			r.Post(path, orNotImplemented(deps.IntakeHandler))
			// preflight is answered by the cors handler
			r.Options(path, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		}
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.Get("/api/v1/report", orNotImplemented(deps.ReportHandler))
		r.Post("/api/v1/inbound-mail", orNotImplemented(deps.InboundMailHandler))
		r.Get("/api/v1/subscriptions/{clientID}", orNotImplemented(deps.GetSubscriptionHandler))
	})

	return r
}

func originsOrAny(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}

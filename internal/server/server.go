// Package server exposes entitlement checks, health and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"entitlement-workers/internal/common/logger"
	"entitlement-workers/internal/entitlement/checker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EntitlementChecker is the subset of checker.Checker served over HTTP.
type EntitlementChecker interface {
	CheckCaller(ctx context.Context, credential string) (checker.Result, error)
	CheckCredits(ctx context.Context, userID string) (checker.Result, error)
	ResolveUserID(ctx context.Context, credential string) string
}

// Pinger is a dependency probed by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Options struct {
	Checker        EntitlementChecker
	Readiness      map[string]Pinger
	Locales        []string
	AllowedOrigins []string
	ReadyTimeout   time.Duration
	Logger         logger.Logger
}

type Server struct {
	checker      EntitlementChecker
	readiness    map[string]Pinger
	readyTimeout time.Duration
	localizer    *Localizer
	logger       logger.Logger
	router       chi.Router
}

func New(opts Options) *Server {
	s := &Server{
		checker:      opts.Checker,
		readiness:    opts.Readiness,
		readyTimeout: opts.ReadyTimeout,
		localizer:    NewLocalizer(opts.Locales),
		logger:       opts.Logger,
	}
	if s.readyTimeout <= 0 {
		s.readyTimeout = 2 * time.Second
	}
	if s.logger == nil {
		s.logger = logger.NewNoOpLogger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Accept-Language", "Authorization"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/entitlements/subscription", s.subscription)
		r.Get("/entitlements/credits", s.credits)

		r.Group(func(pr chi.Router) {
			pr.Use(s.RequireSubscription)
			pr.Get("/premium/access", s.premiumAccess)
		})
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ready pings every dependency. Failure details go to the log, not the response.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
	defer cancel()

	checks := make(map[string]string, len(s.readiness))
	status := http.StatusOK
	for name, p := range s.readiness {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", map[string]interface{}{
				"dependency": name,
				"error":      err.Error(),
			})
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Package api exposes the game over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/crptomonkeys/monKey-matching/internal/session"
	"github.com/crptomonkeys/monKey-matching/internal/store"
)

// Server handles HTTP requests.
type Server struct {
	db         store.DB
	controller *session.Controller
	registry   *prometheus.Registry
	authSecret string
	adminToken string
	log        *logrus.Entry
}

// NewServer creates a new API server.
func NewServer(db store.DB, controller *session.Controller, registry *prometheus.Registry, authSecret, adminToken string) *Server {
	return &Server{
		db:         db,
		controller: controller,
		registry:   registry,
		authSecret: authSecret,
		adminToken: adminToken,
		log:        logrus.WithField("component", "api"),
	}
}

// Routes sets up the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Heartbeat("/health"))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.authSecret))

		r.Post("/games", s.handleNewGame)
		r.Get("/games/{owner}", s.handleGetGame)
		r.Post("/games/verify", s.handleVerify)
		r.Post("/games/complete", s.handleComplete)
		r.Post("/assets/{id}/unfreeze", s.handleUnfreeze)
		r.Post("/assets/unfreeze", s.handleUnfreezeAll)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/maintenance", adminOnly(s.adminToken, s.handleSetMaintenance))
		r.Post("/rewards", adminOnly(s.adminToken, s.handleUpsertRewards))
		r.Post("/assets", adminOnly(s.adminToken, s.handleAddAssets))
	})

	return r
}

// Package server exposes the control plane operations as a JSON API.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rudder-cd/rudder/backup"
	"github.com/rudder-cd/rudder/config"
	"github.com/rudder-cd/rudder/metrics"
	"github.com/rudder-cd/rudder/orchestrator"
	"github.com/rudder-cd/rudder/protection"
	"github.com/rudder-cd/rudder/registry"
	"github.com/rudder-cd/rudder/slot"
)

// Server holds the service graph the HTTP handlers dispatch into.
type Server struct {
	config     *config.Config
	registry   *registry.Service
	protection *protection.Service
	slots      *slot.Manager
	deployer   *orchestrator.Orchestrator
	syncer     *registry.Syncer
	backups    *backup.Recorder
	metrics    *metrics.Collector
}

func New(
	cfg *config.Config,
	reg *registry.Service,
	prot *protection.Service,
	slots *slot.Manager,
	deployer *orchestrator.Orchestrator,
	syncer *registry.Syncer,
	backups *backup.Recorder,
	collector *metrics.Collector,
) *Server {
	return &Server{
		config:     cfg,
		registry:   reg,
		protection: prot,
		slots:      slots,
		deployer:   deployer,
		syncer:     syncer,
		backups:    backups,
		metrics:    collector,
	}
}

// Handler builds the route tree. Every operation lives under /api/v1;
// /healthz and /metrics sit at the root for probes and scrapers.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	if s.metrics != nil {
		r.Use(s.recordRequestMetrics)
	}

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Post("/", s.handleRegisterProject)
			r.Get("/", s.handleListProjects)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleShowProject)
				r.Post("/archive", s.handleArchiveProject)
				r.Route("/environments/{environment}", func(r chi.Router) {
					r.Post("/ports", s.handleAllocatePort)
					r.Post("/domain", s.handleBindDomain)
					r.Get("/slots", s.handleSlotStatus)
					r.Post("/promote", s.handlePromote)
					r.Post("/rollback", s.handleRollback)
				})
			})
		})

		r.Post("/deployments", s.handleDeploy)
		r.Post("/authorize", s.handleAuthorize)

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", s.handleListTickets)
			r.Post("/{id}/confirm", s.handleConfirmTicket)
			r.Post("/{id}/cancel", s.handleCancelTicket)
		})

		r.Route("/emergency", func(r chi.Router) {
			r.Get("/", s.handleEmergencyStatus)
			r.Post("/open", s.handleEmergencyOpen)
			r.Post("/close", s.handleEmergencyClose)
		})

		r.Get("/registry/validate", s.handleValidateRegistry)
		r.Post("/registry/sync", s.handleSyncRegistry)
		r.Get("/history", s.handleHistory)
		r.Post("/backups", s.handleRecordBackup)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

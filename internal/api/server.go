package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lifelink-community/lifelink/internal/domain"
)

// Server is the LifeLink HTTP API.
type Server struct {
	router  *chi.Mux
	handler *Handler
	config  domain.ServerConfig
	httpSrv *http.Server
}

// NewServer wires the handler into the router.
func NewServer(cfg domain.ServerConfig, rateLimit domain.RateLimitConfig, deps Deps) *Server {
	h := NewHandler(deps)

	router := chi.NewRouter()
	router.Use(CORS, Observe, Recover, middleware.RealIP, middleware.Compress(5))

	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(RequireTenant, RateLimit(deps.Cache, rateLimit))
		mountScoring(r, h)
		mountDonors(r, h)
		mountRequests(r, h)
		mountSettings(r, h)
	})

	return &Server{router: router, handler: h, config: cfg}
}

// Stateless calculators.
func mountScoring(r chi.Router, h *Handler) {
	r.Route("/score", func(r chi.Router) {
		r.Post("/urgency", h.ScoreUrgency)
		r.Post("/readiness", h.ScoreReadiness)
		r.Post("/match", h.ScoreMatch)
		r.Post("/normalize", h.ScoreNormalize)
	})
	r.Get("/compatibility/{bloodType}", h.Compatibility)
}

func mountDonors(r chi.Router, h *Handler) {
	r.Route("/donors", func(r chi.Router) {
		r.Post("/", h.CreateDonor)
		r.Get("/", h.ListDonors)
		r.Get("/{id}", h.GetDonor)
		r.Post("/{id}/donations", h.RecordDonation)
		r.Get("/{id}/requests", h.MatchingRequests)
	})
}

func mountRequests(r chi.Router, h *Handler) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.CreateRequest)
		r.Get("/{id}", h.GetRequest)
		r.Put("/{id}/status", h.UpdateRequestStatus)
		r.Post("/{id}/matches", h.RunMatches)
		r.Get("/{id}/matches", h.GetMatches)
	})
	r.Get("/evaluations/{id}", h.GetEvaluation)
}

// Screening rules and weight profiles are shared by every tenant.
func mountSettings(r chi.Router, h *Handler) {
	r.Route("/screening-rules", func(r chi.Router) {
		r.Get("/", h.ListScreeningRules)
		r.Post("/", h.CreateScreeningRule)
		r.Post("/reload", h.ReloadScreeningRules)
		r.Get("/{id}", h.GetScreeningRule)
	})
	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", h.ListProfiles)
		r.Post("/", h.CreateProfile)
		r.Post("/reload", h.ReloadProfiles)
		r.Get("/{id}", h.GetProfile)
		r.Put("/{id}", h.UpdateProfile)
		r.Delete("/{id}", h.DeleteProfile)
	})
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux { return s.router }

func (s *Server) Handler() *Handler { return s.handler }

package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pinggolf/pbi-tmdl-builder/internal/buildlock"
	"github.com/pinggolf/pbi-tmdl-builder/internal/config"
	"github.com/rs/cors"
)

// Server is the builder's HTTP front-end.
type Server struct {
	config      *config.Config
	router      *mux.Router
	locks       *buildlock.Registry
	rateLimiter *RateLimiterService
}

// NewServer constructs a Server wired to cfg, serialising concurrent
// builds through locks and throttling Apply requests through
// rateLimiter.
func NewServer(cfg *config.Config, locks *buildlock.Registry, rateLimiter *RateLimiterService) *Server {
	s := &Server{
		config:      cfg,
		router:      mux.NewRouter(),
		locks:       locks,
		rateLimiter: rateLimiter,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured handler, wrapped in CORS per
// cfg.CORSAllowedOrigins.
func (s *Server) Router() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.config.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: s.config.CORSAllowCredentials,
		MaxAge:           300,
	})
	return c.Handler(s.router)
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/builds/analyze", s.handleAnalyze).Methods("POST")
	api.HandleFunc("/builds/apply", s.handleApply).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

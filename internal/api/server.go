package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/vibeorchestrator/engine/internal/gitutil"
	"github.com/vibeorchestrator/engine/internal/orchestrator"
	"github.com/vibeorchestrator/engine/internal/store"
)

// Server wraps the HTTP API and WebSocket hub in front of an
// Orchestrator. Per SPEC_FULL.md §7, this stays intentionally thin: it
// exposes only what's needed to drive an attempt and attach its live
// streams, not a general product API.
type Server struct {
	router         *chi.Mux
	repo           store.Repository
	git            *gitutil.Service
	orch           *orchestrator.Orchestrator
	hub            *Hub
	log            zerolog.Logger
	diffByteBudget int

	hubCancel    context.CancelFunc
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// Config carries the CORS-allowed origins for the dev frontend; callers
// in production should pass the real deployed origin(s).
type Config struct {
	AllowedOrigins []string
	// DiffByteBudget overrides diffstream's default cumulative-content
	// budget when positive; zero keeps diffstream's default.
	DiffByteBudget int
}

// NewServer creates a new API server bound to repo/git/orch.
func NewServer(repo store.Repository, git *gitutil.Service, orch *orchestrator.Orchestrator, cfg Config, log zerolog.Logger) *Server {
	hubCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:         chi.NewRouter(),
		repo:           repo,
		git:            git,
		orch:           orch,
		hub:            NewHub(),
		log:            log.With().Str("component", "api").Logger(),
		diffByteBudget: cfg.DiffByteBudget,
		hubCancel:      cancel,
		shutdownCh:     make(chan struct{}),
	}

	s.setupMiddleware(cfg)
	s.setupRoutes()
	go s.hub.Run(hubCtx)

	return s
}

func (s *Server) setupMiddleware(cfg Config) {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Get("/api/tasks/{taskID}/attempts", s.handleListAttempts)
	s.router.Get("/api/attempts/{id}", s.handleGetAttempt)
	s.router.Post("/api/attempts/{id}/start", s.handleStartAttempt)
	s.router.Post("/api/attempts/{id}/retry", s.handleRetryAttempt)
	s.router.Post("/api/attempts/{id}/follow-up", s.handleQueueFollowUp)
	s.router.Post("/api/attempts/{id}/merge", s.handleMergeAttempt)

	s.router.Get("/ws/processes/{id}/messages", s.handleProcessMessages)
	s.router.Get("/ws/attempts/{id}/diff", s.handleAttemptDiff)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrRetryInvalid):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrWorktreeDirty):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server at addr, blocking until it stops.
func (s *Server) Start(addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.router}

	go func() {
		<-s.shutdownCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	return httpServer.ListenAndServe()
}

// Shutdown stops the server and its hub gracefully.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.hubCancel()
		close(s.shutdownCh)
	})
}

// Package rest is the administrative HTTP surface of §6.6: flow CRUD plus
// execute/cancel/get/list-active against a flowengine.Engine, grounded on
// the teacher's internal/infrastructure/api/rest server/middleware shape
// (stdlib net/http ServeMux, the same logging/recovery/CORS/auth
// middleware chain) rebuilt against the new domain model.
package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// FlowStore persists and retrieves Flow definitions.
type FlowStore interface {
	SaveFlow(ctx context.Context, f *domain.Flow) error
	LoadFlow(ctx context.Context, id string) (*domain.Flow, error)
	ListFlows(ctx context.Context) ([]*domain.Flow, error)
}

// Store is the full persistence surface the REST API depends on.
type Store interface {
	FlowStore
	flowengine.PersistenceCollaborator
}

// ServerConfig configures the middleware chain.
type ServerConfig struct {
	EnableCORS      bool
	EnableRateLimit bool
	RateLimitMax    int
	RateLimitWindow time.Duration
	APIKeys         []string
}

// Server is the administrative HTTP API: flow registration plus execution
// lifecycle management, backed by a flowengine.Engine and a Store.
type Server struct {
	store  Store
	engine *flowengine.Engine
	mux    *http.ServeMux
	logger *slog.Logger
	cfg    ServerConfig
	chain  http.Handler
}

// NewServer builds the routed, middleware-wrapped administrative API.
func NewServer(store Store, engine *flowengine.Engine, logger *slog.Logger, cfg ServerConfig) *Server {
	s := &Server{
		store:  store,
		engine: engine,
		mux:    http.NewServeMux(),
		logger: logger,
		cfg:    cfg,
	}
	s.routes()
	s.chain = s.buildChain(s.mux)
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleHealth)

	s.mux.HandleFunc("GET /api/v1/flows", s.handleListFlows)
	s.mux.HandleFunc("POST /api/v1/flows", s.handleCreateFlow)
	s.mux.HandleFunc("GET /api/v1/flows/{id}", s.handleGetFlow)

	s.mux.HandleFunc("POST /api/v1/flows/{id}/executions", s.handleExecuteFlow)
	s.mux.HandleFunc("GET /api/v1/executions", s.handleListActiveExecutions)
	s.mux.HandleFunc("GET /api/v1/executions/{id}", s.handleGetExecution)
	s.mux.HandleFunc("POST /api/v1/executions/{id}/cancel", s.handleCancelExecution)
}

func (s *Server) buildChain(next http.Handler) http.Handler {
	h := next
	h = contentTypeMiddleware(h)
	if len(s.cfg.APIKeys) > 0 {
		h = newAuthMiddleware(s.cfg.APIKeys).middleware(h)
	}
	if s.cfg.EnableRateLimit {
		h = newRateLimiter(s.cfg.RateLimitMax, s.cfg.RateLimitWindow).middleware(h)
	}
	if s.cfg.EnableCORS {
		h = corsMiddleware(h)
	}
	h = recoveryMiddleware(s.logger, h)
	h = loggingMiddleware(s.logger, h)
	return h
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.chain.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

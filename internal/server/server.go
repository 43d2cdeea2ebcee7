package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/internal/validation"
	"github.com/avelez/codetour/pkg/schema"
)

// TutorialRunner executes a tutorial generation run and returns the result
// together with the run ID. *tutorial.Runner satisfies this.
type TutorialRunner interface {
	Run(ctx context.Context, req *schema.TutorialRequest) (*schema.Tutorial, string, error)
}

// Deps holds the dependencies for the API server.
type Deps struct {
	Store     store.Store
	Runner    TutorialRunner
	Validator *validation.JSONSchemaValidator
	Logger    *slog.Logger
}

// Server serves the tutorial generation API.
type Server struct {
	deps Deps
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/tutorials", s.handleGenerate)
	mux.HandleFunc("GET /api/tutorials", s.handleListRuns)
	mux.HandleFunc("GET /api/tutorials/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/tutorials/{id}/events", s.handleGetEvents)
	mux.HandleFunc("DELETE /api/tutorials/{id}", s.handleDeleteRun)

	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("PUT /api/jobs/{id}", s.handleUpdateJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)

	return mux
}

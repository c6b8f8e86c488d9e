package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/options"
	logpkg "github.com/kailas-cloud/supportbot/internal/logger"
	"github.com/kailas-cloud/supportbot/internal/metrics"
	"github.com/kailas-cloud/supportbot/internal/usecase/engine"
	healthuc "github.com/kailas-cloud/supportbot/internal/usecase/health"
)

const maxBodyBytes = 1 << 20

// Retriever is the engine surface the HTTP layer needs.
type Retriever interface {
	Retrieve(ctx context.Context, text string, req options.Request) ([]engine.Passage, error)
	Indices() []string
	PostProcessors() []string
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// RetrieveRequest is the POST /retrieve body.
type RetrieveRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k,omitempty"`
	Language    string   `json:"language,omitempty"`
	IncludeTags []string `json:"include_tags,omitempty"`
	ExcludeTags []string `json:"exclude_tags,omitempty"`
	AvoidQuery  bool     `json:"avoid_query,omitempty"`
}

// RetrieveResponse is the POST /retrieve reply.
type RetrieveResponse struct {
	Passages []engine.Passage `json:"passages"`
}

// IndicesResponse is the GET /indices reply.
type IndicesResponse struct {
	Indices        []string `json:"indices"`
	PostProcessors []string `json:"postprocessors"`
}

// HealthResponse is the GET /health reply.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Server serves the operator HTTP surface of the retriever.
type Server struct {
	retriever Retriever
	health    HealthChecker
	logger    *zap.Logger
}

// NewServer creates an HTTP server.
func NewServer(retriever Retriever, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{retriever: retriever, health: health, logger: logger}
}

// Router builds the chi router with the middleware stack. apiKeys enables bearer auth when non-empty.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware("/metrics"))

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/indices", s.ListIndices)
	r.Post("/retrieve", s.Retrieve)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Retrieve handles POST /retrieve.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	log := logpkg.FromContext(r.Context())

	var req RetrieveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	passages, err := s.retriever.Retrieve(r.Context(), req.Query, options.Request{
		TopK:        req.TopK,
		Language:    req.Language,
		IncludeTags: req.IncludeTags,
		ExcludeTags: req.ExcludeTags,
		AvoidQuery:  req.AvoidQuery,
	})
	if err != nil {
		s.handleDomainError(w, log, err)
		return
	}
	if passages == nil {
		passages = []engine.Passage{}
	}

	writeJSON(w, http.StatusOK, RetrieveResponse{Passages: passages})
}

// ListIndices handles GET /indices.
func (s *Server) ListIndices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, IndicesResponse{
		Indices:        s.retriever.Indices(),
		PostProcessors: s.retriever.PostProcessors(),
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := s.health.Check(ctx)

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

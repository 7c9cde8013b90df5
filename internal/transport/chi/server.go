// Package chi is the HTTP surface: request decoding, sentinel-to-status
// mapping, and JSON encoding of the result envelope.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/domain"
	"github.com/meridian-cloud/contextd/internal/domain/scoring"
	"github.com/meridian-cloud/contextd/internal/usecase/aggregator"
	healthuc "github.com/meridian-cloud/contextd/internal/usecase/health"
)

// Error codes carried in HTTP error responses.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeNotFound         = "not_found"
	codeProviderError    = "provider_error"
	codeTimeout          = "timeout"
	codeInternalError    = "internal_error"
)

// Responder is the coordinator surface the server depends on.
type Responder interface {
	Handle(ctx context.Context, req domain.Request) domain.Result
	GetMemoryContext(ctx context.Context, req domain.Request) (aggregator.AggregatedContext, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server implements the HTTP API.
type Server struct {
	responder Responder
	health    HealthChecker
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(responder Responder, health HealthChecker, logger *zap.Logger) *Server {
	return &Server{
		responder: responder,
		health:    health,
		logger:    logger,
	}
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/responses", s.CreateResponse)
	r.Post("/v1/context", s.GetContext)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// CreateResponse handles POST /v1/responses. Pipeline failures come back
// inside the result envelope with HTTP 200; only undecodable bodies get a
// transport-level error.
func (s *Server) CreateResponse(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result := s.responder.Handle(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

// GetContext handles POST /v1/context, the retrieval-only surface.
func (s *Server) GetContext(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	agg, err := s.responder.GetMemoryContext(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, contextToResponse(agg))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// contextResponse is the wire shape of an aggregated context.
type contextResponse struct {
	Query      string        `json:"query"`
	QueryType  string        `json:"query_type"`
	Strategy   string        `json:"strategy"`
	Confidence float64       `json:"confidence"`
	Summary    string        `json:"summary,omitempty"`
	Topics     []string      `json:"topics,omitempty"`
	Entities   []string      `json:"entities,omitempty"`
	Items      []contextItem `json:"items"`
}

type contextItem struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	NodeID  string  `json:"node_id,omitempty"`
}

func contextToResponse(agg aggregator.AggregatedContext) contextResponse {
	items := make([]contextItem, len(agg.RelevantContext))
	for i := range agg.RelevantContext {
		items[i] = itemToWire(&agg.RelevantContext[i])
	}
	return contextResponse{
		Query:      agg.Query,
		QueryType:  string(agg.QueryType),
		Strategy:   string(agg.Strategy),
		Confidence: agg.Confidence,
		Summary:    agg.Summary,
		Topics:     agg.Topics,
		Entities:   agg.Entities,
		Items:      items,
	}
}

func itemToWire(res *scoring.Result) contextItem {
	item := contextItem{
		Source:  string(res.Source),
		Content: res.Content,
		Score:   res.WeightedScore,
	}
	if res.Document != nil {
		item.NodeID = res.Document.NodeID
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// statusMapping binds a sentinel error to its HTTP representation.
type statusMapping struct {
	sentinel error
	status   int
	code     string
}

var statusMappings = []statusMapping{
	{domain.ErrValidation, http.StatusBadRequest, codeValidationFailed},
	{domain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrTimeout, http.StatusGatewayTimeout, codeTimeout},
	{domain.ErrProvider, http.StatusBadGateway, codeProviderError},
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, m := range statusMappings {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		s.logger.Warn("domain error", zap.Error(err))
		writeError(w, m.status, m.code, safeDomainMessage(err, m.sentinel))
		return
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// safeDomainMessage keeps validation detail for the client and hides the
// internals of everything else behind the sentinel's message.
func safeDomainMessage(err, sentinel error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	return sentinel.Error()
}

// Package api exposes the analyst over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/easeaico/marketing-analyst/internal/agentcache"
	"github.com/easeaico/marketing-analyst/internal/logging"
	"github.com/easeaico/marketing-analyst/internal/metrics"
	"github.com/easeaico/marketing-analyst/internal/platform"
	"github.com/easeaico/marketing-analyst/internal/service"
)

// maxBodyBytes bounds the analysis request body.
const maxBodyBytes = 1 << 20

// Analyzer runs analyses.
type Analyzer interface {
	RunAnalysis(ctx context.Context, req service.Request) (*service.Result, error)
}

// Sizer reports the number of analysts held in memory.
type Sizer interface {
	Len() int
}

// Server holds the HTTP handlers.
type Server struct {
	analyst Analyzer
	cache   Sizer
	logger  zerolog.Logger
}

// NewServer creates the handlers. cache may be nil.
func NewServer(analyst Analyzer, cache Sizer, logger zerolog.Logger) *Server {
	return &Server{
		analyst: analyst,
		cache:   cache,
		logger:  logging.Component(logger, "api"),
	}
}

// Router returns the routes of the service.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestContext, instrument)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/clients/{client}/platforms/{platform}/analyses", s.CreateAnalysis).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.Health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// analysisBody is the JSON body of an analysis request. Client and platform
// come from the path.
type analysisBody struct {
	AnalysisType string `json:"analysis_type"`
	CustomQuery  string `json:"custom_query"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	OutputFormat string `json:"output_format"`
	ForceNew     bool   `json:"force_new"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CreateAnalysis runs an analysis synchronously. Failed analyses still
// answer 200 with status "error" in the body; only invalid requests are
// rejected.
func (s *Server) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	log := logging.FromContext(r.Context())

	// an empty body runs a generic analysis
	var body analysisBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := s.analyst.RunAnalysis(r.Context(), service.Request{
		ClientID:     vars["client"],
		Platform:     vars["platform"],
		AnalysisType: body.AnalysisType,
		CustomQuery:  body.CustomQuery,
		StartDate:    body.StartDate,
		EndDate:      body.EndDate,
		OutputFormat: body.OutputFormat,
		ForceNew:     body.ForceNew,
	})
	if err != nil {
		if isValidation(err) {
			respondError(w, http.StatusBadRequest, "invalid analysis request", err)
			return
		}
		log.Error().Err(err).Msg("analysis request failed")
		respondError(w, http.StatusInternalServerError, "analysis failed", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.cache != nil {
		resp["cached_agents"] = s.cache.Len()
	}
	respondJSON(w, http.StatusOK, resp)
}

func isValidation(err error) bool {
	return errors.Is(err, service.ErrMissingClient) ||
		errors.Is(err, service.ErrInvalidDate) ||
		errors.Is(err, agentcache.ErrEmptyClient) ||
		errors.Is(err, platform.ErrUnknownPlatform)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg, RequestID: w.Header().Get(requestIDHeader)}
	if err != nil {
		resp.Message = err.Error()
	}
	respondJSON(w, status, resp)
}

const requestIDHeader = "X-Request-ID"

// requestContext tags the request with an id and stores a request-scoped
// logger in its context.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		l := s.logger.With().Str("request_id", requestID).Logger()
		next.ServeHTTP(w, r.WithContext(l.WithContext(r.Context())))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrument records the status of every request under its route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.RecordHTTPRequest(route, rec.status)
		logging.FromContext(r.Context()).Debug().
			Str("method", r.Method).Str("route", route).Int("status", rec.status).
			Dur("elapsed", time.Since(start)).Msg("request served")
	})
}

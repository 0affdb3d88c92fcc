// Package service runs analyses: it turns a request into a query, resolves
// the analyst of the (client, platform) pair, augments the query with what
// the semantic memory recalls and records the answer for later recall.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/easeaico/marketing-analyst/internal/agentcache"
	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/metrics"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

var (
	// ErrMissingClient is returned when a request has no client id.
	ErrMissingClient = errors.New("client_id is required")
	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD or for an
	// inverted period.
	ErrInvalidDate = errors.New("invalid date")
)

// noResult replaces an empty engine answer.
const noResult = "Nenhum resultado gerado"

// Status of a finished analysis.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Request describes one analysis.
type Request struct {
	ClientID     string `json:"client_id"`
	Platform     string `json:"platform"`
	AnalysisType string `json:"analysis_type"`
	CustomQuery  string `json:"custom_query,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	ForceNew     bool   `json:"force_new,omitempty"`
}

// Result is the outcome of an analysis. ExecutionTime is in seconds.
type Result struct {
	ClientID      string    `json:"client_id"`
	Platform      string    `json:"platform"`
	AnalysisType  string    `json:"analysis_type"`
	Query         string    `json:"query"`
	Result        string    `json:"result"`
	ExecutionTime float64   `json:"execution_time"`
	Timestamp     time.Time `json:"timestamp"`
	Status        Status    `json:"status"`
	Error         string    `json:"error,omitempty"`
}

// Resolver returns the cached analyst of a key.
type Resolver interface {
	Resolve(ctx context.Context, key agentcache.Key, r dataframe.DateRange, opts agentcache.ResolveOptions) (*agentcache.Entry, error)
}

// Recorder stores finished analyses in the semantic memory.
type Recorder interface {
	WriteAnalysis(ctx context.Context, clientID string, p platform.Platform, query, result string) error
}

// Analyst orchestrates analyses.
type Analyst struct {
	cache    Resolver
	recorder Recorder
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewAnalyst creates an orchestrator over cache and recorder.
func NewAnalyst(cache Resolver, recorder Recorder, logger zerolog.Logger) *Analyst {
	return &Analyst{
		cache:    cache,
		recorder: recorder,
		logger:   logger.With().Str("component", "analyst").Logger(),
		tracer:   otel.Tracer("github.com/easeaico/marketing-analyst/internal/service"),
		now:      time.Now,
	}
}

type validated struct {
	key    agentcache.Key
	kind   platform.Kind
	period dataframe.DateRange
	query  string
	format string
}

func (a *Analyst) validate(req Request) (validated, error) {
	var v validated
	if strings.TrimSpace(req.ClientID) == "" {
		return v, ErrMissingClient
	}
	key, err := agentcache.NewKey(strings.TrimSpace(req.ClientID), req.Platform)
	if err != nil {
		return v, err
	}
	v.key = key

	if v.period.Start, err = parseDate("start_date", req.StartDate); err != nil {
		return v, err
	}
	if v.period.End, err = parseDate("end_date", req.EndDate); err != nil {
		return v, err
	}
	if !v.period.Start.IsZero() && !v.period.End.IsZero() && v.period.End.Before(v.period.Start) {
		return v, fmt.Errorf("%w: end_date %s is before start_date %s", ErrInvalidDate, req.EndDate, req.StartDate)
	}

	v.kind = platform.ParseKind(req.AnalysisType)
	v.query = req.CustomQuery
	if strings.TrimSpace(v.query) == "" {
		v.query = v.kind.Query(key.Platform, platform.DateClause(v.period.Start, v.period.End))
	}
	v.format = req.OutputFormat
	if v.format == "" {
		v.format = DefaultOutputFormat
	}
	return v, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(platform.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q, expected YYYY-MM-DD", ErrInvalidDate, field, value)
	}
	return t, nil
}

// RunAnalysis runs one analysis. Invalid requests are returned as errors
// before any I/O; every later failure is reported in a Result with
// StatusError.
func (a *Analyst) RunAnalysis(ctx context.Context, req Request) (*Result, error) {
	v, err := a.validate(req)
	if err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "RunAnalysis", trace.WithAttributes(
		attribute.String("client_id", v.key.ClientID),
		attribute.String("platform", string(v.key.Platform)),
		attribute.String("analysis_type", v.kind.String()),
	))
	defer span.End()

	log := a.logger.With().Str("key", v.key.String()).Str("analysis_type", v.kind.String()).Logger()
	result := &Result{
		ClientID:     v.key.ClientID,
		Platform:     string(v.key.Platform),
		AnalysisType: req.AnalysisType,
		Query:        v.query,
	}
	fail := func(err error, elapsed time.Duration) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordAnalysis(result.Platform, string(StatusError), elapsed)
		log.Error().Err(err).Msg("analysis failed")

		result.Status = StatusError
		result.Error = err.Error()
		result.Result = "Falha na análise: " + err.Error()
		result.ExecutionTime = elapsed.Seconds()
		result.Timestamp = a.now().UTC()
		return result, nil
	}

	entry, err := a.cache.Resolve(ctx, v.key, v.period, agentcache.ResolveOptions{ForceNew: req.ForceNew})
	if err != nil {
		return fail(err, 0)
	}

	docs, err := entry.Retriever.Retrieve(ctx, v.query)
	if err != nil {
		return fail(fmt.Errorf("failed to retrieve context: %w", err), 0)
	}

	prompt, err := buildPrompt(analysisContext{
		Documents: docs,
		Platform:  string(v.key.Platform),
		Query:     v.query,
		Format:    v.format,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to build prompt: %w", err), 0)
	}

	start := a.now()
	output, err := entry.Engine.Invoke(ctx, prompt)
	elapsed := a.now().Sub(start)
	if err != nil {
		return fail(err, elapsed)
	}

	if strings.TrimSpace(output) == "" {
		output = noResult
	} else if err := a.recorder.WriteAnalysis(ctx, v.key.ClientID, v.key.Platform, v.query, output); err != nil {
		log.Warn().Err(err).Msg("failed to record analysis")
	}

	metrics.RecordAnalysis(result.Platform, string(StatusSuccess), elapsed)
	span.SetAttributes(attribute.Int("context_documents", len(docs)))
	log.Info().Dur("elapsed", elapsed).Int("context_documents", len(docs)).Msg("analysis completed")

	result.Result = output
	result.ExecutionTime = elapsed.Seconds()
	result.Timestamp = a.now().UTC()
	result.Status = StatusSuccess
	return result, nil
}

// Package analysis runs the two-stage chart analysis: describe the chart
// with the vision model, then match the description against the pattern
// taxonomy with the reasoning model.
package analysis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/candlelens/candlelens/internal/cost"
	"github.com/candlelens/candlelens/internal/failure"
	"github.com/candlelens/candlelens/pkg/models"
)

var tracer = otel.Tracer("candlelens/analysis")

const defaultContentType = "image/png"

// StatusReader exposes the current warmup status.
type StatusReader interface {
	Status() models.WarmupStatus
}

// Describer is the vision stage.
type Describer interface {
	Describe(ctx context.Context, image []byte, contentType string) (models.VisionResult, error)
}

// Reasoner is the pattern-matching stage.
type Reasoner interface {
	Analyze(ctx context.Context, description string, patterns []models.Pattern) (models.AnalysisResult, error)
}

// Option configures a Service.
type Option func(*Service)

// WithPricing overrides the rates used for the vision cost.
func WithPricing(p cost.Pricing) Option {
	return func(s *Service) {
		s.pricing = p
	}
}

// WithLedger records every successful analysis in l.
func WithLedger(l *cost.Ledger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

// Service orchestrates one analysis per request.
type Service struct {
	status   StatusReader
	vision   Describer
	reasoner Reasoner
	patterns []models.Pattern
	pricing  cost.Pricing
	ledger   *cost.Ledger
}

// NewService creates the orchestrator.
func NewService(status StatusReader, vision Describer, reasoner Reasoner, patterns []models.Pattern, opts ...Option) *Service {
	s := &Service{
		status:   status,
		vision:   vision,
		reasoner: reasoner,
		patterns: patterns,
		pricing:  cost.DefaultPricing(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Patterns returns the taxonomy the service matches against.
func (s *Service) Patterns() []models.Pattern {
	return s.patterns
}

// Analyze runs both stages for one chart. Requests made before the warmup
// reached ready are rejected without any upstream call.
func (s *Service) Analyze(ctx context.Context, req models.ChartAnalysisRequest) (*models.AnalyzeResponse, error) {
	if st := s.status.Status(); st.State != models.WarmupReady {
		return nil, failure.New(failure.NotReady, "model not ready: %s", st.Message)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	id := uuid.New().String()
	logger := log.With().Str("analysis_id", id).Logger()
	logger.Info().Int("bytes", len(req.Image)).Str("content_type", contentType).Msg("analysis started")

	vr, err := s.describe(ctx, id, req.Image, contentType)
	if err != nil {
		logger.Error().Err(err).Msg("vision stage failed")
		return nil, fmt.Errorf("vision analysis failed: %w", err)
	}
	logger.Info().Float64("predict_s", vr.PredictSeconds).Msg("vision stage done")

	ar, err := s.reason(ctx, id, vr.Description)
	if err != nil {
		logger.Error().Err(err).Msg("reasoning stage failed")
		return nil, fmt.Errorf("pattern analysis failed: %w", err)
	}

	breakdown := cost.Breakdown(vr, ar, s.pricing)
	if s.ledger != nil {
		s.ledger.Record(breakdown)
	}

	logger.Info().
		Str("pattern", ar.Pattern).
		Str("confidence", ar.Confidence).
		Float64("vision_cost_usd", breakdown.VisionCostUSD).
		Float64("reasoner_cost_usd", breakdown.ReasonerCostUSD).
		Float64("total_cost_usd", breakdown.TotalCostUSD).
		Msg("analysis complete")

	return &models.AnalyzeResponse{
		AnalysisID:       id,
		Pattern:          ar.Pattern,
		Category:         ar.Category,
		Direction:        ar.Direction,
		Confidence:       ar.Confidence,
		Reasoning:        ar.Reasoning,
		ChainOfThought:   ar.ChainOfThought,
		ChartDescription: vr.Description,
		Cost:             breakdown,
	}, nil
}

func (s *Service) describe(ctx context.Context, id string, image []byte, contentType string) (models.VisionResult, error) {
	ctx, span := tracer.Start(ctx, "vision.describe", trace.WithAttributes(
		attribute.String("candlelens.analysis_id", id),
		attribute.Int("candlelens.image_bytes", len(image)),
	))
	defer span.End()

	vr, err := s.vision.Describe(ctx, image, contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, failure.KindOf(err).String())
		return vr, err
	}
	span.SetAttributes(
		attribute.Float64("candlelens.predict_seconds", vr.PredictSeconds),
		attribute.Float64("candlelens.vision_cost_usd", cost.VisionCost(vr.PredictSeconds, s.pricing)),
	)
	return vr, nil
}

func (s *Service) reason(ctx context.Context, id, description string) (models.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "reasoning.analyze", trace.WithAttributes(
		attribute.String("candlelens.analysis_id", id),
		attribute.Int("candlelens.patterns", len(s.patterns)),
	))
	defer span.End()

	ar, err := s.reasoner.Analyze(ctx, description, s.patterns)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, failure.KindOf(err).String())
		return ar, err
	}
	span.SetAttributes(
		attribute.String("candlelens.pattern", ar.Pattern),
		attribute.Int64("candlelens.prompt_tokens", int64(ar.PromptTokens)),
		attribute.Int64("candlelens.completion_tokens", int64(ar.CompletionTokens)),
		attribute.Int64("candlelens.reasoning_tokens", int64(ar.ReasoningTokens)),
		attribute.Int64("candlelens.cache_hit_tokens", int64(ar.CacheHitTokens)),
		attribute.Float64("candlelens.reasoner_cost_usd", ar.CostUSD),
	)
	return ar, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ILLUVRSE/resource-selector/internal/catalog"
	"github.com/ILLUVRSE/resource-selector/internal/feedback"
	"github.com/ILLUVRSE/resource-selector/internal/logging"
	"github.com/ILLUVRSE/resource-selector/internal/metrics"
	"github.com/ILLUVRSE/resource-selector/internal/models"
	"github.com/ILLUVRSE/resource-selector/internal/selection"
	"github.com/ILLUVRSE/resource-selector/internal/sentinel"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrPolicyRejected     = errors.New("policy rejected")
	ErrNoSuitableResource = errors.New("no suitable resource")
)

const (
	SelectionAction = "model_selection"
	maxAlternatives = 3

	defaultBatchConcurrency = 8
)

var tracer = otel.Tracer("github.com/ILLUVRSE/resource-selector/internal/service")

// PolicyGate is satisfied by *sentinel.Gate.
type PolicyGate interface {
	Validate(ctx context.Context, action string, attrs map[string]interface{}) (bool, sentinel.Decision)
	Status() string
}

// FeedbackPublisher is satisfied by *feedback.Publisher.
type FeedbackPublisher interface {
	Publish(rec models.FeedbackRecord) bool
}

type Config struct {
	Catalog   catalog.Registry
	Gate      PolicyGate
	Feedback  feedback.Log
	Publisher FeedbackPublisher
	Scorer    *selection.Scorer

	BatchConcurrency int
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
}

type Service struct {
	catalog     catalog.Registry
	gate        PolicyGate
	feedback    feedback.Log
	publisher   FeedbackPublisher
	scorer      *selection.Scorer
	concurrency int
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func New(cfg Config) *Service {
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = selection.NewScorer(nil)
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	return &Service{
		catalog:     cfg.Catalog,
		gate:        cfg.Gate,
		feedback:    cfg.Feedback,
		publisher:   cfg.Publisher,
		scorer:      scorer,
		concurrency: concurrency,
		logger:      logging.OrNop(cfg.Logger).Named("service"),
		metrics:     cfg.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Select picks the best resource for req plus up to three alternatives.
func (s *Service) Select(ctx context.Context, req models.SelectionRequest) (resp models.SelectionResponse, err error) {
	ctx, span := tracer.Start(ctx, "Select", trace.WithAttributes(attribute.String("task_type", req.TaskType)))
	start := time.Now()
	defer func() {
		s.metrics.ObserveSelection(outcomeOf(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return models.SelectionResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	allowed, decision := s.checkPolicy(ctx, req)
	if !allowed {
		s.metrics.IncPolicyRejection()
		reason := decision.Reason
		if reason == "" {
			reason = "denied"
		}
		return models.SelectionResponse{}, fmt.Errorf("%w: %s", ErrPolicyRejected, reason)
	}

	category := selection.Classify(req.TaskType)
	resources, err := s.catalog.List(ctx)
	if err != nil {
		return models.SelectionResponse{}, fmt.Errorf("list catalog: %w", err)
	}
	candidates := selection.Filter(resources, category, req.PrivacyTier)
	span.SetAttributes(
		attribute.String("category", string(category)),
		attribute.Int("candidates", len(candidates)),
	)
	if len(candidates) == 0 {
		s.metrics.IncFilterEmpty(string(category))
		return models.SelectionResponse{}, fmt.Errorf("%w: no available %s resource for privacy tier %s",
			ErrNoSuitableResource, category, req.PrivacyTier)
	}

	ranked := selection.Rank(s.scorer.ScoreAll(candidates, req))
	winner := ranked[0]
	alternatives := make([]models.ResourceDescriptor, 0, maxAlternatives)
	for _, c := range ranked[1:min(len(ranked), maxAlternatives+1)] {
		alternatives = append(alternatives, c.Resource)
	}

	selected := winner.Resource
	policyDecision := models.PolicyAllowed
	if decision.Unavailable {
		policyDecision = models.PolicyAllowedFailOpen
	}
	resp = models.SelectionResponse{
		Success:           true,
		SelectedResource:  &selected,
		Rationale:         selection.Explain(selected, req, winner.Score),
		ExpectedCost:      winner.ExpectedCost,
		ExpectedLatencyMs: selected.Performance.LatencyMs,
		Confidence:        winner.Score,
		Alternatives:      alternatives,
		Metadata: models.SelectionMetadata{
			RequestID:      uuid.NewString(),
			Category:       category,
			CandidateCount: len(candidates),
			Timestamp:      s.now(),
			PolicyDecision: policyDecision,
			PolicyID:       decision.PolicyID,
		},
	}
	span.SetAttributes(attribute.String("selected", selected.ID), attribute.Float64("score", winner.Score))
	return resp, nil
}

func (s *Service) checkPolicy(ctx context.Context, req models.SelectionRequest) (bool, sentinel.Decision) {
	if s.gate == nil {
		return true, sentinel.Decision{Valid: true}
	}
	attrs := make(map[string]interface{}, len(req.Context)+3)
	for k, v := range req.Context {
		attrs[k] = v
	}
	attrs["taskType"] = req.TaskType
	attrs["privacyTier"] = req.PrivacyTier
	attrs["inputSize"] = req.InputSize
	return s.gate.Validate(ctx, SelectionAction, attrs)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrInvalidRequest):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrPolicyRejected):
		return metrics.OutcomePolicyRejected
	case errors.Is(err, ErrNoSuitableResource):
		return metrics.OutcomeNoSuitable
	default:
		return metrics.OutcomeError
	}
}

// SelectBatch runs each request independently and in parallel. Failed items
// are logged and left out; the remaining responses keep input order.
func (s *Service) SelectBatch(ctx context.Context, reqs []models.SelectionRequest) []models.SelectionResponse {
	ctx, span := tracer.Start(ctx, "SelectBatch", trace.WithAttributes(attribute.Int("requests", len(reqs))))
	defer span.End()

	results := make([]*models.SelectionResponse, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range reqs {
		i := i
		g.Go(func() error {
			resp, err := s.Select(gctx, reqs[i])
			if err != nil {
				s.logger.Warn("batch item skipped",
					zap.Int("index", i),
					zap.String("task_type", reqs[i].TaskType),
					zap.Error(err),
				)
				return nil
			}
			results[i] = &resp
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.SelectionResponse, 0, len(reqs))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	span.SetAttributes(attribute.Int("responses", len(out)))
	return out
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/resource-selector/internal/catalog"
	"github.com/ILLUVRSE/resource-selector/internal/models"
	"github.com/ILLUVRSE/resource-selector/internal/sentinel"
)

func (s *Service) ListModels(ctx context.Context) ([]models.ResourceDescriptor, error) {
	return s.catalog.List(ctx)
}

func (s *Service) GetModel(ctx context.Context, id string) (models.ResourceDescriptor, error) {
	return s.catalog.Get(ctx, id)
}

// UpsertModel creates or replaces a catalog entry. The id in the path wins
// over the body.
func (s *Service) UpsertModel(ctx context.Context, id string, d models.ResourceDescriptor) (models.ResourceDescriptor, error) {
	if d.ID != "" && d.ID != id {
		return models.ResourceDescriptor{}, fmt.Errorf("%w: body id %q does not match path id %q", ErrInvalidRequest, d.ID, id)
	}
	d.ID = id
	out, err := s.catalog.Upsert(ctx, d)
	if err != nil {
		return models.ResourceDescriptor{}, err
	}
	s.logger.Info("catalog entry upserted", zap.String("resource_id", id), zap.String("status", out.Status))
	return out, nil
}

func (s *Service) SetModelStatus(ctx context.Context, id, status string) (models.ResourceDescriptor, error) {
	out, err := s.catalog.SetStatus(ctx, id, strings.ToLower(strings.TrimSpace(status)))
	if err != nil {
		return models.ResourceDescriptor{}, err
	}
	s.logger.Info("catalog status changed", zap.String("resource_id", id), zap.String("status", out.Status))
	return out, nil
}

type FeedbackRequest struct {
	ResourceID  string
	Rating      float64
	Performance map[string]interface{}
	Comments    string
}

// RecordFeedback appends to the feedback log and hands the record to the
// publisher. Ratings are not range-checked and unknown resource ids are
// accepted; scores are never affected.
func (s *Service) RecordFeedback(ctx context.Context, req FeedbackRequest) (models.FeedbackRecord, error) {
	if strings.TrimSpace(req.ResourceID) == "" {
		return models.FeedbackRecord{}, fmt.Errorf("%w: resource id required", ErrInvalidRequest)
	}
	rec := models.FeedbackRecord{
		ID:                      uuid.New(),
		ResourceID:              req.ResourceID,
		Rating:                  req.Rating,
		PerformanceObservations: req.Performance,
		Comments:                req.Comments,
		Timestamp:               s.now(),
	}
	if err := s.feedback.Append(ctx, rec); err != nil {
		return models.FeedbackRecord{}, fmt.Errorf("append feedback: %w", err)
	}
	s.metrics.IncFeedbackRecord()
	if s.publisher != nil {
		s.publisher.Publish(rec)
	}
	return rec, nil
}

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"

	depHealthy   = "healthy"
	depUnhealthy = "unhealthy"
	depUnknown   = "unknown"
)

type HealthReport struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// Health never fails; broken dependencies only degrade the status.
func (s *Service) Health(ctx context.Context) HealthReport {
	deps := map[string]string{
		"policyValidator": depUnknown,
		"catalog":         pingStatus(ctx, s.catalog),
		"feedbackLog":     pingStatus(ctx, s.feedback),
	}
	if s.gate != nil {
		deps["policyValidator"] = s.gate.Status()
	}
	status := HealthOK
	for _, v := range deps {
		if v == depUnhealthy || v == sentinel.StatusUnhealthy {
			status = HealthDegraded
		}
	}
	return HealthReport{Status: status, Dependencies: deps}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func pingStatus(ctx context.Context, p pinger) string {
	if p == nil {
		return depUnknown
	}
	if err := p.Ping(ctx); err != nil {
		return depUnhealthy
	}
	return depHealthy
}

// IsNotFound reports whether err means the catalog has no such resource.
func IsNotFound(err error) bool {
	return errors.Is(err, catalog.ErrNotFound)
}

// Package feedback stores the append-only per-resource feedback log and
// ships records to downstream analytics. Nothing in here feeds back into
// scoring.
package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

var ErrInvalidRecord = errors.New("invalid feedback record")

// Log is an append-only, per-resource ordered feedback log. Trim drops the
// oldest records beyond keep; TrimHead drops at most n of the oldest records.
// Both return what they removed, oldest first.
type Log interface {
	Append(ctx context.Context, rec models.FeedbackRecord) error
	List(ctx context.Context, resourceID string) ([]models.FeedbackRecord, error)
	Trim(ctx context.Context, resourceID string, keep int) ([]models.FeedbackRecord, error)
	TrimHead(ctx context.Context, resourceID string, n int) ([]models.FeedbackRecord, error)
	Resources(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

func validate(rec models.FeedbackRecord) error {
	if rec.ResourceID == "" {
		return fmt.Errorf("%w: resource id required", ErrInvalidRecord)
	}
	return nil
}

func cloneRecord(rec models.FeedbackRecord) models.FeedbackRecord {
	if rec.PerformanceObservations != nil {
		obs := make(map[string]interface{}, len(rec.PerformanceObservations))
		for k, v := range rec.PerformanceObservations {
			obs[k] = v
		}
		rec.PerformanceObservations = obs
	}
	return rec
}

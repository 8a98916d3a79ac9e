package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

// PGStore is the Postgres feedback log. Schema:
//
//	CREATE TABLE feedback_records (
//	  id          UUID PRIMARY KEY,
//	  resource_id TEXT NOT NULL,
//	  rating      DOUBLE PRECISION NOT NULL,
//	  performance JSONB NOT NULL DEFAULT '{}',
//	  comments    TEXT NOT NULL DEFAULT '',
//	  created_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX feedback_records_resource_idx ON feedback_records (resource_id, created_at);
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (models.FeedbackRecord, error) {
	var (
		rec  models.FeedbackRecord
		perf []byte
	)
	if err := row.Scan(&rec.ID, &rec.ResourceID, &rec.Rating, &perf, &rec.Comments, &rec.Timestamp); err != nil {
		return models.FeedbackRecord{}, err
	}
	if len(perf) > 0 && string(perf) != "{}" && string(perf) != "null" {
		if err := json.Unmarshal(perf, &rec.PerformanceObservations); err != nil {
			return models.FeedbackRecord{}, fmt.Errorf("decode performance for %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func (s *PGStore) Append(ctx context.Context, rec models.FeedbackRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	perf := rec.PerformanceObservations
	if perf == nil {
		perf = map[string]interface{}{}
	}
	perfJSON, err := json.Marshal(perf)
	if err != nil {
		return fmt.Errorf("encode performance: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback_records (id, resource_id, rating, performance, comments, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, rec.ID, rec.ResourceID, rec.Rating, perfJSON, rec.Comments, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, resourceID string) ([]models.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_id, rating, performance, comments, created_at
		FROM feedback_records
		WHERE resource_id = $1
		ORDER BY created_at ASC, id ASC
	`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()
	var out []models.FeedbackRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) Trim(ctx context.Context, resourceID string, keep int) ([]models.FeedbackRecord, error) {
	if keep < 0 {
		keep = 0
	}
	return s.deleteReturning(ctx, `
		WITH doomed AS (
			SELECT id FROM feedback_records
			WHERE resource_id = $1
			ORDER BY created_at DESC, id DESC
			OFFSET $2
		)
		DELETE FROM feedback_records f
		USING doomed
		WHERE f.id = doomed.id
		RETURNING f.id, f.resource_id, f.rating, f.performance, f.comments, f.created_at
	`, resourceID, keep)
}

func (s *PGStore) TrimHead(ctx context.Context, resourceID string, n int) ([]models.FeedbackRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.deleteReturning(ctx, `
		WITH doomed AS (
			SELECT id FROM feedback_records
			WHERE resource_id = $1
			ORDER BY created_at ASC, id ASC
			LIMIT $2
		)
		DELETE FROM feedback_records f
		USING doomed
		WHERE f.id = doomed.id
		RETURNING f.id, f.resource_id, f.rating, f.performance, f.comments, f.created_at
	`, resourceID, n)
}

func (s *PGStore) deleteReturning(ctx context.Context, query string, args ...interface{}) ([]models.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trim feedback: %w", err)
	}
	defer rows.Close()
	var removed []models.FeedbackRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		removed = append(removed, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING order is unspecified.
	sort.SliceStable(removed, func(i, j int) bool {
		return removed[i].Timestamp.Before(removed[j].Timestamp)
	})
	return removed, nil
}

func (s *PGStore) Resources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT resource_id FROM feedback_records ORDER BY resource_id`)
	if err != nil {
		return nil, fmt.Errorf("list feedback resources: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

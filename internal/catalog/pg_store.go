package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

// PGStore persists the catalog in Postgres. Schema:
//
//	CREATE TABLE resource_catalog (
//	  position     BIGSERIAL,
//	  id           TEXT PRIMARY KEY,
//	  name         TEXT NOT NULL,
//	  kind         TEXT NOT NULL,
//	  provider     TEXT NOT NULL,
//	  capabilities JSONB NOT NULL,
//	  status       TEXT NOT NULL,
//	  performance  JSONB NOT NULL,
//	  costs        JSONB NOT NULL
//	);
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const catalogColumns = `id, name, kind, provider, capabilities, status, performance, costs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDescriptor(row rowScanner) (models.ResourceDescriptor, error) {
	var (
		d     models.ResourceDescriptor
		caps  []byte
		perf  []byte
		costs []byte
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Kind, &d.Provider, &caps, &d.Status, &perf, &costs); err != nil {
		return models.ResourceDescriptor{}, err
	}
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &d.Capabilities); err != nil {
			return models.ResourceDescriptor{}, fmt.Errorf("decode capabilities for %s: %w", d.ID, err)
		}
	}
	if err := json.Unmarshal(perf, &d.Performance); err != nil {
		return models.ResourceDescriptor{}, fmt.Errorf("decode performance for %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(costs, &d.Costs); err != nil {
		return models.ResourceDescriptor{}, fmt.Errorf("decode costs for %s: %w", d.ID, err)
	}
	return d, nil
}

func (s *PGStore) List(ctx context.Context) ([]models.ResourceDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+catalogColumns+` FROM resource_catalog ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()
	var out []models.ResourceDescriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id string) (models.ResourceDescriptor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM resource_catalog WHERE id = $1`, id)
	d, err := scanDescriptor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ResourceDescriptor{}, ErrNotFound
		}
		return models.ResourceDescriptor{}, fmt.Errorf("get resource %s: %w", id, err)
	}
	return d, nil
}

func (s *PGStore) Upsert(ctx context.Context, d models.ResourceDescriptor) (models.ResourceDescriptor, error) {
	if err := validateDescriptor(d); err != nil {
		return models.ResourceDescriptor{}, err
	}
	caps := d.Capabilities
	if caps == nil {
		caps = []string{}
	}
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return models.ResourceDescriptor{}, err
	}
	perfJSON, err := json.Marshal(d.Performance)
	if err != nil {
		return models.ResourceDescriptor{}, err
	}
	costsJSON, err := json.Marshal(d.Costs)
	if err != nil {
		return models.ResourceDescriptor{}, err
	}
	query := `
		INSERT INTO resource_catalog (id, name, kind, provider, capabilities, status, performance, costs)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			provider = EXCLUDED.provider,
			capabilities = EXCLUDED.capabilities,
			status = EXCLUDED.status,
			performance = EXCLUDED.performance,
			costs = EXCLUDED.costs
		RETURNING ` + catalogColumns
	row := s.db.QueryRowContext(ctx, query, d.ID, d.Name, d.Kind, d.Provider, capsJSON, d.Status, perfJSON, costsJSON)
	out, err := scanDescriptor(row)
	if err != nil {
		return models.ResourceDescriptor{}, fmt.Errorf("upsert resource %s: %w", d.ID, err)
	}
	return out, nil
}

func (s *PGStore) SetStatus(ctx context.Context, id, status string) (models.ResourceDescriptor, error) {
	if err := validateStatus(status); err != nil {
		return models.ResourceDescriptor{}, err
	}
	row := s.db.QueryRowContext(ctx, `UPDATE resource_catalog SET status = $2 WHERE id = $1 RETURNING `+catalogColumns, id, status)
	d, err := scanDescriptor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ResourceDescriptor{}, ErrNotFound
		}
		return models.ResourceDescriptor{}, fmt.Errorf("set status %s: %w", id, err)
	}
	return d, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidDescriptor = errors.New("invalid resource descriptor")
)

// Registry is the resource catalog consulted on every selection. List must
// return resources in stable insertion order.
type Registry interface {
	List(ctx context.Context) ([]models.ResourceDescriptor, error)
	Get(ctx context.Context, id string) (models.ResourceDescriptor, error)
	Upsert(ctx context.Context, d models.ResourceDescriptor) (models.ResourceDescriptor, error)
	SetStatus(ctx context.Context, id, status string) (models.ResourceDescriptor, error)
	Ping(ctx context.Context) error
}

func validateDescriptor(d models.ResourceDescriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return nil
}

func validateStatus(status string) error {
	if status != models.StatusAvailable && status != models.StatusUnavailable {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDescriptor, status)
	}
	return nil
}

// Seed upserts descs into reg in order.
func Seed(ctx context.Context, reg Registry, descs []models.ResourceDescriptor) error {
	for _, d := range descs {
		if _, err := reg.Upsert(ctx, d); err != nil {
			return fmt.Errorf("seed %s: %w", d.ID, err)
		}
	}
	return nil
}

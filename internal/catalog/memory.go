package catalog

import (
	"context"
	"sync"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

// MemoryCatalog keeps descriptors in insertion order. Values are cloned on
// the way in and out, so readers always see whole records.
type MemoryCatalog struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]models.ResourceDescriptor
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{byID: map[string]models.ResourceDescriptor{}}
}

func (m *MemoryCatalog) List(ctx context.Context) ([]models.ResourceDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ResourceDescriptor, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id].Clone())
	}
	return out, nil
}

func (m *MemoryCatalog) Get(ctx context.Context, id string) (models.ResourceDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byID[id]
	if !ok {
		return models.ResourceDescriptor{}, ErrNotFound
	}
	return d.Clone(), nil
}

// Upsert replaces an existing descriptor in place, keeping its position.
func (m *MemoryCatalog) Upsert(ctx context.Context, d models.ResourceDescriptor) (models.ResourceDescriptor, error) {
	if err := validateDescriptor(d); err != nil {
		return models.ResourceDescriptor{}, err
	}
	stored := d.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[d.ID]; !ok {
		m.order = append(m.order, d.ID)
	}
	m.byID[d.ID] = stored
	return stored.Clone(), nil
}

func (m *MemoryCatalog) SetStatus(ctx context.Context, id, status string) (models.ResourceDescriptor, error) {
	if err := validateStatus(status); err != nil {
		return models.ResourceDescriptor{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return models.ResourceDescriptor{}, ErrNotFound
	}
	d.Status = status
	m.byID[id] = d
	return d.Clone(), nil
}

func (m *MemoryCatalog) Ping(ctx context.Context) error {
	return nil
}

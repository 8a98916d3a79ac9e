package feedback

import (
	"context"
	"sort"
	"sync"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

// MemoryLog keeps every record in one append-only arena and indexes it per
// resource by arena offset. Trimmed slots are reclaimed once they make up
// half the arena.
type MemoryLog struct {
	mu    sync.Mutex
	arena []models.FeedbackRecord
	index map[string][]int
	dead  int
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{index: map[string][]int{}}
}

func (m *MemoryLog) Append(ctx context.Context, rec models.FeedbackRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	rec = cloneRecord(rec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arena = append(m.arena, rec)
	m.index[rec.ResourceID] = append(m.index[rec.ResourceID], len(m.arena)-1)
	return nil
}

func (m *MemoryLog) List(ctx context.Context, resourceID string) ([]models.FeedbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	offsets := m.index[resourceID]
	out := make([]models.FeedbackRecord, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, cloneRecord(m.arena[off]))
	}
	return out, nil
}

func (m *MemoryLog) Trim(ctx context.Context, resourceID string, keep int) ([]models.FeedbackRecord, error) {
	if keep < 0 {
		keep = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropOldest(resourceID, len(m.index[resourceID])-keep), nil
}

func (m *MemoryLog) TrimHead(ctx context.Context, resourceID string, n int) ([]models.FeedbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropOldest(resourceID, n), nil
}

// dropOldest removes up to drop of the resource's oldest records. Callers
// hold mu.
func (m *MemoryLog) dropOldest(resourceID string, drop int) []models.FeedbackRecord {
	offsets := m.index[resourceID]
	if drop > len(offsets) {
		drop = len(offsets)
	}
	if drop <= 0 {
		return nil
	}
	removed := make([]models.FeedbackRecord, 0, drop)
	for _, off := range offsets[:drop] {
		removed = append(removed, m.arena[off])
		m.arena[off] = models.FeedbackRecord{}
	}
	if drop == len(offsets) {
		delete(m.index, resourceID)
	} else {
		m.index[resourceID] = append([]int(nil), offsets[drop:]...)
	}
	m.dead += drop
	if m.dead*2 >= len(m.arena) {
		m.compact()
	}
	return removed
}

// compact rebuilds the arena from live offsets. Callers hold mu.
func (m *MemoryLog) compact() {
	type slot struct {
		resource string
		pos      int
		off      int
	}
	live := make([]slot, 0, len(m.arena)-m.dead)
	for id, offsets := range m.index {
		for pos, off := range offsets {
			live = append(live, slot{resource: id, pos: pos, off: off})
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].off < live[j].off })

	arena := make([]models.FeedbackRecord, 0, len(live))
	for _, s := range live {
		m.index[s.resource][s.pos] = len(arena)
		arena = append(arena, m.arena[s.off])
	}
	m.arena = arena
	m.dead = 0
}

func (m *MemoryLog) Resources(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.index))
	for id := range m.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryLog) Ping(ctx context.Context) error {
	return nil
}

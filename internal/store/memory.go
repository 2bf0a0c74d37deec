package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/cvlacsync/internal/model"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Admin = (*MemoryStore)(nil)
)

// MemoryStore keeps work items and facts in process memory.
// It backs tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]model.WorkItem
	facts  []model.ExtractedFact
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]model.WorkItem)}
}

// EnsureSchema has nothing to create in memory
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return ctx.Err()
}

// ListPending returns pending items ordered by id
func (s *MemoryStore) ListPending(ctx context.Context) ([]model.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []model.WorkItem
	for _, item := range s.items {
		if item.Status != model.StatusProcessed {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// PersistFacts appends facts atomically
func (s *MemoryStore) PersistFacts(ctx context.Context, facts []model.ExtractedFact) (int, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, facts...)
	return len(facts), nil
}

// MarkProcessed sets an item to processed
func (s *MemoryStore) MarkProcessed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("mark %d: %w", id, ErrItemNotFound)
	}
	item.Status = model.StatusProcessed
	s.items[id] = item
	return nil
}

// ClearFacts drops every fact
func (s *MemoryStore) ClearFacts(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = nil
	return nil
}

// AddItem enqueues a pending item
func (s *MemoryStore) AddItem(ctx context.Context, label, link string) (model.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item := model.WorkItem{
		ID:        s.nextID,
		Label:     label,
		Link:      link,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	s.items[item.ID] = item
	return item, nil
}

// StatusCounts counts items per status
func (s *MemoryStore) StatusCounts(ctx context.Context) (model.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var counts model.StatusCounts
	for _, item := range s.items {
		if item.Status == model.StatusProcessed {
			counts.Processed++
		} else {
			counts.Pending++
		}
	}
	return counts, nil
}

// Item returns a copy of one item
func (s *MemoryStore) Item(id int64) (model.WorkItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Facts returns a copy of the persisted facts
func (s *MemoryStore) Facts() []model.ExtractedFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ExtractedFact, len(s.facts))
	copy(out, s.facts)
	return out
}

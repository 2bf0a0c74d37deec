package store

import (
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/cvlacsync/internal/model"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	first, _ := s.AddItem(ctx, "first", "http://a")
	second, _ := s.AddItem(ctx, "second", "http://b")

	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("unexpected pending order: %+v", pending)
	}

	if err := s.MarkProcessed(ctx, first.ID); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if err := s.MarkProcessed(ctx, first.ID); err != nil {
		t.Fatalf("second MarkProcessed: %v", err)
	}
	if err := s.MarkProcessed(ctx, 42); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}

	pending, _ = s.ListPending(ctx)
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Errorf("expected only second pending, got %+v", pending)
	}

	counts, _ := s.StatusCounts(ctx)
	if counts.Pending != 1 || counts.Processed != 1 || counts.Total() != 2 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestMemoryStore_Facts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	n, err := s.PersistFacts(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("empty persist = (%d, %v), want (0, nil)", n, err)
	}

	if _, err := s.PersistFacts(ctx, make([]model.ExtractedFact, 3)); err != nil {
		t.Fatalf("PersistFacts: %v", err)
	}
	if got := len(s.Facts()); got != 3 {
		t.Errorf("expected 3 facts, got %d", got)
	}

	if err := s.ClearFacts(ctx); err != nil {
		t.Fatalf("ClearFacts: %v", err)
	}
	if got := len(s.Facts()); got != 0 {
		t.Errorf("expected no facts after clear, got %d", got)
	}
}

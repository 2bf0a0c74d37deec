// Package store persists work items and extracted facts.
package store

import (
	"context"
	"errors"

	"github.com/ppiankov/cvlacsync/internal/model"
)

// ErrItemNotFound is returned when a work item id does not exist
var ErrItemNotFound = errors.New("work item not found")

// Store is the durable backing for a pipeline pass
type Store interface {
	// EnsureSchema creates missing tables and columns. Never destructive.
	EnsureSchema(ctx context.Context) error

	// ListPending returns every item whose status is pending or unset, ordered by id
	ListPending(ctx context.Context) ([]model.WorkItem, error)

	// PersistFacts inserts all facts or none. An empty batch performs no I/O.
	PersistFacts(ctx context.Context, facts []model.ExtractedFact) (int, error)

	// MarkProcessed moves an item to processed. Marking twice is not an error.
	MarkProcessed(ctx context.Context, id int64) error

	// ClearFacts truncates the extracted facts table
	ClearFacts(ctx context.Context) error
}

// Admin exposes maintenance operations outside of a pass
type Admin interface {
	// AddItem enqueues a new pending work item
	AddItem(ctx context.Context, label, link string) (model.WorkItem, error)

	// StatusCounts counts items per status
	StatusCounts(ctx context.Context) (model.StatusCounts, error)
}

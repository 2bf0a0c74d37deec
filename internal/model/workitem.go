package model

import (
	"strings"
	"time"
)

// WorkItem is a subject awaiting content extraction
type WorkItem struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"` // Display name of the subject
	Link      string    `json:"link"`  // Locator handed to the extractor
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Status is the processing state of a work item.
// It only ever moves from pending to processed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
)

// legacyProcessed is written by older schemas and still means processed
const legacyProcessed = "procesado"

// ParseStatus maps a stored status value to a Status. Matching ignores case
// and surrounding spaces. Anything other than a processed value, including
// NULL and empty, is read as pending.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(StatusProcessed), legacyProcessed:
		return StatusProcessed
	default:
		return StatusPending
	}
}

// ProcessedValues lists the normalized stored values that count as processed
func ProcessedValues() []string {
	return []string{string(StatusProcessed), legacyProcessed}
}

// StatusCounts counts work items per status
type StatusCounts struct {
	Pending   int `json:"pending"`
	Processed int `json:"processed"`
}

// Total returns the number of counted items
func (c StatusCounts) Total() int {
	return c.Pending + c.Processed
}

package model

import "time"

// Stage names the step of item processing that failed
type Stage string

const (
	StageExtract Stage = "extract"
	StagePersist Stage = "persist"
	StageMark    Stage = "mark"
)

// ItemFailure records why one work item did not complete during a pass
type ItemFailure struct {
	ItemID  int64  `json:"item_id"`
	Label   string `json:"label,omitempty"`
	Stage   Stage  `json:"stage"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// Error implements error
func (f ItemFailure) Error() string {
	return string(f.Stage) + ": " + f.Message
}

// Unwrap exposes the underlying cause
func (f ItemFailure) Unwrap() error {
	return f.Err
}

// Summary is the terminal report of one pass
type Summary struct {
	Attempted      int           `json:"attempted"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	FactsPersisted int           `json:"facts_persisted"`
	Failures       []ItemFailure `json:"failures,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
}

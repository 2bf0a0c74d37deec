package model

// ExtractedFact is one structured row produced by an extractor for a work item.
// Facts are append-only once persisted.
type ExtractedFact struct {
	ParentWorkItemID *int64 `json:"parent_work_item_id,omitempty"`
	Category         string `json:"category"`
	FullName         string `json:"full_name"`
	Sex              string `json:"sex"`
	Degree           string `json:"degree"`
	ProjectType      string `json:"project_type"`
	ParentNode       string `json:"parent_node,omitempty"` // Grouping label, empty when unknown
	ProjectTitle     string `json:"project_title"`
	Year             *int   `json:"year,omitempty"`
}

// WithParent returns facts with a nil parent id stamped with id.
// Facts that already reference a parent are left alone.
func WithParent(facts []ExtractedFact, id int64) []ExtractedFact {
	out := make([]ExtractedFact, len(facts))
	for i, f := range facts {
		if f.ParentWorkItemID == nil {
			parent := id
			f.ParentWorkItemID = &parent
		}
		out[i] = f
	}
	return out
}

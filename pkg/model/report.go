package model

import "time"

// ClassSummary is one row of a BiggestClasses* report (internal/heap's
// BiggestClassesByInstanceCount / BiggestClassesByTotalShallow).
type ClassSummary struct {
	Name              string `json:"name"`
	InstanceCount     int64  `json:"instance_count"`
	TotalShallowBytes int64  `json:"total_shallow_bytes"`
}

// ObjectSummary is one row of a BiggestObjects report.
type ObjectSummary struct {
	ObjectID32   int32  `json:"object_id32"`
	ClassName    string `json:"class_name"`
	ShallowBytes int64  `json:"shallow_bytes"`
	RetainedBytes int64 `json:"retained_bytes"` // -1 if dominators weren't computed
}

// AnalysisReport is the persisted summary of one completed AnalysisJob.
type AnalysisReport struct {
	ID                     int64           `json:"-"`
	JobUUID                string          `json:"job_uuid"`
	Version                string          `json:"version"`
	ObjectCount            int64           `json:"object_count"`
	ClassCount             int64           `json:"class_count"`
	TotalHeapBytes         int64           `json:"total_heap_bytes"`
	DominatorsComputed     bool            `json:"dominators_computed"`
	StagnationGuardTripped bool            `json:"stagnation_guard_tripped"`
	BiggestClasses         []ClassSummary  `json:"biggest_classes,omitempty"`
	BiggestObjects         []ObjectSummary `json:"biggest_objects,omitempty"`
	AnalyzedAt             time.Time       `json:"analyzed_at"`
}

// DominatorRun records when dominators were last computed for a dump, so a
// second Open() of the same file can report staleness without recomputing
// (SPEC_FULL.md's gorm-persisted DominatorRun metadata).
type DominatorRun struct {
	JobUUID                string    `json:"job_uuid"`
	ComputedAt             time.Time `json:"computed_at"`
	ObjectCount            int64     `json:"object_count"`
	StagnationGuardTripped bool      `json:"stagnation_guard_tripped"`
}

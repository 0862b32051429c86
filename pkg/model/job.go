// Package model defines the DTOs the service layer persists and exchanges
// around the internal/heap core: analysis jobs, their tunable options, and
// the reports the pipeline produces.
package model

import (
	"encoding/json"
	"time"
)

// JobStatus tracks an AnalysisJob through the scheduler's worker pool.
type JobStatus int

const (
	JobStatusPending JobStatus = iota
	JobStatusRunning
	JobStatusCompleted
	JobStatusFailed
)

// String returns the human-readable job status name.
func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "pending"
	case JobStatusRunning:
		return "running"
	case JobStatusCompleted:
		return "completed"
	case JobStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// smallDumpBytes is the dump-size cutoff under which a job is fast-tracked
// into a reserved priority slot (§ scheduler priority-slot reservation):
// small dumps finish quickly and shouldn't queue behind a multi-gigabyte one.
const smallDumpBytes = 256 << 20 // 256 MiB

// JobOptions holds the analysis settings a single job can choose (e.g. a CLI
// caller forcing INDEXED mode on a small dump for a reproducible benchmark).
// Only InboundIndexEnabled has a Config.Analysis counterpart; the inbound
// index is built when either of the two is set.
type JobOptions struct {
	ParsingMode         string `json:"parsing_mode,omitempty"` // "", AUTO, IN_MEMORY, INDEXED
	ComputeDominators   bool   `json:"compute_dominators"`
	InboundIndexEnabled bool   `json:"inbound_index_enabled"`
	TopN                int    `json:"top_n,omitempty"`
	MaxPathDepth        int    `json:"max_path_depth,omitempty"`
}

// UnmarshalJSON tolerates a null/empty options blob, matching the ambient
// config loader's tolerance of partially-specified overrides.
func (o *JobOptions) UnmarshalJSON(data []byte) error {
	type alias JobOptions
	var a alias
	if len(data) == 0 || string(data) == "null" {
		*o = JobOptions{}
		return nil
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*o = JobOptions(a)
	return nil
}

// AnalysisJob is one "analyze this heap dump" unit of work, the sole unit
// the scheduler moves through its worker pool — unlike the teacher's
// multi-profiler Task, one AnalysisJob always means one HPROF file.
type AnalysisJob struct {
	ID            int64
	JobUUID       string
	DumpPath      string // storage key or local path of the .hprof file
	DumpSizeBytes int64
	Status        JobStatus
	StatusInfo    string
	UserName      string
	COSBucket     string
	Options       JobOptions
	CreateTime    time.Time
	BeginTime     *time.Time
	EndTime       *time.Time
}

// NewAnalysisJob constructs a pending job for dumpPath.
func NewAnalysisJob(id int64, jobUUID, dumpPath string) *AnalysisJob {
	return &AnalysisJob{
		ID:         id,
		JobUUID:    jobUUID,
		DumpPath:   dumpPath,
		Status:     JobStatusPending,
		CreateTime: time.Now(),
	}
}

// IsHighPriority reports whether the job is small enough to deserve a
// reserved priority slot rather than competing for a general worker.
func (j *AnalysisJob) IsHighPriority() bool {
	return j.DumpSizeBytes > 0 && j.DumpSizeBytes <= smallDumpBytes
}

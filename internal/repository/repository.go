// Package repository provides database abstraction for the heap-dump analysis service.
package repository

import (
	"context"

	"github.com/heapdump-analysis/pkg/model"
)

// JobRepository defines the interface for job-related database operations.
type JobRepository interface {
	// GetPendingJobs retrieves jobs that are pending analysis, ordered so
	// that small dumps (AnalysisJob.IsHighPriority) are returned first.
	GetPendingJobs(ctx context.Context, limit int) ([]*model.AnalysisJob, error)

	// GetJobByID retrieves a job by its ID.
	GetJobByID(ctx context.Context, id int64) (*model.AnalysisJob, error)

	// GetJobByUUID retrieves a job by its UUID.
	GetJobByUUID(ctx context.Context, uuid string) (*model.AnalysisJob, error)

	// UpdateStatus updates the status of a job.
	UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error

	// UpdateStatusWithInfo updates the status with additional info.
	UpdateStatusWithInfo(ctx context.Context, id int64, status model.JobStatus, info string) error

	// LockJobForAnalysis attempts to lock a job for analysis (prevents
	// concurrent processing of the same dump by two workers).
	LockJobForAnalysis(ctx context.Context, id int64) (bool, error)
}

// ReportRepository defines the interface for analysis report operations.
type ReportRepository interface {
	// SaveReport saves an analysis report to the database.
	SaveReport(ctx context.Context, report *model.AnalysisReport) error

	// GetReportByJobUUID retrieves the analysis report for a job.
	GetReportByJobUUID(ctx context.Context, jobUUID string) (*model.AnalysisReport, error)

	// UpdateReport updates an existing analysis report.
	UpdateReport(ctx context.Context, report *model.AnalysisReport) error
}

// DominatorRunRepository caches when dominators were last computed for a
// dump so a repeat query doesn't silently recompute the CHK fixed point.
type DominatorRunRepository interface {
	// SaveRun records a completed dominator computation.
	SaveRun(ctx context.Context, run *model.DominatorRun) error

	// GetRun retrieves the last dominator run for a job, if any.
	GetRun(ctx context.Context, jobUUID string) (*model.DominatorRun, error)
}

package scheduler

import (
	"context"

	"github.com/heapdump-analysis/internal/repository"
	"github.com/heapdump-analysis/pkg/model"
)

// JobFetcher abstracts how the scheduler discovers and claims pending jobs.
type JobFetcher interface {
	// FetchPendingJobs returns jobs waiting to be analyzed, smallest dump first.
	FetchPendingJobs(ctx context.Context, limit int) ([]*Job, error)

	// LockJob attempts to claim a job for analysis, returning false if another
	// worker already claimed it.
	LockJob(ctx context.Context, jobID int64) (bool, error)

	// UpdateJobStatus updates a job's status, optionally attaching info (e.g.
	// an error message on failure).
	UpdateJobStatus(ctx context.Context, jobID int64, status model.JobStatus, info string) error
}

// RepositoryJobFetcher implements JobFetcher against the persistence layer.
type RepositoryJobFetcher struct {
	jobRepo repository.JobRepository
}

// NewRepositoryJobFetcher creates a new RepositoryJobFetcher.
func NewRepositoryJobFetcher(jobRepo repository.JobRepository) *RepositoryJobFetcher {
	return &RepositoryJobFetcher{jobRepo: jobRepo}
}

// FetchPendingJobs returns pending jobs to be processed.
func (f *RepositoryJobFetcher) FetchPendingJobs(ctx context.Context, limit int) ([]*Job, error) {
	jobs, err := f.jobRepo.GetPendingJobs(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := make([]*Job, len(jobs))
	for i, j := range jobs {
		result[i] = convertModelJob(j)
	}

	return result, nil
}

// LockJob attempts to lock a job for processing.
func (f *RepositoryJobFetcher) LockJob(ctx context.Context, jobID int64) (bool, error) {
	return f.jobRepo.LockJobForAnalysis(ctx, jobID)
}

// UpdateJobStatus updates the job status, with optional status info.
func (f *RepositoryJobFetcher) UpdateJobStatus(ctx context.Context, jobID int64, status model.JobStatus, info string) error {
	if info != "" {
		return f.jobRepo.UpdateStatusWithInfo(ctx, jobID, status, info)
	}
	return f.jobRepo.UpdateStatus(ctx, jobID, status)
}

// convertModelJob converts a model.AnalysisJob to a scheduler.Job.
func convertModelJob(j *model.AnalysisJob) *Job {
	job := &Job{
		ID:            j.ID,
		UUID:          j.JobUUID,
		DumpPath:      j.DumpPath,
		DumpSizeBytes: j.DumpSizeBytes,
		UserName:      j.UserName,
		COSBucket:     j.COSBucket,
		Options:       j.Options,
		Priority:      0,
	}

	if j.IsHighPriority() {
		job.Priority = 1
	}

	return job
}

// Package scheduler provides job scheduling and worker pool management for
// heap dump analysis.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/heapdump-analysis/pkg/config"
	"github.com/heapdump-analysis/pkg/model"
	"github.com/heapdump-analysis/pkg/utils"
)

// Job represents a job to be processed by the worker pool.
type Job struct {
	ID            int64
	UUID          string
	DumpPath      string
	DumpSizeBytes int64
	UserName      string
	COSBucket     string
	Options       model.JobOptions
	Priority      int // Higher value = higher priority
}

// JobProcessor defines the interface for processing jobs.
type JobProcessor interface {
	// Process runs the full analysis pipeline for a single job.
	Process(ctx context.Context, job *Job) error
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	PollInterval  time.Duration // How often to poll for new jobs
	WorkerCount   int           // Number of concurrent workers
	PrioritySlots int           // Reserved slots for high priority jobs
	JobBatchSize  int           // Max jobs to fetch per poll
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval:  2 * time.Second,
		WorkerCount:   5,
		PrioritySlots: 2,
		JobBatchSize:  10,
	}
}

// FromConfig creates scheduler config from application config.
func FromConfig(cfg *config.SchedulerConfig) *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval:  time.Duration(cfg.PollInterval) * time.Second,
		WorkerCount:   cfg.WorkerCount,
		PrioritySlots: cfg.PrioritySlots,
		JobBatchSize:  cfg.JobBatchSize,
	}
}

// Scheduler polls the job repository for pending AnalysisJobs and runs them
// through a bounded worker pool, reserving a subset of workers for
// high-priority (small dump) jobs so a burst of large dumps can't starve
// them (§ scheduling priority, IsHighPriority).
type Scheduler struct {
	config    *SchedulerConfig
	fetcher   JobFetcher
	processor JobProcessor
	logger    utils.Logger

	workerPool chan struct{} // Semaphore for worker count
	jobQueue   chan *Job     // Job queue
	wg         sync.WaitGroup

	running bool
	stopCh  chan struct{}
}

// New creates a new Scheduler.
func New(cfg *SchedulerConfig, fetcher JobFetcher, processor JobProcessor, logger utils.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultSchedulerConfig()
	}
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	return &Scheduler{
		config:     cfg,
		fetcher:    fetcher,
		processor:  processor,
		logger:     logger,
		workerPool: make(chan struct{}, cfg.WorkerCount),
		jobQueue:   make(chan *Job, cfg.JobBatchSize*2),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler with %d workers", s.config.WorkerCount)

	s.running = true

	for i := 0; i < s.config.WorkerCount; i++ {
		s.workerPool <- struct{}{}
	}

	go s.pollLoop(ctx)
	go s.processLoop(ctx)

	return nil
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")
	s.running = false
	close(s.stopCh)

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// shouldAcceptJob determines if a job should be accepted based on priority.
func (s *Scheduler) shouldAcceptJob(job *Job) bool {
	activeWorkers := s.config.WorkerCount - len(s.workerPool)
	reservedSlots := s.config.WorkerCount - s.config.PrioritySlots

	// High priority jobs can always be accepted if there's capacity
	if job.Priority > 0 {
		return activeWorkers < s.config.WorkerCount
	}

	// Normal priority jobs can only use non-reserved slots
	return activeWorkers < reservedSlots
}

// pollLoop periodically fetches and claims pending jobs, queuing the ones
// this scheduler successfully locks.
func (s *Scheduler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	jobs, err := s.fetcher.FetchPendingJobs(ctx, s.config.JobBatchSize)
	if err != nil {
		s.logger.Error("Failed to fetch pending jobs: %v", err)
		return
	}

	for _, job := range jobs {
		if !s.shouldAcceptJob(job) {
			s.logger.Debug("Skipping job %d due to priority constraints", job.ID)
			continue
		}

		locked, err := s.fetcher.LockJob(ctx, job.ID)
		if err != nil {
			s.logger.Warn("Failed to lock job %d: %v", job.ID, err)
			continue
		}
		if !locked {
			// Another scheduler instance claimed it first.
			continue
		}

		select {
		case s.jobQueue <- job:
			s.logger.Info("Queued job %d (UUID: %s)", job.ID, job.UUID)
		default:
			s.logger.Warn("Job queue full, deferring job %d to next poll", job.ID)
		}
	}
}

// processLoop processes queued jobs.
func (s *Scheduler) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case job := <-s.jobQueue:
			select {
			case <-s.workerPool:
				s.wg.Add(1)
				go s.processJob(ctx, job)
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}
	}
}

// processJob processes a single job.
func (s *Scheduler) processJob(ctx context.Context, job *Job) {
	defer func() {
		s.workerPool <- struct{}{} // Release worker slot
		s.wg.Done()
	}()

	s.logger.Info("Processing job %d (UUID: %s, dump size: %d bytes)", job.ID, job.UUID, job.DumpSizeBytes)

	startTime := time.Now()
	err := s.processor.Process(ctx, job)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Job %d failed after %v: %v", job.ID, duration, err)
		if statusErr := s.fetcher.UpdateJobStatus(ctx, job.ID, model.JobStatusFailed, err.Error()); statusErr != nil {
			s.logger.Error("Failed to mark job %d as failed: %v", job.ID, statusErr)
		}
		return
	}

	s.logger.Info("Job %d completed successfully in %v", job.ID, duration)
}

// Stats returns current scheduler statistics.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		ActiveWorkers: s.config.WorkerCount - len(s.workerPool),
		TotalWorkers:  s.config.WorkerCount,
		QueuedJobs:    len(s.jobQueue),
		Running:       s.running,
	}
}

// SchedulerStats holds scheduler statistics.
type SchedulerStats struct {
	ActiveWorkers int  `json:"active_workers"`
	TotalWorkers  int  `json:"total_workers"`
	QueuedJobs    int  `json:"queued_jobs"`
	Running       bool `json:"running"`
}

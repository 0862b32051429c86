package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/heapdump-analysis/pkg/model"
	"github.com/heapdump-analysis/pkg/utils"
)

// MockJobFetcher is a mock implementation of JobFetcher.
type MockJobFetcher struct {
	mock.Mock
}

func (m *MockJobFetcher) FetchPendingJobs(ctx context.Context, limit int) ([]*Job, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Job), args.Error(1)
}

func (m *MockJobFetcher) LockJob(ctx context.Context, jobID int64) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobFetcher) UpdateJobStatus(ctx context.Context, jobID int64, status model.JobStatus, info string) error {
	args := m.Called(ctx, jobID, status, info)
	return args.Error(0)
}

// MockJobProcessor is a mock implementation of JobProcessor.
type MockJobProcessor struct {
	mock.Mock
	processedCount int32
}

func (m *MockJobProcessor) Process(ctx context.Context, job *Job) error {
	atomic.AddInt32(&m.processedCount, 1)
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobProcessor) GetProcessedCount() int32 {
	return atomic.LoadInt32(&m.processedCount)
}

func TestScheduler_New(t *testing.T) {
	processor := &MockJobProcessor{}
	fetcher := &MockJobFetcher{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)

	t.Run("WithDefaultConfig", func(t *testing.T) {
		s := New(nil, fetcher, processor, nil)
		require.NotNil(t, s)
		assert.Equal(t, 5, s.config.WorkerCount)
		assert.Equal(t, 2*time.Second, s.config.PollInterval)
	})

	t.Run("WithCustomConfig", func(t *testing.T) {
		cfg := &SchedulerConfig{
			PollInterval:  5 * time.Second,
			WorkerCount:   10,
			PrioritySlots: 3,
			JobBatchSize:  20,
		}
		s := New(cfg, fetcher, processor, logger)
		require.NotNil(t, s)
		assert.Equal(t, 10, s.config.WorkerCount)
		assert.Equal(t, 5*time.Second, s.config.PollInterval)
	})
}

func TestScheduler_Stats(t *testing.T) {
	processor := &MockJobProcessor{}
	fetcher := &MockJobFetcher{}

	cfg := &SchedulerConfig{
		WorkerCount: 5,
	}

	s := New(cfg, fetcher, processor, nil)

	stats := s.Stats()
	// Before Start(), workerPool is empty, so ActiveWorkers = WorkerCount - 0 = WorkerCount
	assert.Equal(t, 5, stats.ActiveWorkers)
	assert.Equal(t, 5, stats.TotalWorkers)
	assert.False(t, stats.Running)
}

func TestScheduler_ShouldAcceptJob(t *testing.T) {
	processor := &MockJobProcessor{}
	fetcher := &MockJobFetcher{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)

	cfg := &SchedulerConfig{
		WorkerCount:   5,
		PrioritySlots: 2,
		PollInterval:  100 * time.Millisecond,
		JobBatchSize:  5,
	}

	s := New(cfg, fetcher, processor, logger)

	// Need to initialize worker pool like Start() does
	for i := 0; i < cfg.WorkerCount; i++ {
		s.workerPool <- struct{}{}
	}

	t.Run("HighPriorityJob", func(t *testing.T) {
		job := &Job{Priority: 1}
		assert.True(t, s.shouldAcceptJob(job))
	})

	t.Run("NormalPriorityJob", func(t *testing.T) {
		job := &Job{Priority: 0}
		assert.True(t, s.shouldAcceptJob(job))
	})
}

func TestScheduler_StartStop(t *testing.T) {
	processor := &MockJobProcessor{}
	fetcher := &MockJobFetcher{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)

	cfg := &SchedulerConfig{
		PollInterval:  100 * time.Millisecond,
		WorkerCount:   2,
		PrioritySlots: 1,
		JobBatchSize:  5,
	}

	s := New(cfg, fetcher, processor, logger)

	fetcher.On("FetchPendingJobs", mock.Anything, mock.Anything).Return([]*Job{}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	err := s.Start(ctx)
	require.NoError(t, err)

	stats := s.Stats()
	assert.True(t, stats.Running)

	time.Sleep(200 * time.Millisecond)

	cancel()
	s.Stop()

	stats = s.Stats()
	assert.False(t, stats.Running)
}

func TestDefaultSchedulerConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 2, cfg.PrioritySlots)
	assert.Equal(t, 10, cfg.JobBatchSize)
}

func TestScheduler_PollOnce(t *testing.T) {
	processor := &MockJobProcessor{}
	fetcher := &MockJobFetcher{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)

	cfg := &SchedulerConfig{
		WorkerCount:   5,
		PrioritySlots: 2,
		JobBatchSize:  5,
	}
	s := New(cfg, fetcher, processor, logger)
	for i := 0; i < cfg.WorkerCount; i++ {
		s.workerPool <- struct{}{}
	}

	t.Run("LocksAndQueuesJob", func(t *testing.T) {
		jobs := []*Job{{ID: 1, UUID: "uuid-1", Priority: 1}}
		fetcher.On("FetchPendingJobs", mock.Anything, cfg.JobBatchSize).Return(jobs, nil).Once()
		fetcher.On("LockJob", mock.Anything, int64(1)).Return(true, nil).Once()

		s.pollOnce(context.Background())

		select {
		case queued := <-s.jobQueue:
			assert.Equal(t, "uuid-1", queued.UUID)
		default:
			t.Fatal("expected job to be queued")
		}
	})

	t.Run("SkipsJobItCannotLock", func(t *testing.T) {
		jobs := []*Job{{ID: 2, UUID: "uuid-2", Priority: 1}}
		fetcher.On("FetchPendingJobs", mock.Anything, cfg.JobBatchSize).Return(jobs, nil).Once()
		fetcher.On("LockJob", mock.Anything, int64(2)).Return(false, nil).Once()

		s.pollOnce(context.Background())

		select {
		case <-s.jobQueue:
			t.Fatal("job should not have been queued")
		default:
		}
	})
}

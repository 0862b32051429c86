package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/heapdump-analysis/pkg/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Create tables
	err = db.AutoMigrate(
		&JobRecord{},
		&ReportRecord{},
		&DominatorRunRecord{},
	)
	require.NoError(t, err)

	return db
}

func TestGormJobRepository_GetPendingJobs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormJobRepository(db)
	ctx := context.Background()

	t.Run("GetPendingJobs_Empty", func(t *testing.T) {
		jobs, err := repo.GetPendingJobs(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("GetPendingJobs_SmallestFirst", func(t *testing.T) {
		big := &JobRecord{JobUUID: "job-big", Status: model.JobStatusPending, DumpSizeBytes: 1 << 30, UserName: "testuser"}
		small := &JobRecord{JobUUID: "job-small", Status: model.JobStatusPending, DumpSizeBytes: 1 << 20, UserName: "testuser"}
		require.NoError(t, db.Create(big).Error)
		require.NoError(t, db.Create(small).Error)

		jobs, err := repo.GetPendingJobs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, "job-small", jobs[0].JobUUID)
		assert.Equal(t, "job-big", jobs[1].JobUUID)
	})
}

func TestGormJobRepository_GetJobByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormJobRepository(db)
	ctx := context.Background()

	t.Run("GetJobByID_NotFound", func(t *testing.T) {
		job, err := repo.GetJobByID(ctx, 999)
		assert.Error(t, err)
		assert.Nil(t, job)
		assert.Contains(t, err.Error(), "job not found")
	})

	t.Run("GetJobByID_Success", func(t *testing.T) {
		job := &JobRecord{
			JobUUID: "test-uuid-2",
			Status:  model.JobStatusPending,
		}
		require.NoError(t, db.Create(job).Error)

		result, err := repo.GetJobByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "test-uuid-2", result.JobUUID)
	})
}

func TestGormJobRepository_GetJobByUUID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormJobRepository(db)
	ctx := context.Background()

	t.Run("GetJobByUUID_NotFound", func(t *testing.T) {
		job, err := repo.GetJobByUUID(ctx, "nonexistent")
		assert.Error(t, err)
		assert.Nil(t, job)
		assert.Contains(t, err.Error(), "job not found")
	})

	t.Run("GetJobByUUID_Success", func(t *testing.T) {
		job := &JobRecord{
			JobUUID: "test-uuid-3",
			Status:  model.JobStatusPending,
		}
		require.NoError(t, db.Create(job).Error)

		result, err := repo.GetJobByUUID(ctx, "test-uuid-3")
		require.NoError(t, err)
		assert.Equal(t, job.ID, result.ID)
	})
}

func TestGormJobRepository_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormJobRepository(db)
	ctx := context.Background()

	t.Run("UpdateStatus_NotFound", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, 999, model.JobStatusCompleted)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "job not found")
	})

	t.Run("UpdateStatus_Success", func(t *testing.T) {
		job := &JobRecord{
			JobUUID: "test-uuid-4",
			Status:  model.JobStatusPending,
		}
		require.NoError(t, db.Create(job).Error)

		err := repo.UpdateStatus(ctx, job.ID, model.JobStatusCompleted)
		require.NoError(t, err)

		var updated JobRecord
		require.NoError(t, db.First(&updated, job.ID).Error)
		assert.Equal(t, model.JobStatusCompleted, updated.Status)
	})
}

func TestGormJobRepository_UpdateStatusWithInfo(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormJobRepository(db)
	ctx := context.Background()

	job := &JobRecord{
		JobUUID: "test-uuid-5",
		Status:  model.JobStatusPending,
	}
	require.NoError(t, db.Create(job).Error)

	err := repo.UpdateStatusWithInfo(ctx, job.ID, model.JobStatusFailed, "error message")
	require.NoError(t, err)

	var updated JobRecord
	require.NoError(t, db.First(&updated, job.ID).Error)
	assert.Equal(t, model.JobStatusFailed, updated.Status)
	assert.Equal(t, "error message", updated.StatusInfo)
}

func TestGormJobRepository_LockJobForAnalysis(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormJobRepository(db)
	ctx := context.Background()

	t.Run("Lock_NotFound", func(t *testing.T) {
		locked, err := repo.LockJobForAnalysis(ctx, 999)
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("Lock_Success", func(t *testing.T) {
		job := &JobRecord{
			JobUUID: "test-uuid-6",
			Status:  model.JobStatusPending,
		}
		require.NoError(t, db.Create(job).Error)

		locked, err := repo.LockJobForAnalysis(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, locked)

		var updated JobRecord
		require.NoError(t, db.First(&updated, job.ID).Error)
		assert.Equal(t, model.JobStatusRunning, updated.Status)
	})
}

func TestGormReportRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormReportRepository(db, "1.0.0")
	ctx := context.Background()

	t.Run("SaveReport_Success", func(t *testing.T) {
		report := &model.AnalysisReport{
			JobUUID:     "report-uuid-1",
			ObjectCount: 100,
			ClassCount:  10,
		}

		err := repo.SaveReport(ctx, report)
		require.NoError(t, err)
	})

	t.Run("GetReportByJobUUID_Success", func(t *testing.T) {
		report, err := repo.GetReportByJobUUID(ctx, "report-uuid-1")
		require.NoError(t, err)
		assert.Equal(t, "report-uuid-1", report.JobUUID)
		assert.Equal(t, "1.0.0", report.Version)
	})

	t.Run("GetReportByJobUUID_NotFound", func(t *testing.T) {
		report, err := repo.GetReportByJobUUID(ctx, "nonexistent")
		assert.Error(t, err)
		assert.Nil(t, report)
		assert.Contains(t, err.Error(), "report not found")
	})

	t.Run("UpdateReport_Success", func(t *testing.T) {
		report := &model.AnalysisReport{
			JobUUID:     "report-uuid-1",
			ObjectCount: 200,
		}

		err := repo.UpdateReport(ctx, report)
		require.NoError(t, err)
	})

	t.Run("UpdateReport_NotFound", func(t *testing.T) {
		report := &model.AnalysisReport{JobUUID: "nonexistent"}

		err := repo.UpdateReport(ctx, report)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "report not found")
	})
}

func TestGormDominatorRunRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDominatorRunRepository(db)
	ctx := context.Background()

	t.Run("GetRun_NotFound", func(t *testing.T) {
		run, err := repo.GetRun(ctx, "nonexistent")
		require.NoError(t, err)
		assert.Nil(t, run)
	})

	t.Run("SaveRun_and_GetRun", func(t *testing.T) {
		run := &model.DominatorRun{
			JobUUID:     "dom-uuid-1",
			ObjectCount: 1000,
		}
		require.NoError(t, repo.SaveRun(ctx, run))

		got, err := repo.GetRun(ctx, "dom-uuid-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(1000), got.ObjectCount)
	})

	t.Run("SaveRun_Upsert", func(t *testing.T) {
		run := &model.DominatorRun{JobUUID: "dom-uuid-1", ObjectCount: 2000, StagnationGuardTripped: true}
		require.NoError(t, repo.SaveRun(ctx, run))

		got, err := repo.GetRun(ctx, "dom-uuid-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2000), got.ObjectCount)
		assert.True(t, got.StagnationGuardTripped)
	})
}

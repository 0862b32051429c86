package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapdump-analysis/pkg/model"
)

func TestPostgresJobRepository_GetPendingJobs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresJobRepository(db)

	t.Run("GetPendingJobs_Success", func(t *testing.T) {
		optionsJSON, _ := json.Marshal(model.JobOptions{ComputeDominators: true})

		rows := sqlmock.NewRows([]string{
			"id", "job_uuid", "status", "status_info", "dump_path",
			"dump_size_bytes", "user_name", "cos_bucket",
			"options", "create_time", "begin_time", "end_time",
		}).AddRow(
			int64(1), "uuid-1", model.JobStatusPending, "", "/dumps/heap-1.hprof",
			int64(1<<20), "testuser", "bucket-1",
			optionsJSON, time.Now(), nil, nil,
		)

		mock.ExpectQuery("SELECT id, job_uuid, status").WillReturnRows(rows)

		jobs, err := repo.GetPendingJobs(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, int64(1), jobs[0].ID)
		assert.Equal(t, "uuid-1", jobs[0].JobUUID)
		assert.True(t, jobs[0].Options.ComputeDominators)
	})

	t.Run("GetPendingJobs_Empty", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "job_uuid", "status", "status_info", "dump_path",
			"dump_size_bytes", "user_name", "cos_bucket",
			"options", "create_time", "begin_time", "end_time",
		})

		mock.ExpectQuery("SELECT id, job_uuid, status").WillReturnRows(rows)

		jobs, err := repo.GetPendingJobs(context.Background(), 10)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestPostgresJobRepository_GetJobByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresJobRepository(db)

	t.Run("GetJobByID_Success", func(t *testing.T) {
		optionsJSON, _ := json.Marshal(model.JobOptions{})

		rows := sqlmock.NewRows([]string{
			"id", "job_uuid", "status", "status_info", "dump_path",
			"dump_size_bytes", "user_name", "cos_bucket",
			"options", "create_time", "begin_time", "end_time",
		}).AddRow(
			int64(1), "uuid-1", model.JobStatusPending, "", "/dumps/heap-1.hprof",
			int64(1<<20), "testuser", "bucket-1",
			optionsJSON, time.Now(), nil, nil,
		)

		mock.ExpectQuery("SELECT id, job_uuid, status").WithArgs(int64(1)).WillReturnRows(rows)

		job, err := repo.GetJobByID(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), job.ID)
		assert.Equal(t, "uuid-1", job.JobUUID)
	})

	t.Run("GetJobByID_NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, job_uuid, status").WithArgs(int64(999)).WillReturnError(sql.ErrNoRows)

		job, err := repo.GetJobByID(context.Background(), 999)
		assert.Error(t, err)
		assert.Nil(t, job)
		assert.Contains(t, err.Error(), "job not found")
	})
}

func TestPostgresJobRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresJobRepository(db)

	t.Run("UpdateStatus_Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE analysis_jobs").
			WithArgs(model.JobStatusCompleted, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateStatus(context.Background(), 1, model.JobStatusCompleted)
		require.NoError(t, err)
	})

	t.Run("UpdateStatus_NotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE analysis_jobs").
			WithArgs(model.JobStatusCompleted, int64(999)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(context.Background(), 999, model.JobStatusCompleted)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "job not found")
	})
}

func TestPostgresJobRepository_LockJobForAnalysis(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresJobRepository(db)

	t.Run("Lock_Success", func(t *testing.T) {
		mock.ExpectBegin()

		rows := sqlmock.NewRows([]string{"status"}).AddRow(model.JobStatusPending)
		mock.ExpectQuery("SELECT status").
			WithArgs(int64(1), model.JobStatusPending).
			WillReturnRows(rows)

		mock.ExpectExec("UPDATE analysis_jobs").
			WithArgs(model.JobStatusRunning, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		locked, err := repo.LockJobForAnalysis(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, locked)
	})

	t.Run("Lock_AlreadyLocked", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT status").
			WithArgs(int64(1), model.JobStatusPending).
			WillReturnError(sql.ErrNoRows)

		mock.ExpectRollback()

		locked, err := repo.LockJobForAnalysis(context.Background(), 1)
		require.NoError(t, err)
		assert.False(t, locked)
	})
}

func TestPostgresReportRepository_SaveReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReportRepository(db, "1.0.0")

	t.Run("SaveReport_Success", func(t *testing.T) {
		report := &model.AnalysisReport{JobUUID: "uuid-1", ObjectCount: 100}

		mock.ExpectExec("INSERT INTO analysis_reports").
			WithArgs("uuid-1", "1.0.0", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), report.AnalyzedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.SaveReport(context.Background(), report)
		require.NoError(t, err)
	})
}

func TestPostgresReportRepository_GetReportByJobUUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReportRepository(db, "1.0.0")

	t.Run("GetReport_Success", func(t *testing.T) {
		summary, _ := json.Marshal(&model.AnalysisReport{JobUUID: "uuid-1", Version: "1.0.0"})
		classes, _ := json.Marshal([]model.ClassSummary{})
		objects, _ := json.Marshal([]model.ObjectSummary{})

		rows := sqlmock.NewRows([]string{"summary", "biggest_classes", "biggest_objects"}).
			AddRow(summary, classes, objects)

		mock.ExpectQuery("SELECT summary, biggest_classes").
			WithArgs("uuid-1").
			WillReturnRows(rows)

		res, err := repo.GetReportByJobUUID(context.Background(), "uuid-1")
		require.NoError(t, err)
		assert.Equal(t, "uuid-1", res.JobUUID)
	})

	t.Run("GetReport_NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT summary, biggest_classes").
			WithArgs("uuid-999").
			WillReturnError(sql.ErrNoRows)

		res, err := repo.GetReportByJobUUID(context.Background(), "uuid-999")
		assert.Error(t, err)
		assert.Nil(t, res)
		assert.Contains(t, err.Error(), "report not found")
	})
}

func TestPostgresReportRepository_UpdateReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReportRepository(db, "1.0.0")

	t.Run("UpdateReport_Success", func(t *testing.T) {
		report := &model.AnalysisReport{JobUUID: "uuid-1"}

		mock.ExpectExec("UPDATE analysis_reports").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateReport(context.Background(), report)
		require.NoError(t, err)
	})

	t.Run("UpdateReport_NotFound", func(t *testing.T) {
		report := &model.AnalysisReport{JobUUID: "nonexistent"}

		mock.ExpectExec("UPDATE analysis_reports").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateReport(context.Background(), report)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "report not found")
	})
}

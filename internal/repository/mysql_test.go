package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapdump-analysis/pkg/model"
)

func TestMySQLJobRepository_GetPendingJobs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLJobRepository(db)

	t.Run("GetPendingJobs_Success", func(t *testing.T) {
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

		mock.ExpectQuery("SELECT id, job_uuid, status").WillReturnRows(rows)

		jobs, err := repo.GetPendingJobs(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, int64(1), jobs[0].ID)
	})
}

func TestMySQLJobRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLJobRepository(db)

	t.Run("UpdateStatus_Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE analysis_jobs").
			WithArgs(model.JobStatusCompleted, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateStatus(context.Background(), 1, model.JobStatusCompleted)
		require.NoError(t, err)
	})
}

func TestMySQLReportRepository_SaveReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLReportRepository(db, "1.0.0")

	t.Run("SaveReport_Success", func(t *testing.T) {
		report := &model.AnalysisReport{JobUUID: "uuid-1"}

		mock.ExpectExec("INSERT INTO analysis_reports").
			WithArgs("uuid-1", "1.0.0", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), report.AnalyzedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.SaveReport(context.Background(), report)
		require.NoError(t, err)
	})
}

func TestMySQLReportRepository_UpdateReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLReportRepository(db, "1.0.0")

	t.Run("UpdateReport_Success", func(t *testing.T) {
		report := &model.AnalysisReport{JobUUID: "uuid-1"}

		mock.ExpectExec("UPDATE analysis_reports").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateReport(context.Background(), report)
		require.NoError(t, err)
	})
}

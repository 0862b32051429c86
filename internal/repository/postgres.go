package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/heapdump-analysis/pkg/model"
)

// PostgresJobRepository implements JobRepository for PostgreSQL.
type PostgresJobRepository struct {
	db *sql.DB
}

// NewPostgresJobRepository creates a new PostgresJobRepository.
func NewPostgresJobRepository(db *sql.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

// GetPendingJobs retrieves jobs that are pending analysis, smallest dump first.
func (r *PostgresJobRepository) GetPendingJobs(ctx context.Context, limit int) ([]*model.AnalysisJob, error) {
	query := `
		SELECT id, job_uuid, status, COALESCE(status_info, ''), dump_path,
			   dump_size_bytes, COALESCE(user_name, ''), COALESCE(cos_bucket, ''),
			   options, create_time, begin_time, end_time
		FROM analysis_jobs
		WHERE status = $1
		ORDER BY dump_size_bytes ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, model.JobStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

// GetJobByID retrieves a job by its ID.
func (r *PostgresJobRepository) GetJobByID(ctx context.Context, id int64) (*model.AnalysisJob, error) {
	query := `
		SELECT id, job_uuid, status, COALESCE(status_info, ''), dump_path,
			   dump_size_bytes, COALESCE(user_name, ''), COALESCE(cos_bucket, ''),
			   options, create_time, begin_time, end_time
		FROM analysis_jobs
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), fmt.Sprintf("job not found: %d", id))
}

// GetJobByUUID retrieves a job by its UUID.
func (r *PostgresJobRepository) GetJobByUUID(ctx context.Context, uuid string) (*model.AnalysisJob, error) {
	query := `
		SELECT id, job_uuid, status, COALESCE(status_info, ''), dump_path,
			   dump_size_bytes, COALESCE(user_name, ''), COALESCE(cos_bucket, ''),
			   options, create_time, begin_time, end_time
		FROM analysis_jobs
		WHERE job_uuid = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, uuid), fmt.Sprintf("job not found: %s", uuid))
}

// UpdateStatus updates the status of a job.
func (r *PostgresJobRepository) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	query := `UPDATE analysis_jobs SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job not found: %d", id)
	}

	return nil
}

// UpdateStatusWithInfo updates the status with additional info.
func (r *PostgresJobRepository) UpdateStatusWithInfo(ctx context.Context, id int64, status model.JobStatus, info string) error {
	query := `UPDATE analysis_jobs SET status = $1, status_info = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, info, id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job not found: %d", id)
	}

	return nil
}

// LockJobForAnalysis attempts to lock a job for analysis using FOR UPDATE NOWAIT.
func (r *PostgresJobRepository) LockJobForAnalysis(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status model.JobStatus
	query := `SELECT status FROM analysis_jobs WHERE id = $1 AND status = $2 FOR UPDATE NOWAIT`
	err = tx.QueryRowContext(ctx, query, id, model.JobStatusPending).Scan(&status)
	if err != nil {
		// Could not lock - either not found or already locked
		return false, nil
	}

	updateQuery := `UPDATE analysis_jobs SET status = $1, begin_time = now() WHERE id = $2`
	_, err = tx.ExecContext(ctx, updateQuery, model.JobStatusRunning, id)
	if err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

func (r *PostgresJobRepository) scanOne(row *sql.Row, notFoundMsg string) (*model.AnalysisJob, error) {
	job := &model.AnalysisJob{}
	var optionsJSON []byte
	var beginTime, endTime sql.NullTime

	err := row.Scan(
		&job.ID, &job.JobUUID, &job.Status, &job.StatusInfo, &job.DumpPath,
		&job.DumpSizeBytes, &job.UserName, &job.COSBucket,
		&optionsJSON, &job.CreateTime, &beginTime, &endTime,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(notFoundMsg)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if beginTime.Valid {
		job.BeginTime = &beginTime.Time
	}
	if endTime.Valid {
		job.EndTime = &endTime.Time
	}
	if optionsJSON != nil {
		if err := json.Unmarshal(optionsJSON, &job.Options); err != nil {
			return nil, fmt.Errorf("failed to parse job options: %w", err)
		}
	}

	return job, nil
}

// scanJobs scans multiple jobs from rows.
func (r *PostgresJobRepository) scanJobs(rows *sql.Rows) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob

	for rows.Next() {
		job := &model.AnalysisJob{}
		var optionsJSON []byte
		var beginTime, endTime sql.NullTime

		err := rows.Scan(
			&job.ID, &job.JobUUID, &job.Status, &job.StatusInfo, &job.DumpPath,
			&job.DumpSizeBytes, &job.UserName, &job.COSBucket,
			&optionsJSON, &job.CreateTime, &beginTime, &endTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}

		if beginTime.Valid {
			job.BeginTime = &beginTime.Time
		}
		if endTime.Valid {
			job.EndTime = &endTime.Time
		}
		if optionsJSON != nil {
			if err := json.Unmarshal(optionsJSON, &job.Options); err != nil {
				return nil, fmt.Errorf("failed to parse job options: %w", err)
			}
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return jobs, nil
}

// PostgresReportRepository implements ReportRepository for PostgreSQL.
type PostgresReportRepository struct {
	db      *sql.DB
	version string
}

// NewPostgresReportRepository creates a new PostgresReportRepository.
func NewPostgresReportRepository(db *sql.DB, version string) *PostgresReportRepository {
	return &PostgresReportRepository{db: db, version: version}
}

// SaveReport saves an analysis report to the database.
func (r *PostgresReportRepository) SaveReport(ctx context.Context, report *model.AnalysisReport) error {
	summaryJSON, classesJSON, objectsJSON, version, err := r.marshal(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analysis_reports (job_uuid, version, summary, biggest_classes, biggest_objects, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query, report.JobUUID, version, summaryJSON, classesJSON, objectsJSON, report.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("failed to save analysis report: %w", err)
	}

	return nil
}

// GetReportByJobUUID retrieves the analysis report for a job.
func (r *PostgresReportRepository) GetReportByJobUUID(ctx context.Context, jobUUID string) (*model.AnalysisReport, error) {
	query := `
		SELECT summary, biggest_classes, biggest_objects
		FROM analysis_reports
		WHERE job_uuid = $1
	`

	var summaryJSON, classesJSON, objectsJSON []byte
	err := r.db.QueryRowContext(ctx, query, jobUUID).Scan(&summaryJSON, &classesJSON, &objectsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("report not found for job: %s", jobUUID)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return r.unmarshal(summaryJSON, classesJSON, objectsJSON)
}

// UpdateReport updates an existing analysis report.
func (r *PostgresReportRepository) UpdateReport(ctx context.Context, report *model.AnalysisReport) error {
	summaryJSON, classesJSON, objectsJSON, version, err := r.marshal(report)
	if err != nil {
		return err
	}

	query := `
		UPDATE analysis_reports
		SET version = $1, summary = $2, biggest_classes = $3, biggest_objects = $4, analyzed_at = $5
		WHERE job_uuid = $6
	`

	res, err := r.db.ExecContext(ctx, query, version, summaryJSON, classesJSON, objectsJSON, report.AnalyzedAt, report.JobUUID)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("report not found for job: %s", report.JobUUID)
	}

	return nil
}

func (r *PostgresReportRepository) marshal(report *model.AnalysisReport) (summary, classes, objects []byte, version string, err error) {
	summary, err = json.Marshal(report)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("failed to marshal report summary: %w", err)
	}
	classes, err = json.Marshal(report.BiggestClasses)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("failed to marshal biggest classes: %w", err)
	}
	objects, err = json.Marshal(report.BiggestObjects)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("failed to marshal biggest objects: %w", err)
	}
	version = report.Version
	if version == "" {
		version = r.version
	}
	return summary, classes, objects, version, nil
}

func (r *PostgresReportRepository) unmarshal(summaryJSON, classesJSON, objectsJSON []byte) (*model.AnalysisReport, error) {
	report := &model.AnalysisReport{}
	if summaryJSON != nil {
		if err := json.Unmarshal(summaryJSON, report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report summary: %w", err)
		}
	}
	if classesJSON != nil {
		if err := json.Unmarshal(classesJSON, &report.BiggestClasses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal biggest classes: %w", err)
		}
	}
	if objectsJSON != nil {
		if err := json.Unmarshal(objectsJSON, &report.BiggestObjects); err != nil {
			return nil, fmt.Errorf("failed to unmarshal biggest objects: %w", err)
		}
	}
	return report, nil
}

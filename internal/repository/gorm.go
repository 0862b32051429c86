package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/heapdump-analysis/pkg/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormJobRepository implements JobRepository using GORM.
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository.
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// GetPendingJobs retrieves jobs that are pending analysis, smallest dump
// first so a small heap dump doesn't queue behind a multi-gigabyte one.
func (r *GormJobRepository) GetPendingJobs(ctx context.Context, limit int) ([]*model.AnalysisJob, error) {
	var jobs []JobRecord

	err := r.db.WithContext(ctx).
		Where("status = ?", model.JobStatusPending).
		Order("dump_size_bytes ASC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}

	result := make([]*model.AnalysisJob, len(jobs))
	for i, j := range jobs {
		result[i] = j.ToModel()
	}

	return result, nil
}

// GetJobByID retrieves a job by its ID.
func (r *GormJobRepository) GetJobByID(ctx context.Context, id int64) (*model.AnalysisJob, error) {
	var job JobRecord

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job.ToModel(), nil
}

// GetJobByUUID retrieves a job by its UUID.
func (r *GormJobRepository) GetJobByUUID(ctx context.Context, uuid string) (*model.AnalysisJob, error) {
	var job JobRecord

	err := r.db.WithContext(ctx).Where("job_uuid = ?", uuid).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %s", uuid)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job.ToModel(), nil
}

// UpdateStatus updates the status of a job.
func (r *GormJobRepository) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	result := r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("id = ?", id).
		Update("status", status)

	if result.Error != nil {
		return fmt.Errorf("failed to update job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job not found: %d", id)
	}

	return nil
}

// UpdateStatusWithInfo updates the status with additional info.
func (r *GormJobRepository) UpdateStatusWithInfo(ctx context.Context, id int64, status model.JobStatus, info string) error {
	result := r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"status_info": info,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job not found: %d", id)
	}

	return nil
}

// LockJobForAnalysis attempts to lock a job for analysis using FOR UPDATE.
func (r *GormJobRepository) LockJobForAnalysis(ctx context.Context, id int64) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job JobRecord

		// Try to lock the row with FOR UPDATE
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", id, model.JobStatusPending).
			First(&job).Error

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gorm.ErrRecordNotFound
			}
			return err
		}

		// Update status to running
		return tx.Model(&JobRecord{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     model.JobStatusRunning,
				"begin_time": time.Now(),
			}).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock job: %w", err)
	}

	return true, nil
}

// GormReportRepository implements ReportRepository using GORM.
type GormReportRepository struct {
	db      *gorm.DB
	version string
}

// NewGormReportRepository creates a new GormReportRepository.
func NewGormReportRepository(db *gorm.DB, version string) *GormReportRepository {
	return &GormReportRepository{db: db, version: version}
}

func (r *GormReportRepository) toRecord(report *model.AnalysisReport) (*ReportRecord, error) {
	summaryJSON, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report summary: %w", err)
	}
	classesJSON, err := json.Marshal(report.BiggestClasses)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal biggest classes: %w", err)
	}
	objectsJSON, err := json.Marshal(report.BiggestObjects)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal biggest objects: %w", err)
	}

	version := report.Version
	if version == "" {
		version = r.version
	}

	return &ReportRecord{
		JobUUID:        report.JobUUID,
		Version:        version,
		Summary:        summaryJSON,
		BiggestClasses: classesJSON,
		BiggestObjects: objectsJSON,
		AnalyzedAt:     report.AnalyzedAt,
	}, nil
}

// SaveReport saves an analysis report to the database.
func (r *GormReportRepository) SaveReport(ctx context.Context, report *model.AnalysisReport) error {
	record, err := r.toRecord(report)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to save analysis report: %w", err)
	}

	return nil
}

// GetReportByJobUUID retrieves the analysis report for a job.
func (r *GormReportRepository) GetReportByJobUUID(ctx context.Context, jobUUID string) (*model.AnalysisReport, error) {
	var record ReportRecord

	err := r.db.WithContext(ctx).Where("job_uuid = ?", jobUUID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("report not found for job: %s", jobUUID)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return record.ToModel()
}

// UpdateReport updates an existing analysis report.
func (r *GormReportRepository) UpdateReport(ctx context.Context, report *model.AnalysisReport) error {
	record, err := r.toRecord(report)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&ReportRecord{}).
		Where("job_uuid = ?", report.JobUUID).
		Updates(map[string]interface{}{
			"version":         record.Version,
			"summary":         record.Summary,
			"biggest_classes": record.BiggestClasses,
			"biggest_objects": record.BiggestObjects,
			"analyzed_at":     record.AnalyzedAt,
		})

	if res.Error != nil {
		return fmt.Errorf("failed to update report: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("report not found for job: %s", report.JobUUID)
	}

	return nil
}

// GormDominatorRunRepository implements DominatorRunRepository using GORM.
type GormDominatorRunRepository struct {
	db *gorm.DB
}

// NewGormDominatorRunRepository creates a new GormDominatorRunRepository.
func NewGormDominatorRunRepository(db *gorm.DB) *GormDominatorRunRepository {
	return &GormDominatorRunRepository{db: db}
}

// SaveRun records a completed dominator computation, upserting by job UUID
// since a re-analysis of the same dump replaces the cached run.
func (r *GormDominatorRunRepository) SaveRun(ctx context.Context, run *model.DominatorRun) error {
	record := &DominatorRunRecord{
		JobUUID:                run.JobUUID,
		ComputedAt:             run.ComputedAt,
		ObjectCount:            run.ObjectCount,
		StagnationGuardTripped: run.StagnationGuardTripped,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"computed_at", "object_count", "stagnation_guard_tripped"}),
	}).Create(record).Error
}

// GetRun retrieves the last dominator run for a job, if any.
func (r *GormDominatorRunRepository) GetRun(ctx context.Context, jobUUID string) (*model.DominatorRun, error) {
	var record DominatorRunRecord

	err := r.db.WithContext(ctx).Where("job_uuid = ?", jobUUID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dominator run: %w", err)
	}

	return record.ToModel(), nil
}

// Package repository provides database abstraction for the heap-dump analysis service.
package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/heapdump-analysis/pkg/model"
)

// JobRecord represents the analysis_jobs table.
type JobRecord struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement"`
	JobUUID       string          `gorm:"column:job_uuid;type:varchar(64);uniqueIndex"`
	Status        model.JobStatus `gorm:"column:status"`
	StatusInfo    string          `gorm:"column:status_info;type:text"`
	DumpPath      string          `gorm:"column:dump_path;type:varchar(512)"`
	DumpSizeBytes int64           `gorm:"column:dump_size_bytes"`
	UserName      string          `gorm:"column:user_name;type:varchar(128)"`
	COSBucket     string          `gorm:"column:cos_bucket;type:varchar(128)"`
	Options       JSONField       `gorm:"column:options;type:json"`
	CreateTime    time.Time       `gorm:"column:create_time;autoCreateTime"`
	BeginTime     *time.Time      `gorm:"column:begin_time"`
	EndTime       *time.Time      `gorm:"column:end_time"`
}

// TableName returns the table name for JobRecord.
func (JobRecord) TableName() string {
	return "analysis_jobs"
}

// ToModel converts a JobRecord to model.AnalysisJob.
func (j *JobRecord) ToModel() *model.AnalysisJob {
	job := &model.AnalysisJob{
		ID:            j.ID,
		JobUUID:       j.JobUUID,
		DumpPath:      j.DumpPath,
		DumpSizeBytes: j.DumpSizeBytes,
		Status:        j.Status,
		StatusInfo:    j.StatusInfo,
		UserName:      j.UserName,
		COSBucket:     j.COSBucket,
		CreateTime:    j.CreateTime,
		BeginTime:     j.BeginTime,
		EndTime:       j.EndTime,
	}

	if j.Options != nil {
		_ = json.Unmarshal(j.Options, &job.Options)
	}

	return job
}

// ReportRecord represents the analysis_reports table.
type ReportRecord struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	JobUUID        string    `gorm:"column:job_uuid;type:varchar(64);uniqueIndex"`
	Version        string    `gorm:"column:version;type:varchar(32)"`
	BiggestClasses JSONField `gorm:"column:biggest_classes;type:json"`
	BiggestObjects JSONField `gorm:"column:biggest_objects;type:json"`
	Summary        JSONField `gorm:"column:summary;type:json"`
	AnalyzedAt     time.Time `gorm:"column:analyzed_at"`
}

// TableName returns the table name for ReportRecord.
func (ReportRecord) TableName() string {
	return "analysis_reports"
}

// ToModel converts a ReportRecord to model.AnalysisReport.
func (r *ReportRecord) ToModel() (*model.AnalysisReport, error) {
	report := &model.AnalysisReport{
		JobUUID:    r.JobUUID,
		Version:    r.Version,
		AnalyzedAt: r.AnalyzedAt,
	}

	if r.Summary != nil {
		if err := json.Unmarshal(r.Summary, report); err != nil {
			return nil, err
		}
	}
	if r.BiggestClasses != nil {
		if err := json.Unmarshal(r.BiggestClasses, &report.BiggestClasses); err != nil {
			return nil, err
		}
	}
	if r.BiggestObjects != nil {
		if err := json.Unmarshal(r.BiggestObjects, &report.BiggestObjects); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// DominatorRunRecord represents the dominator_runs table, the cached
// per-dump dominator-computation metadata SPEC_FULL.md calls for.
type DominatorRunRecord struct {
	JobUUID                string    `gorm:"column:job_uuid;type:varchar(64);primaryKey"`
	ComputedAt             time.Time `gorm:"column:computed_at"`
	ObjectCount            int64     `gorm:"column:object_count"`
	StagnationGuardTripped bool      `gorm:"column:stagnation_guard_tripped"`
}

// TableName returns the table name for DominatorRunRecord.
func (DominatorRunRecord) TableName() string {
	return "dominator_runs"
}

// ToModel converts a DominatorRunRecord to model.DominatorRun.
func (d *DominatorRunRecord) ToModel() *model.DominatorRun {
	return &model.DominatorRun{
		JobUUID:                d.JobUUID,
		ComputedAt:             d.ComputedAt,
		ObjectCount:            d.ObjectCount,
		StagnationGuardTripped: d.StagnationGuardTripped,
	}
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/heapdump-analysis/pkg/model"
)

// MockJobRepository is a mock implementation of the JobRepository interface.
type MockJobRepository struct {
	mock.Mock
}

// GetPendingJobs mocks the GetPendingJobs method.
func (m *MockJobRepository) GetPendingJobs(ctx context.Context, limit int) ([]*model.AnalysisJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.AnalysisJob), args.Error(1)
}

// GetJobByID mocks the GetJobByID method.
func (m *MockJobRepository) GetJobByID(ctx context.Context, id int64) (*model.AnalysisJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisJob), args.Error(1)
}

// GetJobByUUID mocks the GetJobByUUID method.
func (m *MockJobRepository) GetJobByUUID(ctx context.Context, uuid string) (*model.AnalysisJob, error) {
	args := m.Called(ctx, uuid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisJob), args.Error(1)
}

// UpdateStatus mocks the UpdateStatus method.
func (m *MockJobRepository) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// UpdateStatusWithInfo mocks the UpdateStatusWithInfo method.
func (m *MockJobRepository) UpdateStatusWithInfo(ctx context.Context, id int64, status model.JobStatus, info string) error {
	args := m.Called(ctx, id, status, info)
	return args.Error(0)
}

// LockJobForAnalysis mocks the LockJobForAnalysis method.
func (m *MockJobRepository) LockJobForAnalysis(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// ExpectGetPendingJobs sets up an expectation for GetPendingJobs.
func (m *MockJobRepository) ExpectGetPendingJobs(limit int, jobs []*model.AnalysisJob, err error) *mock.Call {
	return m.On("GetPendingJobs", mock.Anything, limit).Return(jobs, err)
}

// ExpectUpdateStatus sets up an expectation for UpdateStatus.
func (m *MockJobRepository) ExpectUpdateStatus(id int64, status model.JobStatus, err error) *mock.Call {
	return m.On("UpdateStatus", mock.Anything, id, status).Return(err)
}

// ExpectLockJobForAnalysis sets up an expectation for LockJobForAnalysis.
func (m *MockJobRepository) ExpectLockJobForAnalysis(id int64, success bool, err error) *mock.Call {
	return m.On("LockJobForAnalysis", mock.Anything, id).Return(success, err)
}

// MockReportRepository is a mock implementation of the ReportRepository interface.
type MockReportRepository struct {
	mock.Mock
}

// SaveReport mocks the SaveReport method.
func (m *MockReportRepository) SaveReport(ctx context.Context, report *model.AnalysisReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// GetReportByJobUUID mocks the GetReportByJobUUID method.
func (m *MockReportRepository) GetReportByJobUUID(ctx context.Context, jobUUID string) (*model.AnalysisReport, error) {
	args := m.Called(ctx, jobUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisReport), args.Error(1)
}

// UpdateReport mocks the UpdateReport method.
func (m *MockReportRepository) UpdateReport(ctx context.Context, report *model.AnalysisReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// ExpectSaveReport sets up an expectation for SaveReport.
func (m *MockReportRepository) ExpectSaveReport(err error) *mock.Call {
	return m.On("SaveReport", mock.Anything, mock.Anything).Return(err)
}

// MockDominatorRunRepository is a mock implementation of the DominatorRunRepository interface.
type MockDominatorRunRepository struct {
	mock.Mock
}

// SaveRun mocks the SaveRun method.
func (m *MockDominatorRunRepository) SaveRun(ctx context.Context, run *model.DominatorRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// GetRun mocks the GetRun method.
func (m *MockDominatorRunRepository) GetRun(ctx context.Context, jobUUID string) (*model.DominatorRun, error) {
	args := m.Called(ctx, jobUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DominatorRun), args.Error(1)
}

// ExpectSaveRun sets up an expectation for SaveRun.
func (m *MockDominatorRunRepository) ExpectSaveRun(err error) *mock.Call {
	return m.On("SaveRun", mock.Anything, mock.Anything).Return(err)
}

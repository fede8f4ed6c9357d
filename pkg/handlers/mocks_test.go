package handlers

import (
	"github.com/promptforge-ai/promptforge-engine/pkg/models"
)

// mockOptimizationService implements services.OptimizationService for handler
// tests.
type mockOptimizationService struct {
	startStatus *models.JobStatus
	startErr    error
	status      *models.JobStatus
	cancelErr   error

	startCalled  bool
	gotSettings  *models.TuningSettings
	cancelCalled bool
}

func (m *mockOptimizationService) Start(settings *models.TuningSettings) (*models.JobStatus, error) {
	m.startCalled = true
	m.gotSettings = settings
	return m.startStatus, m.startErr
}

func (m *mockOptimizationService) Status() *models.JobStatus {
	if m.status != nil {
		return m.status
	}
	return &models.JobStatus{Status: models.JobStateIdle}
}

func (m *mockOptimizationService) Cancel() error {
	m.cancelCalled = true
	return m.cancelErr
}

func (m *mockOptimizationService) Active() bool { return false }

func (m *mockOptimizationService) Wait() {}

package application

import (
	"context"

	"github.com/jobrunner/sceneport/internal/ports/input"
)

// HealthService provides health check functionality.
type HealthService struct {
	monitor input.JobMonitor
}

// NewHealthService creates a new health service.
func NewHealthService(monitor input.JobMonitor) *HealthService {
	return &HealthService{
		monitor: monitor,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true // Basic health check
}

// IsReady returns true while the admission controller has room for another scene.
func (s *HealthService) IsReady(_ context.Context) bool {
	return s.monitor.InFlight() < s.monitor.Ceiling()
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	active := s.monitor.InFlight()

	admission := "ok"
	if active >= s.monitor.Ceiling() {
		admission = "at_capacity"
	}

	return input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      s.IsReady(ctx),
		JobsActive: active,
		Ceiling:    s.monitor.Ceiling(),
		Components: map[string]string{
			"admission": admission,
		},
	}
}

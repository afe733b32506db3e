// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
)

// Exporter defines the primary port for exporting scene series.
type Exporter interface {
	// Run exports every location in order and reports the outcome.
	Run(ctx context.Context, locations []domain.Location) (RunSummary, error)

	// Status returns the progress of the current or last run.
	Status() RunStatus
}

// JobMonitor defines the primary port for inspecting in-flight jobs.
type JobMonitor interface {
	// Snapshot returns the jobs the admission controller still tracks.
	Snapshot() []domain.TrackedJob

	// InFlight returns the number of tracked jobs.
	InFlight() int

	// Ceiling returns the configured concurrency ceiling.
	Ceiling() int
}

// RunSummary contains the outcome of a run.
type RunSummary struct {
	RunID         string            // Run identifier
	Locations     int               // Locations attempted
	Failed        map[string]string // Location name -> error
	Scenes        int               // Scenes whose jobs were all submitted
	JobsSubmitted int               // Jobs accepted by the job service
	Duration      time.Duration     // Wall time
}

// RunStatus is a progress snapshot.
type RunStatus struct {
	RunID           string    // Current run, empty when idle
	Running         bool      // A run is in progress
	CurrentLocation string    // Location being processed
	LocationsDone   int       // Locations finished (ok or failed)
	LocationsTotal  int       // Locations in the run
	LocationsFailed int       // Locations that failed
	JobsSubmitted   int       // Jobs accepted so far
	StartedAt       time.Time // Run start
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Ready      bool              // Ready to accept requests
	JobsActive int               // Jobs tracked by the admission controller
	Ceiling    int               // Admission ceiling
	Components map[string]string // Component statuses
}

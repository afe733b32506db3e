package output

import (
	"context"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
)

// JobService defines the secondary port for the remote export job service.
type JobService interface {
	// Submit starts an export job and returns its handle.
	Submit(ctx context.Context, job domain.ExportJob) (domain.JobHandle, error)

	// Status returns the current state of a job.
	Status(ctx context.Context, handle domain.JobHandle) (domain.JobState, error)
}

// JobRecord is a ledger row for a submitted job.
type JobRecord struct {
	RunID       string
	Key         domain.JobKey
	Name        string
	Folder      string
	Handle      domain.JobHandle
	State       domain.JobState
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// JobLedger defines the secondary port for the persistent job history.
type JobLedger interface {
	// RecordSubmission stores a newly submitted job.
	RecordSubmission(ctx context.Context, rec JobRecord) error

	// RecordState updates the last observed state of a job.
	RecordState(ctx context.Context, handle domain.JobHandle, state domain.JobState) error

	// Jobs returns all recorded jobs for a location, oldest first.
	Jobs(ctx context.Context, location string) ([]JobRecord, error)
}

// NoOpLedger is a JobLedger that keeps nothing.
type NoOpLedger struct{}

// RecordSubmission implements JobLedger.
func (NoOpLedger) RecordSubmission(_ context.Context, _ JobRecord) error { return nil }

// RecordState implements JobLedger.
func (NoOpLedger) RecordState(_ context.Context, _ domain.JobHandle, _ domain.JobState) error {
	return nil
}

// Jobs implements JobLedger.
func (NoOpLedger) Jobs(_ context.Context, _ string) ([]JobRecord, error) { return nil, nil }

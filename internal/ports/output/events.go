package output

import (
	"context"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
)

// JobEvent describes a job lifecycle transition.
type JobEvent struct {
	RunID  string          `json:"run_id"`
	Key    string          `json:"key"`
	Name   string          `json:"name"`
	Handle string          `json:"handle"`
	State  domain.JobState `json:"state"`
	At     time.Time       `json:"at"`
}

// LocationEvent describes the end of processing for a location.
type LocationEvent struct {
	RunID    string    `json:"run_id"`
	Location string    `json:"location"`
	Scenes   int       `json:"scenes"`
	Jobs     int       `json:"jobs"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// EventPublisher defines the secondary port for lifecycle notifications.
type EventPublisher interface {
	// JobSubmitted announces a new job.
	JobSubmitted(ctx context.Context, ev JobEvent) error

	// JobFinished announces that a job was observed in a terminal state.
	JobFinished(ctx context.Context, ev JobEvent) error

	// LocationFinished announces the end of a location.
	LocationFinished(ctx context.Context, ev LocationEvent) error
}

// NoOpEvents is an EventPublisher that drops everything.
type NoOpEvents struct{}

// JobSubmitted implements EventPublisher.
func (NoOpEvents) JobSubmitted(_ context.Context, _ JobEvent) error { return nil }

// JobFinished implements EventPublisher.
func (NoOpEvents) JobFinished(_ context.Context, _ JobEvent) error { return nil }

// LocationFinished implements EventPublisher.
func (NoOpEvents) LocationFinished(_ context.Context, _ LocationEvent) error { return nil }

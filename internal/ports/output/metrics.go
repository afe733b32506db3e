package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncJobsSubmitted counts a submission attempt for a band group.
	IncJobsSubmitted(bandGroup string, success bool)

	// IncJobsFinished counts jobs observed in a terminal state.
	IncJobsFinished(state string)

	// SetJobsActive sets the number of jobs still occupying remote capacity.
	SetJobsActive(count int)

	// ObservePollDuration records how long a full registry poll took.
	ObservePollDuration(duration time.Duration)

	// IncPollErrors counts failed status reads.
	IncPollErrors()

	// ObserveCapacityWait records time spent blocked at the ceiling.
	ObserveCapacityWait(duration time.Duration)

	// IncLocations counts processed locations by outcome.
	IncLocations(success bool)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncJobsSubmitted implements MetricsCollector.
func (n *NoOpMetrics) IncJobsSubmitted(_ string, _ bool) {}

// IncJobsFinished implements MetricsCollector.
func (n *NoOpMetrics) IncJobsFinished(_ string) {}

// SetJobsActive implements MetricsCollector.
func (n *NoOpMetrics) SetJobsActive(_ int) {}

// ObservePollDuration implements MetricsCollector.
func (n *NoOpMetrics) ObservePollDuration(_ time.Duration) {}

// IncPollErrors implements MetricsCollector.
func (n *NoOpMetrics) IncPollErrors() {}

// ObserveCapacityWait implements MetricsCollector.
func (n *NoOpMetrics) ObserveCapacityWait(_ time.Duration) {}

// IncLocations implements MetricsCollector.
func (n *NoOpMetrics) IncLocations(_ bool) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

package application

import (
	"fmt"
	"sort"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
)

// JobRegistry maps job keys to jobs that have not been observed terminal.
// Its size is an upper bound on the jobs still active remotely.
type JobRegistry struct {
	entries map[domain.JobKey]registryEntry
}

type registryEntry struct {
	RunID       string
	Name        string
	Handle      domain.JobHandle
	State       domain.JobState
	SubmittedAt time.Time
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() JobRegistry {
	return JobRegistry{entries: make(map[domain.JobKey]registryEntry)}
}

// Len returns the number of tracked jobs.
func (r JobRegistry) Len() int {
	return len(r.entries)
}

// Contains returns true if the key is tracked.
func (r JobRegistry) Contains(key domain.JobKey) bool {
	_, ok := r.entries[key]
	return ok
}

// Insert tracks a newly submitted job. An existing entry is never replaced:
// its handle would no longer be polled.
func (r *JobRegistry) Insert(runID string, key domain.JobKey, name string, handle domain.JobHandle, at time.Time) error {
	if r.entries == nil {
		r.entries = make(map[domain.JobKey]registryEntry)
	}
	if e, ok := r.entries[key]; ok {
		return fmt.Errorf("%w: %s is %s", domain.ErrDuplicateJob, key, e.Handle)
	}
	r.entries[key] = registryEntry{
		RunID:       runID,
		Name:        name,
		Handle:      handle,
		State:       domain.JobStateReady,
		SubmittedAt: at,
	}
	return nil
}

// Jobs returns the tracked jobs ordered by submission time.
func (r JobRegistry) Jobs() []domain.TrackedJob {
	jobs := make([]domain.TrackedJob, 0, len(r.entries))
	for key, e := range r.entries {
		jobs = append(jobs, e.tracked(key))
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].SubmittedAt.Equal(jobs[j].SubmittedAt) {
			return jobs[i].Name < jobs[j].Name
		}
		return jobs[i].SubmittedAt.Before(jobs[j].SubmittedAt)
	})
	return jobs
}

func (e registryEntry) tracked(key domain.JobKey) domain.TrackedJob {
	return domain.TrackedJob{
		Key:         key,
		Name:        e.Name,
		Handle:      e.Handle,
		State:       e.State,
		SubmittedAt: e.SubmittedAt,
	}
}

// FinishedJob is a job that Advance dropped from the registry.
type FinishedJob struct {
	RunID string
	domain.TrackedJob
}

// Advance applies one round of polled states to a registry. It returns a new
// registry without the jobs observed terminal, the number of jobs still
// counted as active, and the jobs that were dropped. A job with no polled
// state is kept and counted as active. The input registry is not modified.
func Advance(reg JobRegistry, polled map[domain.JobKey]domain.JobState) (JobRegistry, int, []FinishedJob) {
	next := JobRegistry{entries: make(map[domain.JobKey]registryEntry, len(reg.entries))}
	var finished []FinishedJob

	for key, e := range reg.entries {
		state, ok := polled[key]
		if !ok {
			next.entries[key] = e
			continue
		}
		e.State = state
		if state.IsActive() {
			next.entries[key] = e
			continue
		}
		finished = append(finished, FinishedJob{RunID: e.RunID, TrackedJob: e.tracked(key)})
	}

	sort.Slice(finished, func(i, j int) bool { return finished[i].Name < finished[j].Name })
	return next, len(next.entries), finished
}

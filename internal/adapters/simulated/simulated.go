// Package simulated provides an in-process scene catalog and job service
// for dry runs and local testing.
package simulated

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// Config holds configuration for the simulated backends.
type Config struct {
	RevisitDays   int // days between acquisitions
	MaxScenes     int // cap per query, 0 for no cap
	CompleteAfter int // polls until a job completes
}

// Catalog yields one scene every RevisitDays within the date range.
type Catalog struct {
	cfg Config

	mu    sync.Mutex
	dates map[domain.SceneRef]string
}

// NewCatalog creates a simulated catalog.
func NewCatalog(cfg Config) *Catalog {
	if cfg.RevisitDays <= 0 {
		cfg.RevisitDays = 16
	}
	return &Catalog{cfg: cfg, dates: make(map[domain.SceneRef]string)}
}

// Query implements output.SceneCatalog.
func (c *Catalog) Query(_ context.Context, collection string, region domain.BoundingRegion, dates domain.DateRange) (output.CatalogQuery, error) {
	return output.CatalogQuery{Collection: collection, Region: region, Dates: dates}, nil
}

// Count implements output.SceneCatalog.
func (c *Catalog) Count(_ context.Context, q output.CatalogQuery) (int, error) {
	return len(c.scenes(q)), nil
}

// ListOrdered implements output.SceneCatalog.
func (c *Catalog) ListOrdered(_ context.Context, q output.CatalogQuery, sortKey string, ascending bool, limit int) ([]domain.SceneRef, error) {
	if sortKey != output.SortByAcquisitionTime {
		return nil, fmt.Errorf("sort key %q: %w", sortKey, domain.ErrUnsupported)
	}

	refs := c.scenes(q)
	if !ascending {
		sort.Slice(refs, func(i, j int) bool { return refs[i] > refs[j] })
	}
	if limit >= 0 && limit < len(refs) {
		refs = refs[:limit]
	}
	return refs, nil
}

// BandSelect implements output.SceneCatalog.
func (c *Catalog) BandSelect(_ context.Context, ref domain.SceneRef, bands []string) (domain.RasterRef, error) {
	return domain.RasterRef{Scene: ref, Bands: bands}, nil
}

// AcquisitionDate implements output.SceneCatalog.
func (c *Catalog) AcquisitionDate(_ context.Context, ref domain.SceneRef) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	date, ok := c.dates[ref]
	if !ok {
		return "", fmt.Errorf("scene %s: %w", ref, domain.ErrNotFound)
	}
	return date, nil
}

// scenes returns the refs of a query in ascending date order. Refs embed
// the zone so different locations get distinct scenes.
func (c *Catalog) scenes(q output.CatalogQuery) []domain.SceneRef {
	c.mu.Lock()
	defer c.mu.Unlock()

	var refs []domain.SceneRef
	for d := q.Dates.Start; !d.After(q.Dates.End); d = d.AddDate(0, 0, c.cfg.RevisitDays) {
		if c.cfg.MaxScenes > 0 && len(refs) >= c.cfg.MaxScenes {
			break
		}
		date := d.Format(domain.DateLayout)
		ref := domain.SceneRef(fmt.Sprintf("%s/%d_%s", q.Collection, q.Region.Frame, d.Format("20060102")))
		c.dates[ref] = date
		refs = append(refs, ref)
	}
	return refs
}

type simJob struct {
	name  string
	polls int
	state domain.JobState
}

// Jobs accepts every export and completes it after CompleteAfter polls.
type Jobs struct {
	cfg Config

	mu   sync.Mutex
	jobs map[domain.JobHandle]*simJob
}

// NewJobs creates a simulated job service.
func NewJobs(cfg Config) *Jobs {
	if cfg.CompleteAfter <= 0 {
		cfg.CompleteAfter = 2
	}
	return &Jobs{cfg: cfg, jobs: make(map[domain.JobHandle]*simJob)}
}

// Submit implements output.JobService.
func (j *Jobs) Submit(ctx context.Context, job domain.ExportJob) (domain.JobHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle := domain.JobHandle("operations/" + uuid.NewString())

	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs[handle] = &simJob{name: job.Name, state: domain.JobStateReady}
	return handle, nil
}

// Status implements output.JobService. A job is READY on its first poll,
// RUNNING afterwards and COMPLETED after CompleteAfter polls.
func (j *Jobs) Status(_ context.Context, handle domain.JobHandle) (domain.JobState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	job, ok := j.jobs[handle]
	if !ok {
		return "", fmt.Errorf("job %s: %w", handle, domain.ErrNotFound)
	}

	job.polls++
	switch {
	case job.polls >= j.cfg.CompleteAfter:
		job.state = domain.JobStateCompleted
	case job.polls > 1:
		job.state = domain.JobStateRunning
	}
	return job.state, nil
}

// Submitted returns the number of jobs accepted so far.
func (j *Jobs) Submitted() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.jobs)
}

package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// SubmitterConfig holds configuration for the job submitter.
type SubmitterConfig struct {
	ImageSize        int           // output raster side length in pixels
	FirstSubmitPause time.Duration // pause after the first job of a location
}

// JobSubmitter turns scenes into export jobs and submits them.
type JobSubmitter struct {
	catalog   output.SceneCatalog
	jobs      output.JobService
	admission *AdmissionController
	ledger    output.JobLedger
	events    output.EventPublisher
	metrics   output.MetricsCollector
	logger    *slog.Logger
	cfg       SubmitterConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewJobSubmitter creates a new job submitter.
func NewJobSubmitter(
	catalog output.SceneCatalog,
	jobs output.JobService,
	admission *AdmissionController,
	ledger output.JobLedger,
	events output.EventPublisher,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg SubmitterConfig,
) *JobSubmitter {
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = 200
	}

	return &JobSubmitter{
		catalog:   catalog,
		jobs:      jobs,
		admission: admission,
		ledger:    ledger,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		sleep:     sleepContext,
	}
}

// BuildExportJob assembles the export specification for one band group of a scene.
func BuildExportJob(runID string, loc domain.Location, region domain.BoundingRegion, scene domain.Scene, group domain.BandGroup, raster domain.RasterRef, size int) domain.ExportJob {
	return domain.ExportJob{
		Key: domain.JobKey{
			RunID:      runID,
			Location:   loc.Name,
			SceneIndex: scene.Index,
			BandGroup:  group,
		},
		Name:       domain.JobName(loc.Name, scene, group),
		Folder:     loc.Name,
		Region:     region,
		Raster:     raster,
		Dimensions: domain.Dimensions{Width: size, Height: size},
		CRS:        region.Frame,
	}
}

// SubmitScene submits the three band-group jobs of a scene in order and
// returns how many were accepted. A rejected job stops the scene; the jobs
// already accepted keep running remotely.
func (s *JobSubmitter) SubmitScene(ctx context.Context, runID string, loc domain.Location, region domain.BoundingRegion, scene domain.Scene) (int, error) {
	submitted := 0

	for i, group := range domain.BandGroups {
		raster, err := s.catalog.BandSelect(ctx, scene.Ref, group.Bands())
		if err != nil {
			return submitted, &domain.CatalogError{Collection: string(scene.Ref), Operation: "select", Err: err}
		}

		job := BuildExportJob(runID, loc, region, scene, group, raster, s.cfg.ImageSize)
		s.logger.Info("submitting export", "job", job.Name, "crs", job.CRS.String(), "dimensions", job.Dimensions.String())

		handle, err := s.jobs.Submit(ctx, job)
		if err != nil {
			s.metrics.IncJobsSubmitted(string(group), false)
			return submitted, &domain.SubmissionError{JobName: job.Name, Err: err}
		}
		s.metrics.IncJobsSubmitted(string(group), true)
		submitted++
		s.record(ctx, runID, job, handle)

		if err := s.admission.Track(runID, job, handle); err != nil {
			// accepted remotely but not counted against the ceiling
			return submitted, &domain.SubmissionError{JobName: job.Name, Err: err}
		}

		if scene.Index == 0 && i == 0 && s.cfg.FirstSubmitPause > 0 {
			// the remote side creates the destination folder on the first export
			s.logger.Info("waiting for destination folder", "folder", job.Folder, "pause", s.cfg.FirstSubmitPause)
			if err := s.sleep(ctx, s.cfg.FirstSubmitPause); err != nil {
				return submitted, err
			}
		}
	}

	return submitted, nil
}

// record writes the submission to the ledger and announces it.
func (s *JobSubmitter) record(ctx context.Context, runID string, job domain.ExportJob, handle domain.JobHandle) {
	now := time.Now()

	rec := output.JobRecord{
		RunID:       runID,
		Key:         job.Key,
		Name:        job.Name,
		Folder:      job.Folder,
		Handle:      handle,
		State:       domain.JobStateReady,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := s.ledger.RecordSubmission(ctx, rec); err != nil {
		s.logger.Warn("failed to record submission", "job", job.Name, "error", err)
	}

	ev := output.JobEvent{
		RunID:  runID,
		Key:    job.Key.String(),
		Name:   job.Name,
		Handle: string(handle),
		State:  domain.JobStateReady,
		At:     now,
	}
	if err := s.events.JobSubmitted(ctx, ev); err != nil {
		s.logger.Warn("failed to publish job event", "job", job.Name, "error", err)
	}
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/input"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// ExportConfig holds configuration for the export service.
type ExportConfig struct {
	Dates        domain.DateRange
	PatchExtentM float64
}

// ExportService drives the export of every location in a run.
type ExportService struct {
	regions   *RegionCalculator
	scenes    *SceneEnumerator
	submitter *JobSubmitter
	admission *AdmissionController
	events    output.EventPublisher
	metrics   output.MetricsCollector
	logger    *slog.Logger
	cfg       ExportConfig

	// runMu serializes runs so one driver owns the submission loop at a time.
	runMu sync.Mutex

	statusMu sync.RWMutex
	status   input.RunStatus
}

// NewExportService creates a new export service.
func NewExportService(
	regions *RegionCalculator,
	scenes *SceneEnumerator,
	submitter *JobSubmitter,
	admission *AdmissionController,
	events output.EventPublisher,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg ExportConfig,
) *ExportService {
	if cfg.PatchExtentM <= 0 {
		cfg.PatchExtentM = 6000
	}

	return &ExportService{
		regions:   regions,
		scenes:    scenes,
		submitter: submitter,
		admission: admission,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run exports the locations in order. A failing location is logged and
// recorded in the summary; processing continues with the next one. Run only
// returns an error when the context ends or the admission ceiling cannot be
// honoured any more.
func (s *ExportService) Run(ctx context.Context, locations []domain.Location) (input.RunSummary, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	summary := input.RunSummary{
		RunID:  uuid.NewString(),
		Failed: make(map[string]string),
	}

	s.setStatus(func(st *input.RunStatus) {
		*st = input.RunStatus{
			RunID:          summary.RunID,
			Running:        true,
			LocationsTotal: len(locations),
			StartedAt:      start,
		}
	})
	defer s.setStatus(func(st *input.RunStatus) {
		st.Running = false
		st.CurrentLocation = ""
	})

	s.logger.Info("starting run", "run_id", summary.RunID, "locations", len(locations))

	seen := make(map[string]bool, len(locations))
	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		s.setStatus(func(st *input.RunStatus) { st.CurrentLocation = loc.Name })
		s.logger.Info("processing location", "location", loc.Name, "lon", loc.Lon, "lat", loc.Lat)

		var (
			result LocationResult
			err    error
		)
		if seen[loc.Name] {
			// same folder and job names as the earlier location
			err = &domain.LocationError{
				Location: loc.Name,
				Err:      fmt.Errorf("%w: duplicate location name", domain.ErrInvalidLocations),
			}
		} else {
			seen[loc.Name] = true
			result, err = s.ExportLocation(ctx, summary.RunID, loc)
		}
		summary.Locations++
		summary.Scenes += result.Scenes
		summary.JobsSubmitted += result.Jobs

		s.setStatus(func(st *input.RunStatus) {
			st.LocationsDone++
			st.JobsSubmitted += result.Jobs
			if err != nil {
				st.LocationsFailed++
			}
		})
		s.metrics.IncLocations(err == nil)

		if err == nil {
			continue
		}

		summary.Failed[loc.Name] = err.Error()
		if isFatal(ctx, err) {
			summary.Duration = time.Since(start)
			s.logger.Error("run aborted", "run_id", summary.RunID, "location", loc.Name, "error", err)
			return summary, err
		}
		s.logger.Error("location failed", "location", loc.Name, "error", err)
	}

	summary.Duration = time.Since(start)
	s.logger.Info("run completed",
		"run_id", summary.RunID,
		"locations", summary.Locations,
		"failed", len(summary.Failed),
		"scenes", summary.Scenes,
		"jobs", summary.JobsSubmitted,
		"duration", summary.Duration,
	)
	return summary, nil
}

// LocationResult counts what was submitted for one location.
type LocationResult struct {
	Scenes int // scenes whose three jobs were accepted
	Jobs   int // jobs accepted
}

// ExportLocation computes the region of a location, enumerates its scenes
// and submits their jobs, waiting at the admission gate after every scene.
func (s *ExportService) ExportLocation(ctx context.Context, runID string, loc domain.Location) (result LocationResult, err error) {
	defer func() {
		if err != nil {
			err = &domain.LocationError{Location: loc.Name, Err: err}
		}
		s.publishLocation(ctx, runID, loc, result, err)
	}()

	if err := loc.Validate(); err != nil {
		return result, err
	}

	region, err := s.regions.Compute(ctx, loc.Point(), s.cfg.PatchExtentM)
	if err != nil {
		return result, err
	}

	it, err := s.scenes.Enumerate(ctx, region, s.cfg.Dates)
	if err != nil {
		return result, err
	}
	s.logger.Info("found matching scenes", "location", loc.Name, "count", it.Count())

	for it.Next(ctx) {
		scene := it.Scene()

		n, err := s.submitter.SubmitScene(ctx, runID, loc, region, scene)
		result.Jobs += n
		if err != nil {
			return result, err
		}
		result.Scenes++

		active, err := s.admission.Gate(ctx)
		if err != nil {
			return result, err
		}
		s.logger.Info("scene submitted", "location", loc.Name, "scene", scene.IndexString(), "date", scene.AcquisitionDate, "active", active)
	}
	if err := it.Err(); err != nil {
		return result, err
	}

	return result, nil
}

// Status returns the progress of the current or last run.
func (s *ExportService) Status() input.RunStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *ExportService) setStatus(update func(*input.RunStatus)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	update(&s.status)
}

func (s *ExportService) publishLocation(ctx context.Context, runID string, loc domain.Location, result LocationResult, err error) {
	ev := output.LocationEvent{
		RunID:    runID,
		Location: loc.Name,
		Scenes:   result.Scenes,
		Jobs:     result.Jobs,
		At:       time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if pubErr := s.events.LocationFinished(ctx, ev); pubErr != nil {
		s.logger.Warn("failed to publish location event", "location", loc.Name, "error", pubErr)
	}
}

// isFatal reports whether an error must stop the whole run: the run was
// cancelled, or the ceiling could not be honoured and the next location
// would submit past it.
func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, domain.ErrCapacityTimeout)
}

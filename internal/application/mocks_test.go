package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/input"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// noSleep replaces real sleeps in tests and records the requested durations.
type noSleep struct {
	mu    sync.Mutex
	calls []time.Duration
	// onSleep runs before returning, e.g. to finish remote jobs
	onSleep func(n int)
}

func (s *noSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	n := len(s.calls)
	s.mu.Unlock()

	if s.onSleep != nil {
		s.onSleep(n)
	}
	return ctx.Err()
}

func (s *noSleep) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// mockTransformer implements output.CoordinateTransformer with a linear
// mapping of 100000 meters per degree, which is exact to invert.
type mockTransformer struct {
	shouldFail bool
	calls      int
}

const metersPerDegree = 100000.0

func (m *mockTransformer) Transform(_ context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error) {
	m.calls++
	if m.shouldFail {
		return domain.Coordinate{}, domain.ErrUnsupportedProjection
	}
	switch {
	case coord.SRID == targetSRID:
		return coord, nil
	case coord.SRID == domain.SRIDWGS84:
		return domain.NewCoordinate(coord.X*metersPerDegree, coord.Y*metersPerDegree, targetSRID), nil
	case targetSRID == domain.SRIDWGS84:
		return domain.NewWGS84Coordinate(coord.X/metersPerDegree, coord.Y/metersPerDegree), nil
	default:
		return domain.Coordinate{}, domain.ErrUnsupportedProjection
	}
}

func (m *mockTransformer) IsSupported(_, _ int) bool {
	return !m.shouldFail
}

type mockScene struct {
	ref  domain.SceneRef
	date string
}

// mockCatalog implements output.SceneCatalog for testing.
type mockCatalog struct {
	scenes []mockScene

	queryErr  error
	countErr  error
	listErr   error
	selectErr error
	dateErr   error

	// countOverride replaces len(scenes) when set
	countOverride *int

	queries  []output.CatalogQuery
	listArgs []listCall
	selects  []domain.RasterRef
}

type listCall struct {
	sortKey   string
	ascending bool
	limit     int
}

func newMockCatalog(dates ...string) *mockCatalog {
	c := &mockCatalog{}
	for i, d := range dates {
		c.scenes = append(c.scenes, mockScene{ref: domain.SceneRef(fmt.Sprintf("LC08/%03d", i)), date: d})
	}
	return c
}

func (m *mockCatalog) Query(_ context.Context, collection string, region domain.BoundingRegion, dates domain.DateRange) (output.CatalogQuery, error) {
	if m.queryErr != nil {
		return output.CatalogQuery{}, m.queryErr
	}
	q := output.CatalogQuery{Collection: collection, Region: region, Dates: dates}
	m.queries = append(m.queries, q)
	return q, nil
}

func (m *mockCatalog) Count(_ context.Context, _ output.CatalogQuery) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	if m.countOverride != nil {
		return *m.countOverride, nil
	}
	return len(m.scenes), nil
}

func (m *mockCatalog) ListOrdered(_ context.Context, _ output.CatalogQuery, sortKey string, ascending bool, limit int) ([]domain.SceneRef, error) {
	m.listArgs = append(m.listArgs, listCall{sortKey: sortKey, ascending: ascending, limit: limit})
	if m.listErr != nil {
		return nil, m.listErr
	}
	refs := make([]domain.SceneRef, len(m.scenes))
	for i, s := range m.scenes {
		refs[i] = s.ref
	}
	return refs, nil
}

func (m *mockCatalog) BandSelect(_ context.Context, ref domain.SceneRef, bands []string) (domain.RasterRef, error) {
	if m.selectErr != nil {
		return domain.RasterRef{}, m.selectErr
	}
	r := domain.RasterRef{Scene: ref, Bands: bands}
	m.selects = append(m.selects, r)
	return r, nil
}

func (m *mockCatalog) AcquisitionDate(_ context.Context, ref domain.SceneRef) (string, error) {
	if m.dateErr != nil {
		return "", m.dateErr
	}
	for _, s := range m.scenes {
		if s.ref == ref {
			return s.date, nil
		}
	}
	return "", domain.ErrNotFound
}

// mockJobService implements output.JobService. Jobs stay READY until
// finish is called for them, or until they were polled finishAfter times.
type mockJobService struct {
	mu sync.Mutex

	submitted []domain.ExportJob
	states    map[domain.JobHandle]domain.JobState
	polls     map[domain.JobHandle]int

	// failSubmitAt rejects the n-th submission (1-based); 0 never fails
	failSubmitAt int
	submitErr    error

	// statusErrs fails this many status reads before answering
	statusErrs int
	statusErr  error

	finishAfter int
	finalState  domain.JobState

	// onSubmit runs before a submission is accepted
	onSubmit func()
}

func newMockJobService() *mockJobService {
	return &mockJobService{
		states:     make(map[domain.JobHandle]domain.JobState),
		polls:      make(map[domain.JobHandle]int),
		finalState: domain.JobStateCompleted,
	}
}

func (m *mockJobService) Submit(_ context.Context, job domain.ExportJob) (domain.JobHandle, error) {
	if m.onSubmit != nil {
		m.onSubmit()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSubmitAt > 0 && len(m.submitted)+1 == m.failSubmitAt {
		m.failSubmitAt = 0
		if m.submitErr != nil {
			return "", m.submitErr
		}
		return "", errors.New("quota exceeded")
	}

	m.submitted = append(m.submitted, job)
	handle := domain.JobHandle(fmt.Sprintf("op-%d", len(m.submitted)))
	m.states[handle] = domain.JobStateReady
	return handle, nil
}

func (m *mockJobService) Status(_ context.Context, handle domain.JobHandle) (domain.JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statusErrs > 0 {
		m.statusErrs--
		if m.statusErr != nil {
			return "", m.statusErr
		}
		return "", errors.New("connection reset")
	}

	state, ok := m.states[handle]
	if !ok {
		return "", domain.ErrNotFound
	}

	m.polls[handle]++
	if m.finishAfter > 0 && state.IsActive() && m.polls[handle] >= m.finishAfter {
		state = m.finalState
		m.states[handle] = state
	}
	return state, nil
}

// finish moves the first n active jobs to state.
func (m *mockJobService) finish(n int, state domain.JobState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < len(m.submitted) && n > 0; i++ {
		h := domain.JobHandle(fmt.Sprintf("op-%d", i+1))
		if m.states[h].IsActive() {
			m.states[h] = state
			n--
		}
	}
}

func (m *mockJobService) set(handle domain.JobHandle, state domain.JobState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[handle] = state
}

func (m *mockJobService) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.submitted))
	for i, j := range m.submitted {
		names[i] = j.Name
	}
	return names
}

func (m *mockJobService) jobs() []domain.ExportJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.ExportJob, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// mockLedger implements output.JobLedger for testing.
type mockLedger struct {
	mu      sync.Mutex
	records []output.JobRecord
	states  map[domain.JobHandle]domain.JobState
	err     error
}

func (m *mockLedger) RecordSubmission(_ context.Context, rec output.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockLedger) RecordState(_ context.Context, handle domain.JobHandle, state domain.JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.states == nil {
		m.states = make(map[domain.JobHandle]domain.JobState)
	}
	m.states[handle] = state
	return nil
}

func (m *mockLedger) Jobs(_ context.Context, location string) ([]output.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []output.JobRecord
	for _, r := range m.records {
		if r.Key.Location == location {
			out = append(out, r)
		}
	}
	return out, nil
}

// mockEvents implements output.EventPublisher for testing.
type mockEvents struct {
	mu        sync.Mutex
	submitted []output.JobEvent
	finished  []output.JobEvent
	locations []output.LocationEvent
	err       error
}

func (m *mockEvents) JobSubmitted(_ context.Context, ev output.JobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, ev)
	return m.err
}

func (m *mockEvents) JobFinished(_ context.Context, ev output.JobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, ev)
	return m.err
}

func (m *mockEvents) LocationFinished(_ context.Context, ev output.LocationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = append(m.locations, ev)
	return m.err
}

// mockStorage implements output.ObjectStorage over in-memory files.
type mockStorage struct {
	files     map[string]string
	readerErr error
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject
	for key, body := range m.files {
		if output.IsLocationFile(key) {
			objects = append(objects, output.StorageObject{Key: key, Size: int64(len(body))})
		}
	}
	return objects, nil
}

func (m *mockStorage) Download(_ context.Context, _, _ string) error {
	return nil
}

func (m *mockStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	if m.readerErr != nil {
		return nil, m.readerErr
	}
	body, ok := m.files[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.files[key]
	return ok, nil
}

// mockExporter implements input.Exporter for testing.
type mockExporter struct {
	mu    sync.Mutex
	runs  [][]domain.Location
	err   error
	block chan struct{}
}

func (m *mockExporter) Run(ctx context.Context, locations []domain.Location) (input.RunSummary, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return input.RunSummary{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, locations)
	return input.RunSummary{Locations: len(locations)}, m.err
}

func (m *mockExporter) Status() input.RunStatus {
	return input.RunStatus{}
}

func (m *mockExporter) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// fixture wires the application services against the mocks.
type fixture struct {
	transformer *mockTransformer
	catalog     *mockCatalog
	jobs        *mockJobService
	ledger      *mockLedger
	events      *mockEvents
	sleeper     *noSleep

	admission *AdmissionController
	submitter *JobSubmitter
	export    *ExportService
}

func newFixture(catalog *mockCatalog, admissionCfg AdmissionConfig) *fixture {
	f := &fixture{
		transformer: &mockTransformer{},
		catalog:     catalog,
		jobs:        newMockJobService(),
		ledger:      &mockLedger{},
		events:      &mockEvents{},
		sleeper:     &noSleep{},
	}

	logger := testLogger()
	metrics := &output.NoOpMetrics{}

	f.admission = NewAdmissionController(f.jobs, f.ledger, f.events, metrics, logger, admissionCfg)
	f.admission.sleep = f.sleeper.sleep

	f.submitter = NewJobSubmitter(catalog, f.jobs, f.admission, f.ledger, f.events, metrics, logger, SubmitterConfig{
		ImageSize: 200,
	})
	f.submitter.sleep = f.sleeper.sleep

	dates, _ := domain.ParseDateRange("2013-01-01", "2019-12-31")
	f.export = NewExportService(
		NewRegionCalculator(f.transformer, logger),
		NewSceneEnumerator(catalog, "LANDSAT/LC08/C01/T1_SR", logger),
		f.submitter,
		f.admission,
		f.events,
		metrics,
		logger,
		ExportConfig{Dates: dates, PatchExtentM: 6000},
	)

	return f
}

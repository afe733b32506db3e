package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jobrunner/sceneport/internal/application"
	"github.com/jobrunner/sceneport/internal/config"
	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/input"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

type mockStatus struct {
	status input.RunStatus
}

func (m *mockStatus) Status() input.RunStatus { return m.status }

type mockMonitor struct {
	jobs    []domain.TrackedJob
	ceiling int
}

func (m *mockMonitor) Snapshot() []domain.TrackedJob { return m.jobs }
func (m *mockMonitor) InFlight() int                 { return len(m.jobs) }
func (m *mockMonitor) Ceiling() int                  { return m.ceiling }

type mockHealth struct {
	healthy bool
	ready   bool
}

func (m *mockHealth) IsHealthy(_ context.Context) bool { return m.healthy }
func (m *mockHealth) IsReady(_ context.Context) bool   { return m.ready }
func (m *mockHealth) GetHealthDetails(_ context.Context) input.HealthDetails {
	return input.HealthDetails{
		Healthy:    m.healthy,
		Ready:      m.ready,
		JobsActive: 3,
		Ceiling:    10,
		Components: map[string]string{"admission": "ok"},
	}
}

type mockZones struct {
	err error
}

func (m *mockZones) Lookup(_ context.Context, lon, lat float64) (*application.ZoneInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	frame, err := domain.ResolveFrame(domain.NewWGS84Coordinate(lon, lat))
	if err != nil {
		return nil, err
	}
	sw := domain.NewWGS84Coordinate(lon-0.03, lat-0.03)
	ne := domain.NewWGS84Coordinate(lon+0.03, lat+0.03)
	region, err := domain.NewBoundingRegion(sw, ne)
	if err != nil {
		return nil, err
	}
	region.Frame = frame
	return &application.ZoneInfo{
		Point:     domain.NewWGS84Coordinate(lon, lat),
		Frame:     frame,
		Projected: domain.NewCoordinate(552821.383, 4183794.499, frame.SRID()),
		Region:    region,
	}, nil
}

type mockLedger struct {
	output.NoOpLedger
	records map[string][]output.JobRecord
	err     error
}

func (m *mockLedger) Jobs(_ context.Context, location string) ([]output.JobRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.records[location], nil
}

type mockSync struct {
	calls int
}

func (m *mockSync) TriggerSync(_ context.Context) (application.SyncResult, error) {
	m.calls++
	if m.calls > 1 {
		return application.SyncResult{}, application.ErrRateLimited
	}
	return application.SyncResult{FilesQueued: 2, FilesTotal: 3}, nil
}

type mockInbox struct {
	keys    []string
	err     error
	results []application.InboxResult
}

func (m *mockInbox) Enqueue(key string) error {
	if m.err != nil {
		return m.err
	}
	m.keys = append(m.keys, key)
	return nil
}

func (m *mockInbox) Results() []application.InboxResult { return m.results }

type fixture struct {
	server  *Server
	status  *mockStatus
	monitor *mockMonitor
	health  *mockHealth
	zones   *mockZones
	ledger  *mockLedger
	sync    *mockSync
	inbox   *mockInbox
}

func newTestServer(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	f := &fixture{
		status:  &mockStatus{},
		monitor: &mockMonitor{ceiling: 10},
		health:  &mockHealth{healthy: true, ready: true},
		zones:   &mockZones{},
		ledger:  &mockLedger{records: map[string][]output.JobRecord{}},
		sync:    &mockSync{},
		inbox:   &mockInbox{},
	}
	f.server = NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 8080, FrontendEnabled: true},
		Deps{
			Exporter: f.status,
			Monitor:  f.monitor,
			Health:   f.health,
			Zones:    f.zones,
			Ledger:   f.ledger,
			Sync:     f.sync,
			Inbox:    f.inbox,
		},
		logger,
	)
	return f
}

func (f *fixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rr, req)

	var body map[string]interface{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding %s %s: %v", method, target, err)
		}
	}
	return rr, body
}

func TestHandleHealth(t *testing.T) {
	f := newTestServer(t)

	rr, body := f.do(t, http.MethodGet, "/health")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if body["status"] != "ok" || body["jobs_active"] != float64(3) || body["ceiling"] != float64(10) {
		t.Errorf("body = %v", body)
	}

	f.health.healthy = false
	rr, _ = f.do(t, http.MethodGet, "/health")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rr.Code)
	}
}

func TestHandleLivenessAndReadiness(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		healthy    bool
		ready      bool
		wantStatus int
	}{
		{"live", "/health/live", true, false, http.StatusOK},
		{"not live", "/health/live", false, false, http.StatusServiceUnavailable},
		{"ready", "/health/ready", true, true, http.StatusOK},
		{"at capacity", "/health/ready", true, false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestServer(t)
			f.health.healthy = tt.healthy
			f.health.ready = tt.ready

			rr, _ := f.do(t, http.MethodGet, tt.path)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	f := newTestServer(t)
	f.status.status = input.RunStatus{
		RunID:           "run-1",
		Running:         true,
		CurrentLocation: "sf",
		LocationsDone:   2,
		LocationsTotal:  5,
		JobsSubmitted:   42,
		StartedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.monitor.jobs = make([]domain.TrackedJob, 4)

	rr, body := f.do(t, http.MethodGet, "/api/v1/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["run_id"] != "run-1" || body["current_location"] != "sf" || body["running"] != true {
		t.Errorf("body = %v", body)
	}
	if body["jobs_submitted"] != float64(42) || body["jobs_active"] != float64(4) || body["ceiling"] != float64(10) {
		t.Errorf("counters = %v", body)
	}
	if _, ok := body["started_at"]; !ok {
		t.Error("started_at missing")
	}
}

func TestHandleJobs(t *testing.T) {
	f := newTestServer(t)
	f.monitor.jobs = []domain.TrackedJob{
		{Key: domain.JobKey{Location: "sf", BandGroup: domain.BandGroupPixelQA}, Name: "sf_00000_2013-04-03_pixelqa", Handle: "op-1", State: domain.JobStateReady},
		{Key: domain.JobKey{Location: "sf", SceneIndex: 1, BandGroup: domain.BandGroupPixelQA}, Name: "sf_00001_2013-04-19_pixelqa", Handle: "op-2", State: domain.JobStateRunning},
	}

	_, body := f.do(t, http.MethodGet, "/api/v1/jobs")
	if body["count"] != float64(2) || body["active"] != float64(2) {
		t.Errorf("body = %v", body)
	}

	_, body = f.do(t, http.MethodGet, "/api/v1/jobs?state=running")
	jobs, _ := body["jobs"].([]interface{})
	if len(jobs) != 1 {
		t.Fatalf("filtered jobs = %v", body["jobs"])
	}
	if job := jobs[0].(map[string]interface{}); job["handle"] != "op-2" || job["key"] != "sf/1_pixelqa" {
		t.Errorf("job = %v", job)
	}
}

func TestHandleZone(t *testing.T) {
	f := newTestServer(t)

	rr, body := f.do(t, http.MethodGet, "/api/v1/zone?lon=-122.4&lat=37.8")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", rr.Code, body)
	}
	frame := body["frame"].(map[string]interface{})
	if frame["epsg"] != float64(32610) || frame["zone"] != float64(10) || frame["south"] != false {
		t.Errorf("frame = %v", frame)
	}
}

func TestHandleZoneErrors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		zoneErr    error
		wantStatus int
	}{
		{"missing lat", "/api/v1/zone?lon=1", nil, http.StatusBadRequest},
		{"bad lon", "/api/v1/zone?lon=abc&lat=1", nil, http.StatusBadRequest},
		{"out of range", "/api/v1/zone?lon=1&lat=95", nil, http.StatusBadRequest},
		{"unsupported", "/api/v1/zone?lon=1&lat=1", domain.ErrUnsupportedProjection, http.StatusUnprocessableEntity},
		{"internal", "/api/v1/zone?lon=1&lat=1", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestServer(t)
			f.zones.err = tt.zoneErr

			rr, _ := f.do(t, http.MethodGet, tt.target)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleLocationJobs(t *testing.T) {
	f := newTestServer(t)
	f.ledger.records["sf"] = []output.JobRecord{
		{RunID: "r", Name: "sf_00000_2013-04-03_pixelqa", Handle: "op-1", State: domain.JobStateCompleted},
	}

	rr, body := f.do(t, http.MethodGet, "/api/v1/locations/sf/jobs")
	if rr.Code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("status = %d, body = %v", rr.Code, body)
	}

	rr, _ = f.do(t, http.MethodGet, "/api/v1/locations/unknown/jobs")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown location status = %d, want 404", rr.Code)
	}

	f.ledger.err = errors.New("database is locked")
	rr, _ = f.do(t, http.MethodGet, "/api/v1/locations/sf/jobs")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("ledger failure status = %d, want 500", rr.Code)
	}
}

func TestHandleSync(t *testing.T) {
	f := newTestServer(t)

	rr, body := f.do(t, http.MethodPost, "/api/v1/sync")
	if rr.Code != http.StatusOK || body["files_queued"] != float64(2) {
		t.Errorf("status = %d, body = %v", rr.Code, body)
	}

	rr, _ = f.do(t, http.MethodPost, "/api/v1/sync")
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second trigger status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "30" {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
}

func TestHandleInbox(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		err        error
		wantStatus int
	}{
		{"queued", "/api/v1/inbox?key=sites.csv", nil, http.StatusAccepted},
		{"missing key", "/api/v1/inbox", nil, http.StatusBadRequest},
		{"wrong extension", "/api/v1/inbox?key=sites.txt", nil, http.StatusBadRequest},
		{"queue full", "/api/v1/inbox?key=sites.csv", application.ErrQueueFull, http.StatusServiceUnavailable},
		{"other failure", "/api/v1/inbox?key=sites.csv", fmt.Errorf("stopped"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestServer(t)
			f.inbox.err = tt.err

			rr, _ := f.do(t, http.MethodPost, tt.target)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}

	f := newTestServer(t)
	f.inbox.results = []application.InboxResult{{Key: "sites.csv", ProcessedAt: time.Now()}}
	_, body := f.do(t, http.MethodGet, "/api/v1/inbox")
	if body["count"] != float64(1) {
		t.Errorf("results body = %v", body)
	}
}

func TestOptionalRoutesAbsent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewServer(config.ServerConfig{Port: 8080}, Deps{
		Exporter: &mockStatus{},
		Monitor:  &mockMonitor{},
		Health:   &mockHealth{},
		Zones:    &mockZones{},
	}, logger)

	for _, target := range []string{"/api/v1/sync", "/api/v1/inbox", "/api/v1/locations/sf/jobs", "/"} {
		method := http.MethodGet
		if target == "/api/v1/sync" {
			method = http.MethodPost
		}
		rr := httptest.NewRecorder()
		s.Router().ServeHTTP(rr, httptest.NewRequest(method, target, nil))
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", method, target, rr.Code)
		}
	}
}

func TestHandleOpenAPIAndPages(t *testing.T) {
	f := newTestServer(t)

	rr, body := f.do(t, http.MethodGet, "/openapi.json")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["openapi"] != "3.0.3" {
		t.Errorf("openapi version = %v", body["openapi"])
	}
	paths, _ := body["paths"].(map[string]interface{})
	if _, ok := paths["/api/v1/zone"]; !ok {
		t.Error("zone path missing from OpenAPI document")
	}

	for _, target := range []string{"/", "/docs"} {
		rr, _ := f.do(t, http.MethodGet, target)
		if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
			t.Errorf("%s: status = %d, content type = %q", target, rr.Code, rr.Header().Get("Content-Type"))
		}
	}
}

func TestBoolToStatus(t *testing.T) {
	if boolToStatus(true) != "ok" || boolToStatus(false) != "unhealthy" {
		t.Error("boolToStatus mapping changed")
	}
}

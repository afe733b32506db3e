package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jobrunner/sceneport/internal/application"
	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.deps.Health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":      boolToStatus(details.Healthy),
		"ready":       details.Ready,
		"jobs_active": details.JobsActive,
		"ceiling":     details.Ceiling,
		"components":  details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness reports whether the controller has capacity left.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "at capacity"})
	}
}

// handleStatus returns the progress of the current or last run.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Exporter.Status()

	resp := map[string]interface{}{
		"run_id":           st.RunID,
		"running":          st.Running,
		"current_location": st.CurrentLocation,
		"locations_done":   st.LocationsDone,
		"locations_total":  st.LocationsTotal,
		"locations_failed": st.LocationsFailed,
		"jobs_submitted":   st.JobsSubmitted,
		"jobs_active":      s.deps.Monitor.InFlight(),
		"ceiling":          s.deps.Monitor.Ceiling(),
	}
	if !st.StartedAt.IsZero() {
		resp["started_at"] = st.StartedAt
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleJobs lists the jobs still tracked by the admission controller.
// The optional state parameter filters by reported state.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	filter := domain.JobState(strings.ToUpper(r.URL.Query().Get("state")))

	snapshot := s.deps.Monitor.Snapshot()
	jobs := make([]map[string]interface{}, 0, len(snapshot))
	for _, job := range snapshot {
		if filter != "" && job.State != filter {
			continue
		}
		jobs = append(jobs, map[string]interface{}{
			"key":          job.Key.String(),
			"name":         job.Name,
			"handle":       job.Handle,
			"state":        job.State,
			"submitted_at": job.SubmittedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":    jobs,
		"count":   len(jobs),
		"active":  len(snapshot),
		"ceiling": s.deps.Monitor.Ceiling(),
	})
}

// handleLocationJobs returns the ledger history of a location.
func (s *Server) handleLocationJobs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	records, err := s.deps.Ledger.Jobs(r.Context(), name)
	if err != nil {
		s.logger.Error("ledger query failed", "location", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read job history")
		return
	}
	if len(records) == 0 {
		s.writeError(w, http.StatusNotFound, "No jobs recorded for location")
		return
	}

	jobs := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		jobs[i] = formatRecord(rec)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"location": name,
		"jobs":     jobs,
		"count":    len(jobs),
	})
}

// handleZone resolves the projected frame and export region of a point.
func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	lon, lat, err := parseLonLat(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.deps.Zones.Lookup(r.Context(), lon, lat)
	if err != nil {
		s.handleZoneError(w, err)
		return
	}

	geo := info.Region.Geographic()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"point": map[string]interface{}{
			"lon":  info.Point.X,
			"lat":  info.Point.Y,
			"srid": info.Point.SRID,
		},
		"frame": map[string]interface{}{
			"epsg":  info.Frame.SRID(),
			"zone":  info.Frame.Zone(),
			"south": info.Frame.South(),
			"name":  info.Frame.String(),
		},
		"projected": map[string]interface{}{
			"x": info.Projected.X,
			"y": info.Projected.Y,
		},
		"region": map[string]interface{}{
			"min_lon": geo.MinX,
			"min_lat": geo.MinY,
			"max_lon": geo.MaxX,
			"max_lat": geo.MaxY,
		},
		"processing_time_ms": info.ProcessingTime.Milliseconds(),
	})
}

// handleSync handles the sync trigger endpoint.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Sync.TriggerSync(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			w.Header().Set("Retry-After", "30")
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again in 30 seconds.")
			return
		}
		s.logger.Error("sync failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Sync failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleInboxResults lists processed location files, newest last.
func (s *Server) handleInboxResults(w http.ResponseWriter, _ *http.Request) {
	results := s.deps.Inbox.Results()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// handleInboxEnqueue queues a location file by storage key.
func (s *Server) handleInboxEnqueue(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		s.writeError(w, http.StatusBadRequest, "key parameter required")
		return
	}
	if !output.IsLocationFile(key) {
		s.writeError(w, http.StatusBadRequest, "key must name a .csv, .yaml, .yml or .json file")
		return
	}

	if err := s.deps.Inbox.Enqueue(key); err != nil {
		if errors.Is(err, application.ErrQueueFull) {
			w.Header().Set("Retry-After", "60")
			s.writeError(w, http.StatusServiceUnavailable, "Inbox queue is full")
			return
		}
		s.logger.Error("enqueue failed", "key", key, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to queue location file")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"key": key, "status": "queued"})
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// parseLonLat reads the lon and lat query parameters. Both are required.
func parseLonLat(r *http.Request) (float64, float64, error) {
	q := r.URL.Query()
	if q.Get("lon") == "" || q.Get("lat") == "" {
		return 0, 0, errors.New("coordinates required: use lon and lat")
	}

	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return 0, 0, errors.New("invalid lon parameter")
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return 0, 0, errors.New("invalid lat parameter")
	}
	return lon, lat, nil
}

func formatRecord(rec output.JobRecord) map[string]interface{} {
	return map[string]interface{}{
		"run_id":       rec.RunID,
		"key":          rec.Key.String(),
		"name":         rec.Name,
		"folder":       rec.Folder,
		"handle":       rec.Handle,
		"state":        rec.State,
		"submitted_at": rec.SubmittedAt,
		"updated_at":   rec.UpdatedAt,
	}
}

// handleZoneError maps lookup errors to HTTP status codes.
func (s *Server) handleZoneError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, domain.ErrUnsupported) {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.logger.Error("zone lookup error", "error", err)
	s.writeError(w, http.StatusInternalServerError, "Zone lookup failed")
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}

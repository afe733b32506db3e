package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobKey identifies an export job. Location names are unique within a run,
// so the run ID makes the key unique across runs sharing a registry.
type JobKey struct {
	RunID      string
	Location   string
	SceneIndex int
	BandGroup  BandGroup
}

// String returns the key as "<location>/<index>_<bandgroup>".
func (k JobKey) String() string {
	return fmt.Sprintf("%s/%d_%s", k.Location, k.SceneIndex, k.BandGroup)
}

// JobHandle is the opaque reference the job service returns on submission.
type JobHandle string

// JobState is the state the job service reports for a job.
type JobState string

// Job states reported by the job service.
const (
	JobStateReady     JobState = "READY"
	JobStateRunning   JobState = "RUNNING"
	JobStateCompleted JobState = "COMPLETED"
	JobStateFailed    JobState = "FAILED"
	JobStateCancelled JobState = "CANCELLED"
	JobStateUnknown   JobState = "UNKNOWN"
)

// IsActive returns true for states that still occupy remote capacity.
// Every other reported state is terminal.
func (s JobState) IsActive() bool {
	return s == JobStateReady || s == JobStateRunning
}

// Dimensions is the output raster size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// String returns the dimensions as "WxH".
func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// ExportJob describes one export submitted to the job service.
type ExportJob struct {
	Key        JobKey
	Name       string         // <location>_<index>_<date>_<bandgroup>
	Folder     string         // destination folder, the location name
	Region     BoundingRegion // export region
	Raster     RasterRef      // bands to export
	Dimensions Dimensions     // output raster size
	CRS        ProjectedFrame // target CRS
}

// JobName builds the export name for a scene and band group.
func JobName(location string, scene Scene, group BandGroup) string {
	return strings.Join([]string{location, scene.IndexString(), scene.AcquisitionDate, string(group)}, "_")
}

// TrackedJob is an in-flight job as seen by the admission controller.
type TrackedJob struct {
	Key         JobKey
	Name        string
	Handle      JobHandle
	State       JobState
	SubmittedAt time.Time
}

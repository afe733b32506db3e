package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrInvalidCoordinate     = fmt.Errorf("coordinate: %w", ErrInvalidInput)
	ErrInvalidSRID           = fmt.Errorf("srid: %w", ErrInvalidInput)
	ErrInvalidLocations      = fmt.Errorf("locations: %w", ErrInvalidInput)
	ErrUnsupportedProjection = fmt.Errorf("projection: %w", ErrUnsupported)
	ErrCatalogOrder          = fmt.Errorf("catalog returned scenes out of order: %w", ErrInternal)
	ErrDuplicateJob          = fmt.Errorf("job already tracked: %w", ErrInternal)
	ErrCapacityTimeout       = fmt.Errorf("job capacity did not free up in time: %w", ErrUnavailable)
	ErrRemoteUnavailable     = fmt.Errorf("remote service: %w", ErrUnavailable)
	ErrStorageUnavailable    = fmt.Errorf("storage: %w", ErrUnavailable)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// TransformError is returned when a point cannot be reprojected.
type TransformError struct {
	SourceSRID int   // SRID of the input point
	TargetSRID int   // requested SRID
	Err        error // Underlying error
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	return fmt.Sprintf("transform error from EPSG:%d to EPSG:%d: %v",
		e.SourceSRID, e.TargetSRID, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransformError) Unwrap() error {
	return e.Err
}

// CatalogError is returned when scene enumeration fails.
type CatalogError struct {
	Collection string // Catalog collection identifier
	Operation  string // query, count, list, date, select
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog error during %s on %s: %v", e.Operation, e.Collection, e.Err)
}

// Unwrap returns the underlying error.
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// SubmissionError is returned when the job service rejects an export job.
type SubmissionError struct {
	JobName string // Name of the rejected job
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission of job %s failed: %v", e.JobName, e.Err)
}

// Unwrap returns the underlying error.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PollError is returned when the status of a job cannot be read.
// It is transient: the job is not assumed to have finished.
type PollError struct {
	Key    JobKey    // Registry key of the job
	Handle JobHandle // Remote handle
	Err    error     // Underlying error
}

// Error implements the error interface.
func (e *PollError) Error() string {
	return fmt.Sprintf("status poll for job %s (%s) failed: %v", e.Key, e.Handle, e.Err)
}

// Unwrap returns the underlying error.
func (e *PollError) Unwrap() error {
	return e.Err
}

// LocationError ties a failure to the location being processed.
type LocationError struct {
	Location string // Location name
	Err      error  // Underlying error
}

// Error implements the error interface.
func (e *LocationError) Error() string {
	return fmt.Sprintf("location %s: %v", e.Location, e.Err)
}

// Unwrap returns the underlying error.
func (e *LocationError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}

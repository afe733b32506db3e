package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:      "longitude",
		Value:      200.0,
		Constraint: "[-180, 180)",
		Message:    "longitude must be at least -180 and below 180",
	}

	if got := err.Error(); !strings.Contains(got, "longitude") {
		t.Errorf("Error() = %q, should name the field", got)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should unwrap to ErrInvalidInput")
	}
}

func TestWrappedErrors(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "transform",
			err:      &TransformError{SourceSRID: 4326, TargetSRID: 32610, Err: cause},
			contains: "EPSG:32610",
		},
		{
			name:     "catalog",
			err:      &CatalogError{Collection: "LANDSAT/LC08/C01/T1_SR", Operation: "count", Err: cause},
			contains: "count",
		},
		{
			name:     "submission",
			err:      &SubmissionError{JobName: "sf_00000_2013-04-03_pixelqa", Err: cause},
			contains: "sf_00000_2013-04-03_pixelqa",
		},
		{
			name:     "poll",
			err:      &PollError{Key: JobKey{Location: "sf", SceneIndex: 3, BandGroup: BandGroupRadsatQA}, Handle: "op-1", Err: cause},
			contains: "sf/3_radsatqa",
		},
		{
			name:     "location",
			err:      &LocationError{Location: "sf", Err: cause},
			contains: "location sf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, cause) {
				t.Errorf("%T should unwrap to its cause", tt.err)
			}
			if got := tt.err.Error(); !strings.Contains(got, tt.contains) {
				t.Errorf("Error() = %q, want it to contain %q", got, tt.contains)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Field: "admission.max_active", Message: "must be positive"}

	if !strings.Contains(err.Error(), "admission.max_active") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ConfigError should unwrap to ErrInvalidInput")
	}
}

func TestSentinelHierarchy(t *testing.T) {
	tests := []struct {
		err  error
		base error
	}{
		{ErrInvalidCoordinate, ErrInvalidInput},
		{ErrInvalidSRID, ErrInvalidInput},
		{ErrInvalidLocations, ErrInvalidInput},
		{ErrUnsupportedProjection, ErrUnsupported},
		{ErrCatalogOrder, ErrInternal},
		{ErrCapacityTimeout, ErrUnavailable},
		{ErrRemoteUnavailable, ErrUnavailable},
		{ErrStorageUnavailable, ErrUnavailable},
	}

	for _, tt := range tests {
		if !errors.Is(tt.err, tt.base) {
			t.Errorf("%v should wrap %v", tt.err, tt.base)
		}
	}
}

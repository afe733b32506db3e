package domain

import (
	"fmt"
	"time"
)

// DateLayout is the acquisition date format used in job names.
const DateLayout = "2006-01-02"

// SceneRef is an opaque catalog reference to a scene.
type SceneRef string

// Scene is one acquisition in a time series, ordered by AcquisitionDate.
type Scene struct {
	Index           int      // 0-based position in the ordered series
	AcquisitionDate string   // YYYY-MM-DD
	Ref             SceneRef // Catalog reference
}

// IndexString returns the zero-padded 5-digit scene index.
func (s Scene) IndexString() string {
	return fmt.Sprintf("%05d", s.Index)
}

// RasterRef selects a set of bands from a scene.
type RasterRef struct {
	Scene SceneRef
	Bands []string
}

// DateRange is a closed interval of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates into a closed range.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, &ValidationError{Field: "date_start", Value: start, Constraint: DateLayout, Message: err.Error()}
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, &ValidationError{Field: "date_end", Value: end, Constraint: DateLayout, Message: err.Error()}
	}
	if e.Before(s) {
		return DateRange{}, &ValidationError{Field: "date_end", Value: end, Constraint: ">= " + start, Message: "date range is reversed"}
	}
	return DateRange{Start: s, End: e}, nil
}

// Contains reports whether the calendar day of t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	day := t.UTC().Truncate(24 * time.Hour)
	return !day.Before(r.Start) && !day.After(r.End)
}

// EndExclusive returns the first instant after the range.
func (r DateRange) EndExclusive() time.Time {
	return r.End.AddDate(0, 0, 1)
}

// String returns the range as "start..end".
func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// BandGroup is a named set of raster bands exported together as one job.
type BandGroup string

// Band groups in submission order.
const (
	BandGroupMultispectral BandGroup = "multispectral"
	BandGroupPixelQA       BandGroup = "pixelqa"
	BandGroupRadsatQA      BandGroup = "radsatqa"
)

// BandGroups lists the groups in the order they are submitted for a scene.
var BandGroups = []BandGroup{
	BandGroupMultispectral,
	BandGroupPixelQA,
	BandGroupRadsatQA,
}

var bandGroupBands = map[BandGroup][]string{
	BandGroupMultispectral: {"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B10", "B11"},
	BandGroupPixelQA:       {"pixel_qa"},
	BandGroupRadsatQA:      {"radsat_qa"},
}

// Bands returns a copy of the band names in the group.
func (g BandGroup) Bands() []string {
	bands := bandGroupBands[g]
	out := make([]string, len(bands))
	copy(out, bands)
	return out
}

// IsValid returns true for one of the known band groups.
func (g BandGroup) IsValid() bool {
	_, ok := bandGroupBands[g]
	return ok
}

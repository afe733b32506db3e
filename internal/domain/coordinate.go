// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"math"
)

// Coordinate represents a point in a coordinate reference system.
type Coordinate struct {
	X    float64 // Longitude or Easting
	Y    float64 // Latitude or Northing
	SRID int     // Spatial Reference ID
}

// NewWGS84Coordinate creates a WGS84 (EPSG:4326) coordinate.
func NewWGS84Coordinate(lon, lat float64) Coordinate {
	return Coordinate{X: lon, Y: lat, SRID: SRIDWGS84}
}

// NewCoordinate creates a coordinate with the specified SRID.
func NewCoordinate(x, y float64, srid int) Coordinate {
	return Coordinate{X: x, Y: y, SRID: srid}
}

// Validate checks if the coordinate is valid for its SRID.
// Geographic longitudes are half-open: 180 is the same meridian as -180.
func (c Coordinate) Validate() error {
	if c.SRID != SRIDWGS84 {
		return nil
	}
	if math.IsNaN(c.X) || c.X < -180 || c.X >= 180 {
		return &ValidationError{
			Field:      "longitude",
			Value:      c.X,
			Constraint: "[-180, 180)",
			Message:    "longitude must be at least -180 and below 180",
		}
	}
	if math.IsNaN(c.Y) || c.Y < -90 || c.Y > 90 {
		return &ValidationError{
			Field:      "latitude",
			Value:      c.Y,
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
		}
	}
	return nil
}

// String returns a string representation of the coordinate.
func (c Coordinate) String() string {
	return fmt.Sprintf("POINT(%f %f) SRID=%d", c.X, c.Y, c.SRID)
}

// WKT returns the Well-Known Text representation.
func (c Coordinate) WKT() string {
	return fmt.Sprintf("POINT(%f %f)", c.X, c.Y)
}

// Offset returns the coordinate shifted by dx and dy in its own units.
func (c Coordinate) Offset(dx, dy float64) Coordinate {
	return Coordinate{X: c.X + dx, Y: c.Y + dy, SRID: c.SRID}
}

// Common SRID constants.
const (
	SRIDWGS84 = 4326 // WGS 84

	// UTM on WGS 84: 326zz north, 327zz south.
	SRIDUTMNorthBase = 32600
	SRIDUTMSouthBase = 32700
)

// ProjectedFrame is the EPSG code of a locally accurate projected CRS.
type ProjectedFrame int

// ResolveFrame returns the WGS 84 / UTM frame that contains the point.
// The zone is floor((lon+180)/6)+1; latitude 0 belongs to the north.
func ResolveFrame(p Coordinate) (ProjectedFrame, error) {
	if err := NewWGS84Coordinate(p.X, p.Y).Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCoordinate, err)
	}
	zone := UTMZone(p.X)
	if p.Y >= 0 {
		return ProjectedFrame(SRIDUTMNorthBase + zone), nil
	}
	return ProjectedFrame(SRIDUTMSouthBase + zone), nil
}

// UTMZone returns the 6-degree zone number (1..60) for a longitude in [-180, 180).
func UTMZone(lon float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	// floating point can push lon just below 180 into zone 61
	if zone > 60 {
		zone = 60
	}
	if zone < 1 {
		zone = 1
	}
	return zone
}

// SRID returns the frame as an integer SRID.
func (f ProjectedFrame) SRID() int {
	return int(f)
}

// Zone returns the UTM zone number of the frame, or 0 if it is not a UTM frame.
func (f ProjectedFrame) Zone() int {
	switch {
	case f > SRIDUTMNorthBase && f <= SRIDUTMNorthBase+60:
		return int(f) - SRIDUTMNorthBase
	case f > SRIDUTMSouthBase && f <= SRIDUTMSouthBase+60:
		return int(f) - SRIDUTMSouthBase
	default:
		return 0
	}
}

// South reports whether the frame is a southern-hemisphere UTM frame.
func (f ProjectedFrame) South() bool {
	return f > SRIDUTMSouthBase && f <= SRIDUTMSouthBase+60
}

// IsUTM reports whether the frame is one of the 120 WGS 84 / UTM frames.
func (f ProjectedFrame) IsUTM() bool {
	return f.Zone() != 0
}

// String returns the frame as an EPSG authority string.
func (f ProjectedFrame) String() string {
	return fmt.Sprintf("EPSG:%d", int(f))
}

// Extent represents a spatial bounding box.
type Extent struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
	SRID int
}

// Contains checks if a coordinate is within the extent.
func (e Extent) Contains(c Coordinate) bool {
	return c.X >= e.MinX && c.X <= e.MaxX && c.Y >= e.MinY && c.Y <= e.MaxY
}

// IsValid checks if the extent has valid dimensions.
func (e Extent) IsValid() bool {
	return e.MinX <= e.MaxX && e.MinY <= e.MaxY
}

// Width returns the width of the extent.
func (e Extent) Width() float64 {
	return math.Abs(e.MaxX - e.MinX)
}

// Height returns the height of the extent.
func (e Extent) Height() float64 {
	return math.Abs(e.MaxY - e.MinY)
}

// Center returns the center coordinate of the extent.
func (e Extent) Center() Coordinate {
	return Coordinate{
		X:    (e.MinX + e.MaxX) / 2,
		Y:    (e.MinY + e.MaxY) / 2,
		SRID: e.SRID,
	}
}

// BoundingRegion is a geographic rectangle derived from a square in the
// location's projected frame.
type BoundingRegion struct {
	SouthWest Coordinate     // EPSG:4326
	NorthEast Coordinate     // EPSG:4326
	Frame     ProjectedFrame // frame the region was computed in
	Projected Extent         // the square in Frame
}

// NewBoundingRegion builds a region from two geographic corners.
func NewBoundingRegion(sw, ne Coordinate) (BoundingRegion, error) {
	if sw.SRID != SRIDWGS84 || ne.SRID != SRIDWGS84 {
		return BoundingRegion{}, fmt.Errorf("bounding region corners must be EPSG:%d: %w", SRIDWGS84, ErrInvalidSRID)
	}
	if sw.X > ne.X || sw.Y > ne.Y {
		return BoundingRegion{}, fmt.Errorf("bounding region corners out of order (%s, %s): %w", sw, ne, ErrInvalidInput)
	}
	return BoundingRegion{SouthWest: sw, NorthEast: ne}, nil
}

// Geographic returns the region as a geographic extent.
func (r BoundingRegion) Geographic() Extent {
	return Extent{
		MinX: r.SouthWest.X,
		MinY: r.SouthWest.Y,
		MaxX: r.NorthEast.X,
		MaxY: r.NorthEast.Y,
		SRID: SRIDWGS84,
	}
}

// Ring returns the closed exterior ring of the region, counter-clockwise
// starting at the south-west corner, as [lon, lat] pairs.
func (r BoundingRegion) Ring() [][2]float64 {
	sw, ne := r.SouthWest, r.NorthEast
	return [][2]float64{
		{sw.X, sw.Y},
		{ne.X, sw.Y},
		{ne.X, ne.Y},
		{sw.X, ne.Y},
		{sw.X, sw.Y},
	}
}

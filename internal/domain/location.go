package domain

import "fmt"

// Location is a named point whose scenes are exported into a folder of the same name.
type Location struct {
	Name string
	Lon  float64
	Lat  float64
}

// Point returns the location as a WGS84 coordinate.
func (l Location) Point() Coordinate {
	return NewWGS84Coordinate(l.Lon, l.Lat)
}

// Validate checks the name and the coordinate.
func (l Location) Validate() error {
	if l.Name == "" {
		return &ValidationError{
			Field:      "name",
			Value:      l.Name,
			Constraint: "non-empty",
			Message:    "location name is required",
		}
	}
	if err := l.Point().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCoordinate, err)
	}
	return nil
}

// ZipLocations combines three parallel lists into locations.
func ZipLocations(names []string, lons, lats []float64) ([]Location, error) {
	if len(names) != len(lons) || len(lons) != len(lats) {
		return nil, fmt.Errorf("%w: parallel lists differ in length (names=%d, longitudes=%d, latitudes=%d)",
			ErrInvalidLocations, len(names), len(lons), len(lats))
	}
	locations := make([]Location, len(names))
	for i := range names {
		locations[i] = Location{Name: names[i], Lon: lons[i], Lat: lats[i]}
	}
	return locations, nil
}

package geometry

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/mattn/go-sqlite3"

	"github.com/jobrunner/sceneport/internal/domain"
)

// DriverName is the database/sql driver that loads SpatiaLite on connect.
const DriverName = "sqlite3_with_extensions"

// Ensure sqlite3 driver is registered with extension support.
func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		Extensions: getSpatiaLiteLibraryPaths(),
	})
}

// getSpatiaLiteLibraryPaths returns a list of paths to try for loading SpatiaLite.
// The environment variable wins; otherwise platform-specific paths are tried in order.
func getSpatiaLiteLibraryPaths() []string {
	if envPath := os.Getenv("SPATIALITE_LIBRARY_PATH"); envPath != "" {
		return []string{envPath}
	}

	return []string{
		// Alpine Linux (Docker containers)
		"/usr/lib/mod_spatialite.so",
		"/usr/lib/mod_spatialite.so.8",

		// Debian/Ubuntu amd64
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so",
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so.8",

		// Debian/Ubuntu arm64
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so",
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so.8",

		// macOS Homebrew
		"/usr/local/lib/mod_spatialite.dylib",
		"/opt/homebrew/lib/mod_spatialite.dylib",

		// Generic names (let the system find them via LD_LIBRARY_PATH)
		"mod_spatialite.so",
		"mod_spatialite",
		"mod_spatialite.dylib",
	}
}

// SpatiaLiteTransformer implements coordinate transformation using
// SpatiaLite and its PROJ database.
type SpatiaLiteTransformer struct {
	db *sql.DB
}

// OpenSpatiaLite opens an in-memory SpatiaLite database with the EPSG
// reference systems loaded.
func OpenSpatiaLite(ctx context.Context) (*SpatiaLiteTransformer, error) {
	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening spatialite: %w", err)
	}
	// every connection of an in-memory database is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "SELECT InitSpatialMetaData(1)"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing spatial metadata: %w", err)
	}

	return NewSpatiaLiteTransformer(db), nil
}

// NewSpatiaLiteTransformer creates a transformer on an open SpatiaLite database.
func NewSpatiaLiteTransformer(db *sql.DB) *SpatiaLiteTransformer {
	return &SpatiaLiteTransformer{db: db}
}

// Transform transforms a coordinate from one SRID to another.
func (t *SpatiaLiteTransformer) Transform(ctx context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error) {
	if coord.SRID == targetSRID {
		return coord, nil
	}

	// Use SpatiaLite's Transform function
	query := `SELECT X(Transform(GeomFromText(?, ?), ?)), Y(Transform(GeomFromText(?, ?), ?))`

	wkt := coord.WKT()
	var x, y sql.NullFloat64
	err := t.db.QueryRowContext(ctx, query,
		wkt, coord.SRID, targetSRID,
		wkt, coord.SRID, targetSRID,
	).Scan(&x, &y)
	if err != nil {
		return domain.Coordinate{}, &domain.TransformError{SourceSRID: coord.SRID, TargetSRID: targetSRID, Err: err}
	}
	// Transform yields NULL for unknown reference systems
	if !x.Valid || !y.Valid {
		return domain.Coordinate{}, &domain.TransformError{
			SourceSRID: coord.SRID,
			TargetSRID: targetSRID,
			Err:        domain.ErrUnsupportedProjection,
		}
	}

	return domain.NewCoordinate(x.Float64, y.Float64, targetSRID), nil
}

// IsSupported checks if both SRIDs are in the spatial_ref_sys table.
func (t *SpatiaLiteTransformer) IsSupported(sourceSRID, targetSRID int) bool {
	query := `
		SELECT COUNT(DISTINCT srid)
		FROM spatial_ref_sys
		WHERE srid IN (?, ?)
	`
	want := 2
	if sourceSRID == targetSRID {
		want = 1
	}

	var count int
	err := t.db.QueryRowContext(context.Background(), query, sourceSRID, targetSRID).Scan(&count)
	if err != nil {
		return false
	}
	return count == want
}

// Close closes the underlying database.
func (t *SpatiaLiteTransformer) Close() error {
	return t.db.Close()
}

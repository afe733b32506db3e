package output

import (
	"context"

	"github.com/jobrunner/sceneport/internal/domain"
)

// SortByAcquisitionTime is the catalog sort key for scene acquisition time.
const SortByAcquisitionTime = "system:time_start"

// CatalogQuery is a filtered view of a scene collection.
type CatalogQuery struct {
	Collection string
	Region     domain.BoundingRegion
	Dates      domain.DateRange
}

// SceneCatalog defines the secondary port for the remote scene catalog.
type SceneCatalog interface {
	// Query filters a collection by region and closed date range.
	Query(ctx context.Context, collection string, region domain.BoundingRegion, dates domain.DateRange) (CatalogQuery, error)

	// Count returns the exact number of scenes matching the query.
	Count(ctx context.Context, q CatalogQuery) (int, error)

	// ListOrdered returns at most limit scene references sorted by sortKey.
	ListOrdered(ctx context.Context, q CatalogQuery, sortKey string, ascending bool, limit int) ([]domain.SceneRef, error)

	// BandSelect selects named bands of a scene.
	BandSelect(ctx context.Context, ref domain.SceneRef, bands []string) (domain.RasterRef, error)

	// AcquisitionDate returns the scene acquisition date as YYYY-MM-DD.
	AcquisitionDate(ctx context.Context, ref domain.SceneRef) (string, error)
}

package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// SceneEnumerator lists the scenes of a collection that cover a region.
type SceneEnumerator struct {
	catalog    output.SceneCatalog
	collection string
	logger     *slog.Logger
}

// NewSceneEnumerator creates a new scene enumerator for a collection.
func NewSceneEnumerator(catalog output.SceneCatalog, collection string, logger *slog.Logger) *SceneEnumerator {
	return &SceneEnumerator{
		catalog:    catalog,
		collection: collection,
		logger:     logger,
	}
}

// Enumerate queries the catalog and returns a one-shot iterator over the
// matching scenes in ascending acquisition order.
func (e *SceneEnumerator) Enumerate(ctx context.Context, region domain.BoundingRegion, dates domain.DateRange) (*SceneIterator, error) {
	q, err := e.catalog.Query(ctx, e.collection, region, dates)
	if err != nil {
		return nil, e.catalogError("query", err)
	}

	count, err := e.catalog.Count(ctx, q)
	if err != nil {
		return nil, e.catalogError("count", err)
	}
	if count < 0 {
		return nil, e.catalogError("count", fmt.Errorf("negative scene count %d", count))
	}

	it := &SceneIterator{
		catalog:    e.catalog,
		collection: e.collection,
		count:      count,
	}
	if count == 0 {
		return it, nil
	}

	refs, err := e.catalog.ListOrdered(ctx, q, output.SortByAcquisitionTime, true, count)
	if err != nil {
		return nil, e.catalogError("list", err)
	}
	if len(refs) > count {
		e.logger.Warn("catalog listed more scenes than it counted, truncating",
			"collection", e.collection,
			"count", count,
			"listed", len(refs),
		)
		refs = refs[:count]
	}
	it.refs = refs

	return it, nil
}

func (e *SceneEnumerator) catalogError(op string, err error) error {
	return &domain.CatalogError{Collection: e.collection, Operation: op, Err: err}
}

// SceneIterator yields scenes one at a time. It cannot be restarted.
//
//	for it.Next(ctx) {
//		scene := it.Scene()
//	}
//	if err := it.Err(); err != nil { ... }
type SceneIterator struct {
	catalog    output.SceneCatalog
	collection string
	refs       []domain.SceneRef
	count      int
	next       int
	current    domain.Scene
	lastDate   string
	err        error
}

// Count returns the scene count reported by the catalog.
func (it *SceneIterator) Count() int {
	return it.count
}

// Len returns the number of scenes the iterator will yield at most.
func (it *SceneIterator) Len() int {
	return len(it.refs)
}

// Next materializes the next scene. It returns false when the sequence is
// exhausted or an error occurred.
func (it *SceneIterator) Next(ctx context.Context) bool {
	if it.err != nil || it.next >= len(it.refs) {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}

	ref := it.refs[it.next]
	date, err := it.catalog.AcquisitionDate(ctx, ref)
	if err != nil {
		it.err = &domain.CatalogError{Collection: it.collection, Operation: "date", Err: err}
		return false
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		it.err = &domain.CatalogError{Collection: it.collection, Operation: "date", Err: err}
		return false
	}
	if date < it.lastDate {
		it.err = &domain.CatalogError{
			Collection: it.collection,
			Operation:  "list",
			Err:        fmt.Errorf("%w: %s after %s", domain.ErrCatalogOrder, date, it.lastDate),
		}
		return false
	}

	it.current = domain.Scene{
		Index:           it.next,
		AcquisitionDate: date,
		Ref:             ref,
	}
	it.lastDate = date
	it.next++
	return true
}

// Scene returns the scene produced by the last successful Next.
func (it *SceneIterator) Scene() domain.Scene {
	return it.current
}

// Err returns the error that stopped iteration, if any.
func (it *SceneIterator) Err() error {
	return it.err
}

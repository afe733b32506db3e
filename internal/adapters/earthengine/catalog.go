package earthengine

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// publicAssets is the parent of the public data catalog.
const publicAssets = "projects/earthengine-public/assets/"

type image struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	StartTime time.Time `json:"startTime"`
}

type listImagesResponse struct {
	Images        []image `json:"images"`
	NextPageToken string  `json:"nextPageToken"`
}

// Catalog implements output.SceneCatalog with the listImages call.
//
// Count and the following ListOrdered of the same query share one scan: the
// listing is held until ListOrdered consumes it or another query replaces it.
// The dates of the listed scenes are held until AcquisitionDate reads them
// or the next ListOrdered starts a new iteration.
type Catalog struct {
	client *Client

	mu      sync.Mutex
	pending *listing
	dates   map[domain.SceneRef]string
}

type listing struct {
	key    string
	images []image
}

// NewCatalog creates a new catalog.
func NewCatalog(client *Client) *Catalog {
	return &Catalog{
		client: client,
		dates:  make(map[domain.SceneRef]string),
	}
}

// Query builds a filtered view of the collection. No request is made.
func (c *Catalog) Query(_ context.Context, collection string, region domain.BoundingRegion, dates domain.DateRange) (output.CatalogQuery, error) {
	if collection == "" {
		return output.CatalogQuery{}, &domain.ValidationError{
			Field:      "collection",
			Value:      collection,
			Constraint: "non-empty",
			Message:    "collection is required",
		}
	}
	return output.CatalogQuery{Collection: collection, Region: region, Dates: dates}, nil
}

// Count returns the number of images matching the query.
func (c *Catalog) Count(ctx context.Context, q output.CatalogQuery) (int, error) {
	images, err := c.list(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		// nothing to list afterwards
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}
	return len(images), nil
}

// ListOrdered returns image names sorted by acquisition time.
func (c *Catalog) ListOrdered(ctx context.Context, q output.CatalogQuery, sortKey string, ascending bool, limit int) ([]domain.SceneRef, error) {
	if sortKey != output.SortByAcquisitionTime {
		return nil, fmt.Errorf("sort key %q: %w", sortKey, domain.ErrUnsupported)
	}

	images, err := c.list(ctx, q)
	if err != nil {
		return nil, err
	}

	sorted := make([]image, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool {
		if ascending {
			return sorted[i].StartTime.Before(sorted[j].StartTime)
		}
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})

	if limit >= 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}

	refs := make([]domain.SceneRef, len(sorted))
	dates := make(map[domain.SceneRef]string, len(sorted))
	for i, img := range sorted {
		refs[i] = domain.SceneRef(img.Name)
		dates[refs[i]] = img.StartTime.UTC().Format(domain.DateLayout)
	}

	c.mu.Lock()
	c.pending = nil
	c.dates = dates
	c.mu.Unlock()

	return refs, nil
}

// BandSelect selects bands of an image. The selection is applied when the
// export expression is built.
func (c *Catalog) BandSelect(_ context.Context, ref domain.SceneRef, bands []string) (domain.RasterRef, error) {
	if len(bands) == 0 {
		return domain.RasterRef{}, fmt.Errorf("no bands selected for %s: %w", ref, domain.ErrInvalidInput)
	}
	selected := make([]string, len(bands))
	copy(selected, bands)
	return domain.RasterRef{Scene: ref, Bands: selected}, nil
}

// AcquisitionDate returns the UTC acquisition date of an image. A date from
// the last listing is served once; any other ref is fetched.
func (c *Catalog) AcquisitionDate(ctx context.Context, ref domain.SceneRef) (string, error) {
	c.mu.Lock()
	date, ok := c.dates[ref]
	delete(c.dates, ref)
	c.mu.Unlock()
	if ok {
		return date, nil
	}

	var img image
	if err := c.client.do(ctx, "GET", string(ref), nil, nil, &img); err != nil {
		return "", err
	}
	return img.StartTime.UTC().Format(domain.DateLayout), nil
}

// list pages through listImages, reusing the pending listing of the same query.
func (c *Catalog) list(ctx context.Context, q output.CatalogQuery) ([]image, error) {
	region, err := regionGeoJSON(q.Region)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("startTime", q.Dates.Start.UTC().Format(time.RFC3339))
	// the API end time is exclusive; the range includes its last day
	params.Set("endTime", q.Dates.EndExclusive().UTC().Format(time.RFC3339))
	params.Set("region", region)
	params.Set("pageSize", strconv.Itoa(c.client.pageSize))

	cacheKey := q.Collection + "?" + params.Encode()
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending != nil && pending.key == cacheKey {
		return pending.images, nil
	}

	var images []image
	path := assetPath(q.Collection) + ":listImages"
	for {
		var page listImagesResponse
		if err := c.client.do(ctx, "GET", path, params, nil, &page); err != nil {
			return nil, err
		}
		images = append(images, page.Images...)
		if page.NextPageToken == "" {
			break
		}
		params.Set("pageToken", page.NextPageToken)
	}

	c.mu.Lock()
	c.pending = &listing{key: cacheKey, images: images}
	c.mu.Unlock()

	return images, nil
}

// assetPath resolves a collection id to its asset resource name.
func assetPath(collection string) string {
	if strings.HasPrefix(collection, "projects/") {
		return collection
	}
	return publicAssets + collection
}

// regionGeoJSON encodes the region as a GeoJSON polygon.
func regionGeoJSON(region domain.BoundingRegion) (string, error) {
	points := region.Ring()
	ring := make(orb.Ring, len(points))
	for i, p := range points {
		ring[i] = orb.Point{p[0], p[1]}
	}

	data, err := geojson.NewGeometry(orb.Polygon{ring}).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encoding region: %w", err)
	}
	return string(data), nil
}

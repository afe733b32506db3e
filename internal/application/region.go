// Package application contains the application services.
package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// RegionCalculator derives fixed-size export regions around points.
type RegionCalculator struct {
	transformer output.CoordinateTransformer
	logger      *slog.Logger
}

// NewRegionCalculator creates a new region calculator.
func NewRegionCalculator(transformer output.CoordinateTransformer, logger *slog.Logger) *RegionCalculator {
	return &RegionCalculator{
		transformer: transformer,
		logger:      logger,
	}
}

// Compute returns the geographic rectangle whose sides are extentM meters
// long in the point's own UTM frame, centered on the point.
func (c *RegionCalculator) Compute(ctx context.Context, point domain.Coordinate, extentM float64) (domain.BoundingRegion, error) {
	if extentM <= 0 {
		return domain.BoundingRegion{}, &domain.ValidationError{
			Field:      "patch_extent_m",
			Value:      extentM,
			Constraint: "> 0",
			Message:    "patch extent must be positive",
		}
	}

	frame, err := domain.ResolveFrame(point)
	if err != nil {
		return domain.BoundingRegion{}, err
	}

	center, err := c.transform(ctx, point, frame.SRID())
	if err != nil {
		return domain.BoundingRegion{}, err
	}

	half := extentM / 2
	lowerLeft := center.Offset(-half, -half)
	upperRight := center.Offset(half, half)

	sw, err := c.transform(ctx, lowerLeft, domain.SRIDWGS84)
	if err != nil {
		return domain.BoundingRegion{}, err
	}
	ne, err := c.transform(ctx, upperRight, domain.SRIDWGS84)
	if err != nil {
		return domain.BoundingRegion{}, err
	}

	region, err := domain.NewBoundingRegion(sw, ne)
	if err != nil {
		return domain.BoundingRegion{}, err
	}
	region.Frame = frame
	region.Projected = domain.Extent{
		MinX: lowerLeft.X,
		MinY: lowerLeft.Y,
		MaxX: upperRight.X,
		MaxY: upperRight.Y,
		SRID: frame.SRID(),
	}

	c.logger.Debug("computed region",
		"frame", frame.String(),
		"sw", sw.WKT(),
		"ne", ne.WKT(),
	)

	return region, nil
}

// transform reprojects a point and wraps failures in a TransformError.
func (c *RegionCalculator) transform(ctx context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error) {
	out, err := c.transformer.Transform(ctx, coord, targetSRID)
	if err != nil {
		var te *domain.TransformError
		if errors.As(err, &te) {
			return domain.Coordinate{}, err
		}
		return domain.Coordinate{}, &domain.TransformError{
			SourceSRID: coord.SRID,
			TargetSRID: targetSRID,
			Err:        err,
		}
	}
	return out, nil
}

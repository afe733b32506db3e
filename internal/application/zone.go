package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
)

// ZoneInfo describes the projected frame and export region of a point.
type ZoneInfo struct {
	Point          domain.Coordinate
	Frame          domain.ProjectedFrame
	Projected      domain.Coordinate // the point in Frame
	Region         domain.BoundingRegion
	ProcessingTime time.Duration
}

// ZoneService answers ad-hoc frame and region lookups.
type ZoneService struct {
	regions *RegionCalculator
	logger  *slog.Logger
	extentM float64
}

// NewZoneService creates a new zone service using the export patch extent.
func NewZoneService(regions *RegionCalculator, logger *slog.Logger, extentM float64) *ZoneService {
	if extentM <= 0 {
		extentM = 6000
	}
	return &ZoneService{
		regions: regions,
		logger:  logger,
		extentM: extentM,
	}
}

// Lookup resolves the frame of a WGS84 point and the region an export of it would cover.
func (s *ZoneService) Lookup(ctx context.Context, lon, lat float64) (*ZoneInfo, error) {
	start := time.Now()
	point := domain.NewWGS84Coordinate(lon, lat)

	region, err := s.regions.Compute(ctx, point, s.extentM)
	if err != nil {
		return nil, err
	}

	info := &ZoneInfo{
		Point:          point,
		Frame:          region.Frame,
		Projected:      region.Projected.Center(),
		Region:         region,
		ProcessingTime: time.Since(start),
	}

	s.logger.Debug("zone lookup", "point", point.WKT(), "frame", info.Frame.String())
	return info, nil
}

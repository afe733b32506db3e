// Package geometry provides coordinate transformers between WGS84 and the
// WGS84 / UTM frames.
package geometry

import (
	"context"
	"fmt"
	"math"

	"github.com/jobrunner/sceneport/internal/domain"
)

// WGS84 ellipsoid and UTM constants.
const (
	semiMajorAxis  = 6378137.0
	flattening     = 1 / 298.257223563
	scaleFactor    = 0.9996
	falseEasting   = 500000.0
	falseNorthingS = 10000000.0
)

// UTMTransformer projects between geographic WGS84 and UTM with a sixth
// order Krüger series, accurate to well below a millimeter within a zone.
type UTMTransformer struct {
	e     float64    // first eccentricity
	a     float64    // rectifying radius times the scale factor
	alpha [6]float64 // forward series
	beta  [6]float64 // inverse series
}

// NewUTMTransformer creates a transformer for the WGS84 ellipsoid.
func NewUTMTransformer() *UTMTransformer {
	f := flattening
	n := f / (2 - f)
	n2, n3 := n*n, n*n*n
	n4, n5, n6 := n2*n2, n2*n3, n3*n3

	t := &UTMTransformer{
		e: math.Sqrt(f * (2 - f)),
		a: scaleFactor * semiMajorAxis / (1 + n) * (1 + n2/4 + n4/64 + n6/256),
	}

	t.alpha = [6]float64{
		n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180 - 127*n5/288 + 7891*n6/37800,
		13*n2/48 - 3*n3/5 + 557*n4/1440 + 281*n5/630 - 1983433*n6/1935360,
		61*n3/240 - 103*n4/140 + 15061*n5/26880 + 167603*n6/181440,
		49561*n4/161280 - 179*n5/168 + 6601661*n6/7257600,
		34729*n5/80640 - 3418889*n6/1995840,
		212378941 * n6 / 319334400,
	}
	t.beta = [6]float64{
		n/2 - 2*n2/3 + 37*n3/96 - n4/360 - 81*n5/512 + 96199*n6/604800,
		n2/48 + n3/15 - 437*n4/1440 + 46*n5/105 - 1118711*n6/3870720,
		17*n3/480 - 37*n4/840 - 209*n5/4480 + 5569*n6/90720,
		4397*n4/161280 - 11*n5/504 - 830251*n6/7257600,
		4583*n5/161280 - 108847*n6/3991680,
		20648693 * n6 / 638668800,
	}

	return t
}

// Transform transforms a coordinate between EPSG:4326 and a WGS84 / UTM frame.
func (t *UTMTransformer) Transform(ctx context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, err
	}
	if coord.SRID == targetSRID {
		return coord, nil
	}
	if !t.IsSupported(coord.SRID, targetSRID) {
		return domain.Coordinate{}, &domain.TransformError{
			SourceSRID: coord.SRID,
			TargetSRID: targetSRID,
			Err:        domain.ErrUnsupportedProjection,
		}
	}

	if coord.SRID == domain.SRIDWGS84 {
		if err := coord.Validate(); err != nil {
			return domain.Coordinate{}, &domain.TransformError{SourceSRID: coord.SRID, TargetSRID: targetSRID, Err: err}
		}
		x, y := t.forward(coord.X, coord.Y, domain.ProjectedFrame(targetSRID))
		return domain.NewCoordinate(x, y, targetSRID), nil
	}

	if math.IsNaN(coord.X) || math.IsNaN(coord.Y) || math.IsInf(coord.X, 0) || math.IsInf(coord.Y, 0) {
		return domain.Coordinate{}, &domain.TransformError{
			SourceSRID: coord.SRID,
			TargetSRID: targetSRID,
			Err:        fmt.Errorf("non-finite coordinate %s: %w", coord, domain.ErrInvalidCoordinate),
		}
	}
	lon, lat := t.inverse(coord.X, coord.Y, domain.ProjectedFrame(coord.SRID))
	return domain.NewWGS84Coordinate(lon, lat), nil
}

// IsSupported reports whether one side is EPSG:4326 and the other a UTM frame.
func (t *UTMTransformer) IsSupported(sourceSRID, targetSRID int) bool {
	if sourceSRID == targetSRID {
		return true
	}
	switch {
	case sourceSRID == domain.SRIDWGS84:
		return domain.ProjectedFrame(targetSRID).IsUTM()
	case targetSRID == domain.SRIDWGS84:
		return domain.ProjectedFrame(sourceSRID).IsUTM()
	default:
		return false
	}
}

// centralMeridian returns the central meridian of a zone in radians.
func centralMeridian(zone int) float64 {
	return float64((zone-1)*6-180+3) * math.Pi / 180
}

// forward projects degrees to easting and northing in frame.
func (t *UTMTransformer) forward(lon, lat float64, frame domain.ProjectedFrame) (float64, float64) {
	phi := lat * math.Pi / 180
	lambda := lon*math.Pi/180 - centralMeridian(frame.Zone())

	tau := math.Tan(phi)
	sigma := math.Sinh(t.e * math.Atanh(t.e*tau/math.Sqrt(1+tau*tau)))
	tauP := tau*math.Sqrt(1+sigma*sigma) - sigma*math.Sqrt(1+tau*tau)

	cosL := math.Cos(lambda)
	xiP := math.Atan2(tauP, cosL)
	etaP := math.Asinh(math.Sin(lambda) / math.Sqrt(tauP*tauP+cosL*cosL))

	xi, eta := xiP, etaP
	for j := 1; j <= 6; j++ {
		a := t.alpha[j-1]
		k := 2 * float64(j)
		xi += a * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += a * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x := t.a*eta + falseEasting
	y := t.a * xi
	if frame.South() {
		y += falseNorthingS
	}
	return x, y
}

// inverse converts easting and northing in frame to degrees.
func (t *UTMTransformer) inverse(x, y float64, frame domain.ProjectedFrame) (float64, float64) {
	x -= falseEasting
	if frame.South() {
		y -= falseNorthingS
	}

	xi := y / t.a
	eta := x / t.a

	xiP, etaP := xi, eta
	for j := 1; j <= 6; j++ {
		b := t.beta[j-1]
		k := 2 * float64(j)
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	sinhEtaP := math.Sinh(etaP)
	sinXiP, cosXiP := math.Sincos(xiP)
	tauP := sinXiP / math.Sqrt(sinhEtaP*sinhEtaP+cosXiP*cosXiP)

	e2 := t.e * t.e
	tau := tauP
	for i := 0; i < 10; i++ {
		sigma := math.Sinh(t.e * math.Atanh(t.e*tau/math.Sqrt(1+tau*tau)))
		tauI := tau*math.Sqrt(1+sigma*sigma) - sigma*math.Sqrt(1+tau*tau)
		delta := (tauP - tauI) / math.Sqrt(1+tauI*tauI) *
			(1 + (1-e2)*tau*tau) / ((1 - e2) * math.Sqrt(1+tau*tau))
		tau += delta
		if math.Abs(delta) < 1e-12 {
			break
		}
	}

	phi := math.Atan(tau)
	lambda := math.Atan2(sinhEtaP, cosXiP)

	lon := (centralMeridian(frame.Zone()) + lambda) * 180 / math.Pi
	lat := phi * 180 / math.Pi
	return lon, lat
}

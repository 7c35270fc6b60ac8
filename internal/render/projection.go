package render

import (
	"fmt"
	"math"

	"github.com/ironsheep/plotting-mcp/internal/plot"
)

// MercatorMaxLat is where mercator clamps latitudes.
const MercatorMaxLat = 85.05112878

// Projection maps geographic (or data) coordinates to a planar space.
// Planar units are arbitrary; the viewport scales them to pixels.
type Projection interface {
	Name() string
	Forward(lon, lat float64) (x, y float64)
	// Inverse returns false for planar points outside the projected globe.
	Inverse(x, y float64) (lon, lat float64, ok bool)
	Geographic() bool
}

// NewProjection returns the projection with the given identifier.
func NewProjection(name string) (Projection, error) {
	switch name {
	case plot.ProjectionNone, "":
		return cartesian{}, nil
	case plot.ProjectionEquirectangular:
		return equirectangular{}, nil
	case plot.ProjectionMercator:
		return mercator{}, nil
	case plot.ProjectionMollweide:
		return mollweide{}, nil
	}
	return nil, fmt.Errorf("unknown projection %q", name)
}

type cartesian struct{}

func (cartesian) Name() string                                  { return plot.ProjectionNone }
func (cartesian) Forward(x, y float64) (float64, float64)       { return x, y }
func (cartesian) Inverse(x, y float64) (float64, float64, bool) { return x, y, true }
func (cartesian) Geographic() bool                              { return false }

type equirectangular struct{}

func (equirectangular) Name() string { return plot.ProjectionEquirectangular }
func (equirectangular) Forward(lon, lat float64) (float64, float64) {
	return lon, lat
}
func (equirectangular) Inverse(x, y float64) (float64, float64, bool) {
	return x, y, y >= -90 && y <= 90 && x >= -180 && x <= 180
}
func (equirectangular) Geographic() bool { return true }

type mercator struct{}

func (mercator) Name() string { return plot.ProjectionMercator }

// Forward keeps y in degree-like units so x and y share a scale.
func (mercator) Forward(lon, lat float64) (float64, float64) {
	lat = math.Max(-MercatorMaxLat, math.Min(MercatorMaxLat, lat))
	phi := lat * math.Pi / 180
	return lon, math.Log(math.Tan(math.Pi/4+phi/2)) * 180 / math.Pi
}

func (mercator) Inverse(x, y float64) (float64, float64, bool) {
	lat := math.Atan(math.Sinh(y*math.Pi/180)) * 180 / math.Pi
	return x, lat, x >= -180 && x <= 180 && math.Abs(lat) <= MercatorMaxLat
}
func (mercator) Geographic() bool { return true }

type mollweide struct{}

func (mollweide) Name() string { return plot.ProjectionMollweide }

// Forward solves 2θ + sin 2θ = π sin φ by Newton iteration.
func (mollweide) Forward(lon, lat float64) (float64, float64) {
	lat = math.Max(-90, math.Min(90, lat))
	phi, lambda := lat*math.Pi/180, lon*math.Pi/180

	theta := phi
	if math.Abs(lat) < 90 {
		for i := 0; i < 20; i++ {
			denom := 2 + 2*math.Cos(2*theta)
			if math.Abs(denom) < 1e-12 {
				break
			}
			delta := (2*theta + math.Sin(2*theta) - math.Pi*math.Sin(phi)) / denom
			theta -= delta
			if math.Abs(delta) < 1e-9 {
				break
			}
		}
	}
	x := 2 * math.Sqrt2 / math.Pi * lambda * math.Cos(theta)
	y := math.Sqrt2 * math.Sin(theta)
	return x * 180 / math.Pi, y * 180 / math.Pi
}

func (mollweide) Inverse(x, y float64) (float64, float64, bool) {
	x, y = x*math.Pi/180, y*math.Pi/180
	if math.Abs(y) > math.Sqrt2 {
		return 0, 0, false
	}
	theta := math.Asin(y / math.Sqrt2)
	c := math.Cos(theta)
	if c < 1e-12 {
		return 0, math.Copysign(90, y), math.Abs(x) < 1e-9
	}
	lambda := math.Pi * x / (2 * math.Sqrt2 * c)
	if math.Abs(lambda) > math.Pi {
		return 0, 0, false
	}
	s := (2*theta + math.Sin(2*theta)) / math.Pi
	s = math.Max(-1, math.Min(1, s))
	return lambda * 180 / math.Pi, math.Asin(s) * 180 / math.Pi, true
}
func (mollweide) Geographic() bool { return true }

// projectedBounds samples the edges of ext and returns the planar bounding box.
func projectedBounds(p Projection, ext plot.Extent) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	const steps = 64
	add := func(lon, lat float64) {
		x, y := p.Forward(lon, lat)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / steps
		lon := ext.MinLon + t*(ext.MaxLon-ext.MinLon)
		lat := ext.MinLat + t*(ext.MaxLat-ext.MinLat)
		add(lon, ext.MinLat)
		add(lon, ext.MaxLat)
		add(ext.MinLon, lat)
		add(ext.MaxLon, lat)
	}
	return
}

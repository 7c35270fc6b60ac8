package render

import "math"

// viewport maps a planar window onto a pixel rectangle, y flipped.
type viewport struct {
	proj Projection

	x0, y0, x1, y1 float64
	area           Rect
	sx, sy         float64
	ox, oy         float64
}

// newViewport fits the planar window into area. With keepAspect the window
// is letterboxed so one planar unit has the same length on both axes.
func newViewport(proj Projection, x0, y0, x1, y1 float64, area Rect, keepAspect bool) viewport {
	x0, x1 = widen(x0, x1)
	y0, y1 = widen(y0, y1)

	v := viewport{proj: proj, x0: x0, y0: y0, x1: x1, y1: y1, area: area}
	v.sx = area.W() / (x1 - x0)
	v.sy = area.H() / (y1 - y0)
	v.ox, v.oy = area.MinX, area.MinY

	if keepAspect {
		s := math.Min(v.sx, v.sy)
		v.ox += (area.W() - s*(x1-x0)) / 2
		v.oy += (area.H() - s*(y1-y0)) / 2
		v.sx, v.sy = s, s
		v.area = Rect{v.ox, v.oy, v.ox + s*(x1-x0), v.oy + s*(y1-y0)}
	}
	return v
}

// widen expands a degenerate range so it can be scaled.
func widen(lo, hi float64) (float64, float64) {
	if hi > lo {
		return lo, hi
	}
	d := math.Abs(lo) * 0.1
	if d == 0 {
		d = 1
	}
	return lo - d, hi + d
}

// toPixel maps planar coordinates to pixels.
func (v viewport) toPixel(x, y float64) Point {
	return Point{v.ox + (x-v.x0)*v.sx, v.oy + (v.y1-y)*v.sy}
}

// fromPixel maps pixels back to planar coordinates.
func (v viewport) fromPixel(p Point) (float64, float64) {
	return v.x0 + (p.X-v.ox)/v.sx, v.y1 - (p.Y-v.oy)/v.sy
}

// project maps data or geographic coordinates to pixels.
func (v viewport) project(lon, lat float64) Point {
	x, y := v.proj.Forward(lon, lat)
	return v.toPixel(x, y)
}

// unproject maps a pixel back to data or geographic coordinates.
func (v viewport) unproject(p Point) (float64, float64, bool) {
	x, y := v.fromPixel(p)
	return v.proj.Inverse(x, y)
}

// line projects a coordinate sequence.
func (v viewport) line(coords [][2]float64) []Point {
	out := make([]Point, len(coords))
	for i, c := range coords {
		out[i] = v.project(c[0], c[1])
	}
	return out
}

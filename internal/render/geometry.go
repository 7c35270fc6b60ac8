package render

import "math"

// Point is a position in pixel space, y growing downward.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned pixel rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

func (r Rect) W() float64 { return r.MaxX - r.MinX }
func (r Rect) H() float64 { return r.MaxY - r.MinY }

// Inset shrinks r by d on every side.
func (r Rect) Inset(d float64) Rect {
	return Rect{r.MinX + d, r.MinY + d, r.MaxX - d, r.MaxY - d}
}

func (r Rect) contains(p Point) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

func (r Rect) intersect(o Rect) Rect {
	return Rect{
		MinX: math.Max(r.MinX, o.MinX),
		MinY: math.Max(r.MinY, o.MinY),
		MaxX: math.Min(r.MaxX, o.MaxX),
		MaxY: math.Min(r.MaxY, o.MaxY),
	}
}

func (r Rect) empty() bool {
	return r.MaxX <= r.MinX || r.MaxY <= r.MinY
}

// bounds returns the bounding box of every point in rings.
func bounds(rings [][]Point) Rect {
	b := Rect{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, ring := range rings {
		for _, p := range ring {
			b.MinX = math.Min(b.MinX, p.X)
			b.MinY = math.Min(b.MinY, p.Y)
			b.MaxX = math.Max(b.MaxX, p.X)
			b.MaxY = math.Max(b.MaxY, p.Y)
		}
	}
	return b
}

// signedArea is positive for rings that run clockwise on screen.
func signedArea(ring []Point) float64 {
	var a float64
	for i := range ring {
		j := (i + 1) % len(ring)
		a += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return a / 2
}

func reversed(ring []Point) []Point {
	out := make([]Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// orient makes the first ring of a polygon positive and the holes negative,
// so nonzero filling cuts holes regardless of the source winding.
func orient(poly [][]Point) [][]Point {
	out := make([][]Point, 0, len(poly))
	for i, ring := range poly {
		if len(ring) < 3 {
			continue
		}
		a := signedArea(ring)
		if (i == 0 && a < 0) || (i > 0 && a > 0) {
			ring = reversed(ring)
		}
		out = append(out, ring)
	}
	return out
}

// clipRing clips a closed ring to r (Sutherland-Hodgman). The result may
// contain degenerate edges along r, which fill correctly.
func clipRing(ring []Point, r Rect) []Point {
	if len(ring) == 0 {
		return nil
	}
	edges := []struct {
		inside func(Point) bool
		cross  func(a, b Point) Point
	}{
		{func(p Point) bool { return p.X >= r.MinX }, func(a, b Point) Point { return atX(a, b, r.MinX) }},
		{func(p Point) bool { return p.X <= r.MaxX }, func(a, b Point) Point { return atX(a, b, r.MaxX) }},
		{func(p Point) bool { return p.Y >= r.MinY }, func(a, b Point) Point { return atY(a, b, r.MinY) }},
		{func(p Point) bool { return p.Y <= r.MaxY }, func(a, b Point) Point { return atY(a, b, r.MaxY) }},
	}

	out := ring
	for _, e := range edges {
		in := out
		if len(in) == 0 {
			return nil
		}
		out = make([]Point, 0, len(in)+4)
		prev := in[len(in)-1]
		for _, cur := range in {
			switch {
			case e.inside(cur):
				if !e.inside(prev) {
					out = append(out, e.cross(prev, cur))
				}
				out = append(out, cur)
			case e.inside(prev):
				out = append(out, e.cross(prev, cur))
			}
			prev = cur
		}
	}
	if len(out) < 3 {
		return nil
	}
	return out
}

func atX(a, b Point, x float64) Point {
	t := (x - a.X) / (b.X - a.X)
	return Point{x, a.Y + t*(b.Y-a.Y)}
}

func atY(a, b Point, y float64) Point {
	t := (y - a.Y) / (b.Y - a.Y)
	return Point{a.X + t*(b.X-a.X), y}
}

// strokeOutline turns a polyline into positively oriented quads and round
// joins whose union is the stroked line.
func strokeOutline(pts []Point, width float64, closed bool) [][]Point {
	if len(pts) < 2 {
		return nil
	}
	hw := width / 2
	var shapes [][]Point

	n := len(pts) - 1
	if closed {
		n = len(pts)
	}
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%len(pts)]
		dx, dy := b.X-a.X, b.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*hw, dx/l*hw
		quad := []Point{
			{a.X + nx, a.Y + ny},
			{b.X + nx, b.Y + ny},
			{b.X - nx, b.Y - ny},
			{a.X - nx, a.Y - ny},
		}
		if signedArea(quad) < 0 {
			quad = reversed(quad)
		}
		shapes = append(shapes, quad)
	}

	if width >= 1.5 {
		start, end := 1, len(pts)-1
		if closed {
			start, end = 0, len(pts)
		}
		for i := start; i < end; i++ {
			shapes = append(shapes, circle(pts[i], hw, 8))
		}
	}
	return shapes
}

// circle approximates a circle with n segments, positively oriented.
func circle(c Point, r float64, n int) []Point {
	out := make([]Point, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		out[i] = Point{c.X + r*math.Cos(a), c.Y + r*math.Sin(a)}
	}
	return out
}

// wedge approximates a pie slice between angles a0 and a1 (radians,
// clockwise from 12 o'clock).
func wedge(c Point, r, a0, a1 float64) []Point {
	steps := int(math.Ceil((a1-a0)/(math.Pi/60))) + 1
	out := make([]Point, 0, steps+2)
	out = append(out, c)
	for i := 0; i <= steps; i++ {
		a := a0 + (a1-a0)*float64(i)/float64(steps)
		out = append(out, Point{c.X + r*math.Sin(a), c.Y - r*math.Cos(a)})
	}
	if signedArea(out) < 0 {
		out = reversed(out)
	}
	return out
}

package render

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/plotting-mcp/internal/plot"
)

// Contour lattice size and the longest side of a sampled field image.
const (
	contourNX = 60
	contourNY = 45
	maxField  = 720
)

// lattice is a regular grid of samples over a rectangular domain.
// Row 0 is at y0; NaN marks nodes without data.
type lattice struct {
	nx, ny         int
	x0, y0, x1, y1 float64
	v              []float64
}

func (g *lattice) at(i, j int) float64 { return g.v[j*g.nx+i] }

func (g *lattice) node(i, j int) (float64, float64) {
	return g.x0 + float64(i)/float64(g.nx-1)*(g.x1-g.x0),
		g.y0 + float64(j)/float64(g.ny-1)*(g.y1-g.y0)
}

// sample interpolates bilinearly; ok is false outside the domain.
func (g *lattice) sample(x, y float64) (float64, bool) {
	if x < g.x0 || x > g.x1 || y < g.y0 || y > g.y1 {
		return 0, false
	}
	fx := (x - g.x0) / (g.x1 - g.x0) * float64(g.nx-1)
	fy := (y - g.y0) / (g.y1 - g.y0) * float64(g.ny-1)
	i, j := int(fx), int(fy)
	if i >= g.nx-1 {
		i = g.nx - 2
	}
	if j >= g.ny-1 {
		j = g.ny - 2
	}
	tx, ty := fx-float64(i), fy-float64(j)
	a := g.at(i, j)*(1-tx) + g.at(i+1, j)*tx
	b := g.at(i, j+1)*(1-tx) + g.at(i+1, j+1)*tx
	v := a*(1-ty) + b*ty
	return v, !math.IsNaN(v)
}

// idwLattice interpolates record values onto an nx by ny lattice with
// inverse distance weighting. Records are first averaged per lattice cell so
// the cost does not grow with the record count.
func idwLattice(records []plot.Record, x0, y0, x1, y1 float64, nx, ny int) *lattice {
	g := &lattice{nx: nx, ny: ny, x0: x0, y0: y0, x1: x1, y1: y1, v: make([]float64, nx*ny)}

	sum := make([]float64, nx*ny)
	cnt := make([]int, nx*ny)
	for _, r := range records {
		if r.X < x0 || r.X > x1 || r.Y < y0 || r.Y > y1 {
			continue
		}
		i := int(math.Round((r.X - x0) / (x1 - x0) * float64(nx-1)))
		j := int(math.Round((r.Y - y0) / (y1 - y0) * float64(ny-1)))
		sum[j*nx+i] += r.Value
		cnt[j*nx+i]++
	}

	type sample struct{ u, w, v float64 }
	var samples []sample
	for k, n := range cnt {
		if n > 0 {
			samples = append(samples, sample{
				u: float64(k%nx) / float64(nx-1),
				w: float64(k/nx) / float64(ny-1),
				v: sum[k] / float64(n),
			})
		}
	}
	if len(samples) == 0 {
		for k := range g.v {
			g.v[k] = math.NaN()
		}
		return g
	}

	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			u, w := float64(i)/float64(nx-1), float64(j)/float64(ny-1)
			var num, den float64
			exact := false
			for _, s := range samples {
				d2 := (u-s.u)*(u-s.u) + (w-s.w)*(w-s.w)
				if d2 < 1e-12 {
					g.v[j*nx+i] = s.v
					exact = true
					break
				}
				wt := 1 / d2
				num += wt * s.v
				den += wt
			}
			if !exact {
				g.v[j*nx+i] = num / den
			}
		}
	}
	return g
}

// Cell edges: 0 bottom, 1 right, 2 top, 3 left.
var squareSegments = [16][][2]int{
	1: {{3, 0}}, 2: {{0, 1}}, 3: {{3, 1}}, 4: {{1, 2}},
	6: {{0, 2}}, 7: {{3, 2}}, 8: {{2, 3}}, 9: {{0, 2}},
	11: {{1, 2}}, 12: {{1, 3}}, 13: {{0, 1}}, 14: {{3, 0}},
}

// isolines runs marching squares for threshold t and returns segments in
// domain coordinates.
func isolines(g *lattice, t float64) [][2][2]float64 {
	var segs [][2][2]float64
	for j := 0; j < g.ny-1; j++ {
		for i := 0; i < g.nx-1; i++ {
			v := [4]float64{g.at(i, j), g.at(i+1, j), g.at(i+1, j+1), g.at(i, j+1)}
			idx := 0
			for k, c := range v {
				if math.IsNaN(c) {
					idx = -1
					break
				}
				if c > t {
					idx |= 1 << k
				}
			}
			if idx <= 0 || idx == 15 {
				continue
			}

			x0, y0 := g.node(i, j)
			x1, y1 := g.node(i+1, j+1)
			edge := func(e int) [2]float64 {
				frac := func(a, b float64) float64 { return (t - a) / (b - a) }
				switch e {
				case 0:
					return [2]float64{x0 + frac(v[0], v[1])*(x1-x0), y0}
				case 1:
					return [2]float64{x1, y0 + frac(v[1], v[2])*(y1-y0)}
				case 2:
					return [2]float64{x0 + frac(v[3], v[2])*(x1-x0), y1}
				}
				return [2]float64{x0, y0 + frac(v[0], v[3])*(y1-y0)}
			}

			pairs := squareSegments[idx]
			center := (v[0] + v[1] + v[2] + v[3]) / 4
			switch {
			case idx == 5 && center > t, idx == 10 && center <= t:
				pairs = [][2]int{{0, 1}, {2, 3}}
			case idx == 5, idx == 10:
				pairs = [][2]int{{3, 0}, {1, 2}}
			}
			for _, p := range pairs {
				segs = append(segs, [2][2]float64{edge(p[0]), edge(p[1])})
			}
		}
	}
	return segs
}

// fieldImage samples fn over the viewport area. fn receives data or
// geographic coordinates; pixels it declines stay transparent.
func (f *figure) fieldImage(v viewport, fn func(x, y float64) (color.NRGBA, bool)) (*image.NRGBA, error) {
	w, h := v.area.W(), v.area.H()
	scale := 1.0
	if m := math.Max(w, h); m > maxField {
		scale = maxField / m
	}
	iw := int(math.Max(1, math.Round(w*scale)))
	ih := int(math.Max(1, math.Round(h*scale)))

	img := image.NewNRGBA(image.Rect(0, 0, iw, ih))
	for py := 0; py < ih; py++ {
		if py%64 == 0 {
			if err := f.checkpoint(); err != nil {
				return nil, err
			}
		}
		for px := 0; px < iw; px++ {
			p := Point{
				X: v.area.MinX + (float64(px)+0.5)/float64(iw)*w,
				Y: v.area.MinY + (float64(py)+0.5)/float64(ih)*h,
			}
			x, y, ok := v.unproject(p)
			if !ok {
				continue
			}
			if c, ok := fn(x, y); ok {
				img.SetNRGBA(px, py, c)
			}
		}
	}
	return img, nil
}

// fieldDomain is the extent for maps and the padded data range otherwise.
func (f *figure) fieldDomain() (x0, y0, x1, y1 float64) {
	if f.p.mapped() {
		e := f.p.extent
		return e.MinLon, e.MinLat, e.MaxLon, e.MaxLat
	}
	x0, y0, x1, y1 = xyRange(f.records)
	x0, x1 = padRange(x0, x1, 0.05)
	y0, y1 = padRange(y0, y1, 0.05)
	return
}

// fieldFrame draws the basemap or the axes under a field and returns the
// layout and viewport.
func (f *figure) fieldFrame(x0, y0, x1, y1 float64) (layout, viewport, error) {
	if f.p.mapped() {
		l, v := f.mapFrame(72)
		return l, v, f.basemap(v, nil)
	}
	l, v := f.cartesianFrame(x0, y0, x1, y1, 72)
	cartesianAxes(f.s, l, v, f.p.style, clipTicks(niceTicks(x0, x1, 6), x0, x1), clipTicks(niceTicks(y0, y1, 6), y0, y1), nil)
	return l, v, nil
}

func (f *figure) drawContour() error {
	st := f.p.style
	x0, y0, x1, y1 := f.fieldDomain()
	l, v, err := f.fieldFrame(x0, y0, x1, y1)
	if err != nil {
		return err
	}
	defer drawTitle(f.s, l, st.Title)

	lo, hi, ok := valueRange(f.records)
	if !ok {
		f.warnf("no records to contour")
		return nil
	}
	g := idwLattice(f.records, x0, y0, x1, y1, contourNX, contourNY)

	alpha := 1.0
	if f.p.mapped() {
		alpha = st.Alpha
	}
	levels := st.Levels
	bands, err := f.fieldImage(v, func(x, y float64) (color.NRGBA, bool) {
		val, ok := g.sample(x, y)
		if !ok {
			return color.NRGBA{}, false
		}
		band := int(normalize(val, lo, hi) * float64(levels))
		band = max(0, min(levels-1, band))
		return plot.WithAlpha(f.p.cmap.At((float64(band)+0.5)/float64(levels)), alpha), true
	})
	if err != nil {
		return err
	}

	f.s.PushClip(v.area)
	f.s.Image(v.area, bands)
	if hi > lo {
		var lines [][]Point
		for k := 1; k < levels; k++ {
			t := lo + float64(k)*(hi-lo)/float64(levels)
			for _, seg := range isolines(g, t) {
				lines = append(lines, []Point{v.project(seg[0][0], seg[0][1]), v.project(seg[1][0], seg[1][1])})
			}
		}
		f.s.Stroke(lines, 0.8, false, isolineColor)
	}
	f.s.PopClip()

	if !l.compact {
		colorbar(f.s, l.right, f.p.cmap, lo, hi, "value")
	}
	return nil
}

func (f *figure) drawRasterOverlay() error {
	st := f.p.style
	x0, y0, x1, y1 := f.fieldDomain()
	l, v, err := f.fieldFrame(x0, y0, x1, y1)
	if err != nil {
		return err
	}
	defer drawTitle(f.s, l, st.Title)

	nx := 200
	if f.p.mapped() {
		nx = 360
	}
	ny := int(math.Round(float64(nx) * v.area.H() / v.area.W()))
	ny = max(20, min(360, ny))

	counts := make([]float64, nx*ny)
	peak := 0.0
	for _, r := range f.records {
		if r.X < x0 || r.X > x1 || r.Y < y0 || r.Y > y1 {
			continue
		}
		col := min(nx-1, int((r.X-x0)/(x1-x0)*float64(nx)))
		row := min(ny-1, int((y1-r.Y)/(y1-y0)*float64(ny)))
		w := 1.0
		if r.HasValue && r.Value > 0 {
			w = r.Value
		}
		counts[row*nx+col] += w
		peak = math.Max(peak, counts[row*nx+col])
	}
	if peak == 0 {
		f.warnf("no records inside the plotted area")
		return nil
	}

	gray := image.NewGray(image.Rect(0, 0, nx, ny))
	for k, c := range counts {
		gray.Pix[(k/nx)*gray.Stride+k%nx] = uint8(math.Round(255 * math.Sqrt(c/peak)))
	}
	sigma := st.Radius * float64(nx) / v.area.W()
	sigma = math.Max(0.5, math.Min(50, sigma))
	smooth := imaging.Resize(blur.Gaussian(gray, sigma), nx*4, ny*4, imaging.Linear)

	top := uint8(0)
	for i := 0; i < len(smooth.Pix); i += 4 {
		if smooth.Pix[i] > top {
			top = smooth.Pix[i]
		}
	}
	if top == 0 {
		f.warnf("density vanished after smoothing; try a smaller radius")
		return nil
	}

	sw, sh := smooth.Bounds().Dx(), smooth.Bounds().Dy()
	heat, err := f.fieldImage(v, func(x, y float64) (color.NRGBA, bool) {
		if x < x0 || x > x1 || y < y0 || y > y1 {
			return color.NRGBA{}, false
		}
		px := min(sw-1, int((x-x0)/(x1-x0)*float64(sw)))
		py := min(sh-1, int((y1-y)/(y1-y0)*float64(sh)))
		t := float64(smooth.Pix[py*smooth.Stride+px*4]) / float64(top)
		if t < 0.02 {
			return color.NRGBA{}, false
		}
		return plot.WithAlpha(f.p.cmap.At(t), t*st.Alpha), true
	})
	if err != nil {
		return err
	}

	f.s.PushClip(v.area)
	f.s.Image(v.area, heat)
	f.s.PopClip()

	if !l.compact {
		colorbar(f.s, l.right, f.p.cmap, 0, 1, "density")
	}
	return nil
}

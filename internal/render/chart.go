package render

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/refdata"
)

// maxPointLabels bounds how many record labels a scatter or map draws.
const maxPointLabels = 200

// figure carries one render through the drawing steps.
type figure struct {
	ctx      context.Context
	s        Surface
	p        *figurePlan
	records  []plot.Record
	datasets []*refdata.Dataset
	warnings []string
}

func (f *figure) warnf(format string, args ...any) {
	f.warnings = append(f.warnings, fmt.Sprintf(format, args...))
}

// checkpoint returns the context error once the render is abandoned.
func (f *figure) checkpoint() error {
	return f.ctx.Err()
}

// draw renders the whole figure onto the surface.
func (f *figure) draw() error {
	switch f.p.kind {
	case plot.Scatter:
		return f.drawScatter()
	case plot.Line:
		return f.drawLine()
	case plot.Bar:
		return f.drawBar()
	case plot.Pie:
		return f.drawPie()
	case plot.WorldMap:
		return f.drawWorldMap()
	case plot.Choropleth:
		return f.drawChoropleth()
	case plot.Contour:
		return f.drawContour()
	case plot.RasterOverlay:
		return f.drawRasterOverlay()
	}
	return fmt.Errorf("no drawing for chart kind %q", f.p.kind)
}

// valueRange returns the range of record values, ok false when none has one.
func valueRange(records []plot.Record) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, r := range records {
		if !r.HasValue {
			continue
		}
		lo, hi = math.Min(lo, r.Value), math.Max(hi, r.Value)
		ok = true
	}
	return
}

func xyRange(records []plot.Record) (x0, y0, x1, y1 float64) {
	if len(records) == 0 {
		return 0, 0, 1, 1
	}
	x0, y0 = math.Inf(1), math.Inf(1)
	x1, y1 = math.Inf(-1), math.Inf(-1)
	for _, r := range records {
		x0, x1 = math.Min(x0, r.X), math.Max(x1, r.X)
		y0, y1 = math.Min(y0, r.Y), math.Max(y1, r.Y)
	}
	return
}

func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

// cartesianFrame lays out a plot with axes and returns the data viewport.
func (f *figure) cartesianFrame(x0, y0, x1, y1 float64, side float64) (layout, viewport) {
	l := newLayout(f.p.width, f.p.height, f.p.style.Title != "", true, side)
	return l, newViewport(cartesian{}, x0, y0, x1, y1, l.area, false)
}

// mapFrame lays out a map and returns the projected viewport.
func (f *figure) mapFrame(side float64) (layout, viewport) {
	l := newLayout(f.p.width, f.p.height, f.p.style.Title != "", false, side)
	x0, y0, x1, y1 := projectedBounds(f.p.proj, f.p.extent)
	return l, newViewport(f.p.proj, x0, y0, x1, y1, l.area, true)
}

// markers draws one marker per record. Records with values are colored
// through the colormap when no explicit color was given.
func (f *figure) markers(v viewport, records []plot.Record, byValue bool, lo, hi float64) error {
	st := f.p.style
	uniform := plot.WithAlpha(f.p.markerColor(), st.Alpha)
	area := v.area.Inset(-st.MarkerSize)

	for i, r := range records {
		if i%4096 == 4095 {
			if err := f.checkpoint(); err != nil {
				return err
			}
		}
		c := uniform
		if byValue && r.HasValue {
			c = plot.WithAlpha(f.p.cmap.At(normalize(r.Value, lo, hi)), st.Alpha)
		}
		pt := v.project(r.X, r.Y)
		if !area.contains(pt) {
			continue
		}
		fill, stroke := markerShape(st.Marker, pt, st.MarkerSize)
		if fill != nil {
			f.s.Fill(fill, c)
		}
		if stroke != nil {
			f.s.Stroke(stroke, math.Max(1.5, st.MarkerSize/5), false, c)
		}
	}

	labeled := 0
	for _, r := range records {
		if r.Label == "" {
			continue
		}
		if labeled == maxPointLabels {
			f.warnf("only the first %d point labels were drawn", maxPointLabels)
			break
		}
		labeled++
		pt := v.project(r.X, r.Y)
		f.s.Text(Point{pt.X + st.MarkerSize/2 + 2, pt.Y - 2}, r.Label, TextStyle{Size: noteSize, Color: foreground})
	}
	return nil
}

// markerShape returns the filled rings or stroked segments of a marker.
func markerShape(marker string, c Point, size float64) (fill, stroke [][]Point) {
	r := size / 2
	switch marker {
	case "s":
		return [][]Point{rectRing(Rect{c.X - r, c.Y - r, c.X + r, c.Y + r})}, nil
	case "^":
		return [][]Point{{{c.X, c.Y - r}, {c.X + r, c.Y + r*0.8}, {c.X - r, c.Y + r*0.8}}}, nil
	case "D":
		return [][]Point{{{c.X, c.Y - r}, {c.X + r, c.Y}, {c.X, c.Y + r}, {c.X - r, c.Y}}}, nil
	case "x":
		return nil, [][]Point{{{c.X - r, c.Y - r}, {c.X + r, c.Y + r}}, {{c.X - r, c.Y + r}, {c.X + r, c.Y - r}}}
	case "+":
		return nil, [][]Point{{{c.X - r, c.Y}, {c.X + r, c.Y}}, {{c.X, c.Y - r}, {c.X, c.Y + r}}}
	}
	n := 16
	if size > 24 {
		n = 32
	}
	return [][]Point{circle(c, r, n)}, nil
}

func (f *figure) drawScatter() error {
	st := f.p.style
	lo, hi, hasValues := valueRange(f.records)
	byValue := hasValues && !f.p.hasAccent

	side := 0.0
	if byValue {
		side = 72
	}
	x0, y0, x1, y1 := xyRange(f.records)
	x0, x1 = padRange(x0, x1, 0.05)
	y0, y1 = padRange(y0, y1, 0.05)
	l, v := f.cartesianFrame(x0, y0, x1, y1, side)

	xt, yt := niceTicks(x0, x1, 6), niceTicks(y0, y1, 6)
	xt, yt = clipTicks(xt, x0, x1), clipTicks(yt, y0, y1)
	cartesianAxes(f.s, l, v, st, xt, yt, nil)

	f.s.PushClip(v.area)
	err := f.markers(v, f.records, byValue, lo, hi)
	f.s.PopClip()
	if err != nil {
		return err
	}

	if byValue && !l.compact {
		colorbar(f.s, l.right, f.p.cmap, lo, hi, "value")
	}
	drawTitle(f.s, l, st.Title)
	return nil
}

func clipTicks(ticks []float64, lo, hi float64) []float64 {
	out := ticks[:0]
	for _, t := range ticks {
		if t >= lo && t <= hi {
			out = append(out, t)
		}
	}
	return out
}

// series groups line records by label in order of first appearance.
type series struct {
	label  string
	points []plot.Record
}

func groupSeries(records []plot.Record) []series {
	var out []series
	index := make(map[string]int)
	for _, r := range records {
		i, ok := index[r.Label]
		if !ok {
			i = len(out)
			index[r.Label] = i
			out = append(out, series{label: r.Label})
		}
		out[i].points = append(out[i].points, r)
	}
	return out
}

func (f *figure) drawLine() error {
	st := f.p.style
	x0, y0, x1, y1 := xyRange(f.records)
	x0, x1 = padRange(x0, x1, 0.02)
	y0, y1 = padRange(y0, y1, 0.05)
	l, v := f.cartesianFrame(x0, y0, x1, y1, 0)

	cartesianAxes(f.s, l, v, st, clipTicks(niceTicks(x0, x1, 6), x0, x1), clipTicks(niceTicks(y0, y1, 6), y0, y1), nil)

	groups := groupSeries(f.records)
	var entries []legendEntry
	f.s.PushClip(v.area)
	for i, g := range groups {
		c := plot.PaletteColor(i)
		if len(groups) == 1 && f.p.hasAccent {
			c = f.p.accent
		}
		pts := make([]Point, len(g.points))
		for j, r := range g.points {
			pts[j] = v.toPixel(r.X, r.Y)
		}
		if len(pts) == 1 {
			f.s.Fill([][]Point{circle(pts[0], st.LineWidth*1.5, 12)}, c)
		} else {
			f.s.Stroke([][]Point{pts}, st.LineWidth, false, c)
		}
		label := g.label
		if label == "" {
			label = "series"
		}
		entries = append(entries, legendEntry{label: label, color: c, line: true})

		if err := f.checkpoint(); err != nil {
			f.s.PopClip()
			return err
		}
	}
	f.s.PopClip()

	if st.Legend && len(groups) > 1 && !l.compact {
		legend(f.s, Rect{}, v.area, entries)
	}
	drawTitle(f.s, l, st.Title)
	return nil
}

func (f *figure) drawBar() error {
	st := f.p.style
	n := len(f.records)

	lo, hi := 0.0, 0.0
	for _, r := range f.records {
		lo, hi = math.Min(lo, r.Y), math.Max(hi, r.Y)
	}
	lo, hi = padRange(lo, hi, 0.05)
	if lo > 0 {
		lo = 0
	}
	l, v := f.cartesianFrame(-0.5, lo, float64(n)-0.5, hi, 0)

	xt := make([]float64, n)
	labels := make([]string, n)
	for i, r := range f.records {
		xt[i] = float64(i)
		switch {
		case r.Label != "":
			labels[i] = r.Label
		default:
			labels[i] = formatTick(r.X)
		}
	}
	yt := clipTicks(niceTicks(lo, hi, 6), lo, hi)
	if n > 60 {
		xt, labels = nil, nil
		f.warnf("%s bars are too many to label", humanize.Comma(int64(n)))
	}
	cartesianAxes(f.s, l, v, st, xt, yt, labels)

	c := plot.PaletteColor(0)
	if f.p.hasAccent {
		c = f.p.accent
	}
	c = plot.WithAlpha(c, math.Max(st.Alpha, 0.85))

	f.s.PushClip(v.area)
	for i, r := range f.records {
		a := v.toPixel(float64(i)-0.4, 0)
		b := v.toPixel(float64(i)+0.4, r.Y)
		f.s.FillRect(Rect{a.X, math.Min(a.Y, b.Y), b.X, math.Max(a.Y, b.Y)}, c)
	}
	zero := v.toPixel(0, 0).Y
	f.s.Stroke([][]Point{{{v.area.MinX, zero}, {v.area.MaxX, zero}}}, 1, false, foreground)
	f.s.PopClip()

	drawTitle(f.s, l, st.Title)
	return nil
}

func (f *figure) drawPie() error {
	st := f.p.style
	side := 0.0
	if st.Legend {
		side = 160
	}
	l := newLayout(f.p.width, f.p.height, st.Title != "", false, side)

	total := 0.0
	for _, r := range f.records {
		total += r.Value
	}

	a := l.area
	radius := math.Min(a.W(), a.H())/2 - 4
	center := Point{(a.MinX + a.MaxX) / 2, (a.MinY + a.MaxY) / 2}

	if total <= 0 {
		f.warnf("pie values sum to zero; nothing to draw")
		f.s.Stroke([][]Point{circle(center, radius, 64)}, 1, true, gridColor)
		drawTitle(f.s, l, st.Title)
		return nil
	}

	var entries []legendEntry
	angle := 0.0
	for i, r := range f.records {
		sweep := r.Value / total * 2 * math.Pi
		c := plot.PaletteColor(i)
		if sweep > 0 {
			f.s.Fill([][]Point{wedge(center, radius, angle, angle+sweep)}, c)
			f.s.Stroke([][]Point{wedge(center, radius, angle, angle+sweep)}, 1, true, wedgeEdgeColor)
		}
		angle += sweep

		label := r.Label
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		pct := humanize.FtoaWithDigits(r.Value/total*100, 1)
		entries = append(entries, legendEntry{label: label + " (" + pct + "%)", color: c})
	}

	if st.Legend && !l.compact {
		legend(f.s, l.right, a, entries)
		if len(entries)*18 > int(l.right.H()) {
			f.warnf("legend truncated to the wedges that fit")
		}
	}
	drawTitle(f.s, l, st.Title)
	return nil
}

func (f *figure) drawWorldMap() error {
	st := f.p.style
	lo, hi, hasValues := valueRange(f.records)
	byValue := hasValues && !f.p.hasAccent
	side := 0.0
	if byValue {
		side = 72
	}
	l, v := f.mapFrame(side)

	if err := f.basemap(v, nil); err != nil {
		return err
	}

	f.s.PushClip(v.area)
	err := f.markers(v, f.records, byValue, lo, hi)
	f.s.PopClip()
	if err != nil {
		return err
	}

	if byValue && !l.compact {
		colorbar(f.s, l.right, f.p.cmap, lo, hi, "value")
	}
	drawTitle(f.s, l, st.Title)
	return nil
}

func (f *figure) drawChoropleth() error {
	st := f.p.style
	lo, hi, _ := valueRange(f.records)
	l, v := f.mapFrame(72)

	fills := make(map[featureRef]color.NRGBA)
	var missing []string
	for _, r := range f.records {
		ref, ok := f.lookupRegion(r.Region)
		if !ok {
			missing = append(missing, r.Region)
			continue
		}
		fills[ref] = plot.WithAlpha(f.p.cmap.At(normalize(r.Value, lo, hi)), math.Max(st.Alpha, 0.9))
	}
	if len(missing) > 0 {
		shown := missing
		if len(shown) > 5 {
			shown = shown[:5]
		}
		f.warnf("%d regions not found in the reference data: %s", len(missing), strings.Join(shown, ", "))
	}

	if err := f.basemap(v, fills); err != nil {
		return err
	}
	if !l.compact && len(f.records) > 0 {
		colorbar(f.s, l.right, f.p.cmap, lo, hi, "value")
	}
	drawTitle(f.s, l, st.Title)
	return nil
}

// lookupRegion searches the polygon datasets for a region name or code.
func (f *figure) lookupRegion(name string) (featureRef, bool) {
	for _, ds := range f.datasets {
		if !ds.Key.Polygonal() {
			continue
		}
		if i, ok := ds.Index(name); ok && len(ds.Feature(i).Polygons) > 0 {
			return featureRef{ds: ds, i: i}, true
		}
	}
	return featureRef{}, false
}

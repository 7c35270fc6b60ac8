package render

import (
	"image/color"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/ironsheep/plotting-mcp/internal/plot"
)

// Font sizes in points (one point per pixel at 72 DPI).
const (
	titleSize = 18
	labelSize = 13
	tickSize  = 11
	noteSize  = 10
)

// niceTicks returns roughly n evenly spaced round values covering [lo, hi].
func niceTicks(lo, hi float64, n int) []float64 {
	if !(hi > lo) || n < 2 {
		return []float64{lo}
	}
	step := niceStep((hi - lo) / float64(n-1))
	start := math.Ceil(lo/step-1e-9) * step
	var ticks []float64
	for v := start; v <= hi+step*1e-9; v += step {
		if math.Abs(v) < step*1e-9 {
			v = 0
		}
		ticks = append(ticks, v)
		if len(ticks) > 50 {
			break
		}
	}
	return ticks
}

// niceStep rounds raw up to 1, 2 or 5 times a power of ten.
func niceStep(raw float64) float64 {
	exp := math.Floor(math.Log10(raw))
	base := math.Pow(10, exp)
	switch f := raw / base; {
	case f <= 1:
		return base
	case f <= 2:
		return 2 * base
	case f <= 5:
		return 5 * base
	}
	return 10 * base
}

// formatTick renders an axis or colorbar value compactly.
func formatTick(v float64) string {
	a := math.Abs(v)
	switch {
	case a == 0:
		return "0"
	case a >= 1e6 || a < 1e-3:
		return strconv.FormatFloat(v, 'g', 3, 64)
	}
	return humanize.FtoaWithDigits(v, 4)
}

// padRange widens [lo, hi] by frac on both sides.
func padRange(lo, hi, frac float64) (float64, float64) {
	lo, hi = widen(lo, hi)
	d := (hi - lo) * frac
	return lo - d, hi + d
}

// layout splits the canvas into the plot area and its decorations.
type layout struct {
	canvas  Rect
	area    Rect
	compact bool
	right   Rect // colorbar or legend column, empty when unused
}

func newLayout(w, h int, title bool, axes bool, sideWidth float64) layout {
	c := Rect{0, 0, float64(w), float64(h)}
	top, left, bottom, right := 16.0, 16.0, 16.0, 16.0
	if title {
		top = 44
	}
	if axes {
		left, bottom = 72, 56
		if !title {
			top = 24
		}
	}
	right += sideWidth

	l := layout{canvas: c, area: Rect{left, top, c.MaxX - right, c.MaxY - bottom}}
	if l.area.W() < 48 || l.area.H() < 48 {
		return layout{canvas: c, area: c.Inset(1), compact: true}
	}
	if sideWidth > 0 {
		l.right = Rect{l.area.MaxX + 16, top, c.MaxX - 16, l.area.MaxY}
	}
	return l
}

// drawTitle centers the title above the plot area.
func drawTitle(s Surface, l layout, title string) {
	if title == "" || l.compact {
		return
	}
	s.Text(Point{l.canvas.W() / 2, 30}, title, TextStyle{Size: titleSize, Color: foreground, Anchor: AnchorMiddle})
}

// cartesianAxes draws the frame, grid, ticks and axis labels.
func cartesianAxes(s Surface, l layout, v viewport, style plot.Style, xTicks, yTicks []float64, xLabels []string) {
	if l.compact {
		return
	}
	a := v.area

	if style.Grid {
		var grid [][]Point
		for _, t := range xTicks {
			x := v.toPixel(t, 0).X
			grid = append(grid, []Point{{x, a.MinY}, {x, a.MaxY}})
		}
		for _, t := range yTicks {
			y := v.toPixel(0, t).Y
			grid = append(grid, []Point{{a.MinX, y}, {a.MaxX, y}})
		}
		s.Stroke(grid, 0.5, false, gridColor)
	}
	s.Stroke([][]Point{rectRing(a)}, 1, true, foreground)

	ts := TextStyle{Size: tickSize, Color: foreground, Anchor: AnchorMiddle}
	var marks [][]Point
	lastEnd := math.Inf(-1)
	for i, t := range xTicks {
		x := v.toPixel(t, 0).X
		marks = append(marks, []Point{{x, a.MaxY}, {x, a.MaxY + 4}})
		label := formatTick(t)
		if xLabels != nil {
			label = xLabels[i]
		}
		// skip labels that would overlap the previous one
		w := s.TextWidth(label, tickSize)
		if x-w/2 < lastEnd+4 {
			continue
		}
		lastEnd = x + w/2
		s.Text(Point{x, a.MaxY + 18}, label, ts)
	}
	ts.Anchor = AnchorEnd
	for _, t := range yTicks {
		y := v.toPixel(0, t).Y
		marks = append(marks, []Point{{a.MinX - 4, y}, {a.MinX, y}})
		s.Text(Point{a.MinX - 7, y + 4}, formatTick(t), ts)
	}
	s.Stroke(marks, 1, false, foreground)

	if style.XLabel != "" {
		s.Text(Point{(a.MinX + a.MaxX) / 2, a.MaxY + 40}, style.XLabel,
			TextStyle{Size: labelSize, Color: foreground, Anchor: AnchorMiddle})
	}
	if style.YLabel != "" {
		s.Text(Point{l.canvas.MinX + 20, (a.MinY + a.MaxY) / 2}, style.YLabel,
			TextStyle{Size: labelSize, Color: foreground, Anchor: AnchorMiddle, Vertical: true})
	}
}

// colorbar draws a vertical ramp for [lo, hi] in r.
func colorbar(s Surface, r Rect, cmap plot.Colormap, lo, hi float64, label string) {
	if r.empty() {
		return
	}
	bar := Rect{r.MinX, r.MinY + 8, r.MinX + 16, r.MaxY - 8}
	const slices = 64
	h := bar.H() / slices
	for i := 0; i < slices; i++ {
		t := (float64(i) + 0.5) / slices
		y := bar.MaxY - float64(i+1)*h
		s.FillRect(Rect{bar.MinX, y, bar.MaxX, y + h + 0.5}, cmap.At(t))
	}
	s.Stroke([][]Point{rectRing(bar)}, 0.75, true, foreground)

	lo, hi = widen(lo, hi)
	ts := TextStyle{Size: noteSize, Color: foreground}
	for _, t := range niceTicks(lo, hi, 5) {
		y := bar.MaxY - (t-lo)/(hi-lo)*bar.H()
		s.Stroke([][]Point{{{bar.MaxX, y}, {bar.MaxX + 3, y}}}, 0.75, false, foreground)
		s.Text(Point{bar.MaxX + 5, y + 3.5}, formatTick(t), ts)
	}
	if label != "" {
		s.Text(Point{bar.MinX, r.MinY}, label, ts)
	}
}

type legendEntry struct {
	label string
	color color.NRGBA
	line  bool
}

// legend draws entries stacked from the top of r, or inside the plot area's
// top-right corner when r is empty.
func legend(s Surface, r Rect, area Rect, entries []legendEntry) {
	if len(entries) == 0 {
		return
	}
	const row = 18.0
	inside := r.empty()
	if inside {
		w := 0.0
		for _, e := range entries {
			w = math.Max(w, s.TextWidth(e.label, noteSize))
		}
		w += 36
		r = Rect{area.MaxX - w - 8, area.MinY + 8, area.MaxX - 8, area.MinY + 8 + row*float64(len(entries)) + 8}
		s.FillRect(r, color.NRGBA{R: 255, G: 255, B: 255, A: 0xdd})
		s.Stroke([][]Point{rectRing(r)}, 0.75, true, gridColor)
	}

	y := r.MinY + 8
	for _, e := range entries {
		if y+row > r.MaxY+1 && !inside {
			break
		}
		sw := Rect{r.MinX + 6, y + 3, r.MinX + 20, y + 13}
		if e.line {
			s.Stroke([][]Point{{{sw.MinX, y + 8}, {sw.MaxX, y + 8}}}, 2, false, e.color)
		} else {
			s.FillRect(sw, e.color)
		}
		s.Text(Point{sw.MaxX + 6, y + 12}, e.label, TextStyle{Size: noteSize, Color: foreground})
		y += row
	}
}

package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	svg "github.com/ajstarks/svgo"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
)

// svgSurface emits vector elements. Text is measured with the backend's
// faces so layout matches the raster output.
type svgSurface struct {
	b      *Backend
	w, h   int
	buf    bytes.Buffer
	canvas *svg.SVG
	clips  int
	open   int
	err    error
}

func newSVGSurface(b *Backend, w, h int, bg color.NRGBA) *svgSurface {
	s := &svgSurface{b: b, w: w, h: h}
	s.canvas = svg.New(&s.buf)
	s.canvas.Start(w, h, `version="1.1"`, fmt.Sprintf(`viewBox="0 0 %d %d"`, w, h))
	s.FillRect(Rect{0, 0, float64(w), float64(h)}, bg)
	return s
}

func (s *svgSurface) Size() (int, int) { return s.w, s.h }

// PushClip opens a group clipped to r. Coordinates stay fractional, so the
// clip rectangle is written as a path.
func (s *svgSurface) PushClip(r Rect) {
	s.clips++
	id := "clip" + strconv.Itoa(s.clips)
	s.canvas.ClipPath(`id="` + id + `"`)
	s.canvas.Path(rectPath(r))
	s.canvas.ClipEnd()
	s.canvas.Group(`clip-path="url(#` + id + `)"`)
	s.open++
}

func (s *svgSurface) PopClip() {
	if s.open > 0 {
		s.canvas.Gend()
		s.open--
	}
}

func (s *svgSurface) FillRect(r Rect, c color.NRGBA) {
	if c.A == 0 {
		return
	}
	s.canvas.Path(rectPath(r), paint("fill", c)...)
}

func (s *svgSurface) Fill(rings [][]Point, c color.NRGBA) {
	if c.A == 0 {
		return
	}
	d := pathData(rings, true)
	if d == "" {
		return
	}
	s.canvas.Path(d, append([]string{`fill-rule="nonzero"`}, paint("fill", c)...)...)
}

func (s *svgSurface) Stroke(paths [][]Point, width float64, closed bool, c color.NRGBA) {
	if c.A == 0 {
		return
	}
	d := pathData(paths, closed)
	if d == "" {
		return
	}
	attrs := []string{
		`fill="none"`,
		`stroke-width="` + num(width) + `"`,
		`stroke-linejoin="round"`,
		`stroke-linecap="round"`,
	}
	s.canvas.Path(d, append(attrs, paint("stroke", c)...)...)
}

func (s *svgSurface) TextWidth(str string, size float64) float64 {
	return float64(font.MeasureString(s.b.face(size), str)) / 64
}

func (s *svgSurface) Text(p Point, str string, ts TextStyle) {
	if str == "" || ts.Color.A == 0 {
		return
	}
	anchor := "start"
	switch ts.Anchor {
	case AnchorMiddle:
		anchor = "middle"
	case AnchorEnd:
		anchor = "end"
	}
	x, y := int(math.Round(p.X)), int(math.Round(p.Y))
	attrs := []string{
		`font-family="Go, sans-serif"`,
		`font-size="` + num(ts.Size) + `"`,
		`text-anchor="` + anchor + `"`,
	}
	attrs = append(attrs, paint("fill", ts.Color)...)
	if ts.Vertical {
		attrs = append(attrs, fmt.Sprintf(`transform="rotate(-90 %d %d)"`, x, y))
	}
	s.canvas.Text(x, y, str, attrs...)
}

func (s *svgSurface) Image(r Rect, img image.Image) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		if s.err == nil {
			s.err = fmt.Errorf("embedding image: %w", err)
		}
		return
	}
	x, y := int(math.Floor(r.MinX)), int(math.Floor(r.MinY))
	w, h := int(math.Ceil(r.MaxX))-x, int(math.Ceil(r.MaxY))-y
	s.canvas.Image(x, y, w, h, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(buf.Bytes()),
		`preserveAspectRatio="none"`)
}

// Bytes closes any open groups and returns the document. The surface is
// finished afterwards.
func (s *svgSurface) Bytes() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	for s.open > 0 {
		s.PopClip()
	}
	s.canvas.End()
	return s.buf.Bytes(), nil
}

func rectPath(r Rect) string {
	return "M" + num(r.MinX) + " " + num(r.MinY) +
		"H" + num(r.MaxX) + "V" + num(r.MaxY) + "H" + num(r.MinX) + "Z"
}

func pathData(rings [][]Point, closed bool) string {
	var b bytes.Buffer
	for _, ring := range rings {
		if len(ring) < 2 {
			continue
		}
		b.WriteString("M")
		for i, p := range ring {
			if i > 0 {
				b.WriteString("L")
			}
			b.WriteString(num(p.X))
			b.WriteByte(' ')
			b.WriteString(num(p.Y))
		}
		if closed {
			b.WriteString("Z")
		}
	}
	return b.String()
}

// paint renders a color attribute with its opacity.
func paint(attr string, c color.NRGBA) []string {
	out := []string{fmt.Sprintf(`%s="#%02x%02x%02x"`, attr, c.R, c.G, c.B)}
	if c.A < 255 {
		out = append(out, attr+`-opacity="`+strconv.FormatFloat(float64(c.A)/255, 'f', 3, 64)+`"`)
	}
	return out
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

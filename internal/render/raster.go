package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// rasterSurface draws anti-aliased geometry into an RGBA canvas using the
// backend's rasterizer and faces.
type rasterSurface struct {
	b     *Backend
	img   *image.RGBA
	clips []Rect
}

func newRasterSurface(b *Backend, w, h int, bg color.NRGBA) *rasterSurface {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return &rasterSurface{b: b, img: img}
}

func (s *rasterSurface) Size() (int, int) {
	return s.img.Bounds().Dx(), s.img.Bounds().Dy()
}

func (s *rasterSurface) clip() Rect {
	w, h := s.Size()
	r := Rect{0, 0, float64(w), float64(h)}
	if len(s.clips) > 0 {
		r = r.intersect(s.clips[len(s.clips)-1])
	}
	return r
}

func (s *rasterSurface) PushClip(r Rect) {
	s.clips = append(s.clips, s.clip().intersect(r))
}

func (s *rasterSurface) PopClip() {
	if len(s.clips) > 0 {
		s.clips = s.clips[:len(s.clips)-1]
	}
}

func (s *rasterSurface) FillRect(r Rect, c color.NRGBA) {
	s.Fill([][]Point{rectRing(r)}, c)
}

func (s *rasterSurface) Fill(rings [][]Point, c color.NRGBA) {
	if c.A == 0 {
		return
	}
	cl := s.clip()
	if cl.empty() {
		return
	}

	clipped := make([][]Point, 0, len(rings))
	for _, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		if r := clipRing(ring, cl); r != nil {
			clipped = append(clipped, r)
		}
	}
	if len(clipped) == 0 {
		return
	}

	bb := bounds(clipped)
	x0, y0 := int(math.Floor(bb.MinX)), int(math.Floor(bb.MinY))
	x1, y1 := int(math.Ceil(bb.MaxX)), int(math.Ceil(bb.MaxY))
	if x1 <= x0 || y1 <= y0 {
		return
	}

	z := s.b.z
	z.Reset(x1-x0, y1-y0)
	z.DrawOp = draw.Over
	fx, fy := float64(x0), float64(y0)
	for _, ring := range clipped {
		z.MoveTo(float32(ring[0].X-fx), float32(ring[0].Y-fy))
		for _, p := range ring[1:] {
			z.LineTo(float32(p.X-fx), float32(p.Y-fy))
		}
		z.ClosePath()
	}
	z.Draw(s.img, image.Rect(x0, y0, x1, y1), image.NewUniform(c), image.Point{})
}

func (s *rasterSurface) Stroke(paths [][]Point, width float64, closed bool, c color.NRGBA) {
	width = math.Max(width, 0.75)
	var shapes [][]Point
	for _, p := range paths {
		shapes = append(shapes, strokeOutline(p, width, closed)...)
	}
	s.Fill(shapes, c)
}

func (s *rasterSurface) TextWidth(str string, size float64) float64 {
	return float64(font.MeasureString(s.b.face(size), str)) / 64
}

func (s *rasterSurface) Text(p Point, str string, ts TextStyle) {
	if str == "" || ts.Color.A == 0 {
		return
	}
	face := s.b.face(ts.Size)
	w := s.TextWidth(str, ts.Size)

	if !ts.Vertical {
		x := p.X - anchorOffset(ts.Anchor, w)
		d := &font.Drawer{
			Dst:  s.img,
			Src:  image.NewUniform(ts.Color),
			Face: face,
			Dot:  fixed.P(int(math.Round(x)), int(math.Round(p.Y))),
		}
		d.DrawString(str)
		return
	}

	// Draw horizontally into a scratch image, then turn it.
	m := face.Metrics()
	asc, h := m.Ascent.Ceil(), m.Height.Ceil()
	tw := int(math.Ceil(w))
	if tw <= 0 || h <= 0 {
		return
	}
	tmp := image.NewNRGBA(image.Rect(0, 0, tw, h))
	d := &font.Drawer{Dst: tmp, Src: image.NewUniform(ts.Color), Face: face, Dot: fixed.P(0, asc)}
	d.DrawString(str)
	rot := imaging.Rotate90(tmp)

	left := int(math.Round(p.X)) - asc
	top := int(math.Round(p.Y - w + anchorOffset(ts.Anchor, w)))
	dst := image.Rect(left, top, left+h, top+tw)
	draw.Draw(s.img, dst, rot, image.Point{}, draw.Over)
}

func (s *rasterSurface) Image(r Rect, img image.Image) {
	w, h := int(math.Round(r.W())), int(math.Round(r.H()))
	if w <= 0 || h <= 0 {
		return
	}
	scaled := imaging.Resize(img, w, h, imaging.Linear)

	x0, y0 := int(math.Round(r.MinX)), int(math.Round(r.MinY))
	dst := image.Rect(x0, y0, x0+w, y0+h)
	cl := s.clip()
	dst = dst.Intersect(image.Rect(int(math.Ceil(cl.MinX)), int(math.Ceil(cl.MinY)), int(math.Floor(cl.MaxX)), int(math.Floor(cl.MaxY))))
	if dst.Empty() {
		return
	}
	draw.Draw(s.img, dst, scaled, image.Point{X: dst.Min.X - x0, Y: dst.Min.Y - y0}, draw.Over)
}

// anchorOffset is how far left of the anchor point text of width w starts.
func anchorOffset(a Anchor, w float64) float64 {
	switch a {
	case AnchorMiddle:
		return w / 2
	case AnchorEnd:
		return w
	}
	return 0
}

func rectRing(r Rect) []Point {
	return []Point{{r.MinX, r.MinY}, {r.MaxX, r.MinY}, {r.MaxX, r.MaxY}, {r.MinX, r.MaxY}}
}

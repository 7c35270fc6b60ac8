package render

import (
	"image"
	"image/color"
)

// Anchor is the horizontal alignment of text relative to its position.
type Anchor int

const (
	AnchorStart Anchor = iota
	AnchorMiddle
	AnchorEnd
)

// TextStyle describes how a string is drawn. Y positions are baselines.
type TextStyle struct {
	Size   float64
	Color  color.NRGBA
	Anchor Anchor
	// Vertical rotates the text a quarter turn counter-clockwise.
	Vertical bool
}

// Surface is a drawing target in pixel coordinates. Fill uses the nonzero
// rule; callers orient holes against their outer ring (see orient).
type Surface interface {
	Size() (int, int)
	FillRect(r Rect, c color.NRGBA)
	Fill(rings [][]Point, c color.NRGBA)
	Stroke(paths [][]Point, width float64, closed bool, c color.NRGBA)
	Text(p Point, s string, ts TextStyle)
	TextWidth(s string, size float64) float64
	// Image draws img scaled into r.
	Image(r Rect, img image.Image)
	PushClip(r Rect)
	PopClip()
}

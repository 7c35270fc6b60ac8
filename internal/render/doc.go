// Package render draws validated plot specs and encodes them as PNG, SVG or
// PDF.
//
// A Worker owns one Backend (rasterizer scratch space and font faces) and
// renders one figure at a time; the dispatcher gives each worker its own
// goroutine. Figures are drawn onto a Surface: the raster surface paints
// anti-aliased geometry with golang.org/x/image/vector, the SVG surface
// emits vector elements. Map kinds project reference datasets through one
// of the supported projections before drawing.
package render

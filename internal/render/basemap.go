package render

import (
	"image/color"
	"math"
	"sort"
	"strconv"

	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/refdata"
)

// layerRank orders datasets bottom to top.
func layerRank(name string) int {
	switch name {
	case "land":
		return 0
	case "countries":
		return 1
	case "lakes":
		return 2
	case "rivers":
		return 3
	}
	return 4
}

// featureRef names one feature of a loaded dataset.
type featureRef struct {
	ds *refdata.Dataset
	i  int
}

// basemap draws the ocean, every reference dataset, the graticule and the
// map outline. fills overrides the land color per feature.
func (f *figure) basemap(v viewport, fills map[featureRef]color.NRGBA) error {
	outline := extentOutline(v, f.p.extent)
	f.s.Fill([][]Point{outline}, oceanColor)

	layers := make([]*refdata.Dataset, len(f.datasets))
	copy(layers, f.datasets)
	sort.SliceStable(layers, func(i, j int) bool {
		return layerRank(layers[i].Key.Name) < layerRank(layers[j].Key.Name)
	})

	f.s.PushClip(v.area)
	defer f.s.PopClip()

	for _, ds := range layers {
		if err := f.checkpoint(); err != nil {
			return err
		}
		switch ds.Key.Name {
		case "land", "countries":
			f.fillFeatures(v, ds, f.p.land, fills)
			if ds.Key.Name == "countries" {
				f.strokeFeatures(v, ds, 0.5, f.p.edge)
			}
		case "lakes":
			f.fillFeatures(v, ds, oceanColor, nil)
		case "rivers":
			f.strokeFeatures(v, ds, 0.6, riverColor)
		default:
			f.strokeFeatures(v, ds, 0.8, f.p.edge)
		}
	}

	if f.p.style.Grid {
		graticule(f.s, v, f.p.extent, f.p.proj.Name() != plot.ProjectionMollweide)
	}
	f.s.Stroke([][]Point{outline}, 1, true, foreground)
	return nil
}

// extentOutline traces the boundary of the extent in pixel space.
func extentOutline(v viewport, ext plot.Extent) []Point {
	const steps = 90
	out := make([]Point, 0, 4*steps)
	for i := 0; i < steps; i++ {
		t := float64(i) / steps
		out = append(out, v.project(ext.MinLon+t*(ext.MaxLon-ext.MinLon), ext.MaxLat))
	}
	for i := 0; i < steps; i++ {
		t := float64(i) / steps
		out = append(out, v.project(ext.MaxLon, ext.MaxLat-t*(ext.MaxLat-ext.MinLat)))
	}
	for i := 0; i < steps; i++ {
		t := float64(i) / steps
		out = append(out, v.project(ext.MaxLon-t*(ext.MaxLon-ext.MinLon), ext.MinLat))
	}
	for i := 0; i < steps; i++ {
		t := float64(i) / steps
		out = append(out, v.project(ext.MinLon, ext.MinLat+t*(ext.MaxLat-ext.MinLat)))
	}
	return out
}

// projectPolygon projects and orients one polygon, dropping it when it
// covers less than a pixel.
func projectPolygon(v viewport, poly [][][2]float64) [][]Point {
	rings := make([][]Point, 0, len(poly))
	for _, ring := range poly {
		if len(ring) >= 3 {
			rings = append(rings, v.line(ring))
		}
	}
	if len(rings) == 0 {
		return nil
	}
	if b := bounds(rings[:1]); b.W() < 0.5 && b.H() < 0.5 {
		return nil
	}
	return orient(rings)
}

// fillFeatures fills every polygon of ds. Features with an entry in
// overrides are filled individually with that color; the rest share one
// pass in base.
func (f *figure) fillFeatures(v viewport, ds *refdata.Dataset, base color.NRGBA, overrides map[featureRef]color.NRGBA) {
	var shared [][]Point
	for i := 0; i < ds.Len(); i++ {
		feat := ds.Feature(i)
		c, own := overrides[featureRef{ds: ds, i: i}]
		var rings [][]Point
		for _, poly := range feat.Polygons {
			rings = append(rings, projectPolygon(v, poly)...)
		}
		if len(rings) == 0 {
			continue
		}
		if own {
			f.s.Fill(rings, c)
			continue
		}
		shared = append(shared, rings...)
	}
	f.s.Fill(shared, base)
}

// strokeFeatures outlines polygons and draws lines of ds.
func (f *figure) strokeFeatures(v viewport, ds *refdata.Dataset, width float64, c color.NRGBA) {
	var closed, open [][]Point
	for i := 0; i < ds.Len(); i++ {
		feat := ds.Feature(i)
		for _, poly := range feat.Polygons {
			for _, ring := range poly {
				if len(ring) >= 2 {
					closed = append(closed, v.line(ring))
				}
			}
		}
		for _, line := range feat.Lines {
			if len(line) >= 2 {
				open = append(open, v.line(line))
			}
		}
	}
	if len(closed) > 0 {
		f.s.Stroke(closed, width, true, c)
	}
	if len(open) > 0 {
		f.s.Stroke(open, width, false, c)
	}
}

// graticuleStep picks a line spacing in degrees for a span.
func graticuleStep(span float64) float64 {
	switch {
	case span >= 120:
		return 30
	case span >= 45:
		return 15
	case span >= 20:
		return 10
	case span >= 8:
		return 5
	case span >= 3:
		return 1
	}
	return 0.5
}

// graticule draws meridians and parallels, labeling them along the bottom
// and left edges when labels is set.
func graticule(s Surface, v viewport, ext plot.Extent, labels bool) {
	lonStep := graticuleStep(ext.MaxLon - ext.MinLon)
	latStep := graticuleStep(ext.MaxLat - ext.MinLat)
	const samples = 60

	var lines [][]Point
	var lons, lats []float64
	for lon := math.Ceil(ext.MinLon/lonStep) * lonStep; lon <= ext.MaxLon; lon += lonStep {
		line := make([]Point, 0, samples+1)
		for i := 0; i <= samples; i++ {
			lat := ext.MinLat + float64(i)/samples*(ext.MaxLat-ext.MinLat)
			line = append(line, v.project(lon, lat))
		}
		lines = append(lines, line)
		lons = append(lons, lon)
	}
	for lat := math.Ceil(ext.MinLat/latStep) * latStep; lat <= ext.MaxLat; lat += latStep {
		line := make([]Point, 0, samples+1)
		for i := 0; i <= samples; i++ {
			lon := ext.MinLon + float64(i)/samples*(ext.MaxLon-ext.MinLon)
			line = append(line, v.project(lon, lat))
		}
		lines = append(lines, line)
		lats = append(lats, lat)
	}
	s.Stroke(lines, 0.5, false, gridColor)

	if !labels {
		return
	}
	ts := TextStyle{Size: noteSize, Color: color.NRGBA{R: 0x50, G: 0x50, B: 0x50, A: 0xff}, Anchor: AnchorMiddle}
	for _, lon := range lons {
		p := v.project(lon, ext.MinLat)
		s.Text(Point{p.X, p.Y - 4}, formatDegrees(lon, false), ts)
	}
	ts.Anchor = AnchorStart
	for _, lat := range lats {
		p := v.project(ext.MinLon, lat)
		s.Text(Point{p.X + 4, p.Y - 3}, formatDegrees(lat, true), ts)
	}
}

// formatDegrees renders 30 as "30°E" (or "30°N" for latitudes).
func formatDegrees(v float64, lat bool) string {
	hemi := ""
	switch {
	case v > 0 && lat:
		hemi = "N"
	case v < 0 && lat:
		hemi = "S"
	case v > 0:
		hemi = "E"
	case v < 0:
		hemi = "W"
	}
	return strconv.FormatFloat(math.Abs(v), 'f', -1, 64) + "°" + hemi
}

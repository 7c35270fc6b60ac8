package plot

import (
	"strings"

	"github.com/ironsheep/plotting-mcp/internal/refdata"
)

// ChartKind enumerates the supported chart kinds.
type ChartKind string

const (
	Scatter       ChartKind = "scatter"
	Line          ChartKind = "line"
	Bar           ChartKind = "bar"
	Pie           ChartKind = "pie"
	WorldMap      ChartKind = "worldmap"
	Choropleth    ChartKind = "choropleth"
	Contour       ChartKind = "contour"
	RasterOverlay ChartKind = "raster-overlay"
)

// ChartKinds lists every supported kind in documentation order.
var ChartKinds = []ChartKind{Scatter, Line, Bar, Pie, WorldMap, Choropleth, Contour, RasterOverlay}

// ParseChartKind accepts kind names case-insensitively; "raster_overlay" is
// accepted for raster-overlay.
func ParseChartKind(s string) (ChartKind, bool) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for _, k := range ChartKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// NeedsMap reports whether the kind only makes sense on a map projection.
func (k ChartKind) NeedsMap() bool {
	return k == WorldMap || k == Choropleth
}

// AllowsMap reports whether the kind may be drawn on a map projection.
func (k ChartKind) AllowsMap() bool {
	switch k {
	case Line, Bar, Pie:
		return false
	}
	return true
}

// Format is an output encoding.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
	PDF Format = "pdf"
)

// ParseFormat accepts format names case-insensitively.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case PNG:
		return PNG, true
	case SVG:
		return SVG, true
	case PDF:
		return PDF, true
	}
	return "", false
}

// ContentType returns the MIME type of the encoded output.
func (f Format) ContentType() string {
	switch f {
	case SVG:
		return "image/svg+xml"
	case PDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

// Projection identifiers.
const (
	ProjectionNone            = "none"
	ProjectionEquirectangular = "equirectangular"
	ProjectionMercator        = "mercator"
	ProjectionMollweide       = "mollweide"
)

// Projections lists the accepted projection identifiers.
var Projections = []string{ProjectionNone, ProjectionEquirectangular, ProjectionMercator, ProjectionMollweide}

// ParseProjection normalizes a projection identifier.
func ParseProjection(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "platecarree", "plate_carree", "latlon":
		return ProjectionEquirectangular, true
	case "cartesian", "":
		return ProjectionNone, true
	}
	for _, p := range Projections {
		if p == s {
			return p, true
		}
	}
	return "", false
}

// Record is one data point. Which fields are meaningful depends on the kind:
// choropleth uses Region and Value, pie uses Value and Label, the others X and Y.
type Record struct {
	X        float64
	Y        float64
	Value    float64
	HasValue bool
	Label    string
	Region   string
}

// Style holds the typed styling options.
type Style struct {
	Title  string
	XLabel string
	YLabel string

	// Color is a hex color; empty means the kind's default.
	Color    string
	Colormap string

	MarkerSize float64
	Marker     string
	Alpha      float64
	LineWidth  float64

	Background string
	LandColor  string
	EdgeColor  string

	Levels int
	Radius float64

	Grid   bool
	Legend bool
}

// DefaultStyle returns the styling used when an option is not given.
// Marker defaults follow the original seaborn settings (red circles, alpha 0.7).
func DefaultStyle() Style {
	return Style{
		Colormap:   "viridis",
		MarkerSize: 8,
		Marker:     "o",
		Alpha:      0.7,
		LineWidth:  2,
		Background: "#ffffff",
		LandColor:  "#ebe6d6",
		EdgeColor:  "#5f5f5f",
		Levels:     8,
		Radius:     12,
		Grid:       true,
		Legend:     true,
	}
}

// Extent is a geographic bounding box in degrees.
type Extent struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// World covers the whole globe.
var World = Extent{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90}

// Spec is a validated plot request. Only the Validator builds one and nothing
// mutates it afterwards; accessors hand out copies of slices.
type Spec struct {
	kind       ChartKind
	projection string
	records    []Record
	style      Style
	format     Format
	width      int
	height     int
	datasets   []refdata.Key
	extent     *Extent
}

func (s *Spec) Kind() ChartKind    { return s.kind }
func (s *Spec) Projection() string { return s.projection }
func (s *Spec) Format() Format     { return s.format }
func (s *Spec) Style() Style       { return s.style }
func (s *Spec) NumRecords() int    { return len(s.records) }

// Size returns the output width and height in pixels.
func (s *Spec) Size() (int, int) { return s.width, s.height }

// Pixels returns width*height.
func (s *Spec) Pixels() int { return s.width * s.height }

// Records returns a copy of the data payload.
func (s *Spec) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Datasets returns the reference datasets the plot draws.
func (s *Spec) Datasets() []refdata.Key {
	out := make([]refdata.Key, len(s.datasets))
	copy(out, s.datasets)
	return out
}

// Extent returns the requested map extent, if any.
func (s *Spec) Extent() (Extent, bool) {
	if s.extent == nil {
		return Extent{}, false
	}
	return *s.extent, true
}

package render

import (
	"fmt"
	"image/color"
	"math"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/refdata"
)

// Colors that are not user-configurable.
var (
	oceanColor     = color.NRGBA{R: 0xdc, G: 0xe9, B: 0xf5, A: 0xff}
	riverColor     = color.NRGBA{R: 0x6a, G: 0x9f, B: 0xd4, A: 0xff}
	gridColor      = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x50}
	foreground     = color.NRGBA{R: 0x26, G: 0x26, B: 0x26, A: 0xff}
	defaultMarker  = color.NRGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	isolineColor   = color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0x99}
	wedgeEdgeColor = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// figurePlan is everything about a figure that can be decided before any
// reference data is read or pixel drawn.
type figurePlan struct {
	kind   plot.ChartKind
	format plot.Format
	width  int
	height int
	style  plot.Style
	proj   Projection

	extent    plot.Extent
	hasExtent bool
	datasets  []refdata.Key

	cmap       plot.Colormap
	background color.NRGBA
	land       color.NRGBA
	edge       color.NRGBA
	accent     color.NRGBA
	hasAccent  bool
}

// newPlan checks that the chart kind can be drawn the way it was asked for.
// Failures are render_error: the request is well-formed but not drawable.
func newPlan(spec *plot.Spec) (*figurePlan, error) {
	const op = "render.plan"

	proj, err := NewProjection(spec.Projection())
	if err != nil {
		return nil, perrors.WrapKind(err, perrors.KindRender, op, "cannot build projection")
	}

	kind := spec.Kind()
	switch {
	case proj.Geographic() && !kind.AllowsMap():
		return nil, perrors.Newf(perrors.KindRender, op,
			"chart kind %q cannot be drawn on the %s projection; use projection \"none\"", kind, proj.Name())
	case !proj.Geographic() && kind.NeedsMap():
		return nil, perrors.Newf(perrors.KindRender, op,
			"chart kind %q needs a map projection (equirectangular, mercator or mollweide)", kind)
	}

	p := &figurePlan{
		kind:     kind,
		format:   spec.Format(),
		style:    spec.Style(),
		proj:     proj,
		datasets: spec.Datasets(),
	}
	p.width, p.height = spec.Size()

	if kind == plot.Choropleth {
		polygonal := false
		for _, k := range p.datasets {
			polygonal = polygonal || k.Polygonal()
		}
		if !polygonal {
			return nil, perrors.New(perrors.KindRender, op,
				"choropleth needs a polygon dataset such as countries-low")
		}
	}

	p.extent, p.hasExtent = spec.Extent()
	if proj.Geographic() {
		if !p.hasExtent {
			p.extent = plot.World
		}
		if proj.Name() == plot.ProjectionMercator {
			p.extent.MinLat = math.Max(p.extent.MinLat, -MercatorMaxLat)
			p.extent.MaxLat = math.Min(p.extent.MaxLat, MercatorMaxLat)
		}
	}

	var ok bool
	if p.cmap, ok = plot.LookupColormap(p.style.Colormap); !ok {
		p.cmap, _ = plot.LookupColormap("viridis")
	}

	colors := []struct {
		field string
		value string
		dst   *color.NRGBA
		def   color.NRGBA
	}{
		{"style.background", p.style.Background, &p.background, color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{"style.land_color", p.style.LandColor, &p.land, color.NRGBA{R: 0xeb, G: 0xe6, B: 0xd6, A: 0xff}},
		{"style.edge_color", p.style.EdgeColor, &p.edge, color.NRGBA{R: 0x5f, G: 0x5f, B: 0x5f, A: 0xff}},
	}
	for _, c := range colors {
		*c.dst = c.def
		if c.value == "" {
			continue
		}
		if *c.dst, err = plot.ParseColor(c.value); err != nil {
			return nil, perrors.WrapKind(err, perrors.KindRender, op, fmt.Sprintf("%s is not drawable", c.field))
		}
	}
	if p.style.Color != "" {
		if p.accent, err = plot.ParseColor(p.style.Color); err != nil {
			return nil, perrors.WrapKind(err, perrors.KindRender, op, "style.color is not drawable")
		}
		p.hasAccent = true
	}

	return p, nil
}

// mapped reports whether the figure is drawn on a geographic projection.
func (p *figurePlan) mapped() bool {
	return p.proj.Geographic()
}

// markerColor is the uniform marker color when values do not drive color.
func (p *figurePlan) markerColor() color.NRGBA {
	if p.hasAccent {
		return p.accent
	}
	return defaultMarker
}

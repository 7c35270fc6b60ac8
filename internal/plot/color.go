package plot

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// namedColors covers the matplotlib base and single-letter names.
var namedColors = map[string]string{
	"red": "#d62728", "r": "#ff0000",
	"green": "#2ca02c", "g": "#008000",
	"blue": "#1f77b4", "b": "#0000ff",
	"black": "#000000", "k": "#000000",
	"white": "#ffffff", "w": "#ffffff",
	"cyan": "#17becf", "c": "#00bfbf",
	"magenta": "#e377c2", "m": "#bf00bf",
	"yellow": "#bcbd22", "y": "#bfbf00",
	"orange": "#ff7f0e", "purple": "#9467bd", "brown": "#8c564b",
	"pink": "#f7b6d2", "gray": "#7f7f7f", "grey": "#7f7f7f",
	"navy": "#000080", "teal": "#008080", "olive": "#808000",
}

// ParseColor parses a color name, "#rgb", "#rrggbb" or "#rrggbbaa".
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return color.NRGBA{}, fmt.Errorf("empty color string")
	}
	if hex, ok := namedColors[s]; ok {
		s = hex
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}

	if len(s) == 9 {
		val, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
		}
		return color.NRGBA{R: uint8(val >> 24), G: uint8(val >> 16), B: uint8(val >> 8), A: uint8(val)}, nil
	}

	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// WithAlpha returns c with its alpha scaled by alpha in [0,1].
func WithAlpha(c color.NRGBA, alpha float64) color.NRGBA {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	c.A = uint8(math.Round(float64(c.A) * alpha))
	return c
}

// Colormap maps [0,1] onto a continuous color ramp.
type Colormap struct {
	Name  string
	stops []colorful.Color
}

var colormapStops = map[string][]string{
	"viridis":  {"#440154", "#3b528b", "#21918c", "#5ec962", "#fde725"},
	"plasma":   {"#0d0887", "#7e03a8", "#cc4778", "#f89540", "#f0f921"},
	"magma":    {"#000004", "#51127c", "#b73779", "#fc8961", "#fcfdbf"},
	"inferno":  {"#000004", "#57106e", "#bc3754", "#f98e09", "#fcffa4"},
	"blues":    {"#f7fbff", "#9ecae1", "#4292c6", "#08306b"},
	"reds":     {"#fff5f0", "#fc9272", "#ef3b2c", "#67000d"},
	"greens":   {"#f7fcf5", "#a1d99b", "#41ab5d", "#00441b"},
	"greys":    {"#ffffff", "#bdbdbd", "#636363", "#000000"},
	"ylorrd":   {"#ffffcc", "#fed976", "#fd8d3c", "#e31a1c", "#800026"},
	"coolwarm": {"#3b4cc0", "#8db0fe", "#dddddd", "#f49a7b", "#b40426"},
}

// ColormapNames lists the known colormaps in sorted order.
func ColormapNames() []string {
	names := make([]string, 0, len(colormapStops))
	for name := range colormapStops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupColormap returns the named colormap.
func LookupColormap(name string) (Colormap, bool) {
	hexes, ok := colormapStops[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Colormap{}, false
	}
	stops := make([]colorful.Color, len(hexes))
	for i, h := range hexes {
		stops[i], _ = colorful.Hex(h)
	}
	return Colormap{Name: strings.ToLower(name), stops: stops}, true
}

// At returns the color at t, clamped to [0,1]. NaN maps to the lowest stop.
func (m Colormap) At(t float64) color.NRGBA {
	if len(m.stops) == 0 {
		return color.NRGBA{A: 255}
	}
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	pos := t * float64(len(m.stops)-1)
	i := int(pos)
	if i >= len(m.stops)-1 {
		i = len(m.stops) - 2
	}
	if i < 0 {
		i = 0
	}
	var c colorful.Color
	if len(m.stops) == 1 {
		c = m.stops[0]
	} else {
		c = m.stops[i].BlendLab(m.stops[i+1], pos-float64(i)).Clamped()
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// Palette is the categorical palette used for series, bars and wedges.
var Palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// PaletteColor returns the i-th categorical color, cycling.
func PaletteColor(i int) color.NRGBA {
	if i < 0 {
		i = -i
	}
	c, _ := ParseColor(Palette[i%len(Palette)])
	return c
}

package plot

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
)

// Markers lists the accepted marker shapes (matplotlib codes).
var Markers = []string{"o", "s", "^", "D", "x", "+"}

// decodeStyle type-checks every styling option. Unknown options are rejected.
func decodeStyle(raw json.RawMessage) (Style, error) {
	st := DefaultStyle()

	var opts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &opts); err != nil {
		return st, perrors.Validation("style", "must be an object of styling options")
	}

	names := make([]string, 0, len(opts))
	for name := range opts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := opts[name]
		if isNull(r) {
			continue
		}
		field := "style." + name

		var err error
		switch strings.ToLower(name) {
		case "title":
			st.Title, err = stringValue(field, r)
		case "xlabel":
			st.XLabel, err = stringValue(field, r)
		case "ylabel":
			st.YLabel, err = stringValue(field, r)
		case "color", "c":
			st.Color, err = colorValue(field, r)
		case "background":
			st.Background, err = colorValue(field, r)
		case "land_color":
			st.LandColor, err = colorValue(field, r)
		case "edge_color":
			st.EdgeColor, err = colorValue(field, r)
		case "colormap", "cmap":
			var s string
			if s, err = stringValue(field, r); err == nil {
				if _, ok := LookupColormap(s); !ok {
					err = perrors.Validationf(field, "unknown colormap %q (supported: %s)", s, strings.Join(ColormapNames(), ", "))
				}
				st.Colormap = strings.ToLower(s)
			}
		case "size":
			st.MarkerSize, err = rangeValue(field, r, 0.5, 200)
		case "s":
			// matplotlib marker area in points^2
			var area float64
			if area, err = rangeValue(field, r, 0.25, 40000); err == nil {
				st.MarkerSize = math.Sqrt(area)
			}
		case "alpha":
			st.Alpha, err = rangeValue(field, r, 0, 1)
		case "marker":
			var s string
			if s, err = stringValue(field, r); err == nil {
				if !validMarker(s) {
					err = perrors.Validationf(field, "unknown marker %q (supported: %s)", s, strings.Join(Markers, " "))
				}
				st.Marker = s
			}
		case "line_width", "linewidth":
			st.LineWidth, err = rangeValue(field, r, 0.1, 50)
		case "levels":
			var f float64
			if f, err = rangeValue(field, r, 2, 32); err == nil {
				if f != math.Trunc(f) {
					err = perrors.Validationf(field, "must be an integer, got %g", f)
				}
				st.Levels = int(f)
			}
		case "radius":
			st.Radius, err = rangeValue(field, r, 1, 200)
		case "grid":
			st.Grid, err = boolValue(field, r)
		case "legend":
			st.Legend, err = boolValue(field, r)
		default:
			err = perrors.Validation(field, "unknown style option")
		}
		if err != nil {
			return st, err
		}
	}

	return st, nil
}

func colorValue(field string, raw json.RawMessage) (string, error) {
	s, err := stringValue(field, raw)
	if err != nil {
		return "", err
	}
	if _, err := ParseColor(s); err != nil {
		return "", perrors.Validation(field, err.Error())
	}
	return s, nil
}

func rangeValue(field string, raw json.RawMessage, lo, hi float64) (float64, error) {
	f, err := numberValue(field, raw)
	if err != nil {
		return 0, err
	}
	if f < lo || f > hi {
		return 0, perrors.Validationf(field, "%g is outside [%g, %g]", f, lo, hi)
	}
	return f, nil
}

func validMarker(m string) bool {
	for _, v := range Markers {
		if v == m {
			return true
		}
	}
	return false
}

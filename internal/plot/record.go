package plot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
)

// Column aliases shared by object records and CSV headers.
var (
	xAliases      = []string{"x", "lon", "lng", "long", "longitude"}
	yAliases      = []string{"y", "lat", "latitude"}
	valueAliases  = []string{"value", "val", "z", "count", "weight"}
	labelAliases  = []string{"label", "name", "category"}
	regionAliases = []string{"region", "country", "iso_a3", "iso"}
)

// rawRecord is a record before the per-kind requirements are applied.
type rawRecord struct {
	x, y, value   *float64
	xName, yName  string
	label, region string
}

// finishRecord applies the field requirements of kind to r.
// path names the record in error messages (e.g. "records[3]").
func finishRecord(kind ChartKind, mapped bool, path string, r rawRecord) (Record, error) {
	xName, yName := r.xName, r.yName
	if xName == "" {
		xName = "x"
		if mapped {
			xName = "lon"
		}
	}
	if yName == "" {
		yName = "y"
		if mapped {
			yName = "lat"
		}
	}

	missing := func(name string) error {
		return perrors.Validation(path+"."+name, "required field is missing")
	}

	var rec Record
	rec.Label = r.label
	rec.Region = r.region
	if r.value != nil {
		rec.Value, rec.HasValue = *r.value, true
	}

	switch kind {
	case Scatter, Line, WorldMap, RasterOverlay, Contour:
		if r.x == nil {
			return Record{}, missing(xName)
		}
		if r.y == nil {
			return Record{}, missing(yName)
		}
		rec.X, rec.Y = *r.x, *r.y
		if kind == Contour && r.value == nil {
			return Record{}, missing("value")
		}
	case Bar:
		switch {
		case r.y != nil:
			rec.Y = *r.y
		case r.value != nil:
			rec.Y = *r.value
		default:
			return Record{}, missing(yName)
		}
		if r.x != nil {
			rec.X = *r.x
		}
	case Pie:
		switch {
		case r.value != nil:
		case r.y != nil:
			rec.Value, rec.HasValue = *r.y, true
		default:
			return Record{}, missing("value")
		}
		if rec.Value < 0 {
			return Record{}, perrors.Validationf(path+".value", "pie values must not be negative, got %g", rec.Value)
		}
	case Choropleth:
		if rec.Region == "" {
			rec.Region = r.label
		}
		if rec.Region == "" {
			return Record{}, missing("region")
		}
		if r.value == nil {
			return Record{}, missing("value")
		}
	}

	if mapped && kind != Choropleth {
		if rec.Y < -90 || rec.Y > 90 {
			return Record{}, perrors.Validationf(path+"."+yName, "latitude %g is outside [-90, 90]", rec.Y)
		}
		if rec.X < -360 || rec.X > 360 {
			return Record{}, perrors.Validationf(path+"."+xName, "longitude %g is outside [-360, 360]", rec.X)
		}
	}

	return rec, nil
}

// decodeRecord decodes one element of the records array: an object with
// aliased keys, or a numeric tuple [x, y] / [x, y, value].
func decodeRecord(path string, raw json.RawMessage) (rawRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return rawRecord{}, perrors.Validation(path, "must be an object or an array of numbers")
	}

	switch raw[0] {
	case '[':
		var tuple []json.RawMessage
		if err := json.Unmarshal(raw, &tuple); err != nil {
			return rawRecord{}, perrors.Validation(path, "must be an array of numbers")
		}
		if len(tuple) < 2 || len(tuple) > 3 {
			return rawRecord{}, perrors.Validationf(path, "tuple records need 2 or 3 numbers, got %d", len(tuple))
		}
		var r rawRecord
		slots := []**float64{&r.x, &r.y, &r.value}
		for i, elem := range tuple {
			v, present, err := numberField(elem)
			if err != nil || !present {
				return rawRecord{}, perrors.Validationf(fmt.Sprintf("%s[%d]", path, i), "must be a number, got %s", preview(elem))
			}
			*slots[i] = &v
		}
		return r, nil

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return rawRecord{}, perrors.Validation(path, "must be an object or an array of numbers")
		}
		fields := make(map[string]json.RawMessage, len(obj))
		for k, v := range obj {
			fields[strings.ToLower(strings.TrimSpace(k))] = v
		}

		var r rawRecord
		var err error
		if r.x, r.xName, err = aliasNumber(path, fields, xAliases); err != nil {
			return rawRecord{}, err
		}
		if r.y, r.yName, err = aliasNumber(path, fields, yAliases); err != nil {
			return rawRecord{}, err
		}
		if r.value, _, err = aliasNumber(path, fields, valueAliases); err != nil {
			return rawRecord{}, err
		}
		if r.label, err = aliasString(path, fields, labelAliases); err != nil {
			return rawRecord{}, err
		}
		if r.region, err = aliasString(path, fields, regionAliases); err != nil {
			return rawRecord{}, err
		}
		return r, nil
	}

	return rawRecord{}, perrors.Validation(path, "must be an object or an array of numbers")
}

func aliasNumber(path string, fields map[string]json.RawMessage, aliases []string) (*float64, string, error) {
	for _, name := range aliases {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, present, err := numberField(raw)
		if err != nil {
			return nil, name, perrors.Validationf(path+"."+name, "must be a number, got %s", preview(raw))
		}
		if !present {
			continue
		}
		return &v, name, nil
	}
	return nil, "", nil
}

func aliasString(path string, fields map[string]json.RawMessage, aliases []string) (string, error) {
	for _, name := range aliases {
		raw, ok := fields[name]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			// numeric labels are common in CSV-derived payloads
			var n json.Number
			if err := json.Unmarshal(raw, &n); err != nil {
				return "", perrors.Validationf(path+"."+name, "must be a string, got %s", preview(raw))
			}
			s = n.String()
		}
		return strings.TrimSpace(s), nil
	}
	return "", nil
}

// numberField decodes a JSON number. null is reported as not present.
func numberField(raw json.RawMessage) (float64, bool, error) {
	if isNull(raw) {
		return 0, false, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// preview renders a short excerpt of raw for error messages.
func preview(raw json.RawMessage) string {
	s := string(bytes.TrimSpace(raw))
	if len(s) > 32 {
		s = s[:29] + "..."
	}
	return s
}

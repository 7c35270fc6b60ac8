package plot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
	"github.com/ironsheep/plotting-mcp/internal/refdata"
)

// Output size defaults and the smallest accepted side.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
	MinDimension  = 16
)

// Limits bounds the work a single request may ask for.
type Limits struct {
	MaxRecords    int
	MaxResolution int
}

// Validator turns raw tool arguments into a Spec. It performs no I/O and
// holds no mutable state, so one instance serves all callers.
type Validator struct {
	limits Limits
}

// NewValidator creates a Validator enforcing limits.
func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Limits returns the bounds the validator enforces.
func (v *Validator) Limits() Limits {
	return v.limits
}

// requestFields lists every accepted top-level argument.
var requestFields = map[string]bool{
	"chart_kind": true, "plot_type": true, "projection": true, "format": true,
	"width": true, "height": true, "records": true, "csv_data": true,
	"columns": true, "style": true, "datasets": true, "extent": true,
}

// Validate checks raw and returns the immutable Spec it describes. The error
// is a validation_error naming the first offending field.
func (v *Validator) Validate(raw json.RawMessage) (*Spec, error) {
	if isNull(raw) {
		return nil, perrors.Validation("arguments", "missing plot request")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, perrors.Validation("arguments", "must be a JSON object")
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !requestFields[name] {
			return nil, perrors.Validation(name, "unknown field")
		}
	}

	spec := &Spec{}

	// chart kind
	kindField := "chart_kind"
	kindRaw, ok := present(fields, kindField)
	if !ok {
		if kindRaw, ok = present(fields, "plot_type"); ok {
			kindField = "plot_type"
		}
	}
	if !ok {
		return nil, perrors.Validation("chart_kind", "required field is missing")
	}
	kindName, err := stringValue(kindField, kindRaw)
	if err != nil {
		return nil, err
	}
	kind, ok := ParseChartKind(kindName)
	if !ok {
		return nil, perrors.Validationf(kindField, "unknown chart kind %q (supported: %s)", kindName, joinKinds())
	}
	spec.kind = kind

	// output format
	spec.format = PNG
	if r, ok := present(fields, "format"); ok {
		s, err := stringValue("format", r)
		if err != nil {
			return nil, err
		}
		if spec.format, ok = ParseFormat(s); !ok {
			return nil, perrors.Validationf("format", "unsupported output format %q (supported: png, svg, pdf)", s)
		}
	}

	// projection
	spec.projection = ProjectionNone
	if kind.NeedsMap() {
		spec.projection = ProjectionEquirectangular
	}
	if r, ok := present(fields, "projection"); ok {
		s, err := stringValue("projection", r)
		if err != nil {
			return nil, err
		}
		if spec.projection, ok = ParseProjection(s); !ok {
			return nil, perrors.Validationf("projection", "unknown projection %q (supported: %s)", s, strings.Join(Projections, ", "))
		}
	}
	mapped := spec.projection != ProjectionNone && kind.AllowsMap()

	// resolution
	if spec.width, err = v.dimension(fields, "width", DefaultWidth); err != nil {
		return nil, err
	}
	if spec.height, err = v.dimension(fields, "height", DefaultHeight); err != nil {
		return nil, err
	}

	// styling
	spec.style = DefaultStyle()
	if r, ok := present(fields, "style"); ok {
		if spec.style, err = decodeStyle(r); err != nil {
			return nil, err
		}
	}

	// reference datasets
	if spec.datasets, err = decodeDatasets(kind, fields); err != nil {
		return nil, err
	}

	// extent
	if r, ok := present(fields, "extent"); ok {
		ext, err := decodeExtent(r)
		if err != nil {
			return nil, err
		}
		spec.extent = &ext
	}

	// data payload
	recordsRaw, hasRecords := present(fields, "records")
	csvRaw, hasCSV := present(fields, "csv_data")
	switch {
	case hasRecords && hasCSV:
		return nil, perrors.Validation("records", "cannot be combined with csv_data")
	case hasRecords:
		if spec.records, err = v.decodeRecords(kind, mapped, recordsRaw); err != nil {
			return nil, err
		}
	case hasCSV:
		data, err := stringValue("csv_data", csvRaw)
		if err != nil {
			return nil, err
		}
		cols, err := decodeColumns(fields)
		if err != nil {
			return nil, err
		}
		if spec.records, err = decodeCSV(kind, mapped, data, cols, v.limits.MaxRecords); err != nil {
			return nil, err
		}
	default:
		return nil, perrors.Validation("records", "required field is missing (or provide csv_data)")
	}

	return spec, nil
}

// decodeRecords checks the record-count bound while splitting the array, so
// an oversized payload is rejected before any record is decoded.
func (v *Validator) decodeRecords(kind ChartKind, mapped bool, raw json.RawMessage) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('[') {
		return nil, perrors.Validation("records", "must be an array")
	}

	var elems []json.RawMessage
	for dec.More() {
		if len(elems) >= v.limits.MaxRecords {
			return nil, perrors.Validationf("records", "record count exceeds the maximum of %d", v.limits.MaxRecords)
		}
		var elem json.RawMessage
		if err := dec.Decode(&elem); err != nil {
			return nil, perrors.Validationf("records", "malformed array: %v", err)
		}
		elems = append(elems, elem)
	}

	records := make([]Record, 0, len(elems))
	for i, elem := range elems {
		path := fmt.Sprintf("records[%d]", i)
		rr, err := decodeRecord(path, elem)
		if err != nil {
			return nil, err
		}
		rec, err := finishRecord(kind, mapped, path, rr)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (v *Validator) dimension(fields map[string]json.RawMessage, name string, def int) (int, error) {
	r, ok := present(fields, name)
	if !ok {
		if def > v.limits.MaxResolution {
			return v.limits.MaxResolution, nil
		}
		return def, nil
	}
	f, err := numberValue(name, r)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, perrors.Validationf(name, "must be an integer, got %g", f)
	}
	if f < MinDimension || f > float64(v.limits.MaxResolution) {
		return 0, perrors.Validationf(name, "%g pixels is outside the allowed range [%d, %d]", f, MinDimension, v.limits.MaxResolution)
	}
	return int(f), nil
}

func decodeDatasets(kind ChartKind, fields map[string]json.RawMessage) ([]refdata.Key, error) {
	r, ok := present(fields, "datasets")
	if !ok {
		switch kind {
		case WorldMap:
			return []refdata.Key{refdata.MustParseKey("coastline-low")}, nil
		case Choropleth:
			return []refdata.Key{refdata.MustParseKey("countries-low")}, nil
		}
		return nil, nil
	}

	var names []json.RawMessage
	if err := json.Unmarshal(r, &names); err != nil {
		return nil, perrors.Validation("datasets", "must be an array of dataset keys")
	}

	seen := make(map[refdata.Key]bool, len(names))
	keys := make([]refdata.Key, 0, len(names))
	for i, n := range names {
		field := fmt.Sprintf("datasets[%d]", i)
		s, err := stringValue(field, n)
		if err != nil {
			return nil, err
		}
		key, err := refdata.ParseKey(s)
		if err != nil {
			return nil, perrors.Validation(field, err.Error())
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func decodeExtent(r json.RawMessage) (Extent, error) {
	var vals []json.RawMessage
	if err := json.Unmarshal(r, &vals); err != nil || len(vals) != 4 {
		return Extent{}, perrors.Validation("extent", "must be [min_lon, min_lat, max_lon, max_lat]")
	}
	var nums [4]float64
	for i, raw := range vals {
		f, err := numberValue(fmt.Sprintf("extent[%d]", i), raw)
		if err != nil {
			return Extent{}, err
		}
		nums[i] = f
	}
	ext := Extent{MinLon: nums[0], MinLat: nums[1], MaxLon: nums[2], MaxLat: nums[3]}
	switch {
	case ext.MinLon >= ext.MaxLon:
		return Extent{}, perrors.Validation("extent", "min_lon must be less than max_lon")
	case ext.MinLat >= ext.MaxLat:
		return Extent{}, perrors.Validation("extent", "min_lat must be less than max_lat")
	case ext.MinLon < -180 || ext.MaxLon > 180:
		return Extent{}, perrors.Validation("extent", "longitudes must be within [-180, 180]")
	case ext.MinLat < -90 || ext.MaxLat > 90:
		return Extent{}, perrors.Validation("extent", "latitudes must be within [-90, 90]")
	}
	return ext, nil
}

func decodeColumns(fields map[string]json.RawMessage) (Columns, error) {
	var cols Columns
	r, ok := present(fields, "columns")
	if !ok {
		return cols, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(r, &m); err != nil {
		return cols, perrors.Validation("columns", "must be an object mapping roles to column names")
	}
	targets := map[string]*string{"x": &cols.X, "y": &cols.Y, "value": &cols.Value, "label": &cols.Label, "region": &cols.Region}
	roles := make([]string, 0, len(m))
	for role := range m {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		dst, ok := targets[role]
		if !ok {
			return cols, perrors.Validationf("columns."+role, "unknown column role (supported: x, y, value, label, region)")
		}
		s, err := stringValue("columns."+role, m[role])
		if err != nil {
			return cols, err
		}
		*dst = s
	}
	return cols, nil
}

// present returns the raw value of name unless it is absent or null.
func present(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	r, ok := fields[name]
	if !ok || isNull(r) {
		return nil, false
	}
	return r, true
}

func stringValue(field string, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", perrors.Validationf(field, "must be a string, got %s", preview(raw))
	}
	return s, nil
}

func numberValue(field string, raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, perrors.Validationf(field, "must be a number, got %s", preview(raw))
	}
	return f, nil
}

func boolValue(field string, raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, perrors.Validationf(field, "must be a boolean, got %s", preview(raw))
	}
	return b, nil
}

func joinKinds() string {
	names := make([]string, len(ChartKinds))
	for i, k := range ChartKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

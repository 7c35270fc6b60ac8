package plot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
)

// Columns selects CSV columns by header name. Empty entries are detected
// from the header aliases.
type Columns struct {
	X, Y, Value, Label, Region string
}

// csvLayout holds resolved column indexes (-1 when absent).
type csvLayout struct {
	x, y, value, label, region int
	names                      []string
}

// decodeCSV turns csv_data into records. The row count is checked against
// maxRecords as rows are read.
func decodeCSV(kind ChartKind, mapped bool, data string, cols Columns, maxRecords int) ([]Record, error) {
	r := csv.NewReader(strings.NewReader(data))
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, perrors.Validation("csv_data", "missing header row")
	}
	if err != nil {
		return nil, perrors.Validationf("csv_data", "malformed CSV: %v", err)
	}

	layout, err := resolveColumns(kind, header, cols)
	if err != nil {
		return nil, err
	}

	var records []Record
	for row := 1; ; row++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, perrors.Validationf("csv_data", "malformed CSV at row %d: %v", row, err)
		}
		if len(records) >= maxRecords {
			return nil, perrors.Validationf("csv_data", "record count exceeds the maximum of %d", maxRecords)
		}

		raw, err := layout.rawRecord(kind, row, fields)
		if err != nil {
			return nil, err
		}
		rec, err := finishRecord(kind, mapped, fmt.Sprintf("csv_data row %d", row), raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func resolveColumns(kind ChartKind, header []string, cols Columns) (csvLayout, error) {
	names := make([]string, len(header))
	index := make(map[string]int, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
		key := strings.ToLower(names[i])
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	pick := func(field, explicit string, aliases []string) (int, error) {
		if explicit != "" {
			i, ok := index[strings.ToLower(strings.TrimSpace(explicit))]
			if !ok {
				return -1, perrors.Validationf("columns."+field, "column %q not found in csv_data header", explicit)
			}
			return i, nil
		}
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				return i, nil
			}
		}
		return -1, nil
	}

	l := csvLayout{names: names}
	var err error
	if l.x, err = pick("x", cols.X, xAliases); err != nil {
		return l, err
	}
	if l.y, err = pick("y", cols.Y, yAliases); err != nil {
		return l, err
	}
	if l.value, err = pick("value", cols.Value, valueAliases); err != nil {
		return l, err
	}
	if l.label, err = pick("label", cols.Label, labelAliases); err != nil {
		return l, err
	}
	if l.region, err = pick("region", cols.Region, regionAliases); err != nil {
		return l, err
	}

	// Plain tables without recognizable headers: first column is the
	// category or x value, second the measurement.
	if l.x < 0 && l.y < 0 && len(names) >= 2 {
		switch kind {
		case Line, Scatter, Bar:
			l.x, l.y = 0, 1
		case Pie:
			if l.label < 0 {
				l.label = 0
			}
			if l.value < 0 {
				l.value = 1
			}
		}
	}

	// The label column must not shadow the x column.
	if l.label == l.x {
		l.label = -1
	}
	return l, nil
}

func (l csvLayout) rawRecord(kind ChartKind, row int, fields []string) (rawRecord, error) {
	cell := func(i int) (string, bool) {
		if i < 0 || i >= len(fields) {
			return "", false
		}
		s := strings.TrimSpace(fields[i])
		return s, s != ""
	}
	num := func(i int) (*float64, error) {
		s, ok := cell(i)
		if !ok {
			return nil, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, perrors.Validationf(fmt.Sprintf("csv_data row %d column %q", row, l.names[i]), "not a number: %q", s)
		}
		return &v, nil
	}

	var r rawRecord
	var err error

	if l.x >= 0 {
		r.xName = l.names[l.x]
		if kind == Bar || kind == Pie {
			// categorical axis: keep non-numeric x values as labels
			if s, ok := cell(l.x); ok {
				if v, perr := strconv.ParseFloat(s, 64); perr == nil {
					r.x = &v
				} else {
					r.label = s
				}
			}
		} else if r.x, err = num(l.x); err != nil {
			return r, err
		}
	}
	if l.y >= 0 {
		r.yName = l.names[l.y]
		if r.y, err = num(l.y); err != nil {
			return r, err
		}
	}
	if l.value >= 0 {
		if r.value, err = num(l.value); err != nil {
			return r, err
		}
	}
	if s, ok := cell(l.label); ok {
		r.label = s
	}
	if s, ok := cell(l.region); ok {
		r.region = s
	}
	return r, nil
}

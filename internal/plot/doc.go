// Package plot defines the plot request model and its validator.
//
// A Spec is the validated, immutable form of a render_plot request: chart
// kind, projection, records, styling, output format and resolution, plus the
// reference datasets the chart draws. Validator.Validate is the only way to
// obtain one. It is pure and deterministic, and its failures are
// validation_error values naming the first offending field:
//
//	v := plot.NewValidator(plot.Limits{MaxRecords: 100000, MaxResolution: 4096})
//	spec, err := v.Validate(args)
//
// Records arrive either as a JSON array (objects with x/lon, y/lat, value,
// label and region keys, or numeric tuples) or as csv_data with a header row.
package plot

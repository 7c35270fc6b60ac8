package server

import (
	"strings"

	"github.com/ironsheep/plotting-mcp/internal/plot"
)

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Tool names.
const (
	ToolRenderPlot   = "render_plot"
	ToolGeneratePlot = "generate_plot"
	ToolListDatasets = "list_datasets"
)

func chartKindNames() []string {
	names := make([]string, len(plot.ChartKinds))
	for i, k := range plot.ChartKinds {
		names[i] = string(k)
	}
	return names
}

// styleSchema describes the typed styling options.
func styleSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Styling options. Unknown options are rejected.",
		"properties": map[string]interface{}{
			"title":      map[string]interface{}{"type": "string"},
			"xlabel":     map[string]interface{}{"type": "string"},
			"ylabel":     map[string]interface{}{"type": "string"},
			"color":      map[string]interface{}{"type": "string", "description": "Marker/line color: a name (red, navy) or #rrggbb. Overrides value coloring."},
			"colormap":   map[string]interface{}{"type": "string", "description": "Colormap for values: " + strings.Join(plot.ColormapNames(), ", ")},
			"size":       map[string]interface{}{"type": "number", "description": "Marker size in pixels (default 8)"},
			"s":          map[string]interface{}{"type": "number", "description": "Marker area in points squared (matplotlib style)"},
			"alpha":      map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1, "description": "Marker opacity (default 0.7)"},
			"marker":     map[string]interface{}{"type": "string", "enum": plot.Markers},
			"line_width": map[string]interface{}{"type": "number"},
			"background": map[string]interface{}{"type": "string"},
			"land_color": map[string]interface{}{"type": "string"},
			"edge_color": map[string]interface{}{"type": "string"},
			"levels":     map[string]interface{}{"type": "integer", "minimum": 2, "maximum": 32, "description": "Contour levels (default 8)"},
			"radius":     map[string]interface{}{"type": "number", "description": "Raster-overlay smoothing radius in pixels (default 12)"},
			"grid":       map[string]interface{}{"type": "boolean"},
			"legend":     map[string]interface{}{"type": "boolean"},
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name: ToolRenderPlot,
			Description: "Render a chart or map from structured records and return it as an image. " +
				"Map kinds (worldmap, choropleth) draw reference datasets such as coastline-low or countries-medium. " +
				"Failures report an error_kind: validation_error and render_error mean the request must change, " +
				"overloaded, timeout and data_unavailable may succeed on retry.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"chart_kind": map[string]interface{}{
						"type":        "string",
						"enum":        chartKindNames(),
						"description": "Kind of chart to draw",
					},
					"records": map[string]interface{}{
						"type": "array",
						"description": "Data points: objects with x/y (or lon/lat), value, label, region keys, " +
							"or numeric tuples [x, y] / [x, y, value]",
						"items": map[string]interface{}{},
					},
					"csv_data": map[string]interface{}{
						"type":        "string",
						"description": "CSV text with a header row, used instead of records",
					},
					"columns": map[string]interface{}{
						"type":        "object",
						"description": "CSV column choices for the roles x, y, value, label, region",
					},
					"projection": map[string]interface{}{
						"type":        "string",
						"enum":        plot.Projections,
						"description": "Map projection; map kinds default to equirectangular, others to none",
					},
					"format": map[string]interface{}{
						"type":    "string",
						"enum":    []string{"png", "svg", "pdf"},
						"default": "png",
					},
					"width": map[string]interface{}{
						"type":    "integer",
						"default": plot.DefaultWidth,
					},
					"height": map[string]interface{}{
						"type":    "integer",
						"default": plot.DefaultHeight,
					},
					"datasets": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Reference datasets to draw, e.g. [\"coastline-high\", \"countries-low\"]",
					},
					"extent": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"minItems":    4,
						"maxItems":    4,
						"description": "Map window [min_lon, min_lat, max_lon, max_lat]",
					},
					"style": styleSchema(),
				},
				"required": []string{"chart_kind"},
			},
		},
		{
			Name: ToolGeneratePlot,
			Description: "Generate a plot from CSV data. For line/bar plots json_kwargs may name the x, y and hue columns; " +
				"worldmap reads lat/latitude/y and lon/lng/long/longitude/x columns and accepts s, c, alpha and marker.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"csv_data": map[string]interface{}{
						"type":        "string",
						"description": "CSV data as a string",
					},
					"plot_type": map[string]interface{}{
						"type":        "string",
						"enum":        chartKindNames(),
						"default":     "line",
						"description": "Type of plot to generate",
					},
					"json_kwargs": map[string]interface{}{
						"type":        "string",
						"description": "JSON object with additional parameters, e.g. {\"x\": \"month\", \"y\": \"sales\", \"hue\": \"region\"}",
					},
				},
				"required": []string{"csv_data"},
			},
		},
		{
			Name:        ToolListDatasets,
			Description: "List the reference datasets this server knows, whether each is provisioned and whether it is loaded.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

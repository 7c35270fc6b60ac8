package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
	"github.com/ironsheep/plotting-mcp/internal/render"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "render_plot").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// Content is one item of a tool result.
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Data     string    `json:"data,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`
	Resource *Resource `json:"resource,omitempty"`
}

// Resource is an embedded binary resource.
type Resource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Blob     string `json:"blob"`
}

// ToolResult is the result of a tools/call request.
type ToolResult struct {
	Content           []Content   `json:"content"`
	StructuredContent interface{} `json:"structuredContent,omitempty"`
	IsError           bool        `json:"isError,omitempty"`
}

// ToolError is the structured payload of a failed tool call.
type ToolError struct {
	ErrorKind string `json:"error_kind"`
	Detail    string `json:"detail"`
	Retryable bool   `json:"retryable"`
}

// PlotInfo describes a rendered figure.
type PlotInfo struct {
	JobID       string   `json:"job_id"`
	ContentType string   `json:"content_type"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Bytes       int      `json:"bytes"`
	ElapsedMS   int64    `json:"elapsed_ms"`
	Warnings    []string `json:"warnings,omitempty"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// Pipeline failures come back as a successful JSON-RPC response whose result
// has isError set and an {error_kind, detail} payload. Only malformed calls
// and unknown tools are JSON-RPC errors.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	var result *ToolResult
	switch params.Name {
	case ToolRenderPlot:
		result = s.renderPlot(ctx, params.Arguments)
	case ToolGeneratePlot:
		result = s.generatePlot(ctx, params.Arguments)
	case ToolListDatasets:
		result = s.listDatasets()
	default:
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("Unknown tool: %s", params.Name), "")
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
}

// renderPlot validates args, queues the job and waits for the figure.
func (s *Server) renderPlot(ctx context.Context, args json.RawMessage) *ToolResult {
	log := s.log.FromContext(ctx)
	start := time.Now()

	spec, err := s.validator.Validate(args)
	if err != nil {
		return s.toolError(ctx, ToolRenderPlot, err)
	}

	res, err := s.jobs.Submit(ctx, spec)
	if err != nil {
		return s.toolError(ctx, ToolRenderPlot, err)
	}

	log.Info("plot generated",
		"plot_type", string(spec.Kind()),
		"format", string(res.Format),
		"size", humanize.Bytes(uint64(len(res.Data))),
		"job_id", res.JobID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return plotResult(res)
}

// generatePlotArgs are the arguments of the CSV-oriented tool.
type generatePlotArgs struct {
	CSVData    string `json:"csv_data"`
	PlotType   string `json:"plot_type"`
	JSONKwargs string `json:"json_kwargs"`
}

// Keyword arguments that name CSV columns rather than styling.
var kwargColumns = map[string]string{
	"x":      "x",
	"y":      "y",
	"hue":    "label",
	"label":  "label",
	"value":  "value",
	"region": "region",
}

// Keyword arguments passed through as request fields.
var kwargFields = map[string]bool{
	"projection": true, "format": true, "width": true, "height": true,
	"datasets": true, "extent": true,
}

// generatePlot translates the CSV tool arguments into a render request.
func (s *Server) generatePlot(ctx context.Context, args json.RawMessage) *ToolResult {
	var a generatePlotArgs
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return s.toolError(ctx, ToolGeneratePlot, perrors.Validationf("arguments", "invalid generate_plot arguments: %v", err))
	}
	if a.PlotType == "" {
		a.PlotType = "line"
	}

	req, err := kwargsRequest(a)
	if err != nil {
		return s.toolError(ctx, ToolGeneratePlot, err)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return s.toolError(ctx, ToolGeneratePlot, perrors.WrapKind(err, perrors.KindInternal, "server.generate_plot", "encoding request"))
	}
	return s.renderPlot(ctx, raw)
}

// kwargsRequest builds render_plot arguments from CSV tool arguments. Column
// keywords become column choices, request keywords pass through and the rest
// are styling options.
func kwargsRequest(a generatePlotArgs) (map[string]interface{}, error) {
	req := map[string]interface{}{
		"chart_kind": a.PlotType,
		"csv_data":   a.CSVData,
	}

	raw := strings.TrimSpace(a.JSONKwargs)
	if raw == "" || raw == "None" || raw == "null" {
		return req, nil
	}
	var kwargs map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &kwargs); err != nil {
		return nil, perrors.Validation("json_kwargs", "must be a JSON object")
	}

	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := map[string]interface{}{}
	style := map[string]interface{}{}
	for _, name := range names {
		v := kwargs[name]
		switch {
		case kwargColumns[name] != "":
			var col string
			if err := json.Unmarshal(v, &col); err != nil {
				return nil, perrors.Validationf("json_kwargs."+name, "must be a column name")
			}
			columns[kwargColumns[name]] = col
		case kwargFields[name]:
			req[name] = v
		default:
			style[name] = v
		}
	}
	if len(columns) > 0 {
		req["columns"] = columns
	}
	if len(style) > 0 {
		req["style"] = style
	}
	return req, nil
}

// listDatasets reports reference dataset status.
func (s *Server) listDatasets() *ToolResult {
	statuses := s.datasets.Status()

	var b strings.Builder
	for _, st := range statuses {
		state := "missing"
		switch {
		case st.Loaded:
			state = fmt.Sprintf("loaded (version %s, %s features)", st.Version, humanize.Comma(int64(st.Features)))
		case st.Present:
			state = "available"
		}
		fmt.Fprintf(&b, "%s: %s\n", st.Key, state)
	}

	return &ToolResult{
		Content:           []Content{{Type: "text", Text: strings.TrimRight(b.String(), "\n")}},
		StructuredContent: map[string]interface{}{"datasets": statuses},
	}
}

// plotResult wraps a figure in MCP content. PDF is not an image type, so it
// travels as an embedded resource.
func plotResult(res *render.Result) *ToolResult {
	text := "Plot generated successfully"
	if len(res.Warnings) > 0 {
		text += "\nWarnings:\n- " + strings.Join(res.Warnings, "\n- ")
	}

	encoded := base64.StdEncoding.EncodeToString(res.Data)
	body := Content{Type: "image", Data: encoded, MimeType: res.ContentType}
	if !strings.HasPrefix(res.ContentType, "image/") {
		body = Content{Type: "resource", Resource: &Resource{
			URI:      fmt.Sprintf("plot://%s.%s", res.JobID, res.Format),
			MimeType: res.ContentType,
			Blob:     encoded,
		}}
	}

	return &ToolResult{
		Content: []Content{{Type: "text", Text: text}, body},
		StructuredContent: PlotInfo{
			JobID:       res.JobID,
			ContentType: res.ContentType,
			Width:       res.Width,
			Height:      res.Height,
			Bytes:       len(res.Data),
			ElapsedMS:   res.Elapsed.Milliseconds(),
			Warnings:    res.Warnings,
		},
	}
}

// toolError reports a pipeline failure to the caller.
func (s *Server) toolError(ctx context.Context, tool string, err error) *ToolResult {
	kind := perrors.KindOf(err)
	payload := ToolError{
		ErrorKind: string(kind),
		Detail:    perrors.DetailOf(err),
		Retryable: perrors.Retryable(kind),
	}

	log := s.log.FromContext(ctx)
	switch kind {
	case perrors.KindInternal:
		log.WithError(err).Error("tool failed", "tool", tool, "error_kind", payload.ErrorKind)
	case perrors.KindValidation, perrors.KindCanceled:
		log.Info("tool request rejected", "tool", tool, "error_kind", payload.ErrorKind, "detail", payload.Detail)
	default:
		log.WithError(err).Warn("tool failed", "tool", tool, "error_kind", payload.ErrorKind)
	}

	return &ToolResult{
		Content:           []Content{{Type: "text", Text: fmt.Sprintf("%s: %s", payload.ErrorKind, payload.Detail)}},
		StructuredContent: payload,
		IsError:           true,
	}
}

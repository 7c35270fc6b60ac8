package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/plotting-mcp/internal/dispatch"
	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
	"github.com/ironsheep/plotting-mcp/internal/logger"
	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/render"
)

func TestRenderPlotScatterPNG(t *testing.T) {
	p := newTestPipeline(t, 1)

	res := callTool(t, p.srv, ToolRenderPlot, map[string]interface{}{
		"chart_kind": "scatter",
		"format":     "png",
		"records": []map[string]float64{
			{"x": 1, "y": 2},
			{"x": 2, "y": 3},
			{"x": 3, "y": 1},
		},
	})

	if res.IsError {
		t.Fatalf("unexpected error: %+v", res.StructuredContent)
	}
	if len(res.Content) != 2 {
		t.Fatalf("expected text and image content, got %d items", len(res.Content))
	}
	if res.Content[0].Text != "Plot generated successfully" {
		t.Errorf("text: got %q", res.Content[0].Text)
	}

	img := res.Content[1]
	if img.Type != "image" || img.MimeType != "image/png" {
		t.Fatalf("expected image/png content, got %s %s", img.Type, img.MimeType)
	}
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		t.Fatalf("image data is not base64: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("image data is empty")
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("image is not a PNG: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != plot.DefaultWidth || b.Dy() != plot.DefaultHeight {
		t.Errorf("size: got %dx%d", b.Dx(), b.Dy())
	}

	info, ok := res.StructuredContent.(PlotInfo)
	if !ok {
		t.Fatalf("structured content has type %T", res.StructuredContent)
	}
	if info.JobID == "" || info.Bytes != len(data) {
		t.Errorf("plot info: %+v", info)
	}
	if st := p.jobs.Stats(); st.Completed != 1 || st.Outstanding != 0 {
		t.Errorf("stats after one render: %+v", st)
	}
}

func TestRenderPlotMissingDataset(t *testing.T) {
	p := newTestPipeline(t, 1)

	res := callTool(t, p.srv, ToolRenderPlot, map[string]interface{}{
		"chart_kind": "worldmap",
		"datasets":   []string{"coastline-high"},
		"records":    []map[string]float64{{"lat": 48.8, "lon": 2.3}},
	})

	te := expectToolError(t, res, perrors.KindDataUnavailable)
	if !strings.Contains(te.Detail, "coastline-high") {
		t.Errorf("detail should name the dataset: %q", te.Detail)
	}
	if !te.Retryable {
		t.Error("data_unavailable should be retryable")
	}

	// the provisioned tier still renders
	res = callTool(t, p.srv, ToolRenderPlot, map[string]interface{}{
		"chart_kind": "worldmap",
		"datasets":   []string{"coastline-low"},
		"records":    []map[string]float64{{"lat": 48.8, "lon": 2.3}},
	})
	if res.IsError {
		t.Fatalf("coastline-low render failed: %+v", res.StructuredContent)
	}
}

func TestRenderPlotTooManyRecords(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a 30MB request")
	}
	p := newTestPipeline(t, 1)

	const n = 10_000_000
	records := "[" + strings.TrimSuffix(strings.Repeat("{},", n), ",") + "]"
	args := json.RawMessage(`{"chart_kind":"scatter","records":` + records + `}`)

	res := p.srv.renderPlot(context.Background(), args)
	te := expectToolError(t, res, perrors.KindValidation)
	if !strings.Contains(te.Detail, "100000") {
		t.Errorf("detail should cite the bound: %q", te.Detail)
	}
	if te.Retryable {
		t.Error("validation errors are not retryable")
	}
	if st := p.jobs.Stats(); st.Completed+st.Failed+st.Rejected != 0 {
		t.Errorf("rejected request reached the queue: %+v", st)
	}
}

func TestRenderPlotErrors(t *testing.T) {
	p := newTestPipeline(t, 1)

	tests := []struct {
		name string
		args string
		kind perrors.Kind
		want string
	}{
		{name: "unknown chart kind", args: `{"chart_kind":"radar"}`, kind: perrors.KindValidation, want: "radar"},
		{name: "unknown field", args: `{"chart_kind":"line","colour":"red"}`, kind: perrors.KindValidation, want: "colour"},
		{name: "bad format", args: `{"chart_kind":"line","format":"gif"}`, kind: perrors.KindValidation, want: "gif"},
		{name: "incompatible projection", args: `{"chart_kind":"pie","projection":"mercator","records":[{"label":"a","value":1}]}`, kind: perrors.KindRender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.srv.renderPlot(context.Background(), json.RawMessage(tt.args))
			te := expectToolError(t, res, tt.kind)
			if tt.want != "" && !strings.Contains(te.Detail, tt.want) {
				t.Errorf("detail %q should mention %q", te.Detail, tt.want)
			}
		})
	}
}

func TestRenderPlotPDFIsResource(t *testing.T) {
	p := newTestPipeline(t, 1)

	res := callTool(t, p.srv, ToolRenderPlot, map[string]interface{}{
		"chart_kind": "bar",
		"format":     "pdf",
		"records":    []map[string]interface{}{{"label": "a", "value": 3}, {"label": "b", "value": 5}},
	})
	if res.IsError {
		t.Fatalf("unexpected error: %+v", res.StructuredContent)
	}

	body := res.Content[1]
	if body.Type != "resource" || body.Resource == nil {
		t.Fatalf("expected a resource, got %+v", body)
	}
	if body.Resource.MimeType != "application/pdf" {
		t.Errorf("mime type: got %s", body.Resource.MimeType)
	}
	if !strings.HasPrefix(body.Resource.URI, "plot://") || !strings.HasSuffix(body.Resource.URI, ".pdf") {
		t.Errorf("uri: got %s", body.Resource.URI)
	}
	data, err := base64.StdEncoding.DecodeString(body.Resource.Blob)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("blob is not a PDF (%v)", err)
	}
}

func TestGeneratePlotWorldmapCSV(t *testing.T) {
	p := newTestPipeline(t, 1)

	res := callTool(t, p.srv, ToolGeneratePlot, map[string]interface{}{
		"csv_data":    "city,latitude,longitude\nParis,48.85,2.35\nTokyo,35.68,139.69\nLima,-12.05,-77.04\n",
		"plot_type":   "worldmap",
		"json_kwargs": `{"s": 50, "c": "red", "alpha": 0.7, "marker": "o"}`,
	})
	if res.IsError {
		t.Fatalf("unexpected error: %+v", res.StructuredContent)
	}
	if res.Content[1].MimeType != "image/png" {
		t.Errorf("mime type: got %s", res.Content[1].MimeType)
	}
}

func TestGeneratePlotDefaultsToLine(t *testing.T) {
	jobs := &fakeJobs{}
	s := newFakeServer(jobs)

	res := callTool(t, s, ToolGeneratePlot, map[string]interface{}{
		"csv_data":    "month,sales\n1,10\n2,12\n",
		"json_kwargs": "None",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %+v", res.StructuredContent)
	}
	specs := jobs.submitted()
	if len(specs) != 1 || specs[0].Kind() != plot.Line {
		t.Fatalf("expected one line spec, got %v", specs)
	}
}

func TestGeneratePlotRejectsUnknownArgument(t *testing.T) {
	jobs := &fakeJobs{}
	s := newFakeServer(jobs)

	res := callTool(t, s, ToolGeneratePlot, map[string]interface{}{
		"csv_data": "x,y\n1,2\n",
		"kind":     "line",
	})
	expectToolError(t, res, perrors.KindValidation)
	if len(jobs.submitted()) != 0 {
		t.Error("invalid arguments reached the queue")
	}
}

func TestKwargsRequest(t *testing.T) {
	tests := []struct {
		name    string
		kwargs  string
		want    map[string]interface{}
		wantErr bool
	}{
		{
			name:   "none",
			kwargs: "None",
			want:   map[string]interface{}{},
		},
		{
			name:   "columns",
			kwargs: `{"x": "month", "y": "sales", "hue": "region"}`,
			want: map[string]interface{}{
				"columns": map[string]interface{}{"x": "month", "y": "sales", "label": "region"},
			},
		},
		{
			name:   "fields and style",
			kwargs: `{"format": "svg", "title": "Sales", "s": 20}`,
			want: map[string]interface{}{
				"format": "svg",
				"style":  map[string]interface{}{"title": "Sales", "s": float64(20)},
			},
		},
		{name: "not an object", kwargs: `[1, 2]`, wantErr: true},
		{name: "column not a string", kwargs: `{"x": 3}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := kwargsRequest(generatePlotArgs{CSVData: "a,b\n", PlotType: "bar", JSONKwargs: tt.kwargs})
			if tt.wantErr {
				if perrors.KindOf(err) != perrors.KindValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// compare through JSON so raw values and decoded values line up
			raw, _ := json.Marshal(req)
			var got map[string]interface{}
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatal(err)
			}
			if got["chart_kind"] != "bar" || got["csv_data"] != "a,b\n" {
				t.Errorf("base fields: got %v", got)
			}
			for k, v := range tt.want {
				gotJSON, _ := json.Marshal(got[k])
				wantJSON, _ := json.Marshal(v)
				if string(gotJSON) != string(wantJSON) {
					t.Errorf("%s: got %s, want %s", k, gotJSON, wantJSON)
				}
			}
			if len(got) != len(tt.want)+2 {
				t.Errorf("unexpected fields: %v", got)
			}
		})
	}
}

func TestListDatasets(t *testing.T) {
	p := newTestPipeline(t, 1)

	res := callTool(t, p.srv, ToolListDatasets, map[string]interface{}{})
	if res.IsError {
		t.Fatalf("unexpected error: %+v", res.StructuredContent)
	}
	text := res.Content[0].Text
	if !strings.Contains(text, "coastline-low: available") {
		t.Errorf("coastline-low should be available:\n%s", text)
	}
	if !strings.Contains(text, "coastline-high: missing") {
		t.Errorf("coastline-high should be missing:\n%s", text)
	}
}

// gatedRenderer blocks every render until the gate closes.
type gatedRenderer struct {
	gate    chan struct{}
	started chan struct{}
}

func (g *gatedRenderer) Render(ctx context.Context, jobID string, spec *plot.Spec) (*render.Result, error) {
	g.started <- struct{}{}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &render.Result{JobID: jobID, ContentType: "image/png", Format: plot.PNG, Data: []byte("png")}, nil
}

func (g *gatedRenderer) Reset() {}

func TestRenderPlotOverloaded(t *testing.T) {
	g := &gatedRenderer{gate: make(chan struct{}), started: make(chan struct{}, 8)}
	jobs, err := dispatch.New(dispatch.Config{
		MaxQueueDepth: 2,
		QueueTimeout:  10 * time.Second,
		ExecTimeout:   10 * time.Second,
	}, []dispatch.Renderer{g}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer jobs.Shutdown(context.Background())
	s := newFakeServer(jobs)

	args := map[string]interface{}{"chart_kind": "scatter", "records": [][]float64{{1, 2}}}
	results := make(chan *ToolResult, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, _ := json.Marshal(args)
			results <- s.renderPlot(context.Background(), raw)
		}()
	}

	<-g.started
	deadline := time.Now().Add(3 * time.Second)
	for jobs.Stats().Outstanding < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("jobs never queued: %+v", jobs.Stats())
		}
		time.Sleep(5 * time.Millisecond)
	}

	te := expectToolError(t, callTool(t, s, ToolRenderPlot, args), perrors.KindOverloaded)
	if !te.Retryable {
		t.Error("overloaded should be retryable")
	}

	close(g.gate)
	wg.Wait()
	close(results)
	for res := range results {
		if res.IsError {
			t.Errorf("admitted job failed: %+v", res.StructuredContent)
		}
	}
}

func TestToolErrorPayload(t *testing.T) {
	s := newFakeServer(&fakeJobs{})

	tests := []struct {
		name      string
		err       error
		kind      perrors.Kind
		retryable bool
	}{
		{name: "timeout", err: perrors.New(perrors.KindTimeout, "op", "render job waited 30s in the queue"), kind: perrors.KindTimeout, retryable: true},
		{name: "resource", err: perrors.New(perrors.KindResourceExhausted, "op", "figure too large"), kind: perrors.KindResourceExhausted},
		{name: "bare error", err: context.Canceled, kind: perrors.KindCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.toolError(context.Background(), ToolRenderPlot, tt.err)
			te := expectToolError(t, res, tt.kind)
			if te.Retryable != tt.retryable {
				t.Errorf("retryable: got %v", te.Retryable)
			}
			if !strings.HasPrefix(res.Content[0].Text, string(tt.kind)+": ") {
				t.Errorf("text: got %q", res.Content[0].Text)
			}
		})
	}
}

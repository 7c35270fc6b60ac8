package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/plotting-mcp/internal/dispatch"
	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
	"github.com/ironsheep/plotting-mcp/internal/logger"
	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/refdata"
	"github.com/ironsheep/plotting-mcp/internal/render"
)

const testCoastline = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {},
   "geometry": {"type": "LineString", "coordinates": [[-180, 0], [-90, 10], [0, 0], [90, -10], [180, 0]]}}
]}`

// pipeline is a server wired to a real dispatcher, worker pool and dataset
// cache. Only coastline-low is provisioned.
type pipeline struct {
	srv   *Server
	jobs  *dispatch.Dispatcher
	cache *refdata.Cache
}

func newTestPipeline(t *testing.T, workers int) *pipeline {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "coastline-low.geojson"), []byte(testCoastline), 0o644); err != nil {
		t.Fatal(err)
	}
	cache := refdata.NewCache(refdata.NewDirLoader(dir), logger.Nop())

	renderers := make([]dispatch.Renderer, workers)
	for i := range renderers {
		w, err := render.NewWorker(i, cache, render.Limits{MaxRecords: 100_000, MaxPixels: 4096 * 4096}, logger.Nop())
		if err != nil {
			t.Fatalf("NewWorker: %v", err)
		}
		renderers[i] = w
	}

	jobs, err := dispatch.New(dispatch.Config{
		MaxQueueDepth: 8,
		QueueTimeout:  10 * time.Second,
		ExecTimeout:   30 * time.Second,
	}, renderers, logger.Nop())
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = jobs.Shutdown(ctx)
	})

	srv := New(Options{
		Version:   "test",
		Validator: plot.NewValidator(plot.Limits{MaxRecords: 100_000, MaxResolution: 4096}),
		Jobs:      jobs,
		Datasets:  cache,
		Log:       logger.Nop(),
	})
	return &pipeline{srv: srv, jobs: jobs, cache: cache}
}

// fakeJobs answers submissions through a function.
type fakeJobs struct {
	mu    sync.Mutex
	specs []*plot.Spec

	submit func(ctx context.Context, spec *plot.Spec) (*render.Result, error)
}

func (f *fakeJobs) Submit(ctx context.Context, spec *plot.Spec) (*render.Result, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	if f.submit != nil {
		return f.submit(ctx, spec)
	}
	return &render.Result{JobID: "job-1", ContentType: "image/png", Format: plot.PNG, Data: []byte("png"), Width: 800, Height: 600}, nil
}

func (f *fakeJobs) Stats() dispatch.Stats {
	return dispatch.Stats{Workers: 1, MaxDepth: 4}
}

func (f *fakeJobs) submitted() []*plot.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*plot.Spec(nil), f.specs...)
}

type fakeCatalog []refdata.Status

func (c fakeCatalog) Status() []refdata.Status { return c }

func newFakeServer(jobs Submitter) *Server {
	return New(Options{
		Version:   "test",
		Validator: plot.NewValidator(plot.Limits{MaxRecords: 1000, MaxResolution: 2048}),
		Jobs:      jobs,
		Datasets:  fakeCatalog{{Key: "coastline-low", Name: "coastline", Tier: "low", Present: true}},
		Log:       logger.Nop(),
	})
}

// call runs one request through the message handler.
func call(t *testing.T, s *Server, method string, id interface{}, params interface{}) *MCPResponse {
	t.Helper()
	req := &MCPRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatal(err)
		}
		req.Params = raw
	}
	return s.handle(context.Background(), newSession(), req)
}

// callTool runs tools/call and returns the tool result.
func callTool(t *testing.T, s *Server, name string, args interface{}) *ToolResult {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	resp := call(t, s, "tools/call", 1, ToolCallParams{Name: name, Arguments: raw})
	if resp == nil {
		t.Fatal("tools/call returned no response")
	}
	if resp.Error != nil {
		t.Fatalf("tools/call returned JSON-RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	res, ok := resp.Result.(*ToolResult)
	if !ok {
		t.Fatalf("result has type %T", resp.Result)
	}
	return res
}

// expectToolError checks that res is an isError result of the given kind.
func expectToolError(t *testing.T, res *ToolResult, kind perrors.Kind) ToolError {
	t.Helper()
	if !res.IsError {
		t.Fatalf("expected %s error, got success", kind)
	}
	te, ok := res.StructuredContent.(ToolError)
	if !ok {
		t.Fatalf("structured content has type %T", res.StructuredContent)
	}
	if te.ErrorKind != string(kind) {
		t.Fatalf("expected error_kind %s, got %s (%s)", kind, te.ErrorKind, te.Detail)
	}
	return te
}

func TestNew(t *testing.T) {
	s := New(Options{})
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.name != "plotting-mcp" {
		t.Errorf("default name: got %q", s.name)
	}
	if s.log == nil {
		t.Error("New() did not set a logger")
	}
}

func TestInitialize(t *testing.T) {
	s := newFakeServer(&fakeJobs{})
	resp := call(t, s, "initialize", 1, map[string]interface{}{"protocolVersion": ProtocolVersion})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result has type %T", resp.Result)
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]interface{})
	if info["name"] != "plotting-mcp" || info["version"] != "test" {
		t.Errorf("serverInfo: got %v", info)
	}
}

func TestHandleMethods(t *testing.T) {
	s := newFakeServer(&fakeJobs{})

	tests := []struct {
		name     string
		method   string
		id       interface{}
		wantNil  bool
		wantCode int
	}{
		{name: "ping", method: "ping", id: 1},
		{name: "tools list", method: "tools/list", id: "a"},
		{name: "initialized notification", method: "notifications/initialized", wantNil: true},
		{name: "cancel notification", method: "notifications/cancelled", wantNil: true},
		{name: "unknown notification", method: "notifications/progress", wantNil: true},
		{name: "unknown method", method: "resources/list", id: 2, wantCode: codeMethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, s, tt.method, tt.id, nil)
			if tt.wantNil {
				if resp != nil {
					t.Fatalf("expected no response, got %+v", resp)
				}
				return
			}
			if resp == nil {
				t.Fatal("expected a response")
			}
			if resp.ID != tt.id {
				t.Errorf("id: got %v, want %v", resp.ID, tt.id)
			}
			if tt.wantCode == 0 {
				if resp.Error != nil {
					t.Errorf("unexpected error: %+v", resp.Error)
				}
				return
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("expected error code %d, got %+v", tt.wantCode, resp.Error)
			}
		})
	}
}

func TestInvalidEnvelope(t *testing.T) {
	s := newFakeServer(&fakeJobs{})
	resp := s.handle(context.Background(), newSession(), &MCPRequest{JSONRPC: "1.0", ID: 1, Method: "ping"})
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", resp.Error)
	}
}

func TestToolsCallBadParams(t *testing.T) {
	s := newFakeServer(&fakeJobs{})

	t.Run("unknown tool", func(t *testing.T) {
		resp := call(t, s, "tools/call", 1, map[string]interface{}{"name": "image_crop", "arguments": map[string]interface{}{}})
		if resp.Error == nil || resp.Error.Code != codeInvalidParams {
			t.Fatalf("expected invalid params, got %+v", resp.Error)
		}
		if !strings.Contains(resp.Error.Message, "image_crop") {
			t.Errorf("message should name the tool: %q", resp.Error.Message)
		}
	})

	t.Run("params not an object", func(t *testing.T) {
		resp := s.handle(context.Background(), newSession(), &MCPRequest{
			JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: json.RawMessage(`[1,2]`),
		})
		if resp.Error == nil || resp.Error.Code != codeInvalidParams {
			t.Fatalf("expected invalid params, got %+v", resp.Error)
		}
	})
}

func TestIDKey(t *testing.T) {
	if idKey(float64(7)) == idKey("7") {
		t.Error("numeric and string ids must not collide")
	}
	if idKey(float64(7)) != idKey(float64(7)) {
		t.Error("equal ids must share a key")
	}
}

// stdioClient drives Run over pipes.
type stdioClient struct {
	in   *io.PipeWriter
	out  *bufio.Scanner
	done chan error
}

func startStdio(t *testing.T, s *Server) *stdioClient {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	c := &stdioClient{in: inW, out: bufio.NewScanner(outR), done: make(chan error, 1)}
	c.out.Buffer(make([]byte, 0, 64*1024), MaxMessageBytes)
	go func() {
		err := s.Run(context.Background(), inR, outW)
		outW.Close()
		c.done <- err
	}()
	t.Cleanup(func() {
		inW.Close()
		outR.Close()
	})
	return c
}

func (c *stdioClient) send(t *testing.T, msg string) {
	t.Helper()
	if _, err := io.WriteString(c.in, msg+"\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (c *stdioClient) recv(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	if !c.out.Scan() {
		t.Fatalf("no response: %v", c.out.Err())
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(c.out.Bytes(), &resp); err != nil {
		t.Fatalf("bad response %q: %v", c.out.Text(), err)
	}
	return resp
}

func TestRunStdio(t *testing.T) {
	s := newFakeServer(&fakeJobs{})
	c := startStdio(t, s)

	c.send(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	resp := c.recv(t)
	if string(resp["id"]) != "1" || resp["result"] == nil {
		t.Fatalf("initialize: %v", resp)
	}

	c.send(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	c.send(t, `not json`)
	resp = c.recv(t)
	var e MCPError
	if err := json.Unmarshal(resp["error"], &e); err != nil || e.Code != codeParseError {
		t.Fatalf("expected parse error, got %s", resp["error"])
	}

	c.send(t, `{"jsonrpc":"2.0","id":"p","method":"ping"}`)
	resp = c.recv(t)
	if string(resp["id"]) != `"p"` {
		t.Fatalf("ping: %v", resp)
	}

	c.in.Close()
	select {
	case err := <-c.done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return at EOF")
	}
}

func TestRunStdioCancelledNotification(t *testing.T) {
	started := make(chan struct{})
	jobs := &fakeJobs{submit: func(ctx context.Context, spec *plot.Spec) (*render.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, perrors.Wrap(ctx.Err(), "test.submit", "render job abandoned")
	}}
	s := newFakeServer(jobs)
	c := startStdio(t, s)

	c.send(t, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"render_plot","arguments":{"chart_kind":"scatter","records":[[1,2]]}}}`)
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("tool call never reached the queue")
	}

	// ping is answered while the call is still running
	c.send(t, `{"jsonrpc":"2.0","id":10,"method":"ping"}`)
	resp := c.recv(t)
	if string(resp["id"]) != "10" {
		t.Fatalf("expected ping response first, got %v", resp)
	}

	c.send(t, `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":9,"reason":"user abort"}}`)
	resp = c.recv(t)
	if string(resp["id"]) != "9" {
		t.Fatalf("expected tool response, got %v", resp)
	}
	var res struct {
		IsError           bool      `json:"isError"`
		StructuredContent ToolError `json:"structuredContent"`
	}
	if err := json.Unmarshal(resp["result"], &res); err != nil {
		t.Fatal(err)
	}
	if !res.IsError || res.StructuredContent.ErrorKind != string(perrors.KindCanceled) {
		t.Errorf("expected canceled error, got %+v", res)
	}
}

func TestRunStdioEOFCancelsCalls(t *testing.T) {
	started := make(chan struct{})
	canceled := make(chan struct{})
	jobs := &fakeJobs{submit: func(ctx context.Context, spec *plot.Spec) (*render.Result, error) {
		close(started)
		<-ctx.Done()
		close(canceled)
		return nil, perrors.Wrap(ctx.Err(), "test.submit", "render job abandoned")
	}}
	s := newFakeServer(jobs)
	c := startStdio(t, s)

	c.send(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"render_plot","arguments":{"chart_kind":"scatter","records":[[1,2]]}}}`)
	<-started

	// drain output so the late response does not block Run
	go func() {
		for c.out.Scan() {
		}
	}()
	c.in.Close()

	select {
	case <-canceled:
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight call was not canceled at EOF")
	}
	select {
	case <-c.done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestReadMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
		long  []bool
	}{
		{name: "short lines", input: "a\nbb\n", want: []string{"a", "bb", ""}, long: []bool{false, false, false}},
		{name: "crlf", input: "abc\r\n", want: []string{"abc", ""}, long: []bool{false, false}},
		{name: "exact limit", input: strings.Repeat("x", 40) + "\n", want: []string{strings.Repeat("x", 40), ""}, long: []bool{false, false}},
		{name: "over limit then short", input: strings.Repeat("x", 41) + "\nok\n", want: []string{"", "ok", ""}, long: []bool{true, false, false}},
		{name: "far over limit", input: strings.Repeat("y", 500) + "\nok", want: []string{"", "ok"}, long: []bool{true, false}},
		{name: "unterminated tail", input: "a\ntail", want: []string{"a", "tail"}, long: []bool{false, false}},
		{name: "unterminated tail over limit", input: strings.Repeat("z", 41), want: []string{""}, long: []bool{true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// the minimum buffer forces lines to arrive in pieces
			r := bufio.NewReaderSize(strings.NewReader(tt.input), 16)
			for i := range tt.want {
				line, tooLong, err := readMessage(r, 40)
				if string(line) != tt.want[i] || tooLong != tt.long[i] {
					t.Fatalf("line %d: got %q tooLong=%v, want %q tooLong=%v", i, line, tooLong, tt.want[i], tt.long[i])
				}
				last := i == len(tt.want)-1
				if last && err != io.EOF {
					t.Fatalf("line %d: expected EOF, got %v", i, err)
				}
				if !last && err != nil {
					t.Fatalf("line %d: unexpected error %v", i, err)
				}
			}
		})
	}
}

func expectTooLarge(t *testing.T, resp map[string]json.RawMessage) {
	t.Helper()
	if string(resp["id"]) != "null" {
		t.Errorf("expected null id, got %s", resp["id"])
	}
	var e MCPError
	if err := json.Unmarshal(resp["error"], &e); err != nil {
		t.Fatalf("expected an error, got %v", resp)
	}
	if e.Code != codeInvalidRequest || e.Data != "message too large" {
		t.Errorf("unexpected error %+v", e)
	}
}

func TestRunStdioOversizedMessage(t *testing.T) {
	s := newFakeServer(&fakeJobs{})
	s.maxMsg = 256
	c := startStdio(t, s)

	pad := strings.Repeat("x", 1024)
	c.send(t, `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"`+pad+`"}}`)
	expectTooLarge(t, c.recv(t))

	c.send(t, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	resp := c.recv(t)
	if string(resp["id"]) != "2" || resp["result"] == nil {
		t.Fatalf("expected ping to be answered after the oversized message, got %v", resp)
	}

	// an oversized final line without a newline is still answered
	if _, err := io.WriteString(c.in, pad); err != nil {
		t.Fatal(err)
	}
	c.in.Close()
	expectTooLarge(t, c.recv(t))

	select {
	case err := <-c.done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return at EOF")
	}
}

func TestRunStdioTooManyRecords(t *testing.T) {
	if testing.Short() {
		t.Skip("streams a 130MB request")
	}
	p := newTestPipeline(t, 1)
	c := startStdio(t, p.srv)

	go func() {
		io.WriteString(c.in, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"render_plot","arguments":{"chart_kind":"scatter","records":[`)
		chunk := strings.TrimSuffix(strings.Repeat("[12.5,45.25],", 100_000), ",")
		for i := 0; i < 100; i++ {
			if i > 0 {
				io.WriteString(c.in, ",")
			}
			if _, err := io.WriteString(c.in, chunk); err != nil {
				return
			}
		}
		io.WriteString(c.in, "]}}}\n"+`{"jsonrpc":"2.0","id":2,"method":"ping"}`+"\n")
	}()

	// the tool call runs concurrently, so the ping may be answered first
	byID := map[string]map[string]json.RawMessage{}
	for i := 0; i < 2; i++ {
		resp := c.recv(t)
		byID[string(resp["id"])] = resp
	}
	if byID["2"] == nil {
		t.Fatalf("ping after the large request was not answered: %v", byID)
	}
	resp := byID["1"]
	if resp == nil {
		t.Fatalf("no tool response: %v", byID)
	}
	var res struct {
		IsError           bool      `json:"isError"`
		StructuredContent ToolError `json:"structuredContent"`
	}
	if err := json.Unmarshal(resp["result"], &res); err != nil {
		t.Fatal(err)
	}
	if !res.IsError || res.StructuredContent.ErrorKind != string(perrors.KindValidation) {
		t.Fatalf("expected validation error, got %+v", res)
	}
	if !strings.Contains(res.StructuredContent.Detail, "100000") {
		t.Errorf("detail should cite the bound: %q", res.StructuredContent.Detail)
	}
}

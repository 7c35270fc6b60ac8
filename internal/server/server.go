package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ironsheep/plotting-mcp/internal/dispatch"
	"github.com/ironsheep/plotting-mcp/internal/logger"
	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/refdata"
	"github.com/ironsheep/plotting-mcp/internal/render"
)

// ProtocolVersion is the MCP revision the server speaks.
const ProtocolVersion = "2024-11-05"

// MaxMessageBytes bounds a single JSON-RPC message on any transport.
const MaxMessageBytes = 256 << 20

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Submitter runs validated plot specs, normally a *dispatch.Dispatcher.
type Submitter interface {
	Submit(ctx context.Context, spec *plot.Spec) (*render.Result, error)
	Stats() dispatch.Stats
}

// Catalog reports reference dataset status, normally a *refdata.Cache.
type Catalog interface {
	Status() []refdata.Status
}

// Options wires a Server to the pipeline.
type Options struct {
	Name      string
	Version   string
	Validator *plot.Validator
	Jobs      Submitter
	Datasets  Catalog
	Log       *logger.Logger

	// MaxMessageBytes bounds one message; zero means MaxMessageBytes.
	MaxMessageBytes int
}

// Server handles MCP protocol communication
type Server struct {
	name      string
	version   string
	validator *plot.Validator
	jobs      Submitter
	datasets  Catalog
	log       *logger.Logger
	maxMsg    int
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a new MCP server instance
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Name == "" {
		opts.Name = "plotting-mcp"
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = MaxMessageBytes
	}
	return &Server{
		name:      opts.Name,
		version:   opts.Version,
		validator: opts.Validator,
		jobs:      opts.Jobs,
		datasets:  opts.Datasets,
		log:       opts.Log.WithComponent("server"),
		maxMsg:    opts.MaxMessageBytes,
	}
}

// session tracks the in-flight tool calls of one client connection so
// notifications/cancelled and disconnects can abandon them.
type session struct {
	mu    sync.Mutex
	calls map[string]context.CancelFunc
}

func newSession() *session {
	return &session{calls: make(map[string]context.CancelFunc)}
}

// begin derives a cancelable context for the call with the given id.
func (ss *session) begin(ctx context.Context, id interface{}) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	key := idKey(id)
	ss.mu.Lock()
	ss.calls[key] = cancel
	ss.mu.Unlock()
	return ctx, func() {
		ss.mu.Lock()
		delete(ss.calls, key)
		ss.mu.Unlock()
		cancel()
	}
}

func (ss *session) cancel(id interface{}) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	cancel, ok := ss.calls[idKey(id)]
	if ok {
		cancel()
	}
	return ok
}

func (ss *session) cancelAll() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, cancel := range ss.calls {
		cancel()
	}
}

// idKey normalizes a JSON-RPC id so 7 and "7" stay distinct.
func idKey(id interface{}) string {
	b, _ := json.Marshal(id)
	return string(b)
}

// Run serves MCP over line-delimited JSON on in and out. Tool calls run
// concurrently; when in reaches EOF the calls still running are canceled.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := newSession()
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		enc = json.NewEncoder(out)
	)
	write := func(resp *MCPResponse) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(resp); err != nil {
			s.log.WithError(err).Error("failed to encode response")
		}
	}

	r := bufio.NewReaderSize(in, 64*1024)
	var err error
	for {
		line, tooLong, rerr := readMessage(r, s.maxMsg)
		if tooLong {
			s.log.Warn("discarding oversized message", "limit_bytes", s.maxMsg)
			write(errorResponse(nil, codeInvalidRequest, "Invalid Request", "message too large"))
		} else if len(bytes.TrimSpace(line)) > 0 {
			s.serveMessage(ctx, sess, line, write, &wg)
		}
		if rerr != nil {
			if rerr != io.EOF {
				err = rerr
			}
			break
		}
	}

	cancel()
	sess.cancelAll()
	wg.Wait()

	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// readMessage returns the next newline-terminated line without its
// terminator. A line longer than limit is consumed through its newline and
// reported as tooLong so the stream stays in step. err is io.EOF after the
// last line, which may be returned alongside it when unterminated.
func readMessage(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if rerr == bufio.ErrBufferFull {
			continue
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > limit {
			tooLong, line = true, nil
		}
		return line, tooLong, rerr
	}
}

// serveMessage decodes one message and answers it through write. Tool calls
// are answered from their own goroutine, tracked by wg.
func (s *Server) serveMessage(ctx context.Context, sess *session, msg []byte, write func(*MCPResponse), wg *sync.WaitGroup) {
	var req MCPRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		s.log.WithError(err).Warn("failed to parse request")
		write(errorResponse(nil, codeParseError, "Parse error", err.Error()))
		return
	}

	if req.Method == "tools/call" && req.ID != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp := s.handle(ctx, sess, &req); resp != nil {
				write(resp)
			}
		}()
		return
	}
	if resp := s.handle(ctx, sess, &req); resp != nil {
		write(resp)
	}
}

// handle routes requests to appropriate handlers
func (s *Server) handle(ctx context.Context, sess *session, req *MCPRequest) *MCPResponse {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, codeInvalidRequest, "Invalid Request", `jsonrpc must be "2.0"`)
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "notifications/cancelled":
		s.handleCancelled(sess, req)
		return nil
	case "tools/list":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{"tools": GetToolDefinitions()},
		}
	case "tools/call":
		ctx, done := sess.begin(ctx, req.ID)
		defer done()
		ctx = logger.ContextWithRequestID(ctx, idKey(req.ID))
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		if req.ID == nil {
			// unknown notifications are ignored
			return nil
		}
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), "")
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    s.name,
				"version": s.version,
			},
		},
	}
}

func (s *Server) handleCancelled(sess *session, req *MCPRequest) {
	var params struct {
		RequestID interface{} `json:"requestId"`
		Reason    string      `json:"reason"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.RequestID == nil {
		return
	}
	if sess.cancel(params.RequestID) {
		s.log.Info("tool call cancelled by client", "request_id", idKey(params.RequestID), "reason", params.Reason)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	e := &MCPError{Code: code, Message: message}
	if data != "" {
		e.Data = data
	}
	return &MCPResponse{JSONRPC: "2.0", ID: id, Error: e}
}
